package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig selects the database and collection used by MongoDB stores.
type MongoConfig struct {
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// MongoStore stores each key as a document {_id: key, value: bytes}.
// Values are limited by the 16MB document size, so large shards belong elsewhere.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	prefix string
}

type mongoEntry struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"value"`
}

// NewMongoStore connects to uri and uses the configured collection
// (default "zarr"/"chunks").
func NewMongoStore(ctx context.Context, uri, prefix string, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "zarr"
	}
	if cfg.Collection == "" {
		cfg.Collection = "chunks"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		prefix: prefix,
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	var e mongoEntry
	err := s.coll.FindOne(ctx, bson.M{"_id": joinKey(s.prefix, key)}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get %s: %w", key, err)
	}
	return e.Value, nil
}

func (s *MongoStore) Set(ctx context.Context, key string, value []byte) error {
	id := joinKey(s.prefix, key)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id}, mongoEntry{ID: id, Value: value},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo set %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": joinKey(s.prefix, key)}); err != nil {
		return fmt.Errorf("mongo delete %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) prefixFilter(prefix string) bson.M {
	return bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(joinKey(s.prefix, prefix))}}
}

func (s *MongoStore) List(ctx context.Context, prefix string) ([]string, error) {
	cur, err := s.coll.Find(ctx, s.prefixFilter(prefix),
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongo list %s: %w", prefix, err)
	}
	defer cur.Close(ctx)
	var keys []string
	for cur.Next(ctx) {
		var e mongoEntry
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		keys = append(keys, trimKey(s.prefix, e.ID))
	}
	return keys, cur.Err()
}

func (s *MongoStore) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := s.coll.DeleteMany(ctx, s.prefixFilter(prefix)); err != nil {
		return fmt.Errorf("mongo delete %s: %w", prefix, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
