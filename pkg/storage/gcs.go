package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures Google Cloud Storage stores.
type GCSConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	Endpoint        string `toml:"endpoint"`
}

// GCSStore stores keys as objects below a prefix of a GCS bucket.
type GCSStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
}

// NewGCSStore creates a store for gs://bucket/prefix.
func NewGCSStore(ctx context.Context, bucket, prefix string, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), prefix: prefix}, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(joinKey(s.prefix, key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Set(ctx context.Context, key string, value []byte) error {
	w := s.bucket.Object(joinKey(s.prefix, key)).NewWriter(ctx)
	if _, err := w.Write(value); err != nil {
		w.Close()
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(joinKey(s.prefix, key)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) each(ctx context.Context, prefix string, fn func(key string, size int64)) error {
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: joinKey(s.prefix, prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		fn(trimKey(s.prefix, attrs.Name), attrs.Size)
	}
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.each(ctx, prefix, func(key string, _ int64) { keys = append(keys, key) })
	return keys, err
}

func (s *GCSStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *GCSStore) Size(ctx context.Context, prefix string) (uint64, error) {
	var total uint64
	err := s.each(ctx, prefix, func(_ string, size int64) { total += uint64(size) })
	return total, err
}

func (s *GCSStore) Close() error { return s.client.Close() }

var (
	_ Store = (*GCSStore)(nil)
	_ Sizer = (*GCSStore)(nil)
)
