// Package storage provides key/value stores that hold Zarr hierarchies.
//
// # Overview
//
// A [Store] maps string keys ("zarr.json", "0/c/1/2", ...) to byte values.
// Implementations:
//
//   - [FilesystemStore]: a directory on local disk (atomic writes)
//   - [MemoryStore]: an in-process map, useful for tests and benchmarks
//   - [HTTPStore]: read-only access to a hierarchy served over HTTP(S)
//   - [S3Store], [GCSStore], [AzureStore]: object storage buckets/containers
//   - [RedisStore], [MongoStore]: keys held in Redis or a MongoDB collection
//
// [Open] selects an implementation from a URI:
//
//	store, err := storage.Open(ctx, "s3://bucket/volumes/brain.zarr", cfg)
//	defer store.Close()
//
// Paths without a scheme are filesystem paths.
package storage

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned by Get when a key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrReadOnly is returned by write operations on read-only stores.
	ErrReadOnly = errors.New("store is read-only")

	// ErrUnsupported is returned when a store cannot perform an operation (e.g. listing over HTTP).
	ErrUnsupported = errors.New("operation not supported by store")
)

// Store is a key/value store.
//
// Implementations must be safe for concurrent use. Get must return a slice the
// caller may modify. Delete and DeletePrefix succeed when nothing matches.
type Store interface {
	// Get returns the value of key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// List returns all keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases resources held by the store.
	Close() error
}

// Sizer is implemented by stores that can report the total size of values
// under a prefix without reading them.
type Sizer interface {
	Size(ctx context.Context, prefix string) (uint64, error)
}

// Size returns the total size in bytes of all values under prefix.
func Size(ctx context.Context, s Store, prefix string) (uint64, error) {
	if sz, ok := s.(Sizer); ok {
		return sz.Size(ctx, prefix)
	}
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, k := range keys {
		v, err := s.Get(ctx, k)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return 0, err
		}
		total += uint64(len(v))
	}
	return total, nil
}

// Exists reports whether any key lives under prefix. An empty prefix checks
// the whole store.
func Exists(ctx context.Context, s Store, prefix string) (bool, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// Copy copies every key under srcPrefix in src to dst, replacing srcPrefix by
// dstPrefix. fn, if non-nil, is called after each key with the number of
// keys copied so far and the total.
func Copy(ctx context.Context, src, dst Store, srcPrefix, dstPrefix string, fn func(done, total int)) error {
	keys, err := src.List(ctx, srcPrefix)
	if err != nil {
		return err
	}
	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := src.Get(ctx, k)
		if err != nil {
			return err
		}
		if err := dst.Set(ctx, dstPrefix+strings.TrimPrefix(k, srcPrefix), v); err != nil {
			return err
		}
		if fn != nil {
			fn(i+1, len(keys))
		}
	}
	return nil
}

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}

// joinKey places key below a store-level prefix.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

func trimKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
}
