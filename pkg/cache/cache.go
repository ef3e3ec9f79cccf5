// Package cache provides caches of decoded chunks.
//
// # Overview
//
// Filters and the reencoder read overlapping input regions, so the same
// decoded chunk is often needed more than once. A [Cache] keeps decoded
// chunks in memory, bounded either by the number of chunks ([NewChunkLRU]) or
// by their total size in bytes ([NewSizeLRU]). [NewNullCache] disables caching.
//
// A [Provider] hands caches to workers. [Shared] gives every worker the same
// cache; [PerWorker] gives each concurrently running worker its own cache:
//
//	p := cache.Spec{SizePerWorker: 256 << 20}.Provider(workers)
//	c := p.Acquire()
//	defer p.Release(c)
//	data, err := array.RetrieveSubsetWith(ctx, subset, opts, cache.Getter(c, array, opts))
//
// Cached chunks are shared between readers and must not be modified.
package cache

import (
	"context"

	"github.com/matzehuels/zarrtools/pkg/observability"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Cache maps keys to decoded chunks. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns the cached chunk and whether it was present.
	Get(key string) ([]byte, bool)

	// Set stores a chunk. It may evict other entries or ignore the chunk.
	Set(key string, data []byte)

	// Len returns the number of cached chunks.
	Len() int

	// Purge removes every entry.
	Purge()
}

// Getter returns a chunk getter for a that serves decoded chunks from c and
// fills c on a miss. Cache traffic is reported to observability.Cache().
func Getter(c Cache, a *zarr.Array, opts zarr.CodecOptions) zarr.ChunkGetter {
	return func(ctx context.Context, indices []uint64) ([]byte, error) {
		key := Key(a, indices)
		hooks := observability.Cache()
		if data, ok := c.Get(key); ok {
			hooks.OnCacheHit(ctx, "chunk")
			return data, nil
		}
		hooks.OnCacheMiss(ctx, "chunk")
		data, err := a.RetrieveChunk(ctx, indices, opts)
		if err != nil {
			return nil, err
		}
		c.Set(key, data)
		hooks.OnCacheSet(ctx, "chunk", len(data))
		return data, nil
	}
}

// Key identifies the chunk at indices of a. Arrays at the same path of
// different stores share keys, so a cache should serve one hierarchy.
func Key(a *zarr.Array, indices []uint64) string {
	return a.Path() + "\x00" + a.ChunkKey(indices)
}

// Scoped prefixes every key, so that one cache can serve several hierarchies.
func Scoped(c Cache, prefix string) Cache {
	if prefix == "" {
		return c
	}
	return &scoped{inner: c, prefix: prefix}
}

type scoped struct {
	inner  Cache
	prefix string
}

func (s *scoped) Get(key string) ([]byte, bool) { return s.inner.Get(s.prefix + key) }

func (s *scoped) Set(key string, data []byte) { s.inner.Set(s.prefix+key, data) }

func (s *scoped) Len() int { return s.inner.Len() }

func (s *scoped) Purge() { s.inner.Purge() }

var _ Cache = (*scoped)(nil)
