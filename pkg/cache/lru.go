package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ChunkLRU evicts the least recently used chunk once it holds more than a
// fixed number of chunks.
type ChunkLRU struct {
	lru *lru.Cache[string, []byte]
}

// NewChunkLRU creates a cache holding at most n chunks (n >= 1).
func NewChunkLRU(n int) (*ChunkLRU, error) {
	c, err := lru.New[string, []byte](max(n, 1))
	if err != nil {
		return nil, err
	}
	return &ChunkLRU{lru: c}, nil
}

func (c *ChunkLRU) Get(key string) ([]byte, bool) { return c.lru.Get(key) }

func (c *ChunkLRU) Set(key string, data []byte) { c.lru.Add(key, data) }

func (c *ChunkLRU) Len() int { return c.lru.Len() }

func (c *ChunkLRU) Purge() { c.lru.Purge() }

// maxEntries bounds the entry count of a SizeLRU; the byte capacity is the real limit.
const maxEntries = 1 << 30

// SizeLRU evicts least recently used chunks while the total size of the cached
// chunks exceeds its capacity in bytes. Chunks larger than the capacity are not cached.
type SizeLRU struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, []byte]
	capacity uint64
	size     uint64
}

// NewSizeLRU creates a cache holding at most capacity bytes of chunks.
func NewSizeLRU(capacity uint64) (*SizeLRU, error) {
	c := &SizeLRU{capacity: capacity}
	l, err := lru.NewWithEvict[string, []byte](maxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// onEvict runs whenever an entry leaves the LRU, with c.mu held by the
// operation that caused it.
func (c *SizeLRU) onEvict(_ string, data []byte) {
	c.size -= uint64(len(data))
}

func (c *SizeLRU) Get(key string) ([]byte, bool) { return c.lru.Get(key) }

func (c *SizeLRU) Set(key string, data []byte) {
	n := uint64(len(data))
	if n > c.capacity {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	c.lru.Add(key, data)
	c.size += n
	for c.size > c.capacity {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Size returns the total size of the cached chunks in bytes.
func (c *SizeLRU) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *SizeLRU) Len() int { return c.lru.Len() }

func (c *SizeLRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

var (
	_ Cache = (*ChunkLRU)(nil)
	_ Cache = (*SizeLRU)(nil)
)
