package cache

import (
	"strconv"

	"github.com/dustin/go-humanize"
)

// Provider hands out caches to workers. Every Acquire must be paired with a
// Release of the same cache.
type Provider interface {
	Acquire() Cache
	Release(Cache)
}

// Shared returns a provider that gives every worker c.
func Shared(c Cache) Provider { return shared{c} }

type shared struct{ c Cache }

func (s shared) Acquire() Cache { return s.c }

func (s shared) Release(Cache) {}

// PerWorker returns a provider that keeps one cache per concurrently running
// worker. Caches are created lazily by newCache and reused after Release, so at
// most workers caches exist. Acquire blocks while all of them are in use.
func PerWorker(workers int, newCache func() Cache) Provider {
	workers = max(workers, 1)
	p := &perWorker{
		free:  make(chan Cache, workers),
		slots: make(chan struct{}, workers),
		new:   newCache,
	}
	for range workers {
		p.slots <- struct{}{}
	}
	return p
}

type perWorker struct {
	free  chan Cache
	slots chan struct{}
	new   func() Cache
}

func (p *perWorker) Acquire() Cache {
	select {
	case c := <-p.free:
		return c
	default:
	}
	select {
	case c := <-p.free:
		return c
	case <-p.slots:
		return p.new()
	}
}

func (p *perWorker) Release(c Cache) {
	p.free <- c
}

// Spec selects a caching strategy. At most one field should be set; the zero
// Spec disables caching.
type Spec struct {
	SizeTotal       uint64 // bytes shared by all workers
	SizePerWorker   uint64 // bytes per worker
	ChunksTotal     int    // chunks shared by all workers
	ChunksPerWorker int    // chunks per worker
}

// IsZero reports whether s disables caching.
func (s Spec) IsZero() bool { return s == Spec{} }

// String describes the strategy for log output.
func (s Spec) String() string {
	switch {
	case s.SizeTotal > 0:
		return "size " + humanize.IBytes(s.SizeTotal) + " total"
	case s.SizePerWorker > 0:
		return "size " + humanize.IBytes(s.SizePerWorker) + " per worker"
	case s.ChunksTotal > 0:
		return strconv.Itoa(s.ChunksTotal) + " chunks total"
	case s.ChunksPerWorker > 0:
		return strconv.Itoa(s.ChunksPerWorker) + " chunks per worker"
	}
	return "none"
}

// Provider builds the provider for workers concurrent workers.
func (s Spec) Provider(workers int) (Provider, error) {
	switch {
	case s.SizeTotal > 0:
		c, err := NewSizeLRU(s.SizeTotal)
		if err != nil {
			return nil, err
		}
		return Shared(c), nil
	case s.ChunksTotal > 0:
		c, err := NewChunkLRU(s.ChunksTotal)
		if err != nil {
			return nil, err
		}
		return Shared(c), nil
	case s.SizePerWorker > 0:
		return PerWorker(workers, func() Cache {
			c, _ := NewSizeLRU(s.SizePerWorker)
			return c
		}), nil
	case s.ChunksPerWorker > 0:
		n := s.ChunksPerWorker
		return PerWorker(workers, func() Cache {
			c, _ := NewChunkLRU(n)
			return c
		}), nil
	}
	return Shared(NewNullCache()), nil
}
