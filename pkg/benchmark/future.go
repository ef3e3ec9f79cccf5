package benchmark

import (
	"context"

	"github.com/matzehuels/zarrtools/pkg/storage"
)

// Future is the pending result of a function running in its own goroutine.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn in a new goroutine.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Wait blocks until the result is ready or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// asyncStore issues reads as futures.
type asyncStore struct {
	storage.Store
}

func (s asyncStore) GetAsync(ctx context.Context, key string) *Future[[]byte] {
	return Go(func() ([]byte, error) { return s.Store.Get(ctx, key) })
}

// blockingStore serves Get by awaiting the future of an asyncStore.
type blockingStore struct {
	storage.Store
	async asyncStore
}

func newBlockingStore(s storage.Store) *blockingStore {
	return &blockingStore{Store: s, async: asyncStore{Store: s}}
}

func (s *blockingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.async.GetAsync(ctx, key).Wait(ctx)
}

// Close leaves the adapted store open; it belongs to the caller.
func (s *blockingStore) Close() error { return nil }
