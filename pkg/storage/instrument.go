package storage

import (
	"context"
	"errors"
	"time"

	"github.com/matzehuels/zarrtools/pkg/observability"
)

// instrumented reports store traffic to the registered observability hooks.
type instrumented struct {
	Store
	backend string
}

// Instrument wraps s so that reads, writes and deletions are reported to
// observability.Store() under the given backend name.
func Instrument(s Store, backend string) Store {
	return &instrumented{Store: s, backend: backend}
}

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	b, err := s.Store.Get(ctx, key)
	hookErr := err
	if errors.Is(err, ErrNotFound) {
		hookErr = nil
	}
	observability.Store().OnGet(ctx, s.backend, len(b), time.Since(start), hookErr)
	return b, err
}

func (s *instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.Store.Set(ctx, key, value)
	observability.Store().OnSet(ctx, s.backend, len(value), time.Since(start), err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	err := s.Store.Delete(ctx, key)
	observability.Store().OnDelete(ctx, s.backend, err)
	return err
}

func (s *instrumented) DeletePrefix(ctx context.Context, prefix string) error {
	err := s.Store.DeletePrefix(ctx, prefix)
	observability.Store().OnDelete(ctx, s.backend, err)
	return err
}

func (s *instrumented) Size(ctx context.Context, prefix string) (uint64, error) {
	return Size(ctx, s.Store, prefix)
}

// Unwrap returns the underlying store.
func (s *instrumented) Unwrap() Store { return s.Store }

var (
	_ Store = (*instrumented)(nil)
	_ Sizer = (*instrumented)(nil)
)
