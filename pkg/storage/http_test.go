package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPStore_Get(t *testing.T) {
	var flaky atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/array.zarr/zarr.json":
			w.Write([]byte(`{"zarr_format":3}`))
		case "/data/array.zarr/c/0/0":
			if flaky.Add(1) < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte{1, 2})
		case "/data/array.zarr/forbidden":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := NewHTTPStore(srv.URL+"/data/array.zarr", HTTPConfig{RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	b, err := s.Get(ctx, "zarr.json")
	if err != nil {
		t.Fatalf("Get(zarr.json): %v", err)
	}
	if string(b) != `{"zarr_format":3}` {
		t.Errorf("Get(zarr.json) = %q", b)
	}

	b, err = s.Get(ctx, "c/0/0")
	if err != nil {
		t.Fatalf("Get(c/0/0) after retry: %v", err)
	}
	if len(b) != 2 {
		t.Errorf("Get(c/0/0) = %v, want 2 bytes", b)
	}

	if _, err := s.Get(ctx, "c/9/9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "forbidden"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get forbidden: err = %v, want a non-NotFound error", err)
	}
}

func TestHTTPStore_ReadOnly(t *testing.T) {
	s, err := NewHTTPStore("https://example.com/array.zarr", HTTPConfig{})
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}
	ctx := context.Background()
	if err := s.Set(ctx, "zarr.json", nil); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Set: err = %v, want ErrReadOnly", err)
	}
	if err := s.DeletePrefix(ctx, ""); !errors.Is(err, ErrReadOnly) {
		t.Errorf("DeletePrefix: err = %v, want ErrReadOnly", err)
	}
	if _, err := s.List(ctx, ""); !errors.Is(err, ErrUnsupported) {
		t.Errorf("List: err = %v, want ErrUnsupported", err)
	}
}
