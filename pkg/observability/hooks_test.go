package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Pipeline hooks
	p := NoopPipelineHooks{}
	p.OnStageStart(ctx, "gaussian", "in.zarr", "$tmp")
	p.OnChunk(ctx, "gaussian", time.Millisecond)
	p.OnStageComplete(ctx, "gaussian", time.Second, nil)

	// Store hooks
	s := NoopStoreHooks{}
	s.OnGet(ctx, "filesystem", 128, time.Millisecond, nil)
	s.OnSet(ctx, "memory", 128, time.Millisecond, nil)
	s.OnDelete(ctx, "s3", nil)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "chunks")
	c.OnCacheMiss(ctx, "chunks")
	c.OnCacheSet(ctx, "chunks", 1024)

	// HTTP hooks
	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "example.com", "/array.zarr/zarr.json")
	h.OnResponse(ctx, "GET", "example.com", "/array.zarr/zarr.json", 200, time.Second)
	h.OnError(ctx, "GET", "example.com", "/array.zarr/zarr.json", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should return NoopPipelineHooks by default")
	}
	if _, ok := Store().(NoopStoreHooks); !ok {
		t.Error("Store() should return NoopStoreHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	// Set custom hooks
	customPipeline := &testPipelineHooks{}
	SetPipelineHooks(customPipeline)
	if Pipeline() != customPipeline {
		t.Error("SetPipelineHooks should set custom hooks")
	}

	customStore := &testStoreHooks{}
	SetStoreHooks(customStore)
	if Store() != customStore {
		t.Error("SetStoreHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
	if _, ok := Store().(NoopStoreHooks); !ok {
		t.Error("Reset() should restore NoopStoreHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testPipelineHooks{}
	SetPipelineHooks(custom)

	// Setting nil should be ignored
	SetPipelineHooks(nil)

	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should be ignored")
	}

	Reset()
}

func TestPrometheusHooks(t *testing.T) {
	ctx := context.Background()
	m := NewPrometheus(prometheus.NewRegistry())

	m.OnStageComplete(ctx, "clamp", time.Second, nil)
	m.OnStageComplete(ctx, "clamp", time.Second, errors.New("boom"))
	m.OnChunk(ctx, "clamp", time.Millisecond)
	m.OnChunk(ctx, "clamp", time.Millisecond)
	m.OnGet(ctx, "memory", 100, time.Millisecond, nil)
	m.OnSet(ctx, "memory", 50, time.Millisecond, nil)
	m.OnCacheHit(ctx, "chunks")
	m.OnCacheSet(ctx, "chunks", 10)
	m.OnResponse(ctx, "GET", "example.com", "/zarr.json", 404, time.Millisecond)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"stages ok", testutil.ToFloat64(m.StagesRun.WithLabelValues("clamp", "ok")), 1},
		{"stages error", testutil.ToFloat64(m.StagesRun.WithLabelValues("clamp", "error")), 1},
		{"chunks", testutil.ToFloat64(m.ChunksProcessed.WithLabelValues("clamp")), 2},
		{"bytes read", testutil.ToFloat64(m.StoreBytes.WithLabelValues("memory", "get")), 100},
		{"bytes written", testutil.ToFloat64(m.StoreBytes.WithLabelValues("memory", "set")), 50},
		{"cache hits", testutil.ToFloat64(m.CacheEvents.WithLabelValues("chunks", "hit")), 1},
		{"cache bytes", testutil.ToFloat64(m.CacheBytes.WithLabelValues("chunks")), 10},
		{"http 404", testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "example.com", "404")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestPrometheusRegister(t *testing.T) {
	defer Reset()
	m := NewPrometheus(prometheus.NewRegistry())
	m.Register()
	if Pipeline() != PipelineHooks(m) || Store() != StoreHooks(m) || Cache() != CacheHooks(m) || HTTP() != HTTPHooks(m) {
		t.Error("Register() should install the Prometheus hooks everywhere")
	}
}

// Test implementations
type testPipelineHooks struct{ NoopPipelineHooks }
type testStoreHooks struct{ NoopStoreHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
