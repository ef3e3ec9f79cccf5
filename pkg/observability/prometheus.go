package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements every hook interface with Prometheus metrics.
type Prometheus struct {
	StagesRun       *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	ChunksProcessed *prometheus.CounterVec
	ChunkDuration   *prometheus.HistogramVec

	StoreOps      *prometheus.CounterVec
	StoreBytes    *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec

	CacheEvents *prometheus.CounterVec
	CacheBytes  *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPErrors   *prometheus.CounterVec
}

// NewPrometheus creates and registers all metrics on registry.
func NewPrometheus(registry *prometheus.Registry) *Prometheus {
	factory := promauto.With(registry)

	return &Prometheus{
		// Pipeline metrics
		StagesRun: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_stages_total",
				Help: "Total number of completed stages",
			},
			[]string{"stage", "status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zarrtools_stage_duration_seconds",
				Help:    "Duration of stages",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"stage"},
		),
		ChunksProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_chunks_processed_total",
				Help: "Total number of processed output chunks",
			},
			[]string{"stage"},
		),
		ChunkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zarrtools_chunk_duration_seconds",
				Help:    "Duration of processing a single output chunk",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		// Store metrics
		StoreOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_store_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"backend", "op", "status"},
		),
		StoreBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_store_bytes_total",
				Help: "Total number of bytes read from or written to stores",
			},
			[]string{"backend", "op"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zarrtools_store_operation_duration_seconds",
				Help:    "Duration of store reads and writes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),

		// Cache metrics
		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_chunk_cache_events_total",
				Help: "Chunk cache hits, misses and insertions",
			},
			[]string{"cache", "event"},
		),
		CacheBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_chunk_cache_bytes_total",
				Help: "Total number of bytes inserted into chunk caches",
			},
			[]string{"cache"},
		),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_http_requests_total",
				Help: "Total number of HTTP store requests",
			},
			[]string{"method", "host", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zarrtools_http_request_duration_seconds",
				Help:    "Duration of HTTP store requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "host"},
		),
		HTTPErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zarrtools_http_errors_total",
				Help: "Total number of failed HTTP store requests",
			},
			[]string{"method", "host"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (p *Prometheus) OnStageStart(context.Context, string, string, string) {}

func (p *Prometheus) OnStageComplete(_ context.Context, stage string, d time.Duration, err error) {
	p.StagesRun.WithLabelValues(stage, status(err)).Inc()
	p.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Prometheus) OnChunk(_ context.Context, stage string, d time.Duration) {
	p.ChunksProcessed.WithLabelValues(stage).Inc()
	p.ChunkDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Prometheus) OnGet(_ context.Context, backend string, size int, d time.Duration, err error) {
	p.StoreOps.WithLabelValues(backend, "get", status(err)).Inc()
	p.StoreBytes.WithLabelValues(backend, "get").Add(float64(size))
	p.StoreDuration.WithLabelValues(backend, "get").Observe(d.Seconds())
}

func (p *Prometheus) OnSet(_ context.Context, backend string, size int, d time.Duration, err error) {
	p.StoreOps.WithLabelValues(backend, "set", status(err)).Inc()
	p.StoreBytes.WithLabelValues(backend, "set").Add(float64(size))
	p.StoreDuration.WithLabelValues(backend, "set").Observe(d.Seconds())
}

func (p *Prometheus) OnDelete(_ context.Context, backend string, err error) {
	p.StoreOps.WithLabelValues(backend, "delete", status(err)).Inc()
}

func (p *Prometheus) OnCacheHit(_ context.Context, keyType string) {
	p.CacheEvents.WithLabelValues(keyType, "hit").Inc()
}

func (p *Prometheus) OnCacheMiss(_ context.Context, keyType string) {
	p.CacheEvents.WithLabelValues(keyType, "miss").Inc()
}

func (p *Prometheus) OnCacheSet(_ context.Context, keyType string, size int) {
	p.CacheEvents.WithLabelValues(keyType, "set").Inc()
	p.CacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (p *Prometheus) OnRequest(context.Context, string, string, string) {}

func (p *Prometheus) OnResponse(_ context.Context, method, host, _ string, code int, d time.Duration) {
	p.HTTPRequests.WithLabelValues(method, host, strconv.Itoa(code)).Inc()
	p.HTTPDuration.WithLabelValues(method, host).Observe(d.Seconds())
}

func (p *Prometheus) OnError(_ context.Context, method, host, _ string, _ error) {
	p.HTTPErrors.WithLabelValues(method, host).Inc()
}

// Register installs p as the pipeline, store, cache and HTTP hooks.
func (p *Prometheus) Register() {
	SetPipelineHooks(p)
	SetStoreHooks(p)
	SetCacheHooks(p)
	SetHTTPHooks(p)
}

var (
	_ PipelineHooks = (*Prometheus)(nil)
	_ StoreHooks    = (*Prometheus)(nil)
	_ CacheHooks    = (*Prometheus)(nil)
	_ HTTPHooks     = (*Prometheus)(nil)
)
