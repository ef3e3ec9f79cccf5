package cli

import (
	"context"
	stderrors "errors"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/storage"
)

const (
	serveReadHeaderTimeout = 10 * time.Second
	serveShutdownTimeout   = 5 * time.Second
)

// newRouter serves the values of store read-only under /, Prometheus metrics
// from reg under /metrics and a liveness probe under /healthz. A nil store
// serves only the metrics and health endpoints.
func newRouter(store storage.Store, reg *prometheus.Registry, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if store != nil {
		h := storeHandler(store, logger)
		r.Get("/*", h)
		r.Head("/*", h)
	}
	return r
}

func storeHandler(store storage.Store, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		if key == "" {
			http.NotFound(w, r)
			return
		}
		value, err := store.Get(r.Context(), key)
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			http.NotFound(w, r)
			return
		case err != nil:
			logger.Error("store read failed", "key", key, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		contentType := "application/octet-stream"
		if path.Base(key) == "zarr.json" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(value)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(value)
	}
}

// requestLogger logs every request at debug level.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <store>",
		Short: "Serve a store read-only over HTTP",
		Long: `Serve the keys of a store read-only over HTTP, so that it can be opened
by any Zarr reader as an http:// store. Prometheus metrics of the store
accesses are served under /metrics.`,
		Example: `  zarrtools serve s3://bucket/volume.zarr --addr :8080
  zarrtools info shape http://localhost:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg := c.metricsRegistry()
			s, err := c.openStore(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(s, reg, c.Logger),
				ReadHeaderTimeout: serveReadHeaderTimeout,
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			printInfo(cmd.ErrOrStderr(), "Serving %s on %s", args[0], addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serveShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}
