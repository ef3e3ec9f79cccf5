// Package cli implements the zarrtools command-line interface.
package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/buildinfo"
	"github.com/matzehuels/zarrtools/pkg/observability"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "zarrtools"

	// metricsShutdownTimeout bounds the graceful shutdown of the metrics server.
	metricsShutdownTimeout = 2 * time.Second
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config Config

	configPath  string
	metricsAddr string
	noProgress  bool

	registry *prometheus.Registry
	metrics  *http.Server
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Zarrtools reencodes, filters, converts and inspects Zarr V3 arrays",
		Long: `Zarrtools is a collection of tools for Zarr V3 arrays: reencoding, filter
pipelines, OME-Zarr pyramids, conversion from raw binary and netCDF, inspection,
validation and read benchmarks.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.teardown(cmd.Context())
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/zarrtools/config.toml)")
	flags.StringVar(&c.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.BoolVar(&c.noProgress, "no-progress", false, "disable progress bars")

	// Register all subcommands
	root.AddCommand(c.reencodeCommand())
	root.AddCommand(c.filterCommand())
	root.AddCommand(c.omeCommand())
	root.AddCommand(c.binaryCommand())
	root.AddCommand(c.netCDFCommand())
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.benchmarkCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Setup & Teardown
// =============================================================================

// setup loads the config file and starts the metrics server when requested.
func (c *CLI) setup(ctx context.Context) error {
	path, required := c.configPath, true
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			c.Logger.Debug("no default config path", "error", err)
			path = ""
		}
		required = false
	}
	if path != "" {
		cfg, err := LoadConfig(path, required)
		if err != nil {
			return err
		}
		c.Config = cfg
	}
	if c.metricsAddr == "" {
		c.metricsAddr = c.Config.MetricsAddr
	}
	if c.metricsAddr != "" {
		c.startMetrics(ctx, c.metricsAddr)
	}
	return nil
}

// startMetrics registers Prometheus hooks and serves them in the background.
func (c *CLI) startMetrics(ctx context.Context, addr string) {
	reg := c.metricsRegistry()
	c.metrics = &http.Server{Addr: addr, Handler: newRouter(nil, reg, c.Logger)}
	go func() {
		c.Logger.Debug("serving metrics", "addr", addr)
		if err := c.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.Logger.Warn("metrics server stopped", "error", err)
		}
	}()
}

// metricsRegistry creates the registry on first use and installs the
// Prometheus observability hooks.
func (c *CLI) metricsRegistry() *prometheus.Registry {
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
		observability.NewPrometheus(c.registry).Register()
	}
	return c.registry
}

func (c *CLI) teardown(ctx context.Context) error {
	if c.metrics == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
	defer cancel()
	return c.metrics.Shutdown(ctx)
}

// =============================================================================
// Stores & Arrays
// =============================================================================

// openStore opens the store at uri with the configured backend settings.
func (c *CLI) openStore(ctx context.Context, uri string) (storage.Store, error) {
	return storage.Open(ctx, uri, c.Config.Storage)
}

// openArray opens the array at the root of the store at uri. The caller
// closes the returned store.
func (c *CLI) openArray(ctx context.Context, uri string) (storage.Store, *zarr.Array, error) {
	s, err := c.openStore(ctx, uri)
	if err != nil {
		return nil, nil, err
	}
	a, err := zarr.OpenArray(ctx, s, "/")
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, a, nil
}

// concurrentChunks returns the flag value, or the configured default when
// the flag is unset.
func (c *CLI) concurrentChunks(flag int) int {
	if flag > 0 {
		return flag
	}
	return c.Config.ConcurrentChunks
}

// progressEnabled reports whether progress bars should be drawn.
func (c *CLI) progressEnabled() bool {
	if c.noProgress {
		return false
	}
	return isTerminal(os.Stderr)
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
