package cli

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

// Config holds defaults read from the config file. Flags given on the
// command line take precedence.
//
//	concurrent_chunks = 8
//	chunk_limit = 4
//	tmp = "/scratch/zarrtools"
//	metrics_addr = ":9090"
//
//	[storage.s3]
//	region = "us-west-2"
//	endpoint = "http://localhost:9000"
//	use_path_style = true
//
//	[storage.http]
//	timeout = "30s"
//	attempts = 5
type Config struct {
	ConcurrentChunks int            `toml:"concurrent_chunks"`
	ChunkLimit       int            `toml:"chunk_limit"`
	TempDir          string         `toml:"tmp"`
	MetricsAddr      string         `toml:"metrics_addr"`
	Storage          storage.Config `toml:"storage"`
}

// DefaultConfigPath returns the config file location using the XDG standard
// (~/.config/zarrtools/config.toml).
func DefaultConfigPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// LoadConfig reads the config file at path. A missing file yields the zero
// Config unless required is set.
func LoadConfig(path string, required bool) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && !required {
		return Config{}, nil
	}
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "unknown keys in config %s: %v", path, undecoded)
	}
	if cfg.ConcurrentChunks < 0 || cfg.ChunkLimit < 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "concurrent_chunks and chunk_limit must not be negative")
	}
	return cfg, nil
}
