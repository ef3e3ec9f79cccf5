package storage

import (
	"context"
	"net/url"
	"strings"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

// Config holds per-backend settings, usually loaded from the [storage]
// section of the config file.
type Config struct {
	HTTP  HTTPConfig  `toml:"http"`
	S3    S3Config    `toml:"s3"`
	GCS   GCSConfig   `toml:"gcs"`
	Azure AzureConfig `toml:"azure"`
	Mongo MongoConfig `toml:"mongo"`
}

// Open returns the store addressed by uri. Supported forms:
//
//	/path/to/array.zarr, file:///path/to/array.zarr
//	memory://
//	http(s)://host/path
//	s3://bucket/prefix, gs://bucket/prefix, az://container/prefix
//	redis://host:6379/0?prefix=volumes/brain.zarr
//	mongodb://host:27017#volumes/brain.zarr
//
// Every store returned by Open is instrumented with the backend name.
func Open(ctx context.Context, uri string, cfg Config) (Store, error) {
	backend, s, err := open(ctx, uri, cfg)
	if err != nil {
		return nil, err
	}
	return Instrument(s, backend), nil
}

func open(ctx context.Context, uri string, cfg Config) (string, Store, error) {
	if uri == "" {
		return "", nil, errors.New(errors.ErrCodeInvalidPath, "empty store path")
	}
	if !strings.Contains(uri, "://") {
		s, err := NewFilesystemStore(uri)
		return "filesystem", s, err
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid store URI %q", uri)
	}
	prefix := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "file":
		s, err := NewFilesystemStore(u.Path)
		return "filesystem", s, err
	case "memory":
		return "memory", NewMemoryStore(), nil
	case "http", "https":
		s, err := NewHTTPStore(uri, cfg.HTTP)
		return "http", s, err
	case "s3":
		s, err := NewS3Store(ctx, u.Host, prefix, cfg.S3)
		return "s3", s, err
	case "gs", "gcs":
		s, err := NewGCSStore(ctx, u.Host, prefix, cfg.GCS)
		return "gcs", s, err
	case "az", "azure":
		s, err := NewAzureStore(u.Host, prefix, cfg.Azure)
		return "azure", s, err
	case "redis", "rediss":
		q := u.Query()
		keyPrefix := strings.Trim(q.Get("prefix"), "/")
		q.Del("prefix")
		u.RawQuery = q.Encode()
		s, err := NewRedisStore(ctx, u.String(), keyPrefix)
		return "redis", s, err
	case "mongodb", "mongodb+srv":
		keyPrefix := strings.Trim(u.Fragment, "/")
		u.Fragment = ""
		s, err := NewMongoStore(ctx, u.String(), keyPrefix, cfg.Mongo)
		return "mongo", s, err
	default:
		return "", nil, errors.New(errors.ErrCodeInvalidPath, "unsupported store scheme %q", u.Scheme)
	}
}

// IsLocal reports whether uri names a filesystem path.
func IsLocal(uri string) bool {
	return !strings.Contains(uri, "://") || strings.HasPrefix(uri, "file://")
}
