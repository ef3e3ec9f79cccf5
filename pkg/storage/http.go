package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/httputil"
	"github.com/matzehuels/zarrtools/pkg/observability"
)

// HTTPConfig configures the HTTP store.
type HTTPConfig struct {
	Timeout    time.Duration `toml:"timeout"`
	Attempts   int           `toml:"attempts"`
	RetryDelay time.Duration `toml:"retry_delay"`
}

// HTTPStore reads keys relative to a base URL. It is read-only and cannot list keys.
type HTTPStore struct {
	base   *url.URL
	client *http.Client
	retry  httputil.Policy
}

// NewHTTPStore creates a store for the hierarchy served at baseURL.
func NewHTTPStore(baseURL string, cfg HTTPConfig) (*HTTPStore, error) {
	if err := errors.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid URL %s", baseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	retry := httputil.DefaultPolicy
	if cfg.Attempts > 0 {
		retry.Attempts = cfg.Attempts
	}
	if cfg.RetryDelay > 0 {
		retry.Delay = cfg.RetryDelay
	}
	return &HTTPStore{
		base:   u,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  retry,
	}, nil
}

func (s *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	u := s.base.ResolveReference(&url.URL{Path: key})
	var body []byte
	err := s.retry.Do(ctx, func() error {
		b, err := s.get(ctx, u)
		body = b
		return err
	})
	return body, err
}

func (s *HTTPStore) get(ctx context.Context, u *url.URL) ([]byte, error) {
	hooks := observability.HTTP()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", u)}
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case httputil.RetryableStatus(resp.StatusCode):
		return nil, &httputil.RetryableError{Err: errors.New(errors.ErrCodeNetwork, "GET %s: %s", u, resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, errors.New(errors.ErrCodeNetwork, "GET %s: %s", u, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &httputil.RetryableError{Err: fmt.Errorf("read body of %s: %w", u, err)}
	}
	return b, nil
}

func (s *HTTPStore) Set(context.Context, string, []byte) error { return ErrReadOnly }

func (s *HTTPStore) Delete(context.Context, string) error { return ErrReadOnly }

func (s *HTTPStore) List(context.Context, string) ([]string, error) { return nil, ErrUnsupported }

func (s *HTTPStore) DeletePrefix(context.Context, string) error { return ErrReadOnly }

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ Store = (*HTTPStore)(nil)
