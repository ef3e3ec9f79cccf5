package cli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/zarrtools/pkg/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()
	for key, value := range map[string]string{
		"zarr.json": `{"zarr_format":3,"node_type":"group"}`,
		"c/0/0":     "\x01\x02\x03",
	} {
		if err := s.Set(ctx, key, []byte(value)); err != nil {
			t.Fatal(err)
		}
	}

	reg := prometheus.NewRegistry()
	requests := prometheus.NewCounter(prometheus.CounterOpts{Name: "zarrtools_test_total", Help: "Test counter."})
	reg.MustRegister(requests)
	requests.Inc()

	srv := httptest.NewServer(newRouter(s, reg, log.New(io.Discard)))
	t.Cleanup(srv.Close)
	return srv
}

func TestServe(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		method      string
		path        string
		status      int
		contentType string
		body        string
	}{
		{http.MethodGet, "/zarr.json", http.StatusOK, "application/json", `{"zarr_format":3,"node_type":"group"}`},
		{http.MethodGet, "/c/0/0", http.StatusOK, "application/octet-stream", "\x01\x02\x03"},
		{http.MethodHead, "/c/0/0", http.StatusOK, "application/octet-stream", ""},
		{http.MethodGet, "/c/1/0", http.StatusNotFound, "", ""},
		{http.MethodGet, "/", http.StatusNotFound, "", ""},
		{http.MethodPut, "/c/0/0", http.StatusMethodNotAllowed, "", ""},
		{http.MethodGet, "/healthz", http.StatusOK, "", "ok\n"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.contentType != "" {
				if got := resp.Header.Get("Content-Type"); got != tt.contentType {
					t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
				}
			}
			if tt.status == http.StatusOK && string(body) != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}

func TestServe_Metrics(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "zarrtools_test_total 1") {
		t.Errorf("metrics do not contain the test counter:\n%s", body)
	}
}

func TestServe_WithoutStore(t *testing.T) {
	srv := httptest.NewServer(newRouter(nil, prometheus.NewRegistry(), log.New(io.Discard)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/zarr.json")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
