package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

func lookupInfo(t *testing.T, name string) infoSubcommand {
	t.Helper()
	for _, sub := range infoSubcommands {
		if sub.name == name {
			return sub
		}
	}
	t.Fatalf("unknown info subcommand %s", name)
	return infoSubcommand{}
}

func newInfoArray(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()
	a, err := zarr.NewArrayBuilder([]uint64{2, 3}, zarr.Uint8, []uint64{1, 3}, nil).Build(s, "/")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.StoreMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.StoreSubset(ctx, zarr.SubsetWithShape([]uint64{2, 3}), []byte{4, 9, 1, 0, 7, 2}, zarr.CodecOptions{}); err != nil {
		t.Fatal(err)
	}
	return s
}

func renderInfo(t *testing.T, s storage.Store, name string, args ...string) string {
	t.Helper()
	v, err := queryInfo(context.Background(), s, lookupInfo(t, name), args, 2)
	if err != nil {
		t.Fatalf("queryInfo(%s): %v", name, err)
	}
	var buf bytes.Buffer
	if err := printJSON(&buf, v); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestQueryInfo_Array(t *testing.T) {
	s := newInfoArray(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"shape", nil, "{\n  \"shape\": [\n    2,\n    3\n  ]\n}\n"},
		{"data-type", nil, "{\n  \"data_type\": \"uint8\"\n}\n"},
		{"attributes", nil, "{}\n"},
		{"range", nil, "{\n  \"min\": 0,\n  \"max\": 9\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderInfo(t, s, tt.name, tt.args...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt.name, diff)
			}
		})
	}
}

func TestQueryInfo_MetadataKeepsKeyOrder(t *testing.T) {
	s := storage.NewMemoryStore()
	doc := `{"zarr_format":3,"node_type":"group","attributes":{"b":1,"a":2}}`
	if err := s.Set(context.Background(), zarr.MetadataKey, []byte(doc)); err != nil {
		t.Fatal(err)
	}
	got := renderInfo(t, s, "metadata")
	if strings.Index(got, `"b"`) > strings.Index(got, `"a"`) {
		t.Errorf("metadata reordered keys:\n%s", got)
	}
	if !strings.Contains(got, "\n  \"node_type\": \"group\",") {
		t.Errorf("metadata not indented:\n%s", got)
	}
}

func TestQueryInfo_Group(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	g, err := zarr.NewGroup(s, "/", map[string]any{"name": "image"})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.StoreMetadata(ctx); err != nil {
		t.Fatal(err)
	}

	if got, want := renderInfo(t, s, "attributes"), "{\n  \"name\": \"image\"\n}\n"; got != want {
		t.Errorf("attributes = %q, want %q", got, want)
	}

	_, err = queryInfo(ctx, s, lookupInfo(t, "shape"), nil, 0)
	if !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Fatalf("shape of a group: got %v, want %s", err, errors.ErrCodeUnsupported)
	}
	if !strings.Contains(err.Error(), "The shape command is not supported for a group") {
		t.Errorf("unexpected message %q", err)
	}
}

func TestQueryInfo_NotFound(t *testing.T) {
	_, err := queryInfo(context.Background(), storage.NewMemoryStore(), lookupInfo(t, "shape"), nil, 0)
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("got %v, want %s", err, errors.ErrCodeNotFound)
	}
}

func TestParseHistogramArgs(t *testing.T) {
	n, lo, hi, err := parseHistogramArgs([]string{"10", "0", "255.5"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 || lo != 0 || hi != 255.5 {
		t.Errorf("parseHistogramArgs = %d, %v, %v", n, lo, hi)
	}
	if _, _, _, err := parseHistogramArgs([]string{"ten", "0", "1"}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("got %v, want %s", err, errors.ErrCodeInvalidInput)
	}
}
