package zarr

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

func TestArrayBuilder_Metadata(t *testing.T) {
	b := NewArrayBuilder([]uint64{100, 50}, Float32, []uint64{32, 32}, FillValueFromFloat64(Float32, -1))
	b.BytesToBytesCodecs = []CodecMetadata{{Name: "crc32c"}}
	b.Attributes = map[string]any{"units": "um"}
	b.DimensionNames = DimensionNamesFromStrings([]string{"y", ""})

	meta, err := b.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	raw, err := MarshalIndent(meta)
	if err != nil {
		t.Fatalf("MarshalIndent: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]any{
		"zarr_format": float64(3),
		"node_type":   "array",
		"shape":       []any{float64(100), float64(50)},
		"data_type":   "float32",
		"chunk_grid": map[string]any{
			"name":          "regular",
			"configuration": map[string]any{"chunk_shape": []any{float64(32), float64(32)}},
		},
		"chunk_key_encoding": map[string]any{
			"name":          "default",
			"configuration": map[string]any{"separator": "/"},
		},
		"fill_value": float64(-1),
		"codecs": []any{
			map[string]any{"name": "bytes", "configuration": map[string]any{"endian": "little"}},
			map[string]any{"name": "crc32c"},
		},
		"attributes":      map[string]any{"units": "um"},
		"dimension_names": []any{"y", nil},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayBuilder_Errors(t *testing.T) {
	store := storage.NewMemoryStore()

	b := NewArrayBuilder([]uint64{10, 10}, Uint8, []uint64{5}, nil)
	if _, err := b.Build(store, "/a"); !errors.Is(err, errors.ErrCodeInvalidShape) {
		t.Errorf("chunk dimensionality: err = %v", err)
	}

	b = NewArrayBuilder([]uint64{10}, Uint8, []uint64{0}, nil)
	if _, err := b.Build(store, "/a"); !errors.Is(err, errors.ErrCodeInvalidShape) {
		t.Errorf("zero chunk: err = %v", err)
	}

	b = NewArrayBuilder([]uint64{10}, Uint8, []uint64{5}, nil)
	b.KeyEncoding = ChunkKeyEncoding{Name: "default", Separator: "-"}
	if _, err := b.Build(store, "/a"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("separator: err = %v", err)
	}

	b = NewArrayBuilder([]uint64{10}, Uint8, []uint64{5}, nil)
	if _, err := b.Build(store, "a"); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("relative path: err = %v", err)
	}
}

func TestArray_BuilderRoundTrip(t *testing.T) {
	b := NewArrayBuilder([]uint64{8}, Int32, []uint64{4}, nil)
	b.ArrayToBytesCodec = NewBytesCodec("big").Metadata()
	b.BytesToBytesCodecs = []CodecMetadata{{Name: "gzip", Configuration: json.RawMessage(`{"level":3}`)}}
	arr, err := b.Build(storage.NewMemoryStore(), "/x")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	again, err := arr.Builder().Build(storage.NewMemoryStore(), "/y")
	if err != nil {
		t.Fatalf("Builder().Build: %v", err)
	}
	if diff := cmp.Diff(arr.Metadata(), again.Metadata()); diff != "" {
		t.Errorf("metadata changed through Builder (-want +got):\n%s", diff)
	}
}

func TestOpenNode(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	g, err := NewGroup(store, "/", map[string]any{"multiscales": []any{}})
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	if err := g.StoreMetadata(ctx); err != nil {
		t.Fatalf("StoreMetadata: %v", err)
	}
	arr, _ := NewArrayBuilder([]uint64{2}, Uint8, []uint64{2}, nil).Build(store, "/0")
	if err := arr.StoreMetadata(ctx); err != nil {
		t.Fatalf("StoreMetadata: %v", err)
	}
	store.Set(ctx, "old/.zgroup", []byte(`{"zarr_format":2}`))

	tests := []struct {
		path     string
		wantType NodeType
		wantCode errors.Code
	}{
		{"/", NodeGroup, ""},
		{"/0", NodeArray, ""},
		{"/old", "", errors.ErrCodeUnsupported},
		{"/nothing", "", errors.ErrCodeNotFound},
		{"0", "", errors.ErrCodeInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			node, err := OpenNode(ctx, store, tt.path)
			if tt.wantCode != "" {
				if !errors.Is(err, tt.wantCode) {
					t.Errorf("OpenNode(%s) error = %v, want code %s", tt.path, err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenNode(%s): %v", tt.path, err)
			}
			if node.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", node.Type, tt.wantType)
			}
		})
	}

	group, err := OpenGroup(ctx, store, "/")
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	if _, ok := group.Attributes()["multiscales"]; !ok {
		t.Errorf("group attributes lost: %v", group.Attributes())
	}
	if _, err := OpenGroup(ctx, store, "/0"); !errors.Is(err, errors.ErrCodeInvalidMetadata) {
		t.Errorf("OpenGroup(array) error = %v", err)
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		path, child, joined, prefix string
	}{
		{"/", "0", "/0", ""},
		{"/a", "b", "/a/b", "a/"},
		{"/a/b", "c", "/a/b/c", "a/b/"},
	}
	for _, tt := range tests {
		if got := JoinPath(tt.path, tt.child); got != tt.joined {
			t.Errorf("JoinPath(%q, %q) = %q, want %q", tt.path, tt.child, got, tt.joined)
		}
		if got := NodePrefix(tt.path); got != tt.prefix {
			t.Errorf("NodePrefix(%q) = %q, want %q", tt.path, got, tt.prefix)
		}
	}
}
