package zarr

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

func iota8(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestArray_StoreRetrieveSubset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	tests := []struct {
		name  string
		build func() *ArrayBuilder
	}{
		{"regular", func() *ArrayBuilder {
			return NewArrayBuilder([]uint64{5, 5}, Uint8, []uint64{2, 2}, FillValue{0})
		}},
		{"sharded", func() *ArrayBuilder {
			b := NewArrayBuilder([]uint64{5, 5}, Uint8, []uint64{2, 2}, FillValue{0})
			b.BytesToBytesCodecs = []CodecMetadata{{Name: "zstd", Configuration: json.RawMessage(`{"level":1,"checksum":true}`)}}
			b.SetSharding([]uint64{4, 4}, []uint64{2, 2})
			return b
		}},
		{"v2keys", func() *ArrayBuilder {
			b := NewArrayBuilder([]uint64{5, 5}, Uint8, []uint64{3, 2}, FillValue{0})
			b.KeyEncoding = ChunkKeyEncoding{Name: "v2"}
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/" + tt.name
			arr, err := tt.build().Build(store, path)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if err := arr.StoreMetadata(ctx); err != nil {
				t.Fatalf("StoreMetadata: %v", err)
			}

			data := iota8(25)
			if err := arr.StoreSubset(ctx, SubsetWithShape(arr.Shape()), data, CodecOptions{Concurrency: 4}); err != nil {
				t.Fatalf("StoreSubset: %v", err)
			}

			reopened, err := OpenArray(ctx, store, path)
			if err != nil {
				t.Fatalf("OpenArray: %v", err)
			}
			got, err := reopened.RetrieveSubset(ctx, SubsetWithShape(arr.Shape()), CodecOptions{Concurrency: 4})
			if err != nil {
				t.Fatalf("RetrieveSubset: %v", err)
			}
			if diff := cmp.Diff(data, got); diff != "" {
				t.Errorf("full subset mismatch (-want +got):\n%s", diff)
			}

			region := NewSubset([]uint64{1, 2}, []uint64{3, 3})
			got, err = reopened.RetrieveSubset(ctx, region, CodecOptions{})
			if err != nil {
				t.Fatalf("RetrieveSubset(region): %v", err)
			}
			if diff := cmp.Diff(ExtractRegion(data, arr.Shape(), region, 1), got); diff != "" {
				t.Errorf("region mismatch (-want +got):\n%s", diff)
			}

			// Partial update crossing chunk boundaries.
			patch := []byte{100, 101, 102, 103}
			patchRegion := NewSubset([]uint64{3, 1}, []uint64{2, 2})
			if err := reopened.StoreSubset(ctx, patchRegion, patch, CodecOptions{}); err != nil {
				t.Fatalf("StoreSubset(patch): %v", err)
			}
			got, _ = reopened.RetrieveSubset(ctx, patchRegion, CodecOptions{})
			if diff := cmp.Diff(patch, got); diff != "" {
				t.Errorf("patched region mismatch (-want +got):\n%s", diff)
			}
			corner, _ := reopened.RetrieveSubset(ctx, NewSubset([]uint64{0, 0}, []uint64{1, 1}), CodecOptions{})
			if corner[0] != 1 {
				t.Errorf("untouched element = %d, want 1", corner[0])
			}
		})
	}
}

func TestArray_FillChunksErased(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	arr, err := NewArrayBuilder([]uint64{4}, Int16, []uint64{2}, FillValueFromFloat64(Int16, -1)).Build(store, "/a")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := EncodeFloat64(Int16, []float64{-1, -1, 5, -1})
	if err := arr.StoreSubset(ctx, SubsetWithShape(arr.Shape()), data, CodecOptions{}); err != nil {
		t.Fatalf("StoreSubset: %v", err)
	}
	keys, _ := store.List(ctx, "a/")
	if diff := cmp.Diff([]string{"a/c/1"}, keys); diff != "" {
		t.Errorf("stored chunk keys mismatch (-want +got):\n%s", diff)
	}

	chunk, err := arr.RetrieveChunk(ctx, []uint64{0}, CodecOptions{})
	if err != nil {
		t.Fatalf("RetrieveChunk: %v", err)
	}
	if !AllFill(chunk, arr.FillValue()) {
		t.Errorf("missing chunk did not decode to fill value")
	}

	// Overwriting with fill values deletes the stored chunk.
	if err := arr.StoreChunk(ctx, []uint64{1}, EncodeFloat64(Int16, []float64{-1, -1}), CodecOptions{}); err != nil {
		t.Fatalf("StoreChunk: %v", err)
	}
	if ok, _ := storage.Exists(ctx, store, "a/c/"); ok {
		t.Errorf("fill chunk was not erased")
	}
}

func TestArray_Geometry(t *testing.T) {
	b := NewArrayBuilder([]uint64{10, 7}, Float32, []uint64{4, 4}, nil)
	b.SetSharding([]uint64{8, 4}, []uint64{4, 2})
	arr, err := b.Build(storage.NewMemoryStore(), "/")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !arr.IsSharded() {
		t.Fatalf("IsSharded = false")
	}
	if diff := cmp.Diff([]uint64{8, 4}, arr.ChunkShape()); diff != "" {
		t.Errorf("ChunkShape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{4, 2}, arr.InnerChunkShape()); diff != "" {
		t.Errorf("InnerChunkShape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{2, 2}, arr.ChunkGridShape()); diff != "" {
		t.Errorf("ChunkGridShape mismatch (-want +got):\n%s", diff)
	}
	if got := arr.NumChunks(); got != 4 {
		t.Errorf("NumChunks = %d, want 4", got)
	}
	bounded := arr.ChunkSubsetBounded([]uint64{1, 1})
	if !bounded.Equal(NewSubset([]uint64{8, 4}, []uint64{2, 3})) {
		t.Errorf("ChunkSubsetBounded = %v", bounded)
	}
	if got := arr.ChunkKey([]uint64{1, 0}); got != "c/1/0" {
		t.Errorf("ChunkKey = %q, want %q", got, "c/1/0")
	}
}

func TestArray_RetrieveSubsetWith(t *testing.T) {
	ctx := context.Background()
	arr, _ := NewArrayBuilder([]uint64{4}, Uint8, []uint64{2}, FillValue{0}).Build(storage.NewMemoryStore(), "/x")
	calls := 0
	got, err := arr.RetrieveSubsetWith(ctx, NewSubset([]uint64{1}, []uint64{2}), CodecOptions{}, func(_ context.Context, idx []uint64) ([]byte, error) {
		calls++
		return []byte{byte(10 * idx[0]), byte(10*idx[0] + 1)}, nil
	})
	if err != nil {
		t.Fatalf("RetrieveSubsetWith: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 10}, got); diff != "" {
		t.Errorf("RetrieveSubsetWith mismatch (-want +got):\n%s", diff)
	}
	if calls != 2 {
		t.Errorf("getter calls = %d, want 2", calls)
	}
}

func TestArray_SubsetErrors(t *testing.T) {
	ctx := context.Background()
	arr, _ := NewArrayBuilder([]uint64{4, 4}, Uint8, []uint64{2, 2}, FillValue{0}).Build(storage.NewMemoryStore(), "/x")

	if _, err := arr.RetrieveSubset(ctx, NewSubset([]uint64{0}, []uint64{2}), CodecOptions{}); !errors.Is(err, errors.ErrCodeInvalidShape) {
		t.Errorf("wrong dimensionality: err = %v", err)
	}
	if _, err := arr.RetrieveSubset(ctx, NewSubset([]uint64{3, 0}, []uint64{2, 2}), CodecOptions{}); !errors.Is(err, errors.ErrCodeInvalidShape) {
		t.Errorf("out of bounds: err = %v", err)
	}
	if err := arr.StoreSubset(ctx, NewSubset([]uint64{0, 0}, []uint64{2, 2}), []byte{1}, CodecOptions{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("short data: err = %v", err)
	}
}

func TestOpenArray_Errors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Set(ctx, "old/.zarray", []byte(`{"zarr_format":2}`))
	store.Set(ctx, "bad/zarr.json", []byte(`{`))

	tests := []struct {
		path string
		code errors.Code
	}{
		{"/missing", errors.ErrCodeNotFound},
		{"/old", errors.ErrCodeUnsupported},
		{"/bad", errors.ErrCodeInvalidMetadata},
	}
	for _, tt := range tests {
		_, err := OpenArray(ctx, store, tt.path)
		if !errors.Is(err, tt.code) {
			t.Errorf("OpenArray(%s) error = %v, want code %s", tt.path, err, tt.code)
		}
	}
}
