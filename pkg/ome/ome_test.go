package ome

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// newInput stores an array with the given values at the root of a new
// memory store.
func newInput(t *testing.T, b *zarr.ArrayBuilder, values []float64) *zarr.Array {
	t.Helper()
	ctx := context.Background()
	arr, err := b.Build(storage.NewMemoryStore(), "/")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := arr.StoreMetadata(ctx); err != nil {
		t.Fatalf("StoreMetadata: %v", err)
	}
	data := zarr.EncodeFloat64(arr.DataType(), values)
	if err := arr.StoreSubset(ctx, zarr.SubsetWithShape(arr.Shape()), data, zarr.CodecOptions{}); err != nil {
		t.Fatalf("StoreSubset: %v", err)
	}
	return arr
}

func readLevel(t *testing.T, out storage.Store, path string) (*zarr.Array, []float64) {
	t.Helper()
	ctx := context.Background()
	arr, err := zarr.OpenArray(ctx, out, path)
	if err != nil {
		t.Fatalf("OpenArray(%s): %v", path, err)
	}
	data, err := arr.RetrieveSubset(ctx, zarr.SubsetWithShape(arr.Shape()), zarr.CodecOptions{})
	if err != nil {
		t.Fatalf("RetrieveSubset(%s): %v", path, err)
	}
	return arr, zarr.DecodeFloat64(arr.DataType(), data)
}

func readFields(t *testing.T, out storage.Store) (map[string]any, Fields) {
	t.Helper()
	g, err := zarr.OpenGroup(context.Background(), out, "/")
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	raw, err := json.Marshal(g.Attributes()["ome"])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return g.Attributes(), f
}

func iota64(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i)
	}
	return v
}

func TestBuild_Average(t *testing.T) {
	ctx := context.Background()
	b := zarr.NewArrayBuilder([]uint64{8, 8}, zarr.Uint8, []uint64{4, 4}, nil)
	b.Attributes = map[string]any{"foo": "bar"}
	b.DimensionNames = zarr.DimensionNamesFromStrings([]string{"y", "x"})
	in := newInput(t, b, iota64(64))
	out := storage.NewMemoryStore()

	res, err := Build(ctx, in, out, Options{
		PhysicalSize:  []float64{0.5, 0.25},
		PhysicalUnits: []string{"micrometer", "micrometer"},
		Name:          "image",
		ChunkLimit:    2,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var shapes [][]uint64
	for _, l := range res.Levels {
		shapes = append(shapes, l.Shape)
	}
	wantShapes := [][]uint64{{8, 8}, {4, 4}, {2, 2}, {1, 1}}
	if diff := cmp.Diff(wantShapes, shapes); diff != "" {
		t.Errorf("level shapes mismatch (-want +got):\n%s", diff)
	}

	if _, got := readLevel(t, out, "/0"); !cmp.Equal(iota64(64), got) {
		t.Errorf("level 0 = %v, want the input", got)
	}
	_, got := readLevel(t, out, "/1")
	want := make([]float64, 16)
	for i := range 4 {
		for j := range 4 {
			// Block means 16i+2j+4.5 truncate to uint8.
			want[i*4+j] = float64(16*i + 2*j + 4)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("level 1 mismatch (-want +got):\n%s", diff)
	}
	if _, got := readLevel(t, out, "/3"); !cmp.Equal([]float64{31}, got) {
		t.Errorf("level 3 = %v, want [31]", got)
	}

	attrs, fields := readFields(t, out)
	if attrs["foo"] != "bar" {
		t.Errorf("group attributes = %v, want foo moved from the array", attrs)
	}
	if a0, _ := readLevel(t, out, "/0"); len(a0.Attributes()) != 0 {
		t.Errorf("level 0 attributes = %v, want none", a0.Attributes())
	}

	wantFields := Fields{
		Version: "0.5",
		Multiscales: []Multiscale{{
			Name: "image",
			Axes: []Axis{
				{Name: "y", Type: "space", Unit: "micrometer"},
				{Name: "x", Type: "space", Unit: "micrometer"},
			},
			Datasets: []Dataset{
				{Path: "0", CoordinateTransformations: []Transform{Scale([]float64{1, 1})}},
				{Path: "1", CoordinateTransformations: []Transform{Scale([]float64{2, 2}), Translation([]float64{0.5, 0.5})}},
				{Path: "2", CoordinateTransformations: []Transform{Scale([]float64{4, 4}), Translation([]float64{1.5, 1.5})}},
				{Path: "3", CoordinateTransformations: []Transform{Scale([]float64{8, 8}), Translation([]float64{3.5, 3.5})}},
			},
			CoordinateTransformations: []Transform{Scale([]float64{0.5, 0.25})},
			Type:                      "average",
		}},
	}
	if diff := cmp.Diff(wantFields, fields, cmpopts.IgnoreFields(Multiscale{}, "Metadata")); diff != "" {
		t.Errorf("ome metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Discrete(t *testing.T) {
	ctx := context.Background()
	in := newInput(t, zarr.NewArrayBuilder([]uint64{6}, zarr.Int32, []uint64{4}, nil), []float64{1, 1, 2, 2, 2, 3})
	out := storage.NewMemoryStore()

	res, err := Build(ctx, in, out, Options{
		DownsampleFactor: []uint64{3},
		Discrete:         true,
		ChunkLimit:       1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Levels) != 3 {
		t.Fatalf("got %d levels, want 3", len(res.Levels))
	}
	if _, got := readLevel(t, out, "/1"); !cmp.Equal([]float64{1, 2}, got) {
		t.Errorf("level 1 = %v, want [1 2]", got)
	}
	// A tie goes to the first value.
	if _, got := readLevel(t, out, "/2"); !cmp.Equal([]float64{1}, got) {
		t.Errorf("level 2 = %v, want [1]", got)
	}
	if _, fields := readFields(t, out); fields.Multiscales[0].Type != TypeMode {
		t.Errorf("type = %q, want %q", fields.Multiscales[0].Type, TypeMode)
	}
}

func TestBuild_GaussianReencoded(t *testing.T) {
	ctx := context.Background()
	values := make([]float64, 64)
	for i := range values {
		values[i] = 5
	}
	in := newInput(t, zarr.NewArrayBuilder([]uint64{8, 8}, zarr.Float32, []uint64{8, 8}, nil), values)
	out := storage.NewMemoryStore()

	res, err := Build(ctx, in, out, Options{
		GaussianSigma: []float32{1, 1},
		MaxLevels:     1,
		Reencoding:    encoding.ReencodingArgs{DataType: zarr.Float64, ChunkShape: []uint64{4, 4}, ShardShape: []uint64{8, 8}},
		ChunkLimit:    2,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Levels) != 2 {
		t.Fatalf("got %d levels, want 2 (max levels)", len(res.Levels))
	}
	a0, _ := readLevel(t, out, "/0")
	if a0.DataType() != zarr.Float64 || !a0.IsSharded() {
		t.Errorf("level 0 is %s sharded=%v, want sharded float64", a0.DataType(), a0.IsSharded())
	}
	a1, got := readLevel(t, out, "/1")
	if a1.DataType() != zarr.Float64 || !cmp.Equal([]uint64{4, 4}, a1.ChunkShape()) {
		t.Errorf("level 1 is %s with chunks %v, want float64 with shards of [4 4]", a1.DataType(), a1.ChunkShape())
	}
	for i, v := range got {
		if v < 4.9 || v > 5.01 {
			t.Errorf("level 1[%d] = %v, want about 5", i, v)
		}
	}
	if _, fields := readFields(t, out); fields.Multiscales[0].Type != TypeGaussian {
		t.Errorf("type = %q, want %q", fields.Multiscales[0].Type, TypeGaussian)
	}
}

func TestBuild_Exists(t *testing.T) {
	ctx := context.Background()
	in := newInput(t, zarr.NewArrayBuilder([]uint64{4}, zarr.Uint8, []uint64{4}, nil), []float64{1, 2, 3, 4})

	tests := []struct {
		exists    string
		wantCode  errors.Code
		wantExtra bool
	}{
		{exists: ExistsExit, wantCode: errors.ErrCodeOutputExists, wantExtra: true},
		{exists: ExistsErase, wantExtra: false},
		{exists: ExistsOverwrite, wantExtra: true},
	}
	for _, tt := range tests {
		t.Run(tt.exists, func(t *testing.T) {
			out := storage.NewMemoryStore()
			if err := out.Set(ctx, "notes.txt", []byte("keep")); err != nil {
				t.Fatal(err)
			}
			_, err := Build(ctx, in, out, Options{Exists: tt.exists, ChunkLimit: 1})
			if tt.wantCode != "" {
				if !errors.Is(err, tt.wantCode) {
					t.Fatalf("error = %v, want %s", err, tt.wantCode)
				}
			} else if err != nil {
				t.Fatalf("Build: %v", err)
			}
			_, err = out.Get(ctx, "notes.txt")
			if got := err == nil; got != tt.wantExtra {
				t.Errorf("notes.txt kept = %v, want %v", got, tt.wantExtra)
			}
		})
	}
}

func TestOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"factor length", Options{DownsampleFactor: []uint64{2}}, errors.ErrCodeInvalidShape},
		{"zero factor", Options{DownsampleFactor: []uint64{2, 0}}, errors.ErrCodeInvalidInput},
		{"units length", Options{PhysicalUnits: []string{"meter"}}, errors.ErrCodeInvalidShape},
		{"negative sigma", Options{GaussianSigma: []float32{1, -1}}, errors.ErrCodeInvalidInput},
		{"exists", Options{Exists: "replace"}, errors.ErrCodeInvalidInput},
		{"max levels", Options{MaxLevels: -1}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.ValidateAndSetDefaults(2); !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{GaussianSigma: []float32{0.5, 1.2}}
	if err := opts.ValidateAndSetDefaults(2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint64{2, 2}, opts.DownsampleFactor); diff != "" {
		t.Errorf("factor mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{2, 4}, opts.GaussianKernelHalfSize); diff != "" {
		t.Errorf("kernel half size mismatch (-want +got):\n%s", diff)
	}
	if opts.MaxLevels != DefaultMaxLevels || opts.Exists != ExistsErase {
		t.Errorf("defaults: max levels %d, exists %q", opts.MaxLevels, opts.Exists)
	}
}

func TestNewAxis(t *testing.T) {
	tests := []struct {
		unit string
		want Axis
	}{
		{"", Axis{Name: "a"}},
		{"nanometer", Axis{Name: "a", Type: AxisSpace, Unit: "nanometer"}},
		{"second", Axis{Name: "a", Type: AxisTime, Unit: "second"}},
		{"channel", Axis{Name: "a", Type: AxisChannel}},
		{"pixel", Axis{Name: "a", Unit: "pixel"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, NewAxis("a", tt.unit)); diff != "" {
			t.Errorf("NewAxis(%q) mismatch (-want +got):\n%s", tt.unit, diff)
		}
	}
}
