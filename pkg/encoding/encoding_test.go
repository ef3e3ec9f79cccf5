package encoding

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

func TestShapes(t *testing.T) {
	tests := []struct {
		name                 string
		chunk, shard, shape  []uint64
		wantChunk, wantShard []uint64
	}{
		{"no shard", []uint64{0, 4}, nil, []uint64{10, 10}, []uint64{10, 4}, nil},
		{"shard clamped", []uint64{2, 2}, []uint64{100, 4}, []uint64{7, 10}, []uint64{2, 2}, []uint64{8, 4}},
		{"shard zero", []uint64{3, 2}, []uint64{0, 5}, []uint64{10, 10}, []uint64{3, 2}, []uint64{12, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := ChunkShape(tt.chunk, tt.shape)
			if diff := cmp.Diff(tt.wantChunk, chunk); diff != "" {
				t.Errorf("ChunkShape mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantShard, ShardShape(tt.shard, chunk, tt.shape)); diff != "" {
				t.Errorf("ShardShape mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseShape(t *testing.T) {
	got, err := ParseShape("1, 2,0")
	if err != nil {
		t.Fatalf("ParseShape: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 2, 0}, got); diff != "" {
		t.Errorf("ParseShape mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"", "1,x", "-1"} {
		if _, err := ParseShape(bad); !errors.Is(err, errors.ErrCodeInvalidShape) {
			t.Errorf("ParseShape(%q) error = %v, want INVALID_SHAPE", bad, err)
		}
	}
}

func TestArgs_Builder(t *testing.T) {
	args := Args{
		FillValue:          json.RawMessage(`-1`),
		Separator:          ".",
		ChunkShape:         []uint64{2, 0},
		ShardShape:         []uint64{3, 0},
		BytesToBytesCodecs: `[{"name":"gzip","configuration":{"level":5}}]`,
		Attributes:         `{"units":"m"}`,
	}
	b, err := args.Builder([]uint64{5, 6}, zarr.Int16, zarr.DimensionNamesFromStrings([]string{"y", "x"}))
	if err != nil {
		t.Fatalf("Builder: %v", err)
	}
	arr, err := b.Build(storage.NewMemoryStore(), "/a")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !arr.IsSharded() {
		t.Fatal("array is not sharded")
	}
	if diff := cmp.Diff([]uint64{4, 6}, arr.ChunkShape()); diff != "" {
		t.Errorf("shard shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{2, 6}, arr.InnerChunkShape()); diff != "" {
		t.Errorf("inner chunk shape mismatch (-want +got):\n%s", diff)
	}
	sc, _ := arr.Codecs().Sharding()
	var names []string
	for _, c := range sc.Inner().Metadata() {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"bytes", "gzip"}, names); diff != "" {
		t.Errorf("inner codecs mismatch (-want +got):\n%s", diff)
	}
	if got := arr.ChunkKey([]uint64{1, 0}); got != "a/c.1.0" {
		t.Errorf("ChunkKey = %q, want %q", got, "a/c.1.0")
	}
	if got := zarr.Int16.Float64At(arr.FillValue(), 0); got != -1 {
		t.Errorf("fill value = %v, want -1", got)
	}
	if arr.Attributes()["units"] != "m" {
		t.Errorf("attributes = %v", arr.Attributes())
	}
}

func TestArgs_BuilderErrors(t *testing.T) {
	tests := []struct {
		name string
		args Args
		code errors.Code
	}{
		{"chunk dimensionality", Args{ChunkShape: []uint64{1}}, errors.ErrCodeInvalidShape},
		{"fill value", Args{ChunkShape: []uint64{1, 1}, FillValue: json.RawMessage(`"x"`)}, errors.ErrCodeInvalidFillValue},
		{"separator", Args{ChunkShape: []uint64{1, 1}, Separator: "-"}, errors.ErrCodeInvalidInput},
		{"codec kind", Args{ChunkShape: []uint64{1, 1}, ArrayToArrayCodecs: `[{"name":"gzip"}]`}, errors.ErrCodeInvalidCodec},
		{"unknown codec", Args{ChunkShape: []uint64{1, 1}, BytesToBytesCodecs: `[{"name":"blosc"}]`}, errors.ErrCodeInvalidCodec},
		{"attributes", Args{ChunkShape: []uint64{1, 1}, Attributes: `[1]`}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.args.Builder([]uint64{4, 4}, zarr.Uint8, nil)
			if !errors.Is(err, tt.code) {
				t.Errorf("Builder error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestReencodingArgs_ChangeType(t *testing.T) {
	tests := []struct {
		args ReencodingArgs
		want ChangeType
	}{
		{ReencodingArgs{}, ChangeNone},
		{ReencodingArgs{Attributes: `{}`}, ChangeMetadata},
		{ReencodingArgs{DimensionNames: []string{"x"}}, ChangeMetadata},
		{ReencodingArgs{AttributesAppend: `{}`}, ChangeMetadata},
		{ReencodingArgs{ChunkShape: []uint64{1}}, ChangeMetadataAndChunks},
		{ReencodingArgs{DataType: zarr.Float32, Attributes: `{}`}, ChangeMetadataAndChunks},
		{ReencodingArgs{FillValue: json.RawMessage(`0`)}, ChangeMetadataAndChunks},
		{ReencodingArgs{BytesToBytesCodecs: `[]`}, ChangeMetadataAndChunks},
	}
	for _, tt := range tests {
		if got := tt.args.ChangeType(); got != tt.want {
			t.Errorf("%+v.ChangeType() = %s, want %s", tt.args, got, tt.want)
		}
	}
}

func shardedInput(t *testing.T) *zarr.Array {
	t.Helper()
	b := zarr.NewArrayBuilder([]uint64{8, 8}, zarr.Uint8, []uint64{2, 2}, zarr.FillValue{7})
	b.BytesToBytesCodecs = []zarr.CodecMetadata{{Name: "zstd", Configuration: json.RawMessage(`{"level":3}`)}}
	b.Attributes = map[string]any{"a": 1.0}
	b.SetSharding([]uint64{4, 4}, []uint64{2, 2})
	arr, err := b.Build(storage.NewMemoryStore(), "/in")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := arr.StoreMetadata(context.Background()); err != nil {
		t.Fatalf("StoreMetadata: %v", err)
	}
	return arr
}

func TestReencodingArgs_Builder(t *testing.T) {
	in := shardedInput(t)

	t.Run("unchanged", func(t *testing.T) {
		b, err := ReencodingArgs{}.Builder(in, nil)
		if err != nil {
			t.Fatalf("Builder: %v", err)
		}
		got, _ := b.Metadata()
		if diff := cmp.Diff(in.Metadata(), got); diff != "" {
			t.Errorf("metadata mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rechunk", func(t *testing.T) {
		b, err := ReencodingArgs{ChunkShape: []uint64{0, 4}}.Builder(in, []uint64{8, 8})
		if err != nil {
			t.Fatalf("Builder: %v", err)
		}
		// The existing shard shape is rounded up to the new chunk shape.
		out, err := b.Build(storage.NewMemoryStore(), "/out")
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if diff := cmp.Diff([]uint64{8, 4}, out.ChunkShape()); diff != "" {
			t.Errorf("shard shape mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]uint64{8, 4}, out.InnerChunkShape()); diff != "" {
			t.Errorf("inner chunk shape mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("data type and attributes", func(t *testing.T) {
		args := ReencodingArgs{
			DataType:         zarr.Float32,
			AttributesAppend: `{"b":2}`,
			DimensionNames:   []string{"y", ""},
			Separator:        ".",
		}
		b, err := args.Builder(in, []uint64{4, 4})
		if err != nil {
			t.Fatalf("Builder: %v", err)
		}
		out, err := b.Build(storage.NewMemoryStore(), "/out")
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if got := zarr.Float32.Float64At(out.FillValue(), 0); got != 7 {
			t.Errorf("converted fill value = %v, want 7", got)
		}
		if diff := cmp.Diff(map[string]any{"a": 1.0, "b": 2.0}, out.Attributes()); diff != "" {
			t.Errorf("attributes mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]uint64{4, 4}, out.Shape()); diff != "" {
			t.Errorf("shape mismatch (-want +got):\n%s", diff)
		}
		names := out.DimensionNames()
		if len(names) != 2 || names[0] == nil || *names[0] != "y" || names[1] != nil {
			t.Errorf("dimension names = %v", names)
		}
		if got := out.ChunkKey([]uint64{0, 1}); got != "out/c.0.1" {
			t.Errorf("ChunkKey = %q, want %q", got, "out/c.0.1")
		}
		// The input attributes are not modified.
		if _, ok := in.Attributes()["b"]; ok {
			t.Error("input attributes were modified")
		}
	})

	t.Run("explicit fill and codecs", func(t *testing.T) {
		args := ReencodingArgs{
			FillValue:          json.RawMessage(`3`),
			ShardShape:         []uint64{0, 0},
			BytesToBytesCodecs: `[{"name":"crc32c"}]`,
		}
		b, err := args.Builder(in, nil)
		if err != nil {
			t.Fatalf("Builder: %v", err)
		}
		out, err := b.Build(storage.NewMemoryStore(), "/out")
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if diff := cmp.Diff(zarr.FillValue{3}, out.FillValue()); diff != "" {
			t.Errorf("fill value mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]uint64{8, 8}, out.ChunkShape()); diff != "" {
			t.Errorf("shard shape mismatch (-want +got):\n%s", diff)
		}
		sc, _ := out.Codecs().Sharding()
		inner := sc.Inner().Metadata()
		if last := inner[len(inner)-1].Name; last != "crc32c" {
			t.Errorf("last inner codec = %q, want crc32c", last)
		}
	})

	t.Run("dimension names mismatch", func(t *testing.T) {
		_, err := ReencodingArgs{DimensionNames: []string{"x"}}.Builder(in, nil)
		if !errors.Is(err, errors.ErrCodeInvalidShape) {
			t.Errorf("error = %v, want INVALID_SHAPE", err)
		}
	})
}

func TestReencodingArgs_UnmarshalJSON(t *testing.T) {
	var got ReencodingArgs
	doc := `{"data_type":"uint16","fill_value":"NaN","attributes":{"x":1},"bytes_to_bytes_codecs":"[{\"name\":\"gzip\"}]"}`
	if err := json.Unmarshal([]byte(doc), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := ReencodingArgs{
		DataType:           zarr.Uint16,
		FillValue:          json.RawMessage(`"NaN"`),
		Attributes:         `{"x":1}`,
		BytesToBytesCodecs: `[{"name":"gzip"}]`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReencodingArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertFillValue(t *testing.T) {
	tests := []struct {
		from zarr.DataType
		fill float64
		to   zarr.DataType
		want float64
	}{
		{zarr.Float32, 300.5, zarr.Uint8, 255},
		{zarr.Int16, -3, zarr.Float64, -3},
		{zarr.Uint16, 2, zarr.Bool, 1},
	}
	for _, tt := range tests {
		got, err := ConvertFillValue(tt.from, zarr.FillValueFromFloat64(tt.from, tt.fill), tt.to)
		if err != nil {
			t.Errorf("ConvertFillValue(%s -> %s): %v", tt.from, tt.to, err)
			continue
		}
		if v := tt.to.Float64At(got, 0); v != tt.want {
			t.Errorf("ConvertFillValue(%s %v -> %s) = %v, want %v", tt.from, tt.fill, tt.to, v, tt.want)
		}
	}
	if _, err := ConvertFillValue(zarr.Complex64, make(zarr.FillValue, 8), zarr.Float32); err == nil {
		t.Error("complex conversion: want error")
	}
}
