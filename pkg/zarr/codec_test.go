package zarr

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

func mustCodecs(t *testing.T, s string) *CodecChain {
	t.Helper()
	metas, err := ParseCodecs(s)
	if err != nil {
		t.Fatalf("ParseCodecs(%s): %v", s, err)
	}
	chain, err := NewCodecChain(metas)
	if err != nil {
		t.Fatalf("NewCodecChain(%s): %v", s, err)
	}
	return chain
}

func iota16(n int) []byte {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i)
	}
	return EncodeFloat64(Uint16, values)
}

func TestCodecChain_RoundTrip(t *testing.T) {
	rep := ChunkRep{Shape: []uint64{3, 4}, DataType: Uint16, FillValue: FillValueZero(Uint16)}
	data := iota16(12)

	tests := []struct {
		name   string
		codecs string
	}{
		{"bytes", `"bytes"`},
		{"big endian", `[{"name":"bytes","configuration":{"endian":"big"}}]`},
		{"transpose", `[{"name":"transpose","configuration":{"order":[1,0]}},{"name":"bytes","configuration":{"endian":"little"}}]`},
		{"gzip", `[{"name":"bytes","configuration":{"endian":"little"}},{"name":"gzip","configuration":{"level":5}}]`},
		{"zstd crc32c", `[{"name":"bytes","configuration":{"endian":"little"}},{"name":"zstd","configuration":{"level":1,"checksum":false}},"crc32c"]`},
		{"sharding", `[{"name":"sharding_indexed","configuration":{"chunk_shape":[1,2],"codecs":[{"name":"bytes","configuration":{"endian":"little"}}],"index_codecs":[{"name":"bytes","configuration":{"endian":"little"}},"crc32c"]}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := mustCodecs(t, tt.codecs)
			enc, err := chain.Encode(data, rep, CodecOptions{})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			dec, err := chain.Decode(enc, rep, CodecOptions{})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(data, dec); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBytesCodec_BigEndian(t *testing.T) {
	chain := mustCodecs(t, `[{"name":"bytes","configuration":{"endian":"big"}}]`)
	rep := ChunkRep{Shape: []uint64{2}, DataType: Uint16, FillValue: FillValueZero(Uint16)}
	enc, err := chain.Encode([]byte{1, 2, 3, 4}, rep, CodecOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff([]byte{2, 1, 4, 3}, enc); diff != "" {
		t.Errorf("big endian encoding mismatch (-want +got):\n%s", diff)
	}
}

func TestTransposeCodec_Layout(t *testing.T) {
	chain := mustCodecs(t, `[{"name":"transpose","configuration":{"order":[1,0]}},"bytes"]`)
	rep := ChunkRep{Shape: []uint64{2, 3}, DataType: Uint8, FillValue: FillValue{0}}
	enc, err := chain.Encode([]byte{1, 2, 3, 4, 5, 6}, rep, CodecOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 4, 2, 5, 3, 6}, enc); diff != "" {
		t.Errorf("transposed layout mismatch (-want +got):\n%s", diff)
	}
}

func TestNewCodecChain_Errors(t *testing.T) {
	tests := []struct {
		name   string
		codecs string
	}{
		{"no array to bytes", `["gzip"]`},
		{"two array to bytes", `["bytes","bytes"]`},
		{"array to array after bytes", `["bytes",{"name":"transpose","configuration":{"order":[0]}}]`},
		{"unknown", `["blosc"]`},
		{"bad transpose", `[{"name":"transpose","configuration":{"order":[0,0]}},"bytes"]`},
		{"bad endian", `[{"name":"bytes","configuration":{"endian":"middle"}}]`},
		{"gzip level", `["bytes",{"name":"gzip","configuration":{"level":12}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metas, err := ParseCodecs(tt.codecs)
			if err != nil {
				t.Fatalf("ParseCodecs: %v", err)
			}
			_, err = NewCodecChain(metas)
			if !errors.Is(err, errors.ErrCodeInvalidCodec) {
				t.Errorf("NewCodecChain error = %v, want code %s", err, errors.ErrCodeInvalidCodec)
			}
		})
	}
}

func TestCRC32C_Mismatch(t *testing.T) {
	chain := mustCodecs(t, `["bytes","crc32c"]`)
	rep := ChunkRep{Shape: []uint64{4}, DataType: Uint8, FillValue: FillValue{0}}
	enc, err := chain.Encode([]byte{1, 2, 3, 4}, rep, CodecOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	enc[0] ^= 0xff

	if _, err := chain.Decode(enc, rep, CodecOptions{}); !errors.Is(err, errors.ErrCodeChecksumMismatch) {
		t.Errorf("Decode corrupted: err = %v, want checksum mismatch", err)
	}
	got, err := chain.Decode(enc, rep, CodecOptions{SkipChecksums: true})
	if err != nil {
		t.Fatalf("Decode with SkipChecksums: %v", err)
	}
	if got[0] != 1^0xff {
		t.Errorf("decoded[0] = %d, want %d", got[0], 1^0xff)
	}
}

func TestBitround(t *testing.T) {
	chain := mustCodecs(t, `[{"name":"bitround","configuration":{"keepbits":2}},{"name":"bytes","configuration":{"endian":"little"}}]`)
	rep := ChunkRep{Shape: []uint64{2}, DataType: Float32, FillValue: FillValueZero(Float32)}
	enc, err := chain.Encode(EncodeFloat64(Float32, []float64{1.0, 1.3}), rep, CodecOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got := DecodeFloat64(Float32, enc)
	// With two mantissa bits 1.3 rounds to 1.25.
	if diff := cmp.Diff([]float64{1.0, 1.25}, got); diff != "" {
		t.Errorf("bitround mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCodecs(t *testing.T) {
	got, err := ParseCodecs(`{"name":"zstd","configuration":{"level":3}}`)
	if err != nil {
		t.Fatalf("ParseCodecs: %v", err)
	}
	if len(got) != 1 || got[0].Name != "zstd" {
		t.Errorf("ParseCodecs = %+v", got)
	}
	if got, _ := ParseCodecs("  "); got != nil {
		t.Errorf("ParseCodecs(blank) = %v, want nil", got)
	}
	if _, err := ParseCodecs(`[{`); !errors.Is(err, errors.ErrCodeInvalidCodec) {
		t.Errorf("ParseCodecs(invalid) error = %v", err)
	}
}

func TestSplitCodecs(t *testing.T) {
	metas, _ := ParseCodecs(`[{"name":"transpose","configuration":{"order":[0]}},"bytes","gzip","crc32c"]`)
	a2a, a2b, b2b, err := SplitCodecs(metas)
	if err != nil {
		t.Fatalf("SplitCodecs: %v", err)
	}
	if len(a2a) != 1 || a2b == nil || a2b.Name != "bytes" || len(b2b) != 2 {
		t.Errorf("SplitCodecs = %v, %v, %v", a2a, a2b, b2b)
	}
}

func shardingCodec(t *testing.T, location string) *ShardingCodec {
	t.Helper()
	c, err := NewShardingCodec(ShardingConfig{
		ChunkShape:    []uint64{2, 2},
		Codecs:        []CodecMetadata{NewBytesCodec("little").Metadata(), {Name: "gzip", Configuration: json.RawMessage(`{"level":1}`)}},
		IndexLocation: location,
	})
	if err != nil {
		t.Fatalf("NewShardingCodec: %v", err)
	}
	return c
}

func TestShardingCodec(t *testing.T) {
	rep := ChunkRep{Shape: []uint64{4, 4}, DataType: Uint16, FillValue: FillValueFromFloat64(Uint16, 7)}
	data := iota16(16)
	// Inner chunk (1, 1) holds only fill values and must not be stored.
	for _, i := range []int{10, 11, 14, 15} {
		Uint16.PutFloat64(data, i, 7)
	}

	for _, location := range []string{"end", "start"} {
		t.Run(location, func(t *testing.T) {
			c := shardingCodec(t, location)
			enc, err := c.Encode(data, rep, CodecOptions{Concurrency: 2})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			grid := []uint64{2, 2}
			index, err := c.decodeIndex(enc, grid, CodecOptions{})
			if err != nil {
				t.Fatalf("decodeIndex: %v", err)
			}
			if index[6] != missingChunk || index[7] != missingChunk {
				t.Errorf("fill inner chunk index = (%d, %d), want missing", index[6], index[7])
			}

			dec, err := c.Decode(enc, rep, CodecOptions{})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(data, dec); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}

			region := NewSubset([]uint64{1, 1}, []uint64{2, 3})
			part, err := c.DecodeSubset(enc, rep, region, CodecOptions{})
			if err != nil {
				t.Fatalf("DecodeSubset: %v", err)
			}
			want := ExtractRegion(data, rep.Shape, region, 2)
			if diff := cmp.Diff(want, part); diff != "" {
				t.Errorf("DecodeSubset mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestShardingCodec_AllFill(t *testing.T) {
	rep := ChunkRep{Shape: []uint64{4, 4}, DataType: Uint16, FillValue: FillValueZero(Uint16)}
	c := shardingCodec(t, "end")
	enc, err := c.Encode(make([]byte, 32), rep, CodecOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := 4*16 + 4; len(enc) != want {
		t.Errorf("encoded size = %d, want index only (%d)", len(enc), want)
	}
	dec, err := c.Decode(enc, rep, CodecOptions{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !AllFill(dec, rep.FillValue) {
		t.Errorf("decoded shard is not all fill")
	}
}

func TestShardingCodec_Errors(t *testing.T) {
	c := shardingCodec(t, "end")
	rep := ChunkRep{Shape: []uint64{3, 4}, DataType: Uint16, FillValue: FillValueZero(Uint16)}
	if _, err := c.Encode(make([]byte, 24), rep, CodecOptions{}); !errors.Is(err, errors.ErrCodeInvalidShape) {
		t.Errorf("Encode with indivisible shard: err = %v, want invalid shape", err)
	}

	rep.Shape = []uint64{4, 4}
	if _, err := c.Decode([]byte{1, 2, 3}, rep, CodecOptions{}); err == nil {
		t.Errorf("Decode truncated shard: want error")
	}

	_, err := NewShardingCodec(ShardingConfig{
		ChunkShape:  []uint64{2},
		Codecs:      []CodecMetadata{{Name: "bytes"}},
		IndexCodecs: []CodecMetadata{{Name: "bytes"}, {Name: "gzip"}},
	})
	if !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("variable size index codec: err = %v, want unsupported", err)
	}
}

func TestShardingCodec_CorruptIndex(t *testing.T) {
	c, err := NewShardingCodec(ShardingConfig{
		ChunkShape:    []uint64{2},
		Codecs:        []CodecMetadata{NewBytesCodec("little").Metadata()},
		IndexCodecs:   []CodecMetadata{NewBytesCodec("little").Metadata()},
		IndexLocation: "end",
	})
	if err != nil {
		t.Fatalf("NewShardingCodec: %v", err)
	}
	rep := ChunkRep{Shape: []uint64{4}, DataType: Uint8, FillValue: FillValueZero(Uint8)}

	shard := func(data []byte, entries ...uint64) []byte {
		out := append([]byte(nil), data...)
		for _, v := range entries {
			out = binary.LittleEndian.AppendUint64(out, v)
		}
		return out
	}

	tests := []struct {
		name    string
		encoded []byte
	}{
		{"missing size only", shard(nil, 1, missingChunk, missingChunk, missingChunk)},
		{"missing offset only", shard(nil, missingChunk, 2, missingChunk, missingChunk)},
		{"offset plus size wraps", shard(nil, 2, missingChunk-1, missingChunk, missingChunk)},
		{"past end", shard([]byte{1, 2}, 0, 2, 1, 40)},
		{"offset past end", shard([]byte{1, 2}, 0, 2, 100, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decode(tt.encoded, rep, CodecOptions{Concurrency: 2}); !errors.Is(err, errors.ErrCodeInvalidMetadata) {
				t.Errorf("Decode: err = %v, want invalid metadata", err)
			}
			// Entries outside the requested region are still rejected.
			region := NewSubset([]uint64{0}, []uint64{1})
			if _, err := c.DecodeSubset(tt.encoded, rep, region, CodecOptions{}); !errors.Is(err, errors.ErrCodeInvalidMetadata) {
				t.Errorf("DecodeSubset: err = %v, want invalid metadata", err)
			}
		})
	}

	valid := shard([]byte{1, 2, 3, 4}, 0, 2, 2, 2)
	got, err := c.Decode(valid, rep, CodecOptions{})
	if err != nil {
		t.Fatalf("Decode valid shard: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, got); diff != "" {
		t.Errorf("Decode valid shard mismatch (-want +got):\n%s", diff)
	}
}

func TestChunkKeyEncoding(t *testing.T) {
	tests := []struct {
		enc     ChunkKeyEncoding
		indices []uint64
		want    string
	}{
		{ChunkKeyEncoding{"default", "/"}, []uint64{1, 23}, "c/1/23"},
		{ChunkKeyEncoding{"default", "."}, []uint64{0, 4}, "c.0.4"},
		{ChunkKeyEncoding{"default", "/"}, nil, "c"},
		{ChunkKeyEncoding{"v2", "."}, []uint64{1, 2}, "1.2"},
		{ChunkKeyEncoding{"v2", "/"}, []uint64{1, 2}, "1/2"},
		{ChunkKeyEncoding{"v2", "."}, nil, "0"},
	}
	for _, tt := range tests {
		if got := tt.enc.Key(tt.indices); got != tt.want {
			t.Errorf("%+v.Key(%v) = %q, want %q", tt.enc, tt.indices, got, tt.want)
		}
	}
}

func TestChunkConcurrency(t *testing.T) {
	plain := mustCodecs(t, `"bytes"`)
	sharded := mustCodecs(t, `[{"name":"sharding_indexed","configuration":{"chunk_shape":[2],"codecs":["bytes"]}}]`)

	tests := []struct {
		name                  string
		target, requested     int
		numChunks             uint64
		codecs                *CodecChain
		wantChunks, wantInner int
	}{
		{"plain automatic", 16, 0, 100, plain, 16, 1},
		{"sharded automatic", 16, 0, 100, sharded, 4, 4},
		{"requested", 16, 2, 100, plain, 2, 8},
		{"few chunks", 16, 0, 3, plain, 3, 5},
		{"zero target", 0, 0, 10, plain, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, inner := ChunkConcurrency(tt.target, tt.requested, tt.numChunks, tt.codecs)
			if chunks != tt.wantChunks || inner != tt.wantInner {
				t.Errorf("ChunkConcurrency = (%d, %d), want (%d, %d)", chunks, inner, tt.wantChunks, tt.wantInner)
			}
		})
	}
}
