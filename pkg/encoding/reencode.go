package encoding

import (
	"encoding/json"
	"maps"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// ChangeType classifies how much of an array a set of reencoding arguments changes.
type ChangeType int

const (
	// ChangeNone leaves the array untouched.
	ChangeNone ChangeType = iota
	// ChangeMetadata changes only dimension names or attributes.
	ChangeMetadata
	// ChangeMetadataAndChunks changes how chunks are encoded.
	ChangeMetadataAndChunks
)

func (c ChangeType) String() string {
	switch c {
	case ChangeMetadata:
		return "metadata"
	case ChangeMetadataAndChunks:
		return "metadata and chunks"
	}
	return "none"
}

// ReencodingArgs are optional overrides of an existing array's encoding.
// The JSON form is used by filter run configurations.
type ReencodingArgs struct {
	DataType           zarr.DataType   `json:"data_type,omitempty"`
	FillValue          json.RawMessage `json:"fill_value,omitempty"`
	Separator          string          `json:"separator,omitempty"`
	ChunkShape         []uint64        `json:"chunk_shape,omitempty"`
	ShardShape         []uint64        `json:"shard_shape,omitempty"`
	ArrayToArrayCodecs JSONText        `json:"array_to_array_codecs,omitempty"`
	ArrayToBytesCodec  JSONText        `json:"array_to_bytes_codec,omitempty"`
	BytesToBytesCodecs JSONText        `json:"bytes_to_bytes_codecs,omitempty"`
	DimensionNames     []string        `json:"dimension_names,omitempty"`
	Attributes         JSONText        `json:"attributes,omitempty"`
	AttributesAppend   JSONText        `json:"attributes_append,omitempty"`
}

// ChangeType reports what applying the arguments would change.
func (r ReencodingArgs) ChangeType() ChangeType {
	switch {
	case r.DataType != "" || len(r.FillValue) > 0 || r.Separator != "" ||
		r.ChunkShape != nil || r.ShardShape != nil ||
		r.ArrayToArrayCodecs != "" || r.ArrayToBytesCodec != "" || r.BytesToBytesCodecs != "":
		return ChangeMetadataAndChunks
	case r.DimensionNames != nil || r.Attributes != "" || r.AttributesAppend != "":
		return ChangeMetadata
	}
	return ChangeNone
}

// Builder returns a builder seeded from array with the overrides applied.
// A non-nil shape replaces the array shape; zero chunk and shard dimensions
// then refer to the new shape.
func (r ReencodingArgs) Builder(array *zarr.Array, shape []uint64) (*zarr.ArrayBuilder, error) {
	if shape == nil {
		shape = array.Shape()
	}
	b := array.Builder()
	b.Shape = append([]uint64(nil), shape...)

	// Current chunking, unwrapped from the sharding codec when sharded.
	chunk := array.ChunkShape()
	var shard []uint64
	codecs := array.Codecs().Metadata()
	if sc, ok := array.Codecs().Sharding(); ok {
		chunk = sc.ChunkShape()
		shard = array.ChunkShape()
		codecs = sc.Inner().Metadata()
	}
	a2a, a2b, b2b, err := zarr.SplitCodecs(codecs)
	if err != nil {
		return nil, err
	}
	b.ArrayToArrayCodecs = a2a
	b.ArrayToBytesCodec = zarr.CodecMetadata{}
	if a2b != nil {
		b.ArrayToBytesCodec = *a2b
	}
	b.BytesToBytesCodecs = b2b

	if r.ChunkShape != nil {
		if err := errors.ValidateDimensionality("chunk shape", len(r.ChunkShape), len(shape)); err != nil {
			return nil, err
		}
		chunk = ChunkShape(r.ChunkShape, shape)
	}
	if r.ShardShape != nil {
		if err := errors.ValidateDimensionality("shard shape", len(r.ShardShape), len(shape)); err != nil {
			return nil, err
		}
		shard = r.ShardShape
	}
	if shard != nil {
		shard = ShardShape(shard, chunk, shape)
	}

	if err := setCodecs(b, r.ArrayToArrayCodecs, r.ArrayToBytesCodec, r.BytesToBytesCodecs); err != nil {
		return nil, err
	}

	if r.Attributes != "" {
		attrs, err := parseAttributes(r.Attributes)
		if err != nil {
			return nil, err
		}
		b.Attributes = attrs
	}
	if r.AttributesAppend != "" {
		attrs, err := parseAttributes(r.AttributesAppend)
		if err != nil {
			return nil, err
		}
		if b.Attributes == nil {
			b.Attributes = make(map[string]any, len(attrs))
		}
		maps.Copy(b.Attributes, attrs)
	}

	if err := setSeparator(b, r.Separator); err != nil {
		return nil, err
	}

	if r.DataType != "" {
		b.DataType = r.DataType
		fixEndian(b)
	}
	if r.DimensionNames != nil {
		if err := errors.ValidateDimensionality("dimension names", len(r.DimensionNames), len(shape)); err != nil {
			return nil, err
		}
		b.DimensionNames = zarr.DimensionNamesFromStrings(r.DimensionNames)
	}

	switch {
	case len(r.FillValue) > 0:
		fill, err := zarr.ParseFillValue(b.DataType, r.FillValue)
		if err != nil {
			return nil, err
		}
		b.FillValue = fill
	case r.DataType != "" && r.DataType != array.DataType():
		fill, err := ConvertFillValue(array.DataType(), array.FillValue(), r.DataType)
		if err != nil {
			return nil, err
		}
		b.FillValue = fill
	}

	b.ChunkShape = chunk
	if shard != nil {
		b.SetSharding(shard, chunk)
	}
	return b, nil
}

// fixEndian gives a bytes codec without an endianness one when the data type
// needs it.
func fixEndian(b *zarr.ArrayBuilder) {
	if b.ArrayToBytesCodec.Name != "bytes" || b.DataType.Size() <= 1 || b.DataType.IsRawBits() {
		return
	}
	var cfg zarr.BytesCodec
	if len(b.ArrayToBytesCodec.Configuration) > 0 {
		_ = json.Unmarshal(b.ArrayToBytesCodec.Configuration, &cfg)
	}
	if cfg.Endian == "" {
		b.ArrayToBytesCodec = zarr.NewBytesCodec("little").Metadata()
	}
}

// ConvertFillValue casts a fill value to another numeric data type,
// saturating out-of-range values and mapping NaN to zero for integer types.
func ConvertFillValue(from zarr.DataType, fill zarr.FillValue, to zarr.DataType) (zarr.FillValue, error) {
	if !from.IsNumeric() || !to.IsNumeric() {
		return nil, errors.New(errors.ErrCodeUnsupportedDataType, "cannot convert fill value from %s to %s", from, to)
	}
	out, err := zarr.CastElements(from, fill, to)
	if err != nil {
		return nil, err
	}
	return zarr.FillValue(out), nil
}
