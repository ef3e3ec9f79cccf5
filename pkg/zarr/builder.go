package zarr

import (
	"encoding/json"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

// ArrayBuilder assembles the metadata of a new array.
type ArrayBuilder struct {
	Shape      []uint64
	DataType   DataType
	ChunkShape []uint64
	FillValue  FillValue

	// KeyEncoding defaults to the default encoding with a "/" separator.
	KeyEncoding ChunkKeyEncoding

	ArrayToArrayCodecs []CodecMetadata
	// ArrayToBytesCodec defaults to little-endian bytes when its name is empty.
	ArrayToBytesCodec  CodecMetadata
	BytesToBytesCodecs []CodecMetadata

	Attributes     map[string]any
	DimensionNames []*string
}

// NewArrayBuilder creates a builder with the required fields set.
func NewArrayBuilder(shape []uint64, dataType DataType, chunkShape []uint64, fill FillValue) *ArrayBuilder {
	return &ArrayBuilder{
		Shape:      shape,
		DataType:   dataType,
		ChunkShape: chunkShape,
		FillValue:  fill,
	}
}

// SetSharding wraps the current codecs into a sharding codec with the
// given inner chunk shape; ChunkShape becomes the shard shape.
func (b *ArrayBuilder) SetSharding(shardShape, innerChunkShape []uint64) {
	inner := make([]CodecMetadata, 0, len(b.ArrayToArrayCodecs)+1+len(b.BytesToBytesCodecs))
	inner = append(inner, b.ArrayToArrayCodecs...)
	inner = append(inner, b.arrayToBytes())
	inner = append(inner, b.BytesToBytesCodecs...)
	cfg := ShardingConfig{
		ChunkShape:    innerChunkShape,
		Codecs:        inner,
		IndexCodecs:   DefaultIndexCodecs(),
		IndexLocation: "end",
	}
	b.ChunkShape = shardShape
	b.ArrayToArrayCodecs = nil
	b.ArrayToBytesCodec = CodecMetadata{Name: "sharding_indexed", Configuration: marshalConfig(cfg)}
	b.BytesToBytesCodecs = nil
}

func (b *ArrayBuilder) arrayToBytes() CodecMetadata {
	if b.ArrayToBytesCodec.Name == "" {
		if b.DataType.Size() > 1 && !b.DataType.IsRawBits() {
			return NewBytesCodec("little").Metadata()
		}
		return NewBytesCodec("").Metadata()
	}
	return b.ArrayToBytesCodec
}

// Metadata returns the array metadata described by the builder.
func (b *ArrayBuilder) Metadata() (ArrayMetadata, error) {
	if err := errors.ValidateDimensionality("chunk shape", len(b.ChunkShape), len(b.Shape)); err != nil {
		return ArrayMetadata{}, err
	}
	fill := b.FillValue
	if fill == nil {
		fill = FillValueZero(b.DataType)
	}
	fillJSON, err := FillValueJSON(b.DataType, fill)
	if err != nil {
		return ArrayMetadata{}, err
	}
	keys := b.KeyEncoding
	if keys.Name == "" {
		keys.Name = "default"
	}
	if keys.Separator == "" {
		keys.Separator = "/"
		if keys.Name == "v2" {
			keys.Separator = "."
		}
	}
	codecs := make([]CodecMetadata, 0, len(b.ArrayToArrayCodecs)+1+len(b.BytesToBytesCodecs))
	codecs = append(codecs, b.ArrayToArrayCodecs...)
	codecs = append(codecs, b.arrayToBytes())
	codecs = append(codecs, b.BytesToBytesCodecs...)
	cfg, _ := json.Marshal(keyEncodingConfig{Separator: keys.Separator})
	return ArrayMetadata{
		ZarrFormat:       3,
		NodeType:         "array",
		Shape:            b.Shape,
		DataType:         b.DataType,
		ChunkGrid:        RegularChunkGrid(b.ChunkShape),
		ChunkKeyEncoding: NamedConfig{Name: keys.Name, Configuration: cfg},
		FillValue:        fillJSON,
		Codecs:           codecs,
		Attributes:       b.Attributes,
		DimensionNames:   b.DimensionNames,
	}, nil
}

// Build validates the builder and binds the array to store and path.
func (b *ArrayBuilder) Build(store storage.Store, path string) (*Array, error) {
	meta, err := b.Metadata()
	if err != nil {
		return nil, err
	}
	return NewArray(store, path, meta)
}
