package zarr

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

const missingChunk = math.MaxUint64

func init() {
	registerCodec("sharding_indexed", ArrayToBytes, func(config json.RawMessage) (any, error) {
		var cfg ShardingConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
		return NewShardingCodec(cfg)
	})
}

// ShardingConfig is the configuration of the sharding_indexed codec.
type ShardingConfig struct {
	ChunkShape    []uint64        `json:"chunk_shape"`
	Codecs        []CodecMetadata `json:"codecs"`
	IndexCodecs   []CodecMetadata `json:"index_codecs"`
	IndexLocation string          `json:"index_location,omitempty"`
}

// DefaultIndexCodecs returns the index codecs used for new sharded arrays.
func DefaultIndexCodecs() []CodecMetadata {
	return []CodecMetadata{
		NewBytesCodec("little").Metadata(),
		{Name: "crc32c"},
	}
}

// ShardingCodec stores a grid of inner chunks and an index of their byte ranges
// in a single encoded chunk (a shard).
type ShardingCodec struct {
	cfg   ShardingConfig
	inner *CodecChain
	index *CodecChain
}

// NewShardingCodec creates a sharding codec.
func NewShardingCodec(cfg ShardingConfig) (*ShardingCodec, error) {
	if err := errors.ValidateShape(cfg.ChunkShape, false); err != nil {
		return nil, err
	}
	if cfg.IndexLocation == "" {
		cfg.IndexLocation = "end"
	}
	if cfg.IndexLocation != "end" && cfg.IndexLocation != "start" {
		return nil, errors.New(errors.ErrCodeInvalidCodec, "invalid index_location %q", cfg.IndexLocation)
	}
	if len(cfg.IndexCodecs) == 0 {
		cfg.IndexCodecs = DefaultIndexCodecs()
	}
	inner, err := NewCodecChain(cfg.Codecs)
	if err != nil {
		return nil, err
	}
	index, err := NewCodecChain(cfg.IndexCodecs)
	if err != nil {
		return nil, err
	}
	for _, b := range index.BytesToBytes {
		if _, ok := b.(*CRC32CCodec); !ok {
			return nil, errors.New(errors.ErrCodeUnsupported, "index codec %q does not have a fixed encoded size", b.Metadata().Name)
		}
	}
	return &ShardingCodec{cfg: cfg, inner: inner, index: index}, nil
}

func (c *ShardingCodec) Metadata() CodecMetadata {
	cfg := c.cfg
	cfg.Codecs = c.inner.Metadata()
	cfg.IndexCodecs = c.index.Metadata()
	return CodecMetadata{Name: "sharding_indexed", Configuration: marshalConfig(cfg)}
}

// ChunkShape returns the inner chunk shape.
func (c *ShardingCodec) ChunkShape() []uint64 { return c.cfg.ChunkShape }

// Inner returns the codec chain applied to inner chunks.
func (c *ShardingCodec) Inner() *CodecChain { return c.inner }

func (c *ShardingCodec) innerGrid(shape []uint64) ([]uint64, error) {
	if len(shape) != len(c.cfg.ChunkShape) {
		return nil, errors.New(errors.ErrCodeInvalidShape,
			"inner chunk shape %v does not match shard dimensionality %d", c.cfg.ChunkShape, len(shape))
	}
	grid := make([]uint64, len(shape))
	for i := range shape {
		if shape[i]%c.cfg.ChunkShape[i] != 0 {
			return nil, errors.New(errors.ErrCodeInvalidShape,
				"shard shape %v is not a multiple of the inner chunk shape %v", shape, c.cfg.ChunkShape)
		}
		grid[i] = shape[i] / c.cfg.ChunkShape[i]
	}
	return grid, nil
}

func (c *ShardingCodec) indexRep(grid []uint64) ChunkRep {
	fill := make(FillValue, 8)
	binary.LittleEndian.PutUint64(fill, missingChunk)
	return ChunkRep{Shape: append(append([]uint64(nil), grid...), 2), DataType: Uint64, FillValue: fill}
}

// encodedIndexSize is the encoded size of the shard index: 16 bytes per inner
// chunk plus 4 bytes per crc32c codec.
func (c *ShardingCodec) encodedIndexSize(grid []uint64) int {
	return int(Product(grid))*16 + 4*len(c.index.BytesToBytes)
}

func (c *ShardingCodec) Encode(data []byte, rep ChunkRep, opts CodecOptions) ([]byte, error) {
	grid, err := c.innerGrid(rep.Shape)
	if err != nil {
		return nil, err
	}
	innerRep := ChunkRep{Shape: c.cfg.ChunkShape, DataType: rep.DataType, FillValue: rep.FillValue}
	elem := rep.DataType.Size()
	gridSubset := SubsetWithShape(grid)
	n := int(Product(grid))
	encoded := make([][]byte, n)

	g := errgroup.Group{}
	g.SetLimit(opts.concurrency())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			idx := gridSubset.Unravel(uint64(i))
			start := make([]uint64, len(idx))
			for d := range idx {
				start[d] = idx[d] * c.cfg.ChunkShape[d]
			}
			chunk := ExtractRegion(data, rep.Shape, NewSubset(start, c.cfg.ChunkShape), elem)
			if AllFill(chunk, rep.FillValue) {
				return nil
			}
			enc, err := c.inner.Encode(chunk, innerRep, CodecOptions{SkipChecksums: opts.SkipChecksums})
			if err != nil {
				return err
			}
			encoded[i] = enc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	indexSize := c.encodedIndexSize(grid)
	offset := uint64(0)
	if c.cfg.IndexLocation == "start" {
		offset = uint64(indexSize)
	}
	index := make([]byte, n*16)
	total := 0
	for i, enc := range encoded {
		if enc == nil {
			binary.LittleEndian.PutUint64(index[16*i:], missingChunk)
			binary.LittleEndian.PutUint64(index[16*i+8:], missingChunk)
			continue
		}
		binary.LittleEndian.PutUint64(index[16*i:], offset)
		binary.LittleEndian.PutUint64(index[16*i+8:], uint64(len(enc)))
		offset += uint64(len(enc))
		total += len(enc)
	}
	encIndex, err := c.index.Encode(index, c.indexRep(grid), opts)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, total+len(encIndex))
	if c.cfg.IndexLocation == "start" {
		out = append(out, encIndex...)
	}
	for _, enc := range encoded {
		out = append(out, enc...)
	}
	if c.cfg.IndexLocation == "end" {
		out = append(out, encIndex...)
	}
	return out, nil
}

// decodeIndex returns the (offset, size) pairs of the shard index. Every entry
// is either fully missing or lies within encoded.
func (c *ShardingCodec) decodeIndex(encoded []byte, grid []uint64, opts CodecOptions) ([]uint64, error) {
	size := c.encodedIndexSize(grid)
	if len(encoded) < size {
		return nil, errors.New(errors.ErrCodeInvalidMetadata, "shard has %d bytes, smaller than its index (%d bytes)", len(encoded), size)
	}
	var raw []byte
	if c.cfg.IndexLocation == "start" {
		raw = encoded[:size]
	} else {
		raw = encoded[len(encoded)-size:]
	}
	decoded, err := c.index.Decode(raw, c.indexRep(grid), opts)
	if err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "shard index")
	}
	index := make([]uint64, len(decoded)/8)
	for i := range index {
		index[i] = binary.LittleEndian.Uint64(decoded[8*i:])
	}
	n := uint64(len(encoded))
	for i := 0; i+1 < len(index); i += 2 {
		offset, size := index[i], index[i+1]
		switch {
		case offset == missingChunk && size == missingChunk:
		case offset == missingChunk || size == missingChunk:
			return nil, errors.New(errors.ErrCodeInvalidMetadata, "shard index entry %d is (%d, %d): only one half marks a missing chunk", i/2, offset, size)
		case size > n || offset > n-size:
			return nil, errors.New(errors.ErrCodeInvalidMetadata, "shard index entry %d (offset %d, size %d) exceeds the shard (%d bytes)", i/2, offset, size, n)
		}
	}
	return index, nil
}

func (c *ShardingCodec) Decode(encoded []byte, rep ChunkRep, opts CodecOptions) ([]byte, error) {
	return c.DecodeSubset(encoded, rep, SubsetWithShape(rep.Shape), opts)
}

// DecodeSubset decodes the region subset (relative to the shard) and only the
// inner chunks that intersect it.
func (c *ShardingCodec) DecodeSubset(encoded []byte, rep ChunkRep, subset Subset, opts CodecOptions) ([]byte, error) {
	grid, err := c.innerGrid(rep.Shape)
	if err != nil {
		return nil, err
	}
	index, err := c.decodeIndex(encoded, grid, opts)
	if err != nil {
		return nil, err
	}
	elem := rep.DataType.Size()
	out := rep.FillValue.Repeat(subset.NumElements())
	innerRep := ChunkRep{Shape: c.cfg.ChunkShape, DataType: rep.DataType, FillValue: rep.FillValue}
	chunks := subset.ChunkIndices(c.cfg.ChunkShape)

	g := errgroup.Group{}
	g.SetLimit(opts.concurrency())
	for idx := range chunks.Indices() {
		i := Ravel(idx, grid)
		offset, size := index[2*i], index[2*i+1]
		if offset == missingChunk && size == missingChunk {
			continue
		}
		g.Go(func() error {
			chunk, err := c.inner.Decode(encoded[offset:offset+size], innerRep, CodecOptions{SkipChecksums: opts.SkipChecksums})
			if err != nil {
				return err
			}
			start := make([]uint64, len(idx))
			for d := range idx {
				start[d] = idx[d] * c.cfg.ChunkShape[d]
			}
			overlap, err := NewSubset(start, c.cfg.ChunkShape).Overlap(subset)
			if err != nil {
				return err
			}
			srcStart, _ := overlap.RelativeTo(start)
			dstStart, _ := overlap.RelativeTo(subset.Start)
			CopyRegion(out, subset.Shape, dstStart.Start, chunk, c.cfg.ChunkShape, srcStart.Start, overlap.Shape, elem)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
