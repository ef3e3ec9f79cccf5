package zarr

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

// Array is a Zarr V3 array bound to a store and a node path.
type Array struct {
	store  storage.Store
	path   string
	meta   ArrayMetadata
	fill   FillValue
	chunks []uint64
	keys   ChunkKeyEncoding
	codecs *CodecChain
}

// NewArray validates metadata and binds it to a store location.
// Nothing is written until StoreMetadata is called.
func NewArray(store storage.Store, path string, meta ArrayMetadata) (*Array, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	if meta.ZarrFormat != 3 {
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported zarr_format %d (only Zarr V3 is supported)", meta.ZarrFormat)
	}
	if meta.NodeType != "array" {
		return nil, errors.New(errors.ErrCodeInvalidMetadata, "node at %s is a %s, not an array", path, meta.NodeType)
	}
	if meta.DataType.Size() == 0 {
		return nil, errors.New(errors.ErrCodeInvalidDataType, "unsupported data type %q", meta.DataType)
	}
	if len(meta.StorageTransformers) > 0 {
		return nil, errors.New(errors.ErrCodeUnsupported, "storage transformers are not supported")
	}
	if meta.ChunkGrid.Name != "regular" {
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported chunk grid %q", meta.ChunkGrid.Name)
	}
	var grid regularGridConfig
	if err := json.Unmarshal(meta.ChunkGrid.Configuration, &grid); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidMetadata, err, "invalid regular chunk grid")
	}
	if err := errors.ValidateDimensionality("chunk shape", len(grid.ChunkShape), len(meta.Shape)); err != nil {
		return nil, err
	}
	if err := errors.ValidateShape(grid.ChunkShape, false); err != nil {
		return nil, err
	}
	if meta.DimensionNames != nil {
		if err := errors.ValidateDimensionality("dimension names", len(meta.DimensionNames), len(meta.Shape)); err != nil {
			return nil, err
		}
	}
	keys, err := parseChunkKeyEncoding(meta.ChunkKeyEncoding)
	if err != nil {
		return nil, err
	}
	fill, err := ParseFillValue(meta.DataType, meta.FillValue)
	if err != nil {
		return nil, err
	}
	codecs, err := NewCodecChain(meta.Codecs)
	if err != nil {
		return nil, err
	}
	if sharding, ok := codecs.Sharding(); ok {
		if err := errors.ValidateDimensionality("inner chunk shape", len(sharding.ChunkShape()), len(meta.Shape)); err != nil {
			return nil, err
		}
	}
	meta.Codecs = codecs.Metadata()
	return &Array{
		store:  store,
		path:   path,
		meta:   meta,
		fill:   fill,
		chunks: grid.ChunkShape,
		keys:   keys,
		codecs: codecs,
	}, nil
}

// OpenArray reads and validates the metadata of the array at path.
func OpenArray(ctx context.Context, store storage.Store, path string) (*Array, error) {
	raw, err := store.Get(ctx, nodeKey(path, MetadataKey))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			if _, v2err := store.Get(ctx, nodeKey(path, ".zarray")); v2err == nil {
				return nil, errors.New(errors.ErrCodeUnsupported, "array at %s is a Zarr V2 array; only Zarr V3 is supported", path)
			}
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "no array at %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "read metadata of %s", path)
	}
	var meta ArrayMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidMetadata, err, "parse metadata of %s", path)
	}
	return NewArray(store, path, meta)
}

// Store returns the store the array is bound to.
func (a *Array) Store() storage.Store { return a.store }

// Path returns the node path of the array.
func (a *Array) Path() string { return a.path }

// Metadata returns a copy of the array metadata.
func (a *Array) Metadata() ArrayMetadata {
	m := a.meta
	m.Shape = append([]uint64(nil), a.meta.Shape...)
	m.Attributes = maps.Clone(a.meta.Attributes)
	return m
}

// Shape returns the array shape.
func (a *Array) Shape() []uint64 { return a.meta.Shape }

// Dimensionality returns the number of dimensions.
func (a *Array) Dimensionality() int { return len(a.meta.Shape) }

// DataType returns the element data type.
func (a *Array) DataType() DataType { return a.meta.DataType }

// FillValue returns the fill value.
func (a *Array) FillValue() FillValue { return a.fill }

// ChunkShape returns the chunk grid shape (the shard shape for sharded arrays).
func (a *Array) ChunkShape() []uint64 { return a.chunks }

// ChunkKeyEncoding returns the chunk key encoding.
func (a *Array) ChunkKeyEncoding() ChunkKeyEncoding { return a.keys }

// Codecs returns the codec chain.
func (a *Array) Codecs() *CodecChain { return a.codecs }

// Attributes returns the user attributes.
func (a *Array) Attributes() map[string]any { return a.meta.Attributes }

// SetAttributes replaces the user attributes. Call StoreMetadata to persist them.
func (a *Array) SetAttributes(attrs map[string]any) { a.meta.Attributes = attrs }

// DimensionNames returns the dimension names, or nil if unset.
func (a *Array) DimensionNames() []*string { return a.meta.DimensionNames }

// IsSharded reports whether the array uses the sharding codec.
func (a *Array) IsSharded() bool {
	_, ok := a.codecs.Sharding()
	return ok
}

// InnerChunkShape returns the inner chunk shape of a sharded array, or the
// chunk shape otherwise. This is the finest granularity that can be decoded
// independently.
func (a *Array) InnerChunkShape() []uint64 {
	if s, ok := a.codecs.Sharding(); ok {
		return s.ChunkShape()
	}
	return a.chunks
}

// ChunkGridShape returns the number of chunks per dimension.
func (a *Array) ChunkGridShape() []uint64 {
	grid := make([]uint64, len(a.meta.Shape))
	for i := range grid {
		grid[i] = (a.meta.Shape[i] + a.chunks[i] - 1) / a.chunks[i]
	}
	return grid
}

// NumChunks returns the total number of chunks.
func (a *Array) NumChunks() uint64 { return Product(a.ChunkGridShape()) }

// ChunkSubset returns the region covered by the chunk at indices. It may
// extend beyond the array bounds.
func (a *Array) ChunkSubset(indices []uint64) Subset {
	start := make([]uint64, len(indices))
	for i := range indices {
		start[i] = indices[i] * a.chunks[i]
	}
	return NewSubset(start, append([]uint64(nil), a.chunks...))
}

// ChunkSubsetBounded returns the chunk region clipped to the array bounds.
func (a *Array) ChunkSubsetBounded(indices []uint64) Subset {
	s, _ := a.ChunkSubset(indices).Overlap(SubsetWithShape(a.meta.Shape))
	return s
}

// ChunkRep returns the representation of a decoded chunk.
func (a *Array) ChunkRep() ChunkRep {
	return ChunkRep{Shape: a.chunks, DataType: a.meta.DataType, FillValue: a.fill}
}

// ChunkKey returns the store key of the chunk at indices.
func (a *Array) ChunkKey(indices []uint64) string {
	return nodeKey(a.path, a.keys.Key(indices))
}

// StoreMetadata writes zarr.json.
func (a *Array) StoreMetadata(ctx context.Context) error {
	b, err := MarshalIndent(a.meta)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode metadata")
	}
	return a.store.Set(ctx, nodeKey(a.path, MetadataKey), b)
}

// EraseMetadata deletes zarr.json.
func (a *Array) EraseMetadata(ctx context.Context) error {
	return a.store.Delete(ctx, nodeKey(a.path, MetadataKey))
}

// RetrieveEncodedChunk returns the stored bytes of a chunk and whether it exists.
func (a *Array) RetrieveEncodedChunk(ctx context.Context, indices []uint64) ([]byte, bool, error) {
	b, err := a.store.Get(ctx, a.ChunkKey(indices))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// RetrieveChunk returns the decoded chunk at indices. Missing chunks decode to
// the fill value.
func (a *Array) RetrieveChunk(ctx context.Context, indices []uint64, opts CodecOptions) ([]byte, error) {
	enc, ok, err := a.RetrieveEncodedChunk(ctx, indices)
	if err != nil {
		return nil, err
	}
	rep := a.ChunkRep()
	if !ok {
		return a.fill.Repeat(rep.NumElements()), nil
	}
	data, err := a.codecs.Decode(enc, rep, opts)
	if err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "decode chunk %v of %s", indices, a.path)
	}
	return data, nil
}

// retrieveChunkSubset decodes region (relative to the chunk) of the chunk at indices.
func (a *Array) retrieveChunkSubset(ctx context.Context, indices []uint64, region Subset, opts CodecOptions) ([]byte, error) {
	rep := a.ChunkRep()
	if region.Equal(SubsetWithShape(rep.Shape)) {
		return a.RetrieveChunk(ctx, indices, opts)
	}
	enc, ok, err := a.RetrieveEncodedChunk(ctx, indices)
	if err != nil {
		return nil, err
	}
	if !ok {
		return a.fill.Repeat(region.NumElements()), nil
	}
	if sharding, isShard := a.codecs.Sharding(); isShard && len(a.codecs.ArrayToArray) == 0 {
		for i := len(a.codecs.BytesToBytes) - 1; i >= 0; i-- {
			if enc, err = a.codecs.BytesToBytes[i].Decode(enc, opts); err != nil {
				return nil, err
			}
		}
		return sharding.DecodeSubset(enc, rep, region, opts)
	}
	data, err := a.codecs.Decode(enc, rep, opts)
	if err != nil {
		return nil, err
	}
	return ExtractRegion(data, rep.Shape, region, rep.DataType.Size()), nil
}

// StoreChunk encodes and writes a full chunk. Chunks equal to the fill value are erased instead.
func (a *Array) StoreChunk(ctx context.Context, indices []uint64, data []byte, opts CodecOptions) error {
	rep := a.ChunkRep()
	if uint64(len(data)) != rep.Size() {
		return errors.New(errors.ErrCodeInvalidInput, "chunk %v has %d bytes, expected %d", indices, len(data), rep.Size())
	}
	if AllFill(data, a.fill) {
		return a.EraseChunk(ctx, indices)
	}
	enc, err := a.codecs.Encode(data, rep, opts)
	if err != nil {
		return errors.Wrap(errors.GetCode(err), err, "encode chunk %v of %s", indices, a.path)
	}
	return a.store.Set(ctx, a.ChunkKey(indices), enc)
}

// EraseChunk deletes a chunk.
func (a *Array) EraseChunk(ctx context.Context, indices []uint64) error {
	return a.store.Delete(ctx, a.ChunkKey(indices))
}

// ChunkGetter returns a decoded chunk; it allows callers to interpose a cache.
type ChunkGetter func(ctx context.Context, indices []uint64) ([]byte, error)

// RetrieveSubset returns the elements of subset in C order.
func (a *Array) RetrieveSubset(ctx context.Context, subset Subset, opts CodecOptions) ([]byte, error) {
	return a.retrieveSubset(ctx, subset, opts, nil)
}

// RetrieveSubsetWith returns the elements of subset, fetching whole chunks through get.
func (a *Array) RetrieveSubsetWith(ctx context.Context, subset Subset, opts CodecOptions, get ChunkGetter) ([]byte, error) {
	return a.retrieveSubset(ctx, subset, opts, get)
}

func (a *Array) retrieveSubset(ctx context.Context, subset Subset, opts CodecOptions, get ChunkGetter) ([]byte, error) {
	if err := errors.ValidateDimensionality("subset", subset.Dimensionality(), a.Dimensionality()); err != nil {
		return nil, err
	}
	for i, end := range subset.End() {
		if end > a.meta.Shape[i] {
			return nil, errors.New(errors.ErrCodeInvalidShape, "subset %v is out of bounds of array shape %v", subset, a.meta.Shape)
		}
	}
	elem := a.meta.DataType.Size()
	out := make([]byte, int(subset.NumElements())*elem)
	if len(out) == 0 {
		return out, nil
	}

	chunkIndices := make([][]uint64, 0)
	for idx := range subset.ChunkIndices(a.chunks).Indices() {
		chunkIndices = append(chunkIndices, idx)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())
	inner := opts
	if len(chunkIndices) > 1 {
		inner.Concurrency = 1
	}
	for _, idx := range chunkIndices {
		g.Go(func() error {
			chunk := a.ChunkSubset(idx)
			overlap, err := chunk.Overlap(subset)
			if err != nil {
				return err
			}
			inChunk, _ := overlap.RelativeTo(chunk.Start)
			inOut, _ := overlap.RelativeTo(subset.Start)
			if get != nil {
				data, err := get(ctx, idx)
				if err != nil {
					return err
				}
				CopyRegion(out, subset.Shape, inOut.Start, data, chunk.Shape, inChunk.Start, overlap.Shape, elem)
				return nil
			}
			data, err := a.retrieveChunkSubset(ctx, idx, inChunk, inner)
			if err != nil {
				return err
			}
			CopyRegion(out, subset.Shape, inOut.Start, data, inChunk.Shape, make([]uint64, len(idx)), overlap.Shape, elem)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// StoreSubset writes data (C order, subset shape) into the array. Chunks that
// are only partially covered are read, updated and rewritten.
// Concurrent writers must not touch the same chunks.
func (a *Array) StoreSubset(ctx context.Context, subset Subset, data []byte, opts CodecOptions) error {
	if err := errors.ValidateDimensionality("subset", subset.Dimensionality(), a.Dimensionality()); err != nil {
		return err
	}
	elem := a.meta.DataType.Size()
	if len(data) != int(subset.NumElements())*elem {
		return errors.New(errors.ErrCodeInvalidInput, "subset %v needs %d bytes, got %d", subset, int(subset.NumElements())*elem, len(data))
	}
	var chunkIndices [][]uint64
	for idx := range subset.ChunkIndices(a.chunks).Indices() {
		chunkIndices = append(chunkIndices, idx)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())
	inner := opts
	if len(chunkIndices) > 1 {
		inner.Concurrency = 1
	}
	for _, idx := range chunkIndices {
		g.Go(func() error {
			chunk := a.ChunkSubset(idx)
			overlap, err := chunk.Overlap(subset)
			if err != nil {
				return err
			}
			inChunk, _ := overlap.RelativeTo(chunk.Start)
			inData, _ := overlap.RelativeTo(subset.Start)
			var buf []byte
			if overlap.Equal(chunk) {
				buf = make([]byte, int(chunk.NumElements())*elem)
			} else if buf, err = a.RetrieveChunk(ctx, idx, inner); err != nil {
				return err
			} else {
				buf = append([]byte(nil), buf...)
			}
			CopyRegion(buf, chunk.Shape, inChunk.Start, data, subset.Shape, inData.Start, overlap.Shape, elem)
			return a.StoreChunk(ctx, idx, buf, inner)
		})
	}
	return g.Wait()
}

// Builder returns a builder initialized from the array's metadata.
func (a *Array) Builder() *ArrayBuilder {
	a2a, a2b, b2b, _ := SplitCodecs(a.meta.Codecs)
	b := &ArrayBuilder{
		Shape:              append([]uint64(nil), a.meta.Shape...),
		DataType:           a.meta.DataType,
		ChunkShape:         append([]uint64(nil), a.chunks...),
		FillValue:          append(FillValue(nil), a.fill...),
		KeyEncoding:        a.keys,
		ArrayToArrayCodecs: a2a,
		BytesToBytesCodecs: b2b,
		Attributes:         maps.Clone(a.meta.Attributes),
		DimensionNames:     a.meta.DimensionNames,
	}
	if a2b != nil {
		b.ArrayToBytesCodec = *a2b
	}
	return b
}
