package filter

import (
	"context"
	"slices"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Downsample reduces every dimension by its stride. Each output element is
// the mean of its input block, or the most frequent value when Discrete is
// set and the input is not a floating point type. Ties go to the value that
// occurs first in the block.
type Downsample struct {
	base
	Stride   []uint64
	Discrete bool
}

// NewDownsample returns a downsample filter.
func NewDownsample(stride []uint64, discrete bool, chunkLimit int) *Downsample {
	return &Downsample{base: base{chunkLimit}, Stride: stride, Discrete: discrete}
}

func (*Downsample) Name() string { return "downsample" }

func (f *Downsample) IsCompatible(in, out zarr.ChunkRep) error {
	if err := checkDimensionality("stride", len(f.Stride), in); err != nil {
		return err
	}
	if err := errors.ValidateShape(f.Stride, false); err != nil {
		return err
	}
	return checkDataTypes(in.DataType, out.DataType)
}

func (f *Downsample) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	n := out.NumElements()
	return n*zarr.Product(f.Stride)*uint64(in.DataType.Size()) + n*uint64(out.DataType.Size())
}

// OutputShape is the input shape divided by the stride, at least one.
func (f *Downsample) OutputShape(in *zarr.Array) []uint64 {
	shape := make([]uint64, in.Dimensionality())
	for i, s := range in.Shape() {
		shape[i] = max(s/f.Stride[i], 1)
	}
	return shape
}

// InputSubset returns the input region covered by an output region.
func (f *Downsample) InputSubset(inShape []uint64, output zarr.Subset) zarr.Subset {
	start := make([]uint64, len(inShape))
	end := make([]uint64, len(inShape))
	for i, e := range output.End() {
		start[i] = output.Start[i] * f.Stride[i]
		end[i] = min(e*f.Stride[i], inShape[i])
	}
	return zarr.SubsetFromRange(start, end)
}

func (f *Downsample) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := f.IsCompatible(in.ChunkRep(), out.ChunkRep()); err != nil {
		return err
	}
	if want := f.OutputShape(in); !slices.Equal(want, out.Shape()) {
		return errors.New(errors.ErrCodeInvalidShape, "output shape %v does not match downsampled shape %v", out.Shape(), want)
	}
	limit, err := f.chunkLimit(f, in, out)
	if err != nil {
		return err
	}
	p := progress.New(int(out.NumChunks()), cb)
	return forEachChunk(ctx, f.Name(), out.ChunkGridShape(), limit, func(ctx context.Context, idx []uint64) error {
		outSubset := out.ChunkSubsetBounded(idx)
		inSubset := f.InputSubset(in.Shape(), outSubset)
		data, err := retrieve(ctx, p, in, inSubset)
		if err != nil {
			return err
		}
		var result []byte
		_ = p.Process(func() error {
			result = f.Reduce(data, in.DataType(), inSubset, outSubset, out.DataType())
			return nil
		})
		if err := store(ctx, p, out, outSubset, result); err != nil {
			return err
		}
		p.Next()
		return nil
	})
}

// Reduce downsamples data, the region inSubset of an inType array, into the
// region outSubset encoded as outType. The mode is taken only when Discrete
// is set and inType is not a floating point type.
func (f *Downsample) Reduce(data []byte, inType zarr.DataType, inSubset, outSubset zarr.Subset, outType zarr.DataType) []byte {
	if f.Discrete && !inType.IsFloat() {
		return f.mode(data, inType, inSubset, outSubset, outType)
	}
	return f.mean(data, inType, inSubset, outSubset, outType)
}

// blocks calls fn with the output element index and the input block of every
// element of outSubset, both relative to their regions.
func (f *Downsample) blocks(inSubset, outSubset zarr.Subset, fn func(i int, block zarr.Subset)) {
	n := outSubset.Dimensionality()
	start := make([]uint64, n)
	end := make([]uint64, n)
	i := 0
	for idx := range outSubset.Indices() {
		for d := range n {
			start[d] = idx[d]*f.Stride[d] - inSubset.Start[d]
			end[d] = min((idx[d]+1)*f.Stride[d], inSubset.Start[d]+inSubset.Shape[d]) - inSubset.Start[d]
		}
		fn(i, zarr.SubsetFromRange(start, end))
		i++
	}
}

func (f *Downsample) mean(data []byte, inType zarr.DataType, inSubset, outSubset zarr.Subset, outType zarr.DataType) []byte {
	values := zarr.DecodeFloat64(inType, data)
	result := make([]float64, outSubset.NumElements())
	f.blocks(inSubset, outSubset, func(i int, block zarr.Subset) {
		var sum float64
		for idx := range block.Indices() {
			sum += values[zarr.Ravel(idx, inSubset.Shape)]
		}
		result[i] = sum / float64(block.NumElements())
	})
	return zarr.EncodeFloat64(outType, result)
}

func (f *Downsample) mode(data []byte, inType zarr.DataType, inSubset, outSubset zarr.Subset, outType zarr.DataType) []byte {
	size := inType.Size()
	modes := make([]byte, outSubset.NumElements()*uint64(size))
	counts := make(map[string]int)
	var order []string
	f.blocks(inSubset, outSubset, func(i int, block zarr.Subset) {
		clear(counts)
		order = order[:0]
		for idx := range block.Indices() {
			off := int(zarr.Ravel(idx, inSubset.Shape)) * size
			key := string(data[off : off+size])
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
		best := order[0]
		for _, key := range order[1:] {
			if counts[key] > counts[best] {
				best = key
			}
		}
		copy(modes[i*size:], best)
	})
	result, _ := zarr.CastElements(inType, modes, outType)
	return result
}
