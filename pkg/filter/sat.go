package filter

import (
	"context"
	"slices"

	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// SummedAreaTable computes the integral image of an array: every output
// element is the sum of all input elements with smaller or equal indices.
//
// Dimensions are processed last to first. Within a dimension, each line of
// chunks along it is walked in order, carrying the running sums of the
// previous chunk into the next; independent lines run concurrently. Values
// are accumulated as float64 and saturate when stored to integer outputs.
type SummedAreaTable struct {
	base
}

// NewSummedAreaTable returns a summed area table filter.
func NewSummedAreaTable(chunkLimit int) *SummedAreaTable {
	return &SummedAreaTable{base{chunkLimit}}
}

func (*SummedAreaTable) Name() string { return "summed_area_table" }

func (*SummedAreaTable) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	return out.NumElements() * uint64(in.DataType.Size()+out.DataType.Size()+8)
}

func (f *SummedAreaTable) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	limit, err := f.chunkLimit(f, in, out)
	if err != nil {
		return err
	}
	grid := out.ChunkGridShape()
	p := progress.New(int(out.NumChunks())*len(grid), cb)
	for dim := len(grid) - 1; dim >= 0; dim-- {
		lines := slices.Clone(grid)
		lines[dim] = 1
		first := dim == len(grid)-1
		err := forEachChunk(ctx, f.Name(), lines, limit, func(ctx context.Context, start []uint64) error {
			return f.line(ctx, p, in, out, start, grid[dim], dim, first)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// line accumulates along dim over the count chunks starting at start. The
// first pass reads the input; later passes update the output in place.
func (f *SummedAreaTable) line(ctx context.Context, p *progress.Progress, in, out *zarr.Array, start []uint64, count uint64, dim int, first bool) error {
	var carry []float64
	idx := slices.Clone(start)
	for i := range count {
		idx[dim] = i
		subset := out.ChunkSubsetBounded(idx)
		src := out
		if first {
			src = in
		}
		data, err := retrieve(ctx, p, src, subset)
		if err != nil {
			return err
		}
		var result []byte
		_ = p.Process(func() error {
			values := zarr.DecodeFloat64(src.DataType(), data)
			shape := intShape(subset.Shape)
			if carry == nil {
				carry = make([]float64, len(values)/shape[dim])
			}
			lane := 0
			lanes(shape, dim, func(off, stride int) {
				acc := carry[lane]
				for k := range shape[dim] {
					acc += values[off+k*stride]
					values[off+k*stride] = acc
				}
				carry[lane] = acc
				lane++
			})
			result = zarr.EncodeFloat64(out.DataType(), values)
			return nil
		})
		if err := store(ctx, p, out, subset, result); err != nil {
			return err
		}
		p.Next()
	}
	return nil
}
