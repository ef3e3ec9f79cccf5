package filter

import (
	"context"
	"math"

	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Rescale computes v*Multiply + Add, or (v+Add)*Multiply when AddFirst is set.
type Rescale struct {
	base
	Multiply float64
	Add      float64
	AddFirst bool
}

// NewRescale returns a rescale filter.
func NewRescale(multiply, add float64, addFirst bool, chunkLimit int) *Rescale {
	return &Rescale{base: base{chunkLimit}, Multiply: multiply, Add: add, AddFirst: addFirst}
}

func (*Rescale) Name() string { return "rescale" }

func (*Rescale) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	return out.NumElements() * uint64(in.DataType.Size()+out.DataType.Size())
}

func (f *Rescale) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	return elementwise(ctx, f, f.base, in, out, nil, cb, func(data []byte) ([]byte, error) {
		values := zarr.DecodeFloat64(in.DataType(), data)
		for i, v := range values {
			if f.AddFirst {
				values[i] = (v + f.Add) * f.Multiply
			} else {
				values[i] = math.FMA(v, f.Multiply, f.Add)
			}
		}
		return zarr.EncodeFloat64(out.DataType(), values), nil
	})
}

// Clamp limits values to [Min, Max]. The bounds are first converted to the
// input data type.
type Clamp struct {
	base
	Min float64
	Max float64
}

// NewClamp returns a clamp filter.
func NewClamp(lo, hi float64, chunkLimit int) *Clamp {
	return &Clamp{base: base{chunkLimit}, Min: lo, Max: hi}
}

func (*Clamp) Name() string { return "clamp" }

func (*Clamp) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	return out.NumElements() * uint64(in.DataType.Size()+out.DataType.Size())
}

func (f *Clamp) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	lo, hi := castTo(in.DataType(), f.Min), castTo(in.DataType(), f.Max)
	return elementwise(ctx, f, f.base, in, out, nil, cb, func(data []byte) ([]byte, error) {
		values := zarr.DecodeFloat64(in.DataType(), data)
		for i, v := range values {
			values[i] = min(max(v, lo), hi)
		}
		return zarr.EncodeFloat64(out.DataType(), values), nil
	})
}
