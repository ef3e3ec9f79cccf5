package filter

import (
	"context"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Reencode copies an array into an output with a different encoding or data
// type.
type Reencode struct {
	base
}

// NewReencode returns a reencode filter. A chunkLimit of zero is automatic.
func NewReencode(chunkLimit int) *Reencode {
	return &Reencode{base{chunkLimit}}
}

func (*Reencode) Name() string { return "reencode" }

func (*Reencode) MemoryPerChunk(_, out zarr.ChunkRep) uint64 {
	return out.Size()
}

func (f *Reencode) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	return elementwise(ctx, f, f.base, in, out, nil, cb, func(data []byte) ([]byte, error) {
		return zarr.CastElements(in.DataType(), data, out.DataType())
	})
}

// Crop extracts the region of the given shape starting at Offset.
type Crop struct {
	base
	Offset []uint64
	Shape  []uint64
}

// NewCrop returns a crop filter.
func NewCrop(offset, shape []uint64, chunkLimit int) *Crop {
	return &Crop{base: base{chunkLimit}, Offset: offset, Shape: shape}
}

func (*Crop) Name() string { return "crop" }

func (f *Crop) IsCompatible(in, out zarr.ChunkRep) error {
	if err := checkDimensionality("crop offset", len(f.Offset), in); err != nil {
		return err
	}
	if err := checkDimensionality("crop shape", len(f.Shape), in); err != nil {
		return err
	}
	return checkDataTypes(in.DataType, out.DataType)
}

func (*Crop) MemoryPerChunk(_, out zarr.ChunkRep) uint64 {
	return out.Size()
}

func (f *Crop) OutputShape(*zarr.Array) []uint64 {
	return append([]uint64(nil), f.Shape...)
}

func (f *Crop) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := errors.ValidateDimensionality("crop offset", len(f.Offset), in.Dimensionality()); err != nil {
		return err
	}
	if err := errors.ValidateDimensionality("crop shape", len(f.Shape), in.Dimensionality()); err != nil {
		return err
	}
	region := zarr.NewSubset(f.Offset, f.Shape)
	for i, end := range region.End() {
		if end > in.Shape()[i] {
			return errors.New(errors.ErrCodeInvalidShape, "crop region %v exceeds array shape %v", region, in.Shape())
		}
	}
	if err := errors.ValidateDimensionality("output", out.Dimensionality(), len(f.Shape)); err != nil {
		return err
	}
	if !region.Equal(zarr.NewSubset(f.Offset, out.Shape())) {
		return errors.New(errors.ErrCodeInvalidShape, "output shape %v does not match crop shape %v", out.Shape(), f.Shape)
	}
	return elementwise(ctx, f, f.base, in, out, f.Offset, cb, func(data []byte) ([]byte, error) {
		return zarr.CastElements(in.DataType(), data, out.DataType())
	})
}
