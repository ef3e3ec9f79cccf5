package filter

import (
	"context"
	"math"
	"slices"

	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// GradientMagnitude computes the magnitude of a Sobel-style gradient: along
// each axis a central difference, smoothed with a triangle filter along all
// other axes.
type GradientMagnitude struct {
	base
}

// NewGradientMagnitude returns a gradient magnitude filter.
func NewGradientMagnitude(chunkLimit int) *GradientMagnitude {
	return &GradientMagnitude{base{chunkLimit}}
}

func (*GradientMagnitude) Name() string { return "gradient_magnitude" }

func (*GradientMagnitude) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	nIn := uint64(1)
	for _, s := range out.Shape {
		nIn *= s + 2
	}
	return nIn*uint64(in.DataType.Size()+4*3) + out.NumElements()*uint64(4+out.DataType.Size())
}

func (f *GradientMagnitude) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	overlap := slices.Repeat([]uint64{1}, in.Dimensionality())
	return neighbourhood(ctx, f, f.base, in, out, overlap, cb, gradientMagnitude)
}

func gradientMagnitude(values []float32, shape []int) []float32 {
	magnitude := make([]float32, len(values))
	a := make([]float32, len(values))
	b := make([]float32, len(values))
	for axis := range shape {
		copy(a, values)
		for i := range shape {
			if i == axis {
				applyDifference(i, shape, a, b)
			} else {
				applyTriangle(i, shape, a, b)
			}
			a, b = b, a
		}
		for j, g := range a {
			magnitude[j] += g * g
		}
	}
	for j, m := range magnitude {
		magnitude[j] = float32(math.Sqrt(float64(m)))
	}
	return magnitude
}
