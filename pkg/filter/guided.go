package filter

import (
	"context"
	"slices"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// GuidedFilter is an edge-preserving smoothing filter that uses the input as
// its own guide. Window means are taken from summed area tables over boxes of
// the given radius.
type GuidedFilter struct {
	base
	Epsilon float32
	Radius  uint8
}

// NewGuidedFilter returns a guided filter.
func NewGuidedFilter(epsilon float32, radius uint8, chunkLimit int) *GuidedFilter {
	return &GuidedFilter{base: base{chunkLimit}, Epsilon: epsilon, Radius: radius}
}

func (*GuidedFilter) Name() string { return "guided_filter" }

func (f *GuidedFilter) IsCompatible(in, out zarr.ChunkRep) error {
	if f.Epsilon < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "guided filter epsilon must not be negative, got %v", f.Epsilon)
	}
	return checkDataTypes(in.DataType, out.DataType)
}

func (f *GuidedFilter) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	nIn := uint64(1)
	for _, s := range out.Shape {
		nIn *= s + 4*uint64(f.Radius)
	}
	// Input, two float32 planes and two float64 tables live at once.
	return nIn*uint64(in.DataType.Size()+4*2+8*2) + out.NumElements()*uint64(out.DataType.Size())
}

func (f *GuidedFilter) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	if err := f.IsCompatible(in.ChunkRep(), out.ChunkRep()); err != nil {
		return err
	}
	// The box filter is applied twice, so the halo is twice the radius.
	overlap := slices.Repeat([]uint64{2 * uint64(f.Radius)}, in.Dimensionality())
	return neighbourhood(ctx, f, f.base, in, out, overlap, cb, f.Smooth)
}

// Smooth filters a dense C-ordered block and returns the result.
func (f *GuidedFilter) Smooth(v []float32, shape []int) []float32 {
	n := len(v)
	r := int(f.Radius)
	eps := float64(f.Epsilon)
	p0 := make([]int, len(shape))
	p1 := make([]int, len(shape))

	sq := make([]float32, n)
	for i, x := range v {
		sq[i] = x * x
	}
	satV := summedAreaTable(v, shape)
	satSq := summedAreaTable(sq, shape)

	a := sq
	b := make([]float32, n)
	for i := range n {
		window(i, shape, r, p0, p1)
		mean := satMean(satV, shape, p0, p1)
		variance := max(satMean(satSq, shape, p0, p1)-mean*mean, 0)
		var ai float64
		if variance+eps > 0 {
			ai = variance / (variance + eps)
		}
		a[i] = float32(ai)
		b[i] = float32((1 - ai) * mean)
	}

	satA := summedAreaTable(a, shape)
	satB := summedAreaTable(b, shape)
	out := make([]float32, n)
	for i := range n {
		window(i, shape, r, p0, p1)
		out[i] = float32(float64(v[i])*satMean(satA, shape, p0, p1) + satMean(satB, shape, p0, p1))
	}
	return out
}
