package filter

import (
	"context"

	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Gaussian applies a separable, sampled Gaussian kernel of 2*KernelHalfSize+1
// elements per axis. Values are processed as float32.
type Gaussian struct {
	base
	Sigma          []float32
	KernelHalfSize []uint64
	kernels        [][]float32
}

// NewGaussian returns a Gaussian filter.
func NewGaussian(sigma []float32, kernelHalfSize []uint64, chunkLimit int) *Gaussian {
	f := &Gaussian{base: base{chunkLimit}, Sigma: sigma, KernelHalfSize: kernelHalfSize}
	for i := range min(len(sigma), len(kernelHalfSize)) {
		f.kernels = append(f.kernels, gaussianKernel(sigma[i], kernelHalfSize[i]))
	}
	return f
}

func (*Gaussian) Name() string { return "gaussian" }

func (f *Gaussian) IsCompatible(in, out zarr.ChunkRep) error {
	if err := checkDimensionality("sigma", len(f.Sigma), in); err != nil {
		return err
	}
	if err := checkDimensionality("kernel half size", len(f.KernelHalfSize), in); err != nil {
		return err
	}
	return checkDataTypes(in.DataType, out.DataType)
}

func (f *Gaussian) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	nIn := uint64(1)
	for i, s := range out.Shape {
		nIn *= s + 2*f.KernelHalfSize[i]
	}
	return nIn*uint64(in.DataType.Size()+4*2) + out.NumElements()*uint64(4+out.DataType.Size())
}

func (f *Gaussian) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	if err := f.IsCompatible(in.ChunkRep(), out.ChunkRep()); err != nil {
		return err
	}
	return neighbourhood(ctx, f, f.base, in, out, f.KernelHalfSize, cb, f.Smooth)
}

// Smooth filters a dense C-ordered block in place and returns it.
func (f *Gaussian) Smooth(values []float32, shape []int) []float32 {
	scratch := make([]float32, len(values))
	for axis := range shape {
		apply1DKernel(axis, f.kernels[axis], shape, values, scratch)
		values, scratch = scratch, values
	}
	return values
}

// neighbourhood runs a float32 block filter over every output chunk, reading
// each chunk grown by overlap so that fn sees its neighbours.
func neighbourhood(ctx context.Context, f Filter, b base, in, out *zarr.Array, overlap []uint64, cb progress.Callback, fn func(values []float32, shape []int) []float32) error {
	limit, err := b.chunkLimit(f, in, out)
	if err != nil {
		return err
	}
	p := progress.New(int(out.NumChunks()), cb)
	return forEachChunk(ctx, f.Name(), out.ChunkGridShape(), limit, func(ctx context.Context, idx []uint64) error {
		outSubset := out.ChunkSubsetBounded(idx)
		o := NewSubsetOverlap(in.Shape(), outSubset, overlap)
		data, err := retrieve(ctx, p, in, o.Input)
		if err != nil {
			return err
		}
		var result []byte
		_ = p.Process(func() error {
			values := fn(zarr.DecodeFloat32(in.DataType(), data), intShape(o.Input.Shape))
			result = zarr.EncodeFloat32(out.DataType(), Extract(o, values))
			return nil
		})
		if err := store(ctx, p, out, outSubset, result); err != nil {
			return err
		}
		p.Next()
		return nil
	})
}
