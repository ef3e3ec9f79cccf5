// Package ome builds OME-Zarr multiscale image pyramids.
//
// The full resolution array becomes level "0" of an output group, either
// copied verbatim or reencoded. Each further level downsamples the previous
// one by a per-axis factor until every axis has been reduced to a single
// element or has a factor of one. The group attributes carry the OME-Zarr
// 0.5 "multiscales" metadata describing the levels and their coordinate
// transformations.
//
// Usage:
//
//	res, err := ome.Build(ctx, in, out, ome.Options{
//	    PhysicalUnits: []string{"micrometer", "micrometer"},
//	    GaussianSigma: []float32{1, 1},
//	})
package ome

import (
	"context"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/buildinfo"
	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/filter"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Output exists policies.
const (
	// ExistsErase deletes the output before writing.
	ExistsErase = "erase"
	// ExistsOverwrite writes over the output, keeping unrelated keys.
	ExistsOverwrite = "overwrite"
	// ExistsExit fails if the output holds any key.
	ExistsExit = "exit"
)

// ValidExists is the set of output exists policies.
var ValidExists = map[string]bool{ExistsErase: true, ExistsOverwrite: true, ExistsExit: true}

// DefaultMaxLevels is the number of downsampled levels built at most when
// Options.MaxLevels is zero.
const DefaultMaxLevels = 10

// Options configure Build.
type Options struct {
	// DownsampleFactor per axis, 2 on every axis by default.
	DownsampleFactor []uint64
	MaxLevels        int

	// PhysicalSize per axis sets the base scale transformation.
	PhysicalSize []float64
	// PhysicalUnits per axis: a space or time unit, "channel", or empty.
	PhysicalUnits []string
	Name          string

	// Discrete takes the most frequent value of each block instead of the
	// mean. GaussianSigma and GaussianKernelHalfSize are ignored.
	Discrete bool
	// GaussianSigma smooths each level before mean downsampling.
	GaussianSigma []float32
	// GaussianKernelHalfSize defaults to ceil(3*sigma).
	GaussianKernelHalfSize []uint64

	Exists          string
	GroupAttributes map[string]any
	// Reencoding applies to level 0. Without changes an input is copied.
	Reencoding encoding.ReencodingArgs
	// ChunkLimit bounds the chunks processed concurrently; zero derives it
	// from the available memory.
	ChunkLimit int

	Logger *log.Logger
	// Progress, if set, returns the progress callback of a level.
	Progress func(level int, shape []uint64) progress.Callback
}

// ValidateAndSetDefaults checks the options against an input of n dimensions.
func (o *Options) ValidateAndSetDefaults(n int) error {
	if o.DownsampleFactor == nil {
		o.DownsampleFactor = slices.Repeat([]uint64{2}, n)
	}
	if err := errors.ValidateDimensionality("downsample factor", len(o.DownsampleFactor), n); err != nil {
		return err
	}
	if err := errors.ValidateShape(o.DownsampleFactor, false); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid downsample factor")
	}
	if o.MaxLevels < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max levels must not be negative, got %d", o.MaxLevels)
	}
	if o.MaxLevels == 0 {
		o.MaxLevels = DefaultMaxLevels
	}
	if o.PhysicalSize != nil {
		if err := errors.ValidateDimensionality("physical size", len(o.PhysicalSize), n); err != nil {
			return err
		}
	}
	if o.PhysicalUnits != nil {
		if err := errors.ValidateDimensionality("physical units", len(o.PhysicalUnits), n); err != nil {
			return err
		}
	}
	if o.GaussianSigma != nil {
		if err := errors.ValidateDimensionality("gaussian sigma", len(o.GaussianSigma), n); err != nil {
			return err
		}
		for _, s := range o.GaussianSigma {
			if s < 0 {
				return errors.New(errors.ErrCodeInvalidInput, "gaussian sigma must not be negative, got %v", o.GaussianSigma)
			}
		}
		if o.GaussianKernelHalfSize == nil {
			o.GaussianKernelHalfSize = make([]uint64, n)
			for i, s := range o.GaussianSigma {
				o.GaussianKernelHalfSize[i] = uint64(math.Ceil(3 * float64(s)))
			}
		}
		if err := errors.ValidateDimensionality("gaussian kernel half size", len(o.GaussianKernelHalfSize), n); err != nil {
			return err
		}
	}
	if o.Exists == "" {
		o.Exists = ExistsErase
	}
	if !ValidExists[o.Exists] {
		return errors.New(errors.ErrCodeInvalidInput, "invalid exists policy: %q (must be one of: erase, overwrite, exit)", o.Exists)
	}
	if o.ChunkLimit < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "chunk limit must not be negative, got %d", o.ChunkLimit)
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return nil
}

// Type returns the multiscale type of the downsampling method.
func (o *Options) Type() string {
	switch {
	case o.Discrete:
		return TypeMode
	case o.GaussianSigma != nil:
		return TypeGaussian
	}
	return TypeAverage
}

// Level describes a written level.
type Level struct {
	Path     string
	Shape    []uint64
	Scale    []float64
	Duration time.Duration
}

// Result describes a written pyramid.
type Result struct {
	Levels   []Level
	Fields   Fields
	Duration time.Duration
}

// Build writes the pyramid of in as a group at the root of out.
func Build(ctx context.Context, in *zarr.Array, out storage.Store, opts Options) (*Result, error) {
	start := time.Now()
	n := in.Dimensionality()
	if err := opts.ValidateAndSetDefaults(n); err != nil {
		return nil, err
	}

	switch opts.Exists {
	case ExistsExit:
		exists, err := storage.Exists(ctx, out, "")
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "check output")
		}
		if exists {
			return nil, errors.New(errors.ErrCodeOutputExists, "Output exists, exiting")
		}
	case ExistsErase:
		if err := out.DeletePrefix(ctx, ""); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "erase output")
		}
	}

	attrs := make(map[string]any, len(opts.GroupAttributes)+1)
	maps.Copy(attrs, opts.GroupAttributes)
	group, err := zarr.NewGroup(out, "/", attrs)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	levelStart := time.Now()
	array0, err := writeLevel0(ctx, in, out, &opts)
	if err != nil {
		return nil, err
	}
	// Array attributes move to the group.
	maps.Copy(attrs, array0.Attributes())
	array0.SetAttributes(nil)
	if err := array0.StoreMetadata(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "store metadata of level 0")
	}

	scale := slices.Repeat([]float64{1}, n)
	datasets := []Dataset{{Path: "0", CoordinateTransformations: []Transform{Scale(scale)}}}
	res.Levels = append(res.Levels, Level{Path: "0", Shape: array0.Shape(), Scale: slices.Clone(scale), Duration: time.Since(levelStart)})
	opts.Logger.Info("wrote level", "level", 0, "shape", array0.Shape())

	ds := filter.NewDownsample(opts.DownsampleFactor, opts.Discrete, 0)
	var gaussian *filter.Gaussian
	if opts.GaussianSigma != nil && !opts.Discrete {
		gaussian = filter.NewGaussian(opts.GaussianSigma, opts.GaussianKernelHalfSize, 0)
	}

	prev := array0
	for i := 1; i <= opts.MaxLevels; i++ {
		levelStart := time.Now()
		path := strconv.Itoa(i)
		next, err := writeLevel(ctx, prev, out, path, ds, gaussian, &opts, i)
		if err != nil {
			return nil, wrap(err, "level %d", i)
		}
		for d := range scale {
			scale[d] *= float64(prev.Shape()[d] / next.Shape()[d])
		}
		translation := make([]float64, n)
		for d, s := range scale {
			translation[d] = (s - 1) * 0.5
		}
		datasets = append(datasets, Dataset{
			Path:                      path,
			CoordinateTransformations: []Transform{Scale(scale), Translation(translation)},
		})
		res.Levels = append(res.Levels, Level{Path: path, Shape: next.Shape(), Scale: slices.Clone(scale), Duration: time.Since(levelStart)})
		opts.Logger.Info("wrote level", "level", i, "shape", next.Shape())

		if done(opts.DownsampleFactor, next.Shape()) {
			break
		}
		prev = next
	}

	ms := Multiscale{
		Name:     opts.Name,
		Axes:     axes(array0, opts.PhysicalUnits),
		Datasets: datasets,
		Type:     opts.Type(),
		Metadata: map[string]any{
			"description": "Created with zarrtools ome",
			"repository":  buildinfo.Repository,
			"version":     buildinfo.Short(),
		},
	}
	if opts.PhysicalSize != nil {
		ms.CoordinateTransformations = []Transform{Scale(opts.PhysicalSize)}
	}
	res.Fields = Fields{Version: Version, Multiscales: []Multiscale{ms}}
	attrs["ome"] = res.Fields
	group.SetAttributes(attrs)
	if err := group.StoreMetadata(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "store group metadata")
	}
	res.Duration = time.Since(start)
	return res, nil
}

// done reports whether no axis can be reduced further.
func done(factor, shape []uint64) bool {
	for i := range factor {
		if factor[i] != 1 && shape[i] != 1 {
			return false
		}
	}
	return true
}

func axes(a *zarr.Array, units []string) []Axis {
	names := a.DimensionNames()
	out := make([]Axis, a.Dimensionality())
	for i := range out {
		name := strconv.Itoa(i)
		if i < len(names) && names[i] != nil {
			name = *names[i]
		}
		var unit string
		if units != nil {
			unit = units[i]
		}
		out[i] = NewAxis(name, unit)
	}
	return out
}

func callback(opts *Options, level int, shape []uint64) progress.Callback {
	if opts.Progress == nil {
		return nil
	}
	return opts.Progress(level, shape)
}

// writeLevel0 copies in to "0" when its encoding is kept, or reencodes it.
func writeLevel0(ctx context.Context, in *zarr.Array, out storage.Store, opts *Options) (*zarr.Array, error) {
	cb := callback(opts, 0, in.Shape())
	if opts.Reencoding.ChangeType() == encoding.ChangeNone {
		err := storage.Copy(ctx, in.Store(), out, zarr.NodePrefix(in.Path()), "0/", func(done, total int) {
			if cb != nil {
				cb(progress.Stats{Step: done, NumSteps: total})
			}
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "copy level 0")
		}
		return zarr.OpenArray(ctx, out, "/0")
	}

	f := filter.NewReencode(opts.ChunkLimit)
	b, err := filter.OutputBuilder(f, in, opts.Reencoding)
	if err != nil {
		return nil, err
	}
	array0, err := b.Build(out, "/0")
	if err != nil {
		return nil, err
	}
	if err := f.IsCompatible(in.ChunkRep(), array0.ChunkRep()); err != nil {
		return nil, err
	}
	if err := f.Apply(ctx, in, array0, cb); err != nil {
		return nil, err
	}
	return array0, nil
}

// levelEncoding keeps the chunking of in, clamped to shape.
func levelEncoding(in *zarr.Array, shape []uint64) encoding.ReencodingArgs {
	var r encoding.ReencodingArgs
	if sc, ok := in.Codecs().Sharding(); ok {
		r.ShardShape = minShape(in.ChunkShape(), shape)
		r.ChunkShape = minShape(sc.ChunkShape(), shape)
	} else {
		r.ChunkShape = minShape(in.ChunkShape(), shape)
	}
	return r
}

func minShape(a, b []uint64) []uint64 {
	out := make([]uint64, len(a))
	for i := range a {
		out[i] = min(a[i], b[i])
	}
	return out
}

// writeLevel downsamples in into a new array at path.
func writeLevel(ctx context.Context, in *zarr.Array, out storage.Store, path string, ds *filter.Downsample, gaussian *filter.Gaussian, opts *Options, level int) (*zarr.Array, error) {
	shape := ds.OutputShape(in)
	b, err := filter.OutputBuilder(ds, in, levelEncoding(in, shape))
	if err != nil {
		return nil, err
	}
	next, err := b.Build(out, "/"+path)
	if err != nil {
		return nil, err
	}

	limit := opts.ChunkLimit
	if limit == 0 {
		rep := next.ChunkRep()
		mem := ds.MemoryPerChunk(rep, rep)
		if gaussian != nil {
			sub := ds.InputSubset(in.Shape(), zarr.SubsetWithShape(rep.Shape))
			inRep := zarr.ChunkRep{Shape: sub.Shape, DataType: in.DataType(), FillValue: in.FillValue()}
			mem += gaussian.MemoryPerChunk(inRep, inRep)
		}
		if limit, err = filter.ChunkLimit(mem); err != nil {
			return nil, err
		}
	}

	w := &levelWriter{
		in: in, out: next,
		ds: ds, gaussian: gaussian,
		progress: progress.New(int(next.NumChunks()), callback(opts, level, shape)),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for idx := range zarr.SubsetWithShape(next.ChunkGridShape()).Indices() {
		if gctx.Err() != nil {
			break
		}
		idx := slices.Clone(idx)
		g.Go(func() error { return w.chunk(gctx, idx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := next.StoreMetadata(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "store metadata of level %s", path)
	}
	return next, nil
}

type levelWriter struct {
	in, out  *zarr.Array
	ds       *filter.Downsample
	gaussian *filter.Gaussian
	progress *progress.Progress
}

func (w *levelWriter) read(ctx context.Context, subset zarr.Subset) ([]byte, error) {
	var data []byte
	err := w.progress.Read(func() error {
		var err error
		data, err = w.in.RetrieveSubset(ctx, subset, zarr.CodecOptions{})
		return err
	})
	return data, err
}

func (w *levelWriter) chunk(ctx context.Context, idx []uint64) error {
	outSubset := w.out.ChunkSubsetBounded(idx)
	inSubset := w.ds.InputSubset(w.in.Shape(), outSubset)

	var result []byte
	if w.gaussian == nil {
		data, err := w.read(ctx, inSubset)
		if err != nil {
			return err
		}
		_ = w.progress.Process(func() error {
			result = w.ds.Reduce(data, w.in.DataType(), inSubset, outSubset, w.out.DataType())
			return nil
		})
	} else {
		o := filter.NewSubsetOverlap(w.in.Shape(), inSubset, w.gaussian.KernelHalfSize)
		data, err := w.read(ctx, o.Input)
		if err != nil {
			return err
		}
		_ = w.progress.Process(func() error {
			shape := make([]int, len(o.Input.Shape))
			for i, s := range o.Input.Shape {
				shape[i] = int(s)
			}
			values := w.gaussian.Smooth(zarr.DecodeFloat32(w.in.DataType(), data), shape)
			smoothed := zarr.EncodeFloat32(zarr.Float32, filter.Extract(o, values))
			result = w.ds.Reduce(smoothed, zarr.Float32, inSubset, outSubset, w.out.DataType())
			return nil
		})
	}

	if err := w.progress.Write(func() error {
		return w.out.StoreSubset(ctx, outSubset, result, zarr.CodecOptions{})
	}); err != nil {
		return err
	}
	w.progress.Next()
	return nil
}

// wrap adds context to err, keeping its code.
func wrap(err error, format string, args ...any) error {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.Wrap(code, err, format, args...)
}
