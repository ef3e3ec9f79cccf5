package filter

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/observability"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Filter transforms an input array into an output array.
type Filter interface {
	// Name is the snake_case filter name used in run configurations.
	Name() string

	// IsCompatible reports whether the filter can read chunks like in and
	// write chunks like out.
	IsCompatible(in, out zarr.ChunkRep) error

	// MemoryPerChunk estimates the bytes needed to process one output chunk.
	MemoryPerChunk(in, out zarr.ChunkRep) uint64

	// OutputShape returns the output shape, or nil when it equals the input
	// shape.
	OutputShape(in *zarr.Array) []uint64

	// OutputDataType returns the data type and fill value the filter
	// produces when it does not simply follow the input.
	OutputDataType(in *zarr.Array) (zarr.DataType, zarr.FillValue, bool)

	// Apply processes in into out. The output metadata is not written.
	Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error
}

// OutputBuilder returns the builder for the output array of f applied to in.
//
// An explicit data type in args wins (its fill value is converted from the
// input when args has none), then the filter's own output data type, and
// finally the input data type.
func OutputBuilder(f Filter, in *zarr.Array, args encoding.ReencodingArgs) (*zarr.ArrayBuilder, error) {
	if args.DataType == "" {
		if dt, fill, ok := f.OutputDataType(in); ok {
			args.DataType = dt
			if len(args.FillValue) == 0 {
				raw, err := zarr.FillValueJSON(dt, fill)
				if err != nil {
					return nil, err
				}
				args.FillValue = raw
			}
		}
	}
	return args.Builder(in, f.OutputShape(in))
}

// =============================================================================
// Chunk limit
// =============================================================================

// availableMemory is replaced in tests.
var availableMemory = func() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// ChunkLimit returns how many chunks needing memoryPerChunk bytes each fit
// into 80% of the currently available memory.
func ChunkLimit(memoryPerChunk uint64) (int, error) {
	available, err := availableMemory()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "query available memory")
	}
	memoryPerChunk = max(memoryPerChunk, 1)
	limit := available / 10 * 8 / memoryPerChunk
	if limit == 0 {
		return 0, errors.New(errors.ErrCodeInsufficientMemory,
			"There is not enough available memory to process a single output chunk. Consider reducing the chunk shape (or shard shape if sharding)")
	}
	return int(min(limit, math.MaxInt32)), nil
}

// =============================================================================
// Shared filter plumbing
// =============================================================================

// base carries the per-filter chunk limit and the default behaviour of a
// filter that keeps the input shape and data type.
type base struct {
	limit int
}

func (base) IsCompatible(in, out zarr.ChunkRep) error {
	return checkDataTypes(in.DataType, out.DataType)
}

func (base) OutputShape(*zarr.Array) []uint64 { return nil }

func (base) OutputDataType(*zarr.Array) (zarr.DataType, zarr.FillValue, bool) {
	return "", nil, false
}

// chunkLimit returns the configured limit or derives one from f's memory
// estimate.
func (b base) chunkLimit(f Filter, in, out *zarr.Array) (int, error) {
	if b.limit > 0 {
		return b.limit, nil
	}
	return ChunkLimit(f.MemoryPerChunk(in.ChunkRep(), out.ChunkRep()))
}

// checkDataTypes accepts bool, integer and real floating point types.
func checkDataTypes(types ...zarr.DataType) error {
	for _, d := range types {
		if !d.IsNumeric() {
			return errors.New(errors.ErrCodeUnsupportedDataType, "unsupported data type %s", d)
		}
	}
	return nil
}

func checkDimensionality(what string, got int, rep zarr.ChunkRep) error {
	return errors.ValidateDimensionality(what, got, len(rep.Shape))
}

func checkSameShape(in, out *zarr.Array) error {
	if !slices.Equal(in.Shape(), out.Shape()) {
		return errors.New(errors.ErrCodeInvalidShape, "array shapes do not match: %v vs %v", in.Shape(), out.Shape())
	}
	return nil
}

// forEachChunk calls fn for every chunk of grid with at most limit calls in
// flight. It stops at the first error.
func forEachChunk(ctx context.Context, stage string, grid []uint64, limit int, fn func(ctx context.Context, idx []uint64) error) error {
	hooks := observability.Pipeline()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for idx := range zarr.SubsetWithShape(grid).Indices() {
		if gctx.Err() != nil {
			break
		}
		idx := slices.Clone(idx)
		g.Go(func() error {
			start := time.Now()
			if err := fn(gctx, idx); err != nil {
				return err
			}
			hooks.OnChunk(gctx, stage, time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func retrieve(ctx context.Context, p *progress.Progress, a *zarr.Array, subset zarr.Subset) ([]byte, error) {
	var data []byte
	err := p.Read(func() error {
		var err error
		data, err = a.RetrieveSubset(ctx, subset, zarr.CodecOptions{})
		return err
	})
	return data, err
}

func store(ctx context.Context, p *progress.Progress, a *zarr.Array, subset zarr.Subset, data []byte) error {
	return p.Write(func() error { return a.StoreSubset(ctx, subset, data, zarr.CodecOptions{}) })
}

// elementwise runs fn over every output chunk. fn receives the matching input
// region (shifted by offset, which may be nil) as input-typed bytes and
// returns output-typed bytes.
func elementwise(ctx context.Context, f Filter, b base, in, out *zarr.Array, offset []uint64, cb progress.Callback, fn func(data []byte) ([]byte, error)) error {
	limit, err := b.chunkLimit(f, in, out)
	if err != nil {
		return err
	}
	p := progress.New(int(out.NumChunks()), cb)
	return forEachChunk(ctx, f.Name(), out.ChunkGridShape(), limit, func(ctx context.Context, idx []uint64) error {
		dst := out.ChunkSubsetBounded(idx)
		src := dst
		if offset != nil {
			start := make([]uint64, len(offset))
			for i := range offset {
				start[i] = dst.Start[i] + offset[i]
			}
			src = zarr.NewSubset(start, dst.Shape)
		}
		data, err := retrieve(ctx, p, in, src)
		if err != nil {
			return err
		}
		var result []byte
		if err := p.Process(func() error {
			var err error
			result, err = fn(data)
			return err
		}); err != nil {
			return err
		}
		if err := store(ctx, p, out, dst, result); err != nil {
			return err
		}
		p.Next()
		return nil
	})
}

// castTo rounds v through data type d.
func castTo(d zarr.DataType, v float64) float64 {
	b := make([]byte, d.Size())
	d.PutFloat64(b, 0, v)
	return d.Float64At(b, 0)
}
