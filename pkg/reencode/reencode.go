// Package reencode copies the data of one array into another array of the
// same shape but a different encoding.
//
// The output is written chunk by chunk with bounded concurrency. Each output
// chunk is assembled from the input array, optionally through a decoded-chunk
// cache, converted to the output data type and stored. When the output is
// sharded, a write shape splits each shard into smaller blocks so that a shard
// never has to be held in memory in full.
package reencode

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/cache"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Options configure Run.
type Options struct {
	// Validate reads every written chunk back and compares it.
	Validate bool
	// ConcurrentChunks bounds the number of chunks in flight (zero is automatic).
	ConcurrentChunks int
	// IgnoreChecksums skips checksum validation when decoding the input.
	IgnoreChecksums bool
	// Cache selects a decoded-chunk cache for input reads.
	Cache cache.Spec
	// WriteShape splits output shards into blocks written one at a time.
	// It is ignored for unsharded outputs.
	WriteShape []uint64
	// Callback receives progress updates.
	Callback progress.Callback
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Result summarises a completed run. Read and Write are the accumulated
// read and write times scaled so that they sum to Duration.
type Result struct {
	Duration     time.Duration
	Read         time.Duration
	Write        time.Duration
	BytesDecoded uint64
}

// Run copies the data of in into out. Both arrays must have the same shape;
// out's metadata is not written.
func Run(ctx context.Context, in, out *zarr.Array, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if err := checkShapes(in.Shape(), out.Shape()); err != nil {
		return Result{}, err
	}
	if in.DataType() != out.DataType() {
		if !in.DataType().IsNumeric() || !out.DataType().IsNumeric() {
			return Result{}, errors.New(errors.ErrCodeUnsupportedDataType,
				"cannot convert data type %s to %s", in.DataType(), out.DataType())
		}
	}

	writeShape := opts.WriteShape
	if !out.IsSharded() {
		writeShape = nil
	}
	if writeShape != nil {
		if err := errors.ValidateDimensionality("write shape", len(writeShape), out.Dimensionality()); err != nil {
			return Result{}, err
		}
		if err := errors.ValidateShape(writeShape, false); err != nil {
			return Result{}, err
		}
	}

	start := time.Now()
	numChunks := out.NumChunks()
	chunkLimit, codecConcurrency := zarr.ChunkConcurrency(zarr.DefaultConcurrentTarget(), opts.ConcurrentChunks, numChunks, out.Codecs())
	codecOpts := zarr.CodecOptions{Concurrency: codecConcurrency, SkipChecksums: opts.IgnoreChecksums}

	chunks := zarr.SubsetWithShape(out.ChunkGridShape())
	steps := numChunks
	if writeShape != nil {
		steps = 0
		for idx := range chunks.Indices() {
			steps += out.ChunkSubsetBounded(idx).ChunkIndices(writeShape).NumElements()
		}
	}

	provider, err := opts.Cache.Provider(chunkLimit)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInternal, err, "create chunk cache")
	}

	logger.Debug("reencode",
		"in", in.Path(), "out", out.Path(),
		"chunks", numChunks, "concurrent_chunks", chunkLimit, "codec_concurrency", codecConcurrency,
		"cache", opts.Cache, "write_shape", writeShape)

	r := &runner{
		in: in, out: out,
		opts:       codecOpts,
		validate:   opts.Validate,
		cached:     !opts.Cache.IsZero(),
		provider:   provider,
		writeShape: writeShape,
		progress:   progress.New(int(steps), opts.Callback),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkLimit)
	for idx := range chunks.Indices() {
		if gctx.Err() != nil {
			break
		}
		idx := append([]uint64(nil), idx...)
		g.Go(func() error { return r.chunk(gctx, idx) })
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Duration: time.Since(start), BytesDecoded: r.decoded.Load()}
	stats := r.progress.Stats()
	if rw := stats.Read + stats.Write; rw > 0 {
		res.Read = time.Duration(float64(stats.Read) * float64(res.Duration) / float64(rw))
		res.Write = time.Duration(float64(stats.Write) * float64(res.Duration) / float64(rw))
	}
	return res, nil
}

func checkShapes(in, out []uint64) error {
	if len(in) != len(out) {
		return errors.New(errors.ErrCodeInvalidShape, "array shapes do not match: %v vs %v", in, out)
	}
	for i := range in {
		if in[i] != out[i] {
			return errors.New(errors.ErrCodeInvalidShape, "array shapes do not match: %v vs %v", in, out)
		}
	}
	return nil
}

type runner struct {
	in, out    *zarr.Array
	opts       zarr.CodecOptions
	validate   bool
	cached     bool
	provider   cache.Provider
	writeShape []uint64
	progress   *progress.Progress
	decoded    atomic.Uint64
}

// read returns subset of the input converted to the output data type.
func (r *runner) read(ctx context.Context, subset zarr.Subset) ([]byte, error) {
	var data []byte
	err := r.progress.Read(func() error {
		var err error
		if r.cached {
			c := r.provider.Acquire()
			defer r.provider.Release(c)
			data, err = r.in.RetrieveSubsetWith(ctx, subset, r.opts, cache.Getter(c, r.in, r.opts))
		} else {
			data, err = r.in.RetrieveSubset(ctx, subset, r.opts)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	r.decoded.Add(uint64(len(data)))
	if r.in.DataType() == r.out.DataType() {
		return data, nil
	}
	var converted []byte
	err = r.progress.Process(func() error {
		converted, err = zarr.CastElements(r.in.DataType(), data, r.out.DataType())
		return err
	})
	return converted, err
}

func (r *runner) chunk(ctx context.Context, idx []uint64) error {
	bounded := r.out.ChunkSubsetBounded(idx)
	if r.writeShape != nil {
		return r.blocks(ctx, bounded)
	}

	data, err := r.read(ctx, bounded)
	if err != nil {
		return err
	}
	full := r.out.ChunkSubset(idx)
	if !bounded.Equal(full) {
		// Pad edge chunks with the fill value.
		padded := r.out.FillValue().Repeat(full.NumElements())
		rel, _ := bounded.RelativeTo(full.Start)
		zarr.CopyRegion(padded, full.Shape, rel.Start, data, bounded.Shape, make([]uint64, len(idx)), bounded.Shape, r.out.DataType().Size())
		data = padded
	}
	if err := r.progress.Write(func() error { return r.out.StoreChunk(ctx, idx, data, r.opts) }); err != nil {
		return err
	}
	if r.validate {
		got, err := r.out.RetrieveChunk(ctx, idx, r.opts)
		if err != nil {
			return err
		}
		if !bytes.Equal(got, data) {
			return errors.New(errors.ErrCodeDataMismatch, "validation failed for chunk %v of %s", idx, r.out.Path())
		}
	}
	r.progress.Next()
	return nil
}

// blocks writes one shard as a sequence of write-shape blocks.
func (r *runner) blocks(ctx context.Context, shard zarr.Subset) error {
	for block := range shard.ChunkIndices(r.writeShape).Indices() {
		start := make([]uint64, len(block))
		for i := range block {
			start[i] = block[i] * r.writeShape[i]
		}
		sub, err := zarr.NewSubset(start, r.writeShape).Overlap(shard)
		if err != nil {
			return err
		}
		data, err := r.read(ctx, sub)
		if err != nil {
			return err
		}
		if err := r.progress.Write(func() error { return r.out.StoreSubset(ctx, sub, data, r.opts) }); err != nil {
			return err
		}
		if r.validate {
			got, err := r.out.RetrieveSubset(ctx, sub, r.opts)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, data) {
				return errors.New(errors.ErrCodeDataMismatch, "validation failed for region %v of %s", sub, r.out.Path())
			}
		}
		r.progress.Next()
	}
	return nil
}
