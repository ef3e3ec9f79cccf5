// Package benchmark measures array read throughput.
//
// Three strategies decode every chunk of an array:
//
//   - sync: a fixed pool of workers pulls chunk indices from a queue
//   - async: one goroutine per chunk, with in-flight decodes bounded by a
//     weighted semaphore
//   - async-as-sync: store reads are issued as futures and awaited through
//     a blocking store adapter, driven by the sync worker pool
//
// ReadAll bypasses the strategies and retrieves the whole array as a single
// subset.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Read modes.
const (
	ModeSync        = "sync"
	ModeAsync       = "async"
	ModeAsyncAsSync = "async-as-sync"
)

// Modes lists the read modes.
var Modes = []string{ModeSync, ModeAsync, ModeAsyncAsSync}

// Options configure Read.
type Options struct {
	// Mode is one of Modes. Empty is ModeSync.
	Mode string
	// ConcurrentChunks bounds the chunks decoded at once (zero is automatic).
	// It is ignored with ReadAll.
	ConcurrentChunks int
	// ReadAll retrieves the array in one operation.
	ReadAll bool
	// IgnoreChecksums skips checksum validation.
	IgnoreChecksums bool
}

// Result of a benchmark run.
type Result struct {
	Mode         string
	Duration     time.Duration
	BytesDecoded uint64
	// StoredSize is the stored size of the array. It is measured in async
	// mode only.
	StoredSize uint64
}

// Summary formats the result for the array at path.
func (r Result) Summary(path string) string {
	gbps := math.Inf(1)
	if r.Duration > 0 {
		gbps = float64(r.BytesDecoded) / 1e9 / r.Duration.Seconds()
	}
	size := ""
	if r.StoredSize > 0 {
		size = fmt.Sprintf(" (%.2fMB)", float64(r.StoredSize)/1e6)
	}
	return fmt.Sprintf("Decoded %s%s in %.2fms (%.2fMB decoded @ %.2fGB/s)",
		path, size, r.Duration.Seconds()*1e3, float64(r.BytesDecoded)/1e6, gbps)
}

// Read decodes every chunk of a and reports the decoded volume.
func Read(ctx context.Context, a *zarr.Array, opts Options) (Result, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeSync
	}
	if !slices.Contains(Modes, mode) {
		return Result{}, errors.New(errors.ErrCodeInvalidInput, "invalid read mode %q (must be one of: sync, async, async-as-sync)", mode)
	}

	if mode == ModeAsyncAsSync {
		adapted, err := zarr.OpenArray(ctx, newBlockingStore(a.Store()), a.Path())
		if err != nil {
			return Result{}, err
		}
		a = adapted
	}

	numChunks := a.NumChunks()
	chunkLimit, codecConcurrency := zarr.ChunkConcurrency(zarr.DefaultConcurrentTarget(), opts.ConcurrentChunks, numChunks, a.Codecs())
	codecOpts := zarr.CodecOptions{Concurrency: codecConcurrency, SkipChecksums: opts.IgnoreChecksums}

	start := time.Now()
	var decoded uint64
	var err error
	switch {
	case opts.ReadAll:
		var data []byte
		data, err = a.RetrieveSubset(ctx, zarr.SubsetWithShape(a.Shape()), codecOpts)
		decoded = uint64(len(data))
	case mode == ModeAsync:
		decoded, err = readAsync(ctx, a, chunkLimit, codecOpts)
	default:
		decoded, err = readSync(ctx, a, chunkLimit, codecOpts)
	}
	if err != nil {
		return Result{}, err
	}
	res := Result{Mode: mode, Duration: time.Since(start), BytesDecoded: decoded}

	if mode == ModeAsync {
		if res.StoredSize, err = storage.Size(ctx, a.Store(), ""); err != nil {
			return Result{}, errors.Wrap(errors.ErrCodeInternal, err, "measure stored size")
		}
	}
	return res, nil
}

// readSync decodes chunks with a pool of workers fed from a queue.
func readSync(ctx context.Context, a *zarr.Array, workers int, opts zarr.CodecOptions) (uint64, error) {
	var decoded atomic.Uint64
	queue := make(chan []uint64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for idx := range zarr.SubsetWithShape(a.ChunkGridShape()).Indices() {
			select {
			case queue <- slices.Clone(idx):
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for range workers {
		g.Go(func() error {
			for idx := range queue {
				data, err := a.RetrieveChunk(gctx, idx, opts)
				if err != nil {
					return err
				}
				decoded.Add(uint64(len(data)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return decoded.Load(), ctx.Err()
}

// readAsync starts a goroutine per chunk; at most limit decode at once.
func readAsync(ctx context.Context, a *zarr.Array, limit int, opts zarr.CodecOptions) (uint64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sem := semaphore.NewWeighted(int64(limit))

	var futures []*Future[[]byte]
	for idx := range zarr.SubsetWithShape(a.ChunkGridShape()).Indices() {
		idx := slices.Clone(idx)
		futures = append(futures, Go(func() ([]byte, error) {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			defer sem.Release(1)
			return a.RetrieveChunk(ctx, idx, opts)
		}))
	}

	var decoded uint64
	for _, f := range futures {
		data, err := f.Wait(ctx)
		if err != nil {
			return 0, err
		}
		decoded += uint64(len(data))
	}
	return decoded, nil
}
