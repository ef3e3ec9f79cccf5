package info

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Compare checks that two arrays hold the same data. Shapes and data types
// must match; encodings and attributes may differ. The data is compared
// over the chunks of a, and the first differing chunk region in chunk order
// is reported with code DATA_MISMATCH.
func Compare(ctx context.Context, a, b *zarr.Array, limit int, cb progress.Callback) error {
	if !slices.Equal(a.Shape(), b.Shape()) {
		return errors.New(errors.ErrCodeInvalidShape, "Array shapes do not match: %v vs %v", a.Shape(), b.Shape())
	}
	if a.DataType() != b.DataType() {
		return errors.New(errors.ErrCodeInvalidDataType, "Array data types do not match: %s vs %s", a.DataType(), b.DataType())
	}

	chunkLimit, codecConcurrency := zarr.ChunkConcurrency(zarr.DefaultConcurrentTarget(), limit, a.NumChunks(), a.Codecs())
	opts := zarr.CodecOptions{Concurrency: codecConcurrency}
	p := progress.New(int(a.NumChunks()), cb)

	// Mismatches do not cancel the group, so the one reported is the first
	// in chunk order regardless of which worker finishes first.
	var (
		mu       sync.Mutex
		mismatch = -1
		region   zarr.Subset
	)
	earlier := func(i int) bool {
		mu.Lock()
		defer mu.Unlock()
		return mismatch >= 0 && mismatch < i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkLimit)
	i := -1
	for idx := range zarr.SubsetWithShape(a.ChunkGridShape()).Indices() {
		i++
		if gctx.Err() != nil || earlier(i) {
			break
		}
		i, subset := i, a.ChunkSubsetBounded(idx)
		g.Go(func() error {
			if earlier(i) {
				return nil
			}
			var first, second []byte
			err := p.Read(func() error {
				var err error
				if first, err = a.RetrieveSubset(gctx, subset, opts); err != nil {
					return err
				}
				second, err = b.RetrieveSubset(gctx, subset, opts)
				return err
			})
			if err != nil {
				return err
			}
			var equal bool
			_ = p.Process(func() error {
				equal = bytes.Equal(first, second)
				return nil
			})
			if !equal {
				mu.Lock()
				if mismatch < 0 || i < mismatch {
					mismatch, region = i, subset
				}
				mu.Unlock()
				return nil
			}
			p.Next()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if mismatch >= 0 {
		return errors.New(errors.ErrCodeDataMismatch, "Data differs in region: %s", region)
	}
	return ctx.Err()
}
