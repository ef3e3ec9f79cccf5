package convert

import (
	"context"
	"encoding/binary"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Endianness of binary input.
const (
	EndianNative = ""
	EndianLittle = "little"
	EndianBig    = "big"
)

// ValidateEndianness checks an endianness name. The empty string is the host
// endianness.
func ValidateEndianness(e string) error {
	switch e {
	case EndianNative, EndianLittle, EndianBig:
		return nil
	}
	return errors.New(errors.ErrCodeInvalidInput, "Endianness must be little or big, got %q", e)
}

var nativeBig = binary.NativeEndian.Uint16([]byte{0, 1}) == 1

// BinaryOptions configure Binary.
type BinaryOptions struct {
	// Endianness of the input elements.
	Endianness string
	// ConcurrentChunks bounds the blocks written concurrently (zero is
	// automatic).
	ConcurrentChunks int
	Callback         progress.Callback
}

// Binary reads the elements of a, in C order, from r and returns the number
// of bytes read. The input is read in blocks spanning one chunk along the
// first dimension and the whole array along the others, and each block is
// written while the next is read. Input beyond the array size is not read.
func Binary(ctx context.Context, r io.Reader, a *zarr.Array, opts BinaryOptions) (uint64, error) {
	if err := ValidateEndianness(opts.Endianness); err != nil {
		return 0, err
	}
	shape := a.Shape()
	if len(shape) == 0 {
		return 0, errors.New(errors.ErrCodeInvalidShape, "binary input needs at least one dimension")
	}
	swap := opts.Endianness == EndianBig || (opts.Endianness == EndianNative && nativeBig)

	blockRows := a.ChunkShape()[0]
	numBlocks := (shape[0] + blockRows - 1) / blockRows
	chunkLimit, codecConcurrency := zarr.ChunkConcurrency(zarr.DefaultConcurrentTarget(), opts.ConcurrentChunks, numBlocks, a.Codecs())
	codecOpts := zarr.CodecOptions{Concurrency: codecConcurrency}
	p := progress.New(int(numBlocks), opts.Callback)

	var read atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkLimit)
	for i := range numBlocks {
		if gctx.Err() != nil {
			break
		}
		start := make([]uint64, len(shape))
		start[0] = i * blockRows
		end := append([]uint64{min((i+1)*blockRows, shape[0])}, shape[1:]...)
		subset := zarr.SubsetFromRange(start, end)

		data := make([]byte, subset.NumElements()*uint64(a.DataType().Size()))
		err := p.Read(func() error {
			n, err := io.ReadFull(r, data)
			read.Add(uint64(n))
			return err
		})
		if err != nil {
			g.Go(func() error {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "input ended after %d bytes", read.Load())
			})
			break
		}
		g.Go(func() error {
			if swap {
				_ = p.Process(func() error {
					zarr.SwapEndianness(data, a.DataType())
					return nil
				})
			}
			if err := p.Write(func() error { return a.StoreSubset(gctx, subset, data, codecOpts) }); err != nil {
				return err
			}
			p.Next()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return read.Load(), err
	}
	return read.Load(), ctx.Err()
}
