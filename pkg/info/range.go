package info

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Value is a number in the data type of an array. Integers are kept exact.
type Value struct {
	kind valueKind
	i    int64
	u    uint64
	f    float64
}

type valueKind int

const (
	kindSigned valueKind = iota
	kindUnsigned
	kindFloat
)

// Int returns a signed integer value.
func Int(v int64) Value { return Value{kind: kindSigned, i: v} }

// Uint returns an unsigned integer value.
func Uint(v uint64) Value { return Value{kind: kindUnsigned, u: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: kindFloat, f: v} }

// Float64 converts the value to a float64.
func (v Value) Float64() float64 {
	switch v.kind {
	case kindSigned:
		return float64(v.i)
	case kindUnsigned:
		return float64(v.u)
	}
	return v.f
}

func (v Value) String() string {
	switch v.kind {
	case kindSigned:
		return strconv.FormatInt(v.i, 10)
	case kindUnsigned:
		return strconv.FormatUint(v.u, 10)
	}
	switch {
	case math.IsNaN(v.f):
		return "NaN"
	case math.IsInf(v.f, 1):
		return "Infinity"
	case math.IsInf(v.f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(v.f, 'g', -1, 64)
}

// MarshalJSON writes the value as a JSON number, or as the strings "NaN",
// "Infinity" and "-Infinity" for non-finite floats.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == kindFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
		return json.Marshal(v.String())
	}
	return []byte(v.String()), nil
}

// MinMax is the range of the values of an array.
type MinMax struct {
	Min Value `json:"min"`
	Max Value `json:"max"`
}

// Range returns the smallest and largest element of the array. Missing
// chunks contribute the fill value. NaN elements are skipped; if every
// element is NaN, both bounds are NaN.
func Range(ctx context.Context, a *zarr.Array, limit int) (MinMax, error) {
	d := a.DataType()
	if !d.IsInteger() && !d.IsFloat() {
		return MinMax{}, errors.New(errors.ErrCodeUnsupportedDataType, "range is not supported for data type %s", d)
	}
	if zarr.Product(a.Shape()) == 0 {
		return MinMax{}, errors.New(errors.ErrCodeInvalidShape, "array %v has no elements", a.Shape())
	}

	var (
		mu     sync.Mutex
		result *accumulator
	)
	err := forEachChunk(ctx, a, limit, func(data []byte) error {
		acc := newAccumulator(d)
		acc.add(data)
		mu.Lock()
		defer mu.Unlock()
		if result == nil {
			result = acc
		} else {
			result.merge(acc)
		}
		return nil
	})
	if err != nil {
		return MinMax{}, err
	}
	return result.minMax(), nil
}

// accumulator tracks a running range in the widest type of the data type's
// kind.
type accumulator struct {
	d          zarr.DataType
	seen       bool
	iMin, iMax int64
	uMin, uMax uint64
	fMin, fMax float64
}

func newAccumulator(d zarr.DataType) *accumulator {
	return &accumulator{
		d:    d,
		iMin: math.MaxInt64, iMax: math.MinInt64,
		uMin: math.MaxUint64, uMax: 0,
		fMin: math.Inf(1), fMax: math.Inf(-1),
	}
}

func (acc *accumulator) add(data []byte) {
	d := acc.d
	n := len(data) / d.Size()
	switch {
	case d.IsSigned():
		for i := range n {
			v := signedAt(d, data, i)
			acc.iMin, acc.iMax = min(acc.iMin, v), max(acc.iMax, v)
		}
		acc.seen = acc.seen || n > 0
	case d.IsUnsigned():
		for i := range n {
			v := unsignedAt(d, data, i)
			acc.uMin, acc.uMax = min(acc.uMin, v), max(acc.uMax, v)
		}
		acc.seen = acc.seen || n > 0
	default:
		for i := range n {
			v := d.Float64At(data, i)
			if math.IsNaN(v) {
				continue
			}
			acc.fMin, acc.fMax = math.Min(acc.fMin, v), math.Max(acc.fMax, v)
			acc.seen = true
		}
	}
}

func (acc *accumulator) merge(o *accumulator) {
	if !o.seen {
		return
	}
	acc.seen = true
	acc.iMin, acc.iMax = min(acc.iMin, o.iMin), max(acc.iMax, o.iMax)
	acc.uMin, acc.uMax = min(acc.uMin, o.uMin), max(acc.uMax, o.uMax)
	acc.fMin, acc.fMax = math.Min(acc.fMin, o.fMin), math.Max(acc.fMax, o.fMax)
}

func (acc *accumulator) minMax() MinMax {
	switch {
	case acc.d.IsSigned():
		return MinMax{Min: Int(acc.iMin), Max: Int(acc.iMax)}
	case acc.d.IsUnsigned():
		return MinMax{Min: Uint(acc.uMin), Max: Uint(acc.uMax)}
	case !acc.seen:
		return MinMax{Min: Float(math.NaN()), Max: Float(math.NaN())}
	}
	return MinMax{Min: Float(acc.fMin), Max: Float(acc.fMax)}
}

func signedAt(d zarr.DataType, b []byte, i int) int64 {
	switch d {
	case zarr.Int8:
		return int64(int8(b[i]))
	case zarr.Int16:
		return int64(int16(binary.LittleEndian.Uint16(b[2*i:])))
	case zarr.Int32:
		return int64(int32(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return int64(binary.LittleEndian.Uint64(b[8*i:]))
}

func unsignedAt(d zarr.DataType, b []byte, i int) uint64 {
	switch d {
	case zarr.Uint8:
		return uint64(b[i])
	case zarr.Uint16:
		return uint64(binary.LittleEndian.Uint16(b[2*i:]))
	case zarr.Uint32:
		return uint64(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return binary.LittleEndian.Uint64(b[8*i:])
}

// forEachChunk calls fn with the decoded in-bounds region of every chunk.
// fn may be called concurrently.
func forEachChunk(ctx context.Context, a *zarr.Array, limit int, fn func(data []byte) error) error {
	chunkLimit, codecConcurrency := zarr.ChunkConcurrency(zarr.DefaultConcurrentTarget(), limit, a.NumChunks(), a.Codecs())
	opts := zarr.CodecOptions{Concurrency: codecConcurrency}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkLimit)
	for idx := range zarr.SubsetWithShape(a.ChunkGridShape()).Indices() {
		if gctx.Err() != nil {
			break
		}
		subset := a.ChunkSubsetBounded(idx)
		g.Go(func() error {
			data, err := a.RetrieveSubset(gctx, subset, opts)
			if err != nil {
				return err
			}
			return fn(data)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
