package info

import (
	"context"
	"math"
	"sync"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Histogram counts array elements in equal-width bins.
type Histogram struct {
	// BinEdges has one more entry than Hist.
	BinEdges []float64 `json:"bin_edges"`
	Hist     []uint64  `json:"hist"`
}

// ComputeHistogram bins the elements of the array into nBins bins spanning
// [lo, hi]. Elements outside the span are counted in the first or last bin.
// NaN elements are not counted.
func ComputeHistogram(ctx context.Context, a *zarr.Array, nBins int, lo, hi float64, limit int) (Histogram, error) {
	d := a.DataType()
	if !d.IsInteger() && !d.IsFloat() {
		return Histogram{}, errors.New(errors.ErrCodeUnsupportedDataType, "histogram is not supported for data type %s", d)
	}
	if nBins < 1 {
		return Histogram{}, errors.New(errors.ErrCodeInvalidInput, "number of bins must be positive, got %d", nBins)
	}
	if !(hi > lo) {
		return Histogram{}, errors.New(errors.ErrCodeInvalidInput, "histogram max %v must be greater than min %v", hi, lo)
	}

	h := Histogram{
		BinEdges: make([]float64, nBins+1),
		Hist:     make([]uint64, nBins),
	}
	for i := range h.BinEdges {
		h.BinEdges[i] = float64(i)/float64(nBins)*(hi-lo) + lo
	}

	var mu sync.Mutex
	err := forEachChunk(ctx, a, limit, func(data []byte) error {
		local := make([]uint64, nBins)
		for i := range len(data) / d.Size() {
			v := d.Float64At(data, i)
			if math.IsNaN(v) {
				continue
			}
			local[Bin(v, nBins, lo, hi)]++
		}
		mu.Lock()
		defer mu.Unlock()
		for i, c := range local {
			h.Hist[i] += c
		}
		return nil
	})
	if err != nil {
		return Histogram{}, err
	}
	return h, nil
}

// Bin returns the bin of v: floor((v-lo)/(hi-lo)*nBins) clamped to
// [0, nBins-1].
func Bin(v float64, nBins int, lo, hi float64) int {
	b := math.Floor((v - lo) / (hi - lo) * float64(nBins))
	switch {
	case b <= 0:
		return 0
	case b >= float64(nBins-1):
		return nBins - 1
	}
	return int(b)
}
