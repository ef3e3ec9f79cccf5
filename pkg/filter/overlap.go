package filter

import "github.com/matzehuels/zarrtools/pkg/zarr"

// SubsetOverlap describes an output region grown by a halo so that
// neighbourhood filters see the values around its edges.
type SubsetOverlap struct {
	// Input is the grown region, clamped to the array.
	Input zarr.Subset
	// Output is the original region relative to Input.
	Output zarr.Subset
}

// NewSubsetOverlap grows subset by overlap elements on every side, clamped to
// arrayShape.
func NewSubsetOverlap(arrayShape []uint64, subset zarr.Subset, overlap []uint64) SubsetOverlap {
	n := subset.Dimensionality()
	start := make([]uint64, n)
	end := make([]uint64, n)
	rel := make([]uint64, n)
	subsetEnd := subset.End()
	for i := range n {
		start[i] = subset.Start[i] - min(subset.Start[i], overlap[i])
		end[i] = min(subsetEnd[i]+overlap[i], arrayShape[i])
		rel[i] = subset.Start[i] - start[i]
	}
	return SubsetOverlap{
		Input:  zarr.SubsetFromRange(start, end),
		Output: zarr.NewSubset(rel, subset.Shape),
	}
}

// Extract returns the output region of values laid out over the input region.
func Extract[T any](o SubsetOverlap, values []T) []T {
	out := make([]T, 0, o.Output.NumElements())
	shape := o.Input.Shape
	if len(shape) == 0 {
		return append(out, values...)
	}
	inner := o.Output.Shape[len(shape)-1]
	for idx := range zarr.NewSubset(o.Output.Start, rowsShape(o.Output.Shape)).Indices() {
		off := zarr.Ravel(idx, shape)
		out = append(out, values[off:off+inner]...)
	}
	return out
}

// rowsShape collapses the last dimension so that iterating the result visits
// the start of every contiguous row.
func rowsShape(shape []uint64) []uint64 {
	rows := append([]uint64(nil), shape...)
	rows[len(rows)-1] = 1
	return rows
}
