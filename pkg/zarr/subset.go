package zarr

import (
	"fmt"
	"iter"
	"strings"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

// Subset is a hyperrectangular region of an array: a start index and a shape
// per dimension.
type Subset struct {
	Start []uint64
	Shape []uint64
}

// NewSubset creates a subset from a start and a shape.
func NewSubset(start, shape []uint64) Subset {
	return Subset{Start: start, Shape: shape}
}

// SubsetWithShape returns the subset covering an entire array of the given shape.
func SubsetWithShape(shape []uint64) Subset {
	return Subset{Start: make([]uint64, len(shape)), Shape: append([]uint64(nil), shape...)}
}

// SubsetFromRange creates a subset from an inclusive start and an exclusive end.
// Each end must be greater than or equal to its start.
func SubsetFromRange(start, end []uint64) Subset {
	shape := make([]uint64, len(start))
	for i := range start {
		if end[i] > start[i] {
			shape[i] = end[i] - start[i]
		}
	}
	return Subset{Start: append([]uint64(nil), start...), Shape: shape}
}

// Dimensionality returns the number of dimensions.
func (s Subset) Dimensionality() int { return len(s.Shape) }

// End returns the exclusive end index per dimension.
func (s Subset) End() []uint64 {
	end := make([]uint64, len(s.Start))
	for i := range s.Start {
		end[i] = s.Start[i] + s.Shape[i]
	}
	return end
}

// NumElements returns the number of elements in the subset.
func (s Subset) NumElements() uint64 {
	return Product(s.Shape)
}

// IsEmpty reports whether the subset contains no elements.
func (s Subset) IsEmpty() bool {
	return len(s.Shape) > 0 && s.NumElements() == 0
}

// Contains reports whether the indices lie inside the subset.
func (s Subset) Contains(indices []uint64) bool {
	if len(indices) != len(s.Start) {
		return false
	}
	for i, idx := range indices {
		if idx < s.Start[i] || idx >= s.Start[i]+s.Shape[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two subsets have the same start and shape.
func (s Subset) Equal(o Subset) bool {
	return equalUint64s(s.Start, o.Start) && equalUint64s(s.Shape, o.Shape)
}

// Overlap returns the intersection of two subsets. The result may be empty.
func (s Subset) Overlap(o Subset) (Subset, error) {
	if len(s.Start) != len(o.Start) {
		return Subset{}, errors.New(errors.ErrCodeInvalidShape,
			"subset dimensionality mismatch: %d vs %d", len(s.Start), len(o.Start))
	}
	start := make([]uint64, len(s.Start))
	end := make([]uint64, len(s.Start))
	for i := range s.Start {
		start[i] = max(s.Start[i], o.Start[i])
		end[i] = max(min(s.Start[i]+s.Shape[i], o.Start[i]+o.Shape[i]), start[i])
	}
	return SubsetFromRange(start, end), nil
}

// RelativeTo returns the subset translated so that origin becomes the zero index.
func (s Subset) RelativeTo(origin []uint64) (Subset, error) {
	if len(origin) != len(s.Start) {
		return Subset{}, errors.New(errors.ErrCodeInvalidShape,
			"origin dimensionality %d does not match subset dimensionality %d", len(origin), len(s.Start))
	}
	start := make([]uint64, len(s.Start))
	for i := range s.Start {
		if s.Start[i] < origin[i] {
			return Subset{}, errors.New(errors.ErrCodeInvalidShape, "subset %v starts before origin %v", s, origin)
		}
		start[i] = s.Start[i] - origin[i]
	}
	return Subset{Start: start, Shape: append([]uint64(nil), s.Shape...)}, nil
}

// ChunkIndices returns the subset of chunk grid indices whose chunks intersect s,
// for a regular grid with the given chunk shape.
func (s Subset) ChunkIndices(chunkShape []uint64) Subset {
	start := make([]uint64, len(s.Start))
	end := make([]uint64, len(s.Start))
	for i := range s.Start {
		start[i] = s.Start[i] / chunkShape[i]
		if s.Shape[i] == 0 {
			end[i] = start[i]
			continue
		}
		end[i] = (s.Start[i] + s.Shape[i] + chunkShape[i] - 1) / chunkShape[i]
	}
	return SubsetFromRange(start, end)
}

// Unravel returns the indices of the n-th element of the subset in C order.
func (s Subset) Unravel(n uint64) []uint64 {
	idx := make([]uint64, len(s.Shape))
	for i := len(s.Shape) - 1; i >= 0; i-- {
		idx[i] = s.Start[i] + n%s.Shape[i]
		n /= s.Shape[i]
	}
	return idx
}

// Indices iterates over every index in the subset in C order.
func (s Subset) Indices() iter.Seq[[]uint64] {
	return func(yield func([]uint64) bool) {
		n := s.NumElements()
		for i := uint64(0); i < n; i++ {
			if !yield(s.Unravel(i)) {
				return
			}
		}
	}
}

// String formats the subset as a list of half-open ranges.
func (s Subset) String() string {
	parts := make([]string, len(s.Start))
	for i := range s.Start {
		parts[i] = fmt.Sprintf("%d..%d", s.Start[i], s.Start[i]+s.Shape[i])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Product returns the product of the values, 1 for an empty slice.
func Product(values []uint64) uint64 {
	p := uint64(1)
	for _, v := range values {
		p *= v
	}
	return p
}

// Ravel returns the C-order linear offset of indices within an array of shape.
func Ravel(indices, shape []uint64) uint64 {
	var offset uint64
	for i := range shape {
		offset = offset*shape[i] + indices[i]
	}
	return offset
}

func equalUint64s(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CopyRegion copies a region of the given shape from src to dst. src and dst
// are C-order arrays of srcShape and dstShape; the region starts at srcStart in
// src and at dstStart in dst.
func CopyRegion(dst []byte, dstShape, dstStart []uint64, src []byte, srcShape, srcStart []uint64, shape []uint64, elemSize int) {
	n := len(shape)
	if n == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}
	if Product(shape) == 0 {
		return
	}
	run := int(shape[n-1]) * elemSize
	outer := SubsetWithShape(shape[:n-1])
	srcIdx := make([]uint64, n)
	dstIdx := make([]uint64, n)
	for idx := range outer.Indices() {
		for i := 0; i < n-1; i++ {
			srcIdx[i] = srcStart[i] + idx[i]
			dstIdx[i] = dstStart[i] + idx[i]
		}
		srcIdx[n-1] = srcStart[n-1]
		dstIdx[n-1] = dstStart[n-1]
		so := int(Ravel(srcIdx, srcShape)) * elemSize
		do := int(Ravel(dstIdx, dstShape)) * elemSize
		copy(dst[do:do+run], src[so:so+run])
	}
}

// ExtractRegion returns a new C-order buffer holding region of an array of shape.
func ExtractRegion(src []byte, shape []uint64, region Subset, elemSize int) []byte {
	out := make([]byte, int(region.NumElements())*elemSize)
	CopyRegion(out, region.Shape, make([]uint64, len(region.Shape)), src, shape, region.Start, region.Shape, elemSize)
	return out
}
