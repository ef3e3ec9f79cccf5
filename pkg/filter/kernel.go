package filter

import "math"

// Dense N-d helpers over C-ordered float buffers. Out-of-range neighbours are
// clamped to the nearest edge element.

// lanes calls fn with the offset of the first element and the element stride
// of every 1-D lane of shape along axis.
func lanes(shape []int, axis int, fn func(start, stride int)) {
	stride := 1
	for _, s := range shape[axis+1:] {
		stride *= s
	}
	outer := 1
	for _, s := range shape[:axis] {
		outer *= s
	}
	n := shape[axis]
	for o := 0; o < outer; o++ {
		for i := 0; i < stride; i++ {
			fn(o*n*stride+i, stride)
		}
	}
}

// apply1DKernel convolves every lane along axis with an odd-length kernel.
func apply1DKernel(axis int, kernel []float32, shape []int, in, out []float32) {
	mid := len(kernel) / 2
	n := shape[axis]
	lanes(shape, axis, func(start, stride int) {
		for k := 0; k < n; k++ {
			var sum float32
			for j, w := range kernel {
				i := min(max(k+j-mid, 0), n-1)
				sum += in[start+i*stride] * w
			}
			out[start+k*stride] = sum
		}
	})
}

// applyTriangle smooths every lane along axis with [0.25, 0.5, 0.25].
func applyTriangle(axis int, shape []int, in, out []float32) {
	n := shape[axis]
	lanes(shape, axis, func(start, stride int) {
		for k := 0; k < n; k++ {
			prev := start + max(k-1, 0)*stride
			next := start + min(k+1, n-1)*stride
			out[start+k*stride] = in[prev]*0.25 + in[start+k*stride]*0.5 + in[next]*0.25
		}
	})
}

// applyDifference computes the central difference 0.5*(next-prev) along axis.
func applyDifference(axis int, shape []int, in, out []float32) {
	n := shape[axis]
	lanes(shape, axis, func(start, stride int) {
		for k := 0; k < n; k++ {
			prev := start + max(k-1, 0)*stride
			next := start + min(k+1, n-1)*stride
			out[start+k*stride] = 0.5 * (in[next] - in[prev])
		}
	})
}

// gaussianKernel samples an unnormalised Gaussian of the given sigma over
// [-half, half]. A zero sigma yields the identity kernel.
func gaussianKernel(sigma float32, half uint64) []float32 {
	if sigma == 0 {
		return []float32{1}
	}
	t := sigma * sigma
	scale := 1 / float32(math.Sqrt(float64(2*math.Pi*t)))
	kernel := make([]float32, 2*half+1)
	for n := uint64(0); n <= half; n++ {
		v := scale * float32(math.Exp(float64(-float32(n*n)/(2*t))))
		kernel[half+n] = v
		kernel[half-n] = v
	}
	return kernel
}

// summedAreaTable returns the inclusive prefix sums of values over every axis.
func summedAreaTable(values []float32, shape []int) []float64 {
	sat := make([]float64, len(values))
	for i, v := range values {
		sat[i] = float64(v)
	}
	for axis := len(shape) - 1; axis >= 0; axis-- {
		n := shape[axis]
		lanes(shape, axis, func(start, stride int) {
			for k := 1; k < n; k++ {
				sat[start+k*stride] += sat[start+(k-1)*stride]
			}
		})
	}
	return sat
}

// satMean returns the mean of the elements in the inclusive box [p0, p1]
// from a summed area table.
func satMean(sat []float64, shape, p0, p1 []int) float64 {
	d := len(shape)
	corner := make([]int, d)
	var sum float64
corners:
	for mask := 0; mask < 1<<d; mask++ {
		ones := 0
		for j := 0; j < d; j++ {
			if mask>>(d-1-j)&1 == 1 {
				corner[j] = p1[j]
				ones++
				continue
			}
			if p0[j] == 0 {
				continue corners
			}
			corner[j] = p0[j] - 1
		}
		off := 0
		for j := 0; j < d; j++ {
			off = off*shape[j] + corner[j]
		}
		if (d-ones)%2 == 0 {
			sum += sat[off]
		} else {
			sum -= sat[off]
		}
	}
	n := 1
	for j := range p0 {
		n *= p1[j] - p0[j] + 1
	}
	return sum / float64(n)
}

// window returns the inclusive box of radius r around the element at flat
// offset i, clamped to shape.
func window(i int, shape []int, r int, p0, p1 []int) {
	for j := len(shape) - 1; j >= 0; j-- {
		idx := i % shape[j]
		i /= shape[j]
		p0[j] = min(max(idx-r, 0), shape[j]-1)
		p1[j] = min(idx+r, shape[j]-1)
	}
}

func intShape(shape []uint64) []int {
	out := make([]int, len(shape))
	for i, s := range shape {
		out[i] = int(s)
	}
	return out
}
