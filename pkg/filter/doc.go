// Package filter implements chunk-parallel image filters over Zarr arrays.
//
// Every filter reads an input array and writes an output array chunk by
// chunk. The output grid drives the work: for each output chunk the filter
// derives the input region it needs (grown by a halo for neighbourhood
// filters such as [Gaussian] or [GuidedFilter]), processes it and stores the
// result. At most ChunkLimit chunks are in flight at once; when no limit is
// configured it is derived from the available system memory and the
// filter's own MemoryPerChunk estimate.
//
// # Filters
//
//   - [Reencode] copies data into a differently encoded array
//   - [Crop] extracts a hyperrectangle
//   - [Rescale] applies multiply/add
//   - [Clamp] limits values to a range
//   - [Equal] produces a boolean mask of one value
//   - [ReplaceValue] substitutes one value for another
//   - [Downsample] reduces resolution by a stride (mean or mode)
//   - [Gaussian] applies a separable Gaussian kernel
//   - [GradientMagnitude] computes a Sobel-style gradient magnitude
//   - [GuidedFilter] applies an edge-preserving self-guided filter
//   - [SummedAreaTable] computes an integral image
//
// Filters are usually constructed by name from JSON arguments with [New], as
// the filter pipeline does.
package filter
