// Package info computes summaries of array data: the value range, a
// histogram, and a chunk-by-chunk comparison of two arrays.
//
// All three read the array one chunk at a time with at most limit chunks in
// flight. A limit of zero uses [zarr.DefaultConcurrentTarget].
package info
