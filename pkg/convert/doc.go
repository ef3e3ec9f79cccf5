// Package convert writes arrays from foreign data sources: raw binary
// streams and netCDF variables.
//
// Both converters fill an existing array, created by the caller with the
// desired encoding, and return the number of bytes read from the source.
// Chunks are written concurrently.
package convert
