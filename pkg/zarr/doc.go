// Package zarr implements the subset of the Zarr V3 storage format used by the
// zarrtools commands.
//
// # Overview
//
// An array is described by a zarr.json metadata document (shape, data type,
// chunk grid, chunk key encoding, fill value, codec chain, attributes and
// dimension names) and a set of encoded chunks stored under keys derived from
// the chunk grid indices. Groups carry only attributes.
//
// The engine supports:
//   - Data types: bool, int8-int64, uint8-uint64, float16, bfloat16, float32,
//     float64, complex64, complex128 and raw bits (r8, r16, ...)
//   - The regular chunk grid with the default ("c/0/1") and v2 ("0.1") chunk
//     key encodings
//   - Codecs: transpose, bitround, bytes, sharding_indexed, gzip, zstd, crc32c
//
// # Data Layout
//
// Decoded chunks and subsets are plain byte slices in C (row-major) order with
// little-endian elements. [DataType.Float64At] and [DataType.PutFloat64]
// convert individual elements to and from float64 for numeric processing.
//
// # Usage
//
//	arr, err := zarr.OpenArray(ctx, store, "/")
//	if err != nil {
//	    return err
//	}
//	data, err := arr.RetrieveSubset(ctx, zarr.SubsetWithShape(arr.Shape()), zarr.CodecOptions{})
//
// Arrays are created with an [ArrayBuilder]:
//
//	b := zarr.NewArrayBuilder([]uint64{1024, 1024}, zarr.Float32, []uint64{256, 256}, zarr.FillValueZero(zarr.Float32))
//	b.BytesToBytesCodecs = []zarr.CodecMetadata{{Name: "zstd", Configuration: json.RawMessage(`{"level":5}`)}}
//	arr, err := b.Build(store, "/")
//	if err := arr.StoreMetadata(ctx); err != nil { ... }
package zarr
