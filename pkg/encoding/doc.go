// Package encoding turns command-line encoding options into array builders.
//
// [Args] describes the encoding of a brand new array: every tool that creates
// arrays from scratch (binary2zarr, ncvar2zarr) takes one. [ReencodingArgs]
// describes changes to an existing array's encoding, where every field is
// optional and unset fields keep the input array's value. Filters, the OME
// pyramid builder and the reencoder take one.
//
// Both follow the same shape rules:
//   - a chunk dimension of 0 spans the whole array dimension
//   - a shard dimension of 0 spans the whole array dimension, otherwise it is
//     clamped to the array dimension
//   - shard dimensions are rounded up to a multiple of the chunk dimension
//
// When a shard shape is set, the array is sharded: the codecs become the inner
// codecs of a sharding_indexed codec whose index is encoded as
// little-endian bytes followed by crc32c and stored at the end of each shard.
package encoding
