package zarr

import "runtime"

// DefaultChunkConcurrentMinimum is the minimum number of chunks processed
// concurrently when the caller does not request a number.
const DefaultChunkConcurrentMinimum = 4

// DefaultConcurrentTarget is the default total concurrency target.
func DefaultConcurrentTarget() int {
	return runtime.GOMAXPROCS(0)
}

// ChunkConcurrency splits a concurrency target between chunks processed
// concurrently and concurrency within each chunk's codecs.
// requested is the user's chunk concurrency (zero for automatic).
func ChunkConcurrency(target, requested int, numChunks uint64, codecs *CodecChain) (chunkLimit, codecConcurrency int) {
	if target < 1 {
		target = 1
	}
	recommended := 1
	if codecs != nil {
		if _, ok := codecs.Sharding(); ok {
			recommended = min(target, 8)
		}
	}
	if requested > 0 {
		chunkLimit = requested
	} else {
		chunkLimit = max(DefaultChunkConcurrentMinimum, target/recommended)
	}
	if numChunks > 0 && uint64(chunkLimit) > numChunks {
		chunkLimit = int(numChunks)
	}
	chunkLimit = max(chunkLimit, 1)
	codecConcurrency = max(target/chunkLimit, 1)
	return chunkLimit, codecConcurrency
}
