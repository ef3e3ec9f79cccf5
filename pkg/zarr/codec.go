package zarr

import (
	"encoding/json"
	"sort"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

// ChunkRep describes a decoded chunk: its shape, data type and fill value.
type ChunkRep struct {
	Shape     []uint64
	DataType  DataType
	FillValue FillValue
}

// NumElements returns the number of elements in the chunk.
func (r ChunkRep) NumElements() uint64 { return Product(r.Shape) }

// Size returns the decoded size of the chunk in bytes.
func (r ChunkRep) Size() uint64 { return r.NumElements() * uint64(r.DataType.Size()) }

// CodecOptions control encoding and decoding.
type CodecOptions struct {
	// SkipChecksums disables checksum validation on decode.
	SkipChecksums bool
	// Concurrency bounds concurrent work inside a single chunk (e.g. sharding). Zero means 1.
	Concurrency int
}

func (o CodecOptions) concurrency() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}

// CodecKind classifies codecs by their input and output representation.
type CodecKind int

const (
	ArrayToArray CodecKind = iota
	ArrayToBytes
	BytesToBytes
)

// ArrayToArrayCodec transforms a decoded chunk into another decoded chunk.
type ArrayToArrayCodec interface {
	Metadata() CodecMetadata
	EncodedRep(rep ChunkRep) (ChunkRep, error)
	Encode(data []byte, rep ChunkRep) ([]byte, error)
	Decode(data []byte, rep ChunkRep) ([]byte, error)
}

// ArrayToBytesCodec serializes a decoded chunk.
type ArrayToBytesCodec interface {
	Metadata() CodecMetadata
	Encode(data []byte, rep ChunkRep, opts CodecOptions) ([]byte, error)
	Decode(encoded []byte, rep ChunkRep, opts CodecOptions) ([]byte, error)
}

// BytesToBytesCodec transforms encoded bytes.
type BytesToBytesCodec interface {
	Metadata() CodecMetadata
	Encode(data []byte) ([]byte, error)
	Decode(data []byte, opts CodecOptions) ([]byte, error)
}

type codecFactory struct {
	kind CodecKind
	new  func(config json.RawMessage) (any, error)
}

var codecRegistry = map[string]codecFactory{}

func registerCodec(name string, kind CodecKind, fn func(config json.RawMessage) (any, error)) {
	codecRegistry[name] = codecFactory{kind: kind, new: fn}
}

// KindOf returns the kind of a registered codec.
func KindOf(name string) (CodecKind, error) {
	f, ok := codecRegistry[name]
	if !ok {
		return 0, errors.New(errors.ErrCodeInvalidCodec, "unsupported codec %q", name)
	}
	return f.kind, nil
}

// RegisteredCodecs returns the names of all supported codecs.
func RegisteredCodecs() []string {
	names := make([]string, 0, len(codecRegistry))
	for name := range codecRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newCodec(m CodecMetadata) (any, CodecKind, error) {
	f, ok := codecRegistry[m.Name]
	if !ok {
		return nil, 0, errors.New(errors.ErrCodeInvalidCodec, "unsupported codec %q", m.Name)
	}
	c, err := f.new(m.Configuration)
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrCodeInvalidCodec, err, "invalid %s codec configuration", m.Name)
	}
	return c, f.kind, nil
}

// CodecChain is an ordered list of array-to-array codecs, exactly one
// array-to-bytes codec and any number of bytes-to-bytes codecs.
type CodecChain struct {
	ArrayToArray []ArrayToArrayCodec
	ArrayToBytes ArrayToBytesCodec
	BytesToBytes []BytesToBytesCodec
}

// NewCodecChain builds a codec chain from metadata.
func NewCodecChain(metas []CodecMetadata) (*CodecChain, error) {
	chain := &CodecChain{}
	for _, m := range metas {
		c, kind, err := newCodec(m)
		if err != nil {
			return nil, err
		}
		switch kind {
		case ArrayToArray:
			if chain.ArrayToBytes != nil {
				return nil, errors.New(errors.ErrCodeInvalidCodec, "array to array codec %q after the array to bytes codec", m.Name)
			}
			chain.ArrayToArray = append(chain.ArrayToArray, c.(ArrayToArrayCodec))
		case ArrayToBytes:
			if chain.ArrayToBytes != nil {
				return nil, errors.New(errors.ErrCodeInvalidCodec, "more than one array to bytes codec")
			}
			chain.ArrayToBytes = c.(ArrayToBytesCodec)
		case BytesToBytes:
			if chain.ArrayToBytes == nil {
				return nil, errors.New(errors.ErrCodeInvalidCodec, "bytes to bytes codec %q before the array to bytes codec", m.Name)
			}
			chain.BytesToBytes = append(chain.BytesToBytes, c.(BytesToBytesCodec))
		}
	}
	if chain.ArrayToBytes == nil {
		return nil, errors.New(errors.ErrCodeInvalidCodec, "codec chain has no array to bytes codec")
	}
	return chain, nil
}

// Metadata returns the metadata of every codec in order.
func (c *CodecChain) Metadata() []CodecMetadata {
	out := make([]CodecMetadata, 0, len(c.ArrayToArray)+1+len(c.BytesToBytes))
	for _, a := range c.ArrayToArray {
		out = append(out, a.Metadata())
	}
	out = append(out, c.ArrayToBytes.Metadata())
	for _, b := range c.BytesToBytes {
		out = append(out, b.Metadata())
	}
	return out
}

// Sharding returns the sharding codec if it is the chain's array-to-bytes codec.
func (c *CodecChain) Sharding() (*ShardingCodec, bool) {
	s, ok := c.ArrayToBytes.(*ShardingCodec)
	return s, ok
}

// Encode encodes a decoded chunk.
func (c *CodecChain) Encode(data []byte, rep ChunkRep, opts CodecOptions) ([]byte, error) {
	if uint64(len(data)) != rep.Size() {
		return nil, errors.New(errors.ErrCodeInternal, "chunk has %d bytes, expected %d", len(data), rep.Size())
	}
	var err error
	for _, a := range c.ArrayToArray {
		if data, err = a.Encode(data, rep); err != nil {
			return nil, err
		}
		if rep, err = a.EncodedRep(rep); err != nil {
			return nil, err
		}
	}
	if data, err = c.ArrayToBytes.Encode(data, rep, opts); err != nil {
		return nil, err
	}
	for _, b := range c.BytesToBytes {
		if data, err = b.Encode(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Decode decodes an encoded chunk.
func (c *CodecChain) Decode(encoded []byte, rep ChunkRep, opts CodecOptions) ([]byte, error) {
	var err error
	for i := len(c.BytesToBytes) - 1; i >= 0; i-- {
		if encoded, err = c.BytesToBytes[i].Decode(encoded, opts); err != nil {
			return nil, err
		}
	}
	reps := make([]ChunkRep, len(c.ArrayToArray)+1)
	reps[0] = rep
	for i, a := range c.ArrayToArray {
		if reps[i+1], err = a.EncodedRep(reps[i]); err != nil {
			return nil, err
		}
	}
	data, err := c.ArrayToBytes.Decode(encoded, reps[len(reps)-1], opts)
	if err != nil {
		return nil, err
	}
	for i := len(c.ArrayToArray) - 1; i >= 0; i-- {
		if data, err = c.ArrayToArray[i].Decode(data, reps[i]); err != nil {
			return nil, err
		}
	}
	if uint64(len(data)) != rep.Size() {
		return nil, errors.New(errors.ErrCodeInvalidMetadata, "decoded chunk has %d bytes, expected %d", len(data), rep.Size())
	}
	return data, nil
}

// SplitCodecs partitions codec metadata into the three codec kinds.
func SplitCodecs(metas []CodecMetadata) (a2a []CodecMetadata, a2b *CodecMetadata, b2b []CodecMetadata, err error) {
	for i := range metas {
		kind, err := KindOf(metas[i].Name)
		if err != nil {
			return nil, nil, nil, err
		}
		switch kind {
		case ArrayToArray:
			a2a = append(a2a, metas[i])
		case ArrayToBytes:
			m := metas[i]
			a2b = &m
		case BytesToBytes:
			b2b = append(b2b, metas[i])
		}
	}
	return a2a, a2b, b2b, nil
}

func marshalConfig(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
