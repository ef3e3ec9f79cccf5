package zarr

import (
	"encoding/json"
	"math"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

func init() {
	registerCodec("bytes", ArrayToBytes, func(config json.RawMessage) (any, error) {
		c := &BytesCodec{}
		if len(config) > 0 {
			if err := json.Unmarshal(config, c); err != nil {
				return nil, err
			}
		}
		if c.Endian != "" && c.Endian != "little" && c.Endian != "big" {
			return nil, errors.New(errors.ErrCodeInvalidCodec, "invalid endian %q", c.Endian)
		}
		return c, nil
	})
	registerCodec("transpose", ArrayToArray, func(config json.RawMessage) (any, error) {
		c := &TransposeCodec{}
		if err := json.Unmarshal(config, c); err != nil {
			return nil, err
		}
		seen := make(map[int]bool, len(c.Order))
		for _, o := range c.Order {
			if o < 0 || o >= len(c.Order) || seen[o] {
				return nil, errors.New(errors.ErrCodeInvalidCodec, "transpose order %v is not a permutation", c.Order)
			}
			seen[o] = true
		}
		return c, nil
	})
	registerCodec("bitround", ArrayToArray, func(config json.RawMessage) (any, error) {
		c := &BitroundCodec{}
		if err := json.Unmarshal(config, c); err != nil {
			return nil, err
		}
		if c.Keepbits < 0 {
			return nil, errors.New(errors.ErrCodeInvalidCodec, "bitround keepbits must not be negative")
		}
		return c, nil
	})
}

// BytesCodec serializes elements in little or big endian order.
type BytesCodec struct {
	Endian string `json:"endian,omitempty"`
}

// NewBytesCodec returns a bytes codec with the given endianness ("little" or "big").
func NewBytesCodec(endian string) *BytesCodec { return &BytesCodec{Endian: endian} }

func (c *BytesCodec) Metadata() CodecMetadata {
	m := CodecMetadata{Name: "bytes"}
	if c.Endian != "" {
		m.Configuration = marshalConfig(c)
	}
	return m
}

func (c *BytesCodec) Encode(data []byte, rep ChunkRep, _ CodecOptions) ([]byte, error) {
	if c.Endian == "big" {
		out := append([]byte(nil), data...)
		SwapEndianness(out, rep.DataType)
		return out, nil
	}
	return data, nil
}

func (c *BytesCodec) Decode(encoded []byte, rep ChunkRep, _ CodecOptions) ([]byte, error) {
	if uint64(len(encoded)) != rep.Size() {
		return nil, errors.New(errors.ErrCodeInvalidMetadata, "bytes codec: got %d bytes, expected %d", len(encoded), rep.Size())
	}
	if c.Endian == "big" {
		out := append([]byte(nil), encoded...)
		SwapEndianness(out, rep.DataType)
		return out, nil
	}
	return encoded, nil
}

// SwapEndianness reverses the byte order of every element of data in place.
// Complex elements are swapped per component; raw bits are left unchanged.
func SwapEndianness(data []byte, d DataType) {
	width := d.Size()
	if d.IsComplex() {
		width /= 2
	}
	if width <= 1 || d.IsRawBits() {
		return
	}
	for i := 0; i+width <= len(data); i += width {
		for l, r := i, i+width-1; l < r; l, r = l+1, r-1 {
			data[l], data[r] = data[r], data[l]
		}
	}
}

// TransposeCodec permutes the dimensions of a chunk.
type TransposeCodec struct {
	Order []int `json:"order"`
}

func (c *TransposeCodec) Metadata() CodecMetadata {
	return CodecMetadata{Name: "transpose", Configuration: marshalConfig(c)}
}

func (c *TransposeCodec) EncodedRep(rep ChunkRep) (ChunkRep, error) {
	if len(c.Order) != len(rep.Shape) {
		return ChunkRep{}, errors.New(errors.ErrCodeInvalidCodec,
			"transpose order %v does not match chunk dimensionality %d", c.Order, len(rep.Shape))
	}
	shape := make([]uint64, len(rep.Shape))
	for i, o := range c.Order {
		shape[i] = rep.Shape[o]
	}
	return ChunkRep{Shape: shape, DataType: rep.DataType, FillValue: rep.FillValue}, nil
}

func (c *TransposeCodec) Encode(data []byte, rep ChunkRep) ([]byte, error) {
	if _, err := c.EncodedRep(rep); err != nil {
		return nil, err
	}
	return permute(data, rep.Shape, c.Order, rep.DataType.Size()), nil
}

func (c *TransposeCodec) Decode(data []byte, rep ChunkRep) ([]byte, error) {
	enc, err := c.EncodedRep(rep)
	if err != nil {
		return nil, err
	}
	inverse := make([]int, len(c.Order))
	for i, o := range c.Order {
		inverse[o] = i
	}
	return permute(data, enc.Shape, inverse, rep.DataType.Size()), nil
}

// permute returns data (C order, shape) with its axes reordered so that output
// axis i is input axis order[i].
func permute(data []byte, shape []uint64, order []int, elemSize int) []byte {
	n := len(shape)
	out := make([]byte, len(data))
	if n == 0 || Product(shape) == 0 {
		copy(out, data)
		return out
	}
	inStrides := make([]uint64, n)
	stride := uint64(1)
	for i := n - 1; i >= 0; i-- {
		inStrides[i] = stride
		stride *= shape[i]
	}
	outShape := make([]uint64, n)
	walk := make([]uint64, n)
	for i, o := range order {
		outShape[i] = shape[o]
		walk[i] = inStrides[o]
	}
	idx := make([]uint64, n)
	var in uint64
	total := Product(outShape)
	for o := uint64(0); o < total; o++ {
		copy(out[int(o)*elemSize:int(o+1)*elemSize], data[int(in)*elemSize:int(in+1)*elemSize])
		for d := n - 1; d >= 0; d-- {
			idx[d]++
			in += walk[d]
			if idx[d] < outShape[d] {
				break
			}
			in -= walk[d] * idx[d]
			idx[d] = 0
		}
	}
	return out
}

// BitroundCodec rounds the mantissa of floating point elements to Keepbits bits.
// Decoding is the identity.
type BitroundCodec struct {
	Keepbits int `json:"keepbits"`
}

func (c *BitroundCodec) Metadata() CodecMetadata {
	return CodecMetadata{Name: "bitround", Configuration: marshalConfig(c)}
}

func (c *BitroundCodec) EncodedRep(rep ChunkRep) (ChunkRep, error) { return rep, nil }

func (c *BitroundCodec) Encode(data []byte, rep ChunkRep) ([]byte, error) {
	var mantissa int
	switch rep.DataType {
	case Float16:
		mantissa = 10
	case BFloat16:
		mantissa = 7
	case Float32:
		mantissa = 23
	case Float64:
		mantissa = 52
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedDataType, "bitround does not support data type %s", rep.DataType)
	}
	out := append([]byte(nil), data...)
	if c.Keepbits >= mantissa {
		return out, nil
	}
	maskbits := uint(mantissa - c.Keepbits)
	mask := ^uint64(0) << maskbits
	half := uint64(1) << (maskbits - 1)
	size := rep.DataType.Size()
	for i := 0; i+size <= len(out); i += size {
		bits := readUint(out[i : i+size])
		bits += half - 1 + (bits>>maskbits)&1
		bits &= mask
		putUint(out[i:i+size], bits&widthMask(size))
	}
	return out, nil
}

func (c *BitroundCodec) Decode(data []byte, _ ChunkRep) ([]byte, error) { return data, nil }

func readUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func widthMask(size int) uint64 {
	if size >= 8 {
		return math.MaxUint64
	}
	return uint64(1)<<(8*size) - 1
}
