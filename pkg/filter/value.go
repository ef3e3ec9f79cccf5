package filter

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Equal writes a boolean mask that is true where the input equals Value.
// Elements are compared by their encoded bytes, so a NaN value matches NaN
// elements with the same bit pattern.
type Equal struct {
	base
	// Value is fill-value JSON interpreted with the input data type.
	Value json.RawMessage
}

// NewEqual returns an equal filter.
func NewEqual(value json.RawMessage, chunkLimit int) *Equal {
	return &Equal{base: base{chunkLimit}, Value: value}
}

func (*Equal) Name() string { return "equal" }

func (*Equal) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	return out.NumElements() * uint64(in.DataType.Size()+out.DataType.Size())
}

func (*Equal) OutputDataType(*zarr.Array) (zarr.DataType, zarr.FillValue, bool) {
	return zarr.Bool, zarr.FillValue{0}, true
}

func (f *Equal) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	value, err := zarr.ParseFillValue(in.DataType(), f.Value)
	if err != nil {
		return err
	}
	size := in.DataType().Size()
	return elementwise(ctx, f, f.base, in, out, nil, cb, func(data []byte) ([]byte, error) {
		n := len(data) / size
		mask := make([]byte, n)
		for i := range n {
			if bytes.Equal(data[i*size:(i+1)*size], value) {
				mask[i] = 1
			}
		}
		return zarr.CastElements(zarr.Bool, mask, out.DataType())
	})
}

// ReplaceValue substitutes Replace for every element equal to Value.
type ReplaceValue struct {
	base
	// Value is fill-value JSON interpreted with the input data type.
	Value json.RawMessage
	// Replace is fill-value JSON interpreted with the output data type.
	Replace json.RawMessage
}

// NewReplaceValue returns a replace_value filter.
func NewReplaceValue(value, replace json.RawMessage, chunkLimit int) *ReplaceValue {
	return &ReplaceValue{base: base{chunkLimit}, Value: value, Replace: replace}
}

func (*ReplaceValue) Name() string { return "replace_value" }

func (*ReplaceValue) MemoryPerChunk(in, out zarr.ChunkRep) uint64 {
	return out.NumElements() * uint64(in.DataType.Size()+out.DataType.Size())
}

func (f *ReplaceValue) Apply(ctx context.Context, in, out *zarr.Array, cb progress.Callback) error {
	if err := checkSameShape(in, out); err != nil {
		return err
	}
	value, err := zarr.ParseFillValue(in.DataType(), f.Value)
	if err != nil {
		return err
	}
	replace, err := zarr.ParseFillValue(out.DataType(), f.Replace)
	if err != nil {
		return err
	}
	inSize, outSize := in.DataType().Size(), out.DataType().Size()
	return elementwise(ctx, f, f.base, in, out, nil, cb, func(data []byte) ([]byte, error) {
		result, err := zarr.CastElements(in.DataType(), data, out.DataType())
		if err != nil {
			return nil, err
		}
		for i := range len(data) / inSize {
			if bytes.Equal(data[i*inSize:(i+1)*inSize], value) {
				copy(result[i*outSize:], replace)
			}
		}
		return result, nil
	})
}
