package zarr

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/x448/float16"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

// DataType is a Zarr V3 data type name.
type DataType string

// Supported data types. Raw bits types ("r8", "r16", ...) are parsed by [ParseDataType].
const (
	Bool       DataType = "bool"
	Int8       DataType = "int8"
	Int16      DataType = "int16"
	Int32      DataType = "int32"
	Int64      DataType = "int64"
	Uint8      DataType = "uint8"
	Uint16     DataType = "uint16"
	Uint32     DataType = "uint32"
	Uint64     DataType = "uint64"
	Float16    DataType = "float16"
	BFloat16   DataType = "bfloat16"
	Float32    DataType = "float32"
	Float64    DataType = "float64"
	Complex64  DataType = "complex64"
	Complex128 DataType = "complex128"
)

var dataTypeSizes = map[DataType]int{
	Bool: 1, Int8: 1, Int16: 2, Int32: 4, Int64: 8,
	Uint8: 1, Uint16: 2, Uint32: 4, Uint64: 8,
	Float16: 2, BFloat16: 2, Float32: 4, Float64: 8,
	Complex64: 8, Complex128: 16,
}

// ParseDataType parses a data type name.
func ParseDataType(s string) (DataType, error) {
	d := DataType(strings.TrimSpace(s))
	if _, ok := dataTypeSizes[d]; ok {
		return d, nil
	}
	if d.IsRawBits() {
		return d, nil
	}
	return "", errors.New(errors.ErrCodeInvalidDataType, "unknown data type %q", s)
}

// Size returns the size of one element in bytes.
func (d DataType) Size() int {
	if n, ok := dataTypeSizes[d]; ok {
		return n
	}
	if bits, ok := d.rawBits(); ok {
		return bits / 8
	}
	return 0
}

func (d DataType) rawBits() (int, bool) {
	if !strings.HasPrefix(string(d), "r") {
		return 0, false
	}
	bits, err := strconv.Atoi(string(d)[1:])
	if err != nil || bits <= 0 || bits%8 != 0 {
		return 0, false
	}
	return bits, true
}

// IsRawBits reports whether d is an "r<N>" raw bits type.
func (d DataType) IsRawBits() bool {
	_, ok := d.rawBits()
	return ok
}

// IsBool reports whether d is bool.
func (d DataType) IsBool() bool { return d == Bool }

// IsSigned reports whether d is a signed integer type.
func (d DataType) IsSigned() bool {
	switch d {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// IsUnsigned reports whether d is an unsigned integer type.
func (d DataType) IsUnsigned() bool {
	switch d {
	case Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsInteger reports whether d is a signed or unsigned integer type.
func (d DataType) IsInteger() bool { return d.IsSigned() || d.IsUnsigned() }

// IsFloat reports whether d is a floating point type.
func (d DataType) IsFloat() bool {
	switch d {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return false
}

// IsComplex reports whether d is a complex type.
func (d DataType) IsComplex() bool { return d == Complex64 || d == Complex128 }

// IsNumeric reports whether elements of d can be processed as real numbers.
// This covers bool, integers and floats.
func (d DataType) IsNumeric() bool { return d.IsBool() || d.IsInteger() || d.IsFloat() }

// UnmarshalJSON accepts both the string form and the {"name": ...} object form.
func (d *DataType) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(b, &named); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidDataType, err, "invalid data type %s", string(b))
		}
		name = named.Name
	}
	parsed, err := ParseDataType(name)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Float64At returns element i of b as a float64.
// Complex types yield their real part and raw bits types yield zero.
func (d DataType) Float64At(b []byte, i int) float64 {
	switch d {
	case Bool:
		if b[i] != 0 {
			return 1
		}
		return 0
	case Int8:
		return float64(int8(b[i]))
	case Uint8:
		return float64(b[i])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b[2*i:])))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b[2*i:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b[4*i:])))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b[4*i:]))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b[8*i:])))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(b[8*i:]))
	case Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32())
	case BFloat16:
		return float64(math.Float32frombits(uint32(binary.LittleEndian.Uint16(b[2*i:])) << 16))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	case Complex64:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8*i:])))
	case Complex128:
		return math.Float64frombits(binary.LittleEndian.Uint64(b[16*i:]))
	}
	return 0
}

// PutFloat64 stores v as element i of b.
// Conversion to integer types truncates toward zero and saturates at the type
// bounds; NaN converts to zero.
func (d DataType) PutFloat64(b []byte, i int, v float64) {
	switch d {
	case Bool:
		if v != 0 {
			b[i] = 1
		} else {
			b[i] = 0
		}
	case Int8:
		b[i] = byte(int8(castSigned(v, math.MinInt8, math.MaxInt8)))
	case Uint8:
		b[i] = uint8(castUnsigned(v, math.MaxUint8))
	case Int16:
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(castSigned(v, math.MinInt16, math.MaxInt16))))
	case Uint16:
		binary.LittleEndian.PutUint16(b[2*i:], uint16(castUnsigned(v, math.MaxUint16)))
	case Int32:
		binary.LittleEndian.PutUint32(b[4*i:], uint32(int32(castSigned(v, math.MinInt32, math.MaxInt32))))
	case Uint32:
		binary.LittleEndian.PutUint32(b[4*i:], uint32(castUnsigned(v, math.MaxUint32)))
	case Int64:
		binary.LittleEndian.PutUint64(b[8*i:], uint64(castSigned(v, math.MinInt64, math.MaxInt64)))
	case Uint64:
		binary.LittleEndian.PutUint64(b[8*i:], castUnsigned(v, math.MaxUint64))
	case Float16:
		binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(float32(v)).Bits())
	case BFloat16:
		binary.LittleEndian.PutUint16(b[2*i:], bfloat16Bits(float32(v)))
	case Float32:
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	case Complex64:
		binary.LittleEndian.PutUint32(b[8*i:], math.Float32bits(float32(v)))
		binary.LittleEndian.PutUint32(b[8*i+4:], 0)
	case Complex128:
		binary.LittleEndian.PutUint64(b[16*i:], math.Float64bits(v))
		binary.LittleEndian.PutUint64(b[16*i+8:], 0)
	}
}

func castSigned(v float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return int64(v)
}

func castUnsigned(v float64, hi uint64) uint64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= float64(hi):
		return hi
	}
	return uint64(v)
}

// bfloat16Bits rounds a float32 to bfloat16 (round to nearest even).
func bfloat16Bits(f float32) uint16 {
	bits := math.Float32bits(f)
	if f != f {
		return uint16(bits>>16) | 0x0040
	}
	rounding := uint32(0x7fff) + (bits>>16)&1
	return uint16((bits + rounding) >> 16)
}

// DecodeFloat64 converts every element of b to float64.
func DecodeFloat64(d DataType, b []byte) []float64 {
	n := len(b) / d.Size()
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Float64At(b, i)
	}
	return out
}

// EncodeFloat64 converts values to elements of d.
func EncodeFloat64(d DataType, values []float64) []byte {
	out := make([]byte, len(values)*d.Size())
	for i, v := range values {
		d.PutFloat64(out, i, v)
	}
	return out
}

// DecodeFloat32 converts every element of b to float32.
func DecodeFloat32(d DataType, b []byte) []float32 {
	n := len(b) / d.Size()
	out := make([]float32, n)
	if d == Float32 {
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return out
	}
	for i := range out {
		out[i] = float32(d.Float64At(b, i))
	}
	return out
}

// EncodeFloat32 converts float32 values to elements of d.
func EncodeFloat32(d DataType, values []float32) []byte {
	out := make([]byte, len(values)*d.Size())
	for i, v := range values {
		d.PutFloat64(out, i, float64(v))
	}
	return out
}

// CastElements converts the elements of b from one data type to another.
// It returns b unchanged when the types are equal.
func CastElements(from DataType, b []byte, to DataType) ([]byte, error) {
	if from == to {
		return b, nil
	}
	if !from.IsNumeric() || !to.IsNumeric() {
		return nil, errors.New(errors.ErrCodeUnsupportedDataType, "cannot convert elements from %s to %s", from, to)
	}
	n := len(b) / from.Size()
	out := make([]byte, n*to.Size())
	for i := 0; i < n; i++ {
		to.PutFloat64(out, i, from.Float64At(b, i))
	}
	return out, nil
}
