package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

// FillValue holds the little-endian bytes of a single element.
type FillValue []byte

// FillValueZero returns the all-zero fill value for d.
func FillValueZero(d DataType) FillValue {
	return make(FillValue, d.Size())
}

// FillValueFromFloat64 converts v to a fill value of type d.
func FillValueFromFloat64(d DataType, v float64) FillValue {
	fv := make(FillValue, d.Size())
	d.PutFloat64(fv, 0, v)
	return fv
}

// Equal reports whether two fill values have identical bytes.
func (fv FillValue) Equal(o FillValue) bool {
	return bytes.Equal(fv, o)
}

// AllFill reports whether every element of data equals the fill value.
func AllFill(data []byte, fv FillValue) bool {
	n := len(fv)
	if n == 0 {
		return len(data) == 0
	}
	for i := 0; i+n <= len(data); i += n {
		if !bytes.Equal(data[i:i+n], fv) {
			return false
		}
	}
	return true
}

// Repeat returns n copies of the fill value.
func (fv FillValue) Repeat(n uint64) []byte {
	if len(fv) == 0 || n == 0 {
		return []byte{}
	}
	if AllFill(fv, FillValue{0}) {
		return make([]byte, uint64(len(fv))*n)
	}
	return bytes.Repeat(fv, int(n))
}

// ParseFillValue parses the JSON representation of a fill value for data type d.
func ParseFillValue(d DataType, raw json.RawMessage) (FillValue, error) {
	fv := make(FillValue, d.Size())
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFillValue, err, "invalid fill value %s", string(raw))
	}
	incompatible := func() error {
		return errors.New(errors.ErrCodeInvalidFillValue, "fill value %s is incompatible with data type %s", string(raw), d)
	}

	switch {
	case d == Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, incompatible()
		}
		if b {
			fv[0] = 1
		}
	case d.IsSigned():
		n, ok := v.(json.Number)
		if !ok {
			return nil, incompatible()
		}
		i, err := strconv.ParseInt(n.String(), 10, d.Size()*8)
		if err != nil {
			return nil, incompatible()
		}
		putUint(fv, uint64(i))
	case d.IsUnsigned():
		n, ok := v.(json.Number)
		if !ok {
			return nil, incompatible()
		}
		u, err := strconv.ParseUint(n.String(), 10, d.Size()*8)
		if err != nil {
			return nil, incompatible()
		}
		putUint(fv, u)
	case d.IsFloat():
		if err := parseFloatElement(d, v, fv); err != nil {
			return nil, incompatible()
		}
	case d.IsComplex():
		parts, ok := v.([]any)
		if !ok || len(parts) != 2 {
			return nil, incompatible()
		}
		component := Float32
		if d == Complex128 {
			component = Float64
		}
		half := d.Size() / 2
		if err := parseFloatElement(component, parts[0], fv[:half]); err != nil {
			return nil, incompatible()
		}
		if err := parseFloatElement(component, parts[1], fv[half:]); err != nil {
			return nil, incompatible()
		}
	case d.IsRawBits():
		items, ok := v.([]any)
		if !ok || len(items) != d.Size() {
			return nil, incompatible()
		}
		for i, item := range items {
			n, ok := item.(json.Number)
			if !ok {
				return nil, incompatible()
			}
			b, err := strconv.ParseUint(n.String(), 10, 8)
			if err != nil {
				return nil, incompatible()
			}
			fv[i] = byte(b)
		}
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedDataType, "unsupported data type %q", d)
	}
	return fv, nil
}

func putUint(b []byte, u uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(u)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(u))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(u))
	case 8:
		binary.LittleEndian.PutUint64(b, u)
	}
}

func parseFloatElement(d DataType, v any, dst []byte) error {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return err
		}
		f = parsed
	case string:
		switch {
		case x == "NaN":
			f = math.NaN()
		case x == "Infinity":
			f = math.Inf(1)
		case x == "-Infinity":
			f = math.Inf(-1)
		case strings.HasPrefix(x, "0x"):
			bits, err := strconv.ParseUint(x[2:], 16, d.Size()*8)
			if err != nil {
				return err
			}
			putUint(dst, bits)
			return nil
		default:
			return errors.New(errors.ErrCodeInvalidFillValue, "invalid float %q", x)
		}
	default:
		return errors.New(errors.ErrCodeInvalidFillValue, "invalid float %v", v)
	}
	d.PutFloat64(dst, 0, f)
	return nil
}

// FillValueJSON returns the JSON representation of fv for data type d.
func FillValueJSON(d DataType, fv FillValue) (json.RawMessage, error) {
	if len(fv) != d.Size() {
		return nil, errors.New(errors.ErrCodeInvalidFillValue, "fill value has %d bytes, data type %s needs %d", len(fv), d, d.Size())
	}
	switch {
	case d == Bool:
		if fv[0] != 0 {
			return json.RawMessage("true"), nil
		}
		return json.RawMessage("false"), nil
	case d == Int64:
		return json.RawMessage(strconv.FormatInt(int64(binary.LittleEndian.Uint64(fv)), 10)), nil
	case d == Uint64:
		return json.RawMessage(strconv.FormatUint(binary.LittleEndian.Uint64(fv), 10)), nil
	case d.IsSigned():
		return json.RawMessage(strconv.FormatInt(int64(d.Float64At(fv, 0)), 10)), nil
	case d.IsUnsigned():
		return json.RawMessage(strconv.FormatUint(uint64(d.Float64At(fv, 0)), 10)), nil
	case d.IsFloat():
		return floatJSON(d, d.Float64At(fv, 0)), nil
	case d == Complex64:
		re := Float32.Float64At(fv[:4], 0)
		im := Float32.Float64At(fv[4:], 0)
		return json.RawMessage("[" + string(floatJSON(Float32, re)) + "," + string(floatJSON(Float32, im)) + "]"), nil
	case d == Complex128:
		re := Float64.Float64At(fv[:8], 0)
		im := Float64.Float64At(fv[8:], 0)
		return json.RawMessage("[" + string(floatJSON(Float64, re)) + "," + string(floatJSON(Float64, im)) + "]"), nil
	case d.IsRawBits():
		items := make([]int, len(fv))
		for i, b := range fv {
			items[i] = int(b)
		}
		return json.Marshal(items)
	}
	return nil, errors.New(errors.ErrCodeUnsupportedDataType, "unsupported data type %q", d)
}

func floatJSON(d DataType, f float64) json.RawMessage {
	switch {
	case math.IsNaN(f):
		return json.RawMessage(`"NaN"`)
	case math.IsInf(f, 1):
		return json.RawMessage(`"Infinity"`)
	case math.IsInf(f, -1):
		return json.RawMessage(`"-Infinity"`)
	}
	bits := 64
	if d != Float64 {
		bits = 32
	}
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, bits))
}
