package encoding

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// JSONText is a JSON document supplied on the command line or in a run
// configuration. In a configuration it may be written inline or as a string
// holding the document.
type JSONText string

// UnmarshalJSON accepts a JSON string (its content is the document) or any
// other JSON value (the value itself is the document).
func (t *JSONText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = JSONText(s)
		return nil
	}
	*t = JSONText(b)
	return nil
}

// Args is the encoding of a new array.
type Args struct {
	// FillValue is the JSON fill value. Empty means zero.
	FillValue json.RawMessage
	// Separator of the default chunk key encoding ("/" when empty).
	Separator  string
	ChunkShape []uint64
	// ShardShape enables sharding when non-nil.
	ShardShape []uint64

	ArrayToArrayCodecs JSONText
	ArrayToBytesCodec  JSONText
	BytesToBytesCodecs JSONText
	Attributes         JSONText
}

// Builder returns a builder for an array of the given shape and data type.
func (a Args) Builder(shape []uint64, dataType zarr.DataType, dimensionNames []*string) (*zarr.ArrayBuilder, error) {
	if err := errors.ValidateDimensionality("chunk shape", len(a.ChunkShape), len(shape)); err != nil {
		return nil, err
	}
	if a.ShardShape != nil {
		if err := errors.ValidateDimensionality("shard shape", len(a.ShardShape), len(shape)); err != nil {
			return nil, err
		}
	}
	chunk := ChunkShape(a.ChunkShape, shape)
	shard := ShardShape(a.ShardShape, chunk, shape)

	fill := zarr.FillValueZero(dataType)
	if len(a.FillValue) > 0 {
		var err error
		if fill, err = zarr.ParseFillValue(dataType, a.FillValue); err != nil {
			return nil, err
		}
	}

	b := zarr.NewArrayBuilder(shape, dataType, chunk, fill)
	b.DimensionNames = dimensionNames
	if err := setSeparator(b, a.Separator); err != nil {
		return nil, err
	}
	if err := setCodecs(b, a.ArrayToArrayCodecs, a.ArrayToBytesCodec, a.BytesToBytesCodecs); err != nil {
		return nil, err
	}
	if a.Attributes != "" {
		attrs, err := parseAttributes(a.Attributes)
		if err != nil {
			return nil, err
		}
		b.Attributes = attrs
	}
	if shard != nil {
		b.SetSharding(shard, chunk)
	}
	return b, nil
}

// ChunkShape replaces zero chunk dimensions with the array dimension.
func ChunkShape(chunk, shape []uint64) []uint64 {
	out := make([]uint64, len(chunk))
	for i, c := range chunk {
		if c == 0 && i < len(shape) {
			c = shape[i]
		}
		out[i] = c
	}
	return out
}

// ShardShape resolves a requested shard shape against the array shape and
// rounds it up to a multiple of chunk. It returns nil when shard is nil.
func ShardShape(shard, chunk, shape []uint64) []uint64 {
	if shard == nil {
		return nil
	}
	out := make([]uint64, len(shard))
	for i, s := range shard {
		if i < len(shape) {
			if s == 0 {
				s = shape[i]
			} else {
				s = min(s, shape[i])
			}
		}
		if i < len(chunk) && chunk[i] > 0 {
			s = nextMultiple(s, chunk[i])
		}
		out[i] = s
	}
	return out
}

func nextMultiple(v, m uint64) uint64 {
	if v == 0 {
		return m
	}
	return (v + m - 1) / m * m
}

// ParseShape parses a comma separated list of dimension sizes.
func ParseShape(s string) ([]uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New(errors.ErrCodeInvalidShape, "empty shape")
	}
	parts := strings.Split(s, ",")
	shape := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidShape, err, "invalid shape %q", s)
		}
		shape[i] = v
	}
	return shape, nil
}

func setSeparator(b *zarr.ArrayBuilder, sep string) error {
	if sep == "" {
		return nil
	}
	if err := errors.ValidateSeparator(sep); err != nil {
		return err
	}
	b.KeyEncoding = zarr.ChunkKeyEncoding{Name: "default", Separator: sep}
	return nil
}

// setCodecs overrides the codecs of b that are given.
func setCodecs(b *zarr.ArrayBuilder, a2a, a2b, b2b JSONText) error {
	if a2a != "" {
		codecs, err := parseCodecs(a2a, zarr.ArrayToArray)
		if err != nil {
			return err
		}
		b.ArrayToArrayCodecs = codecs
	}
	if a2b != "" {
		codecs, err := parseCodecs(a2b, zarr.ArrayToBytes)
		if err != nil {
			return err
		}
		if len(codecs) != 1 {
			return errors.New(errors.ErrCodeInvalidCodec, "expected exactly one array to bytes codec, got %d", len(codecs))
		}
		b.ArrayToBytesCodec = codecs[0]
	}
	if b2b != "" {
		codecs, err := parseCodecs(b2b, zarr.BytesToBytes)
		if err != nil {
			return err
		}
		b.BytesToBytesCodecs = codecs
	}
	return nil
}

var kindNames = map[zarr.CodecKind]string{
	zarr.ArrayToArray: "an array to array",
	zarr.ArrayToBytes: "an array to bytes",
	zarr.BytesToBytes: "a bytes to bytes",
}

func parseCodecs(s JSONText, kind zarr.CodecKind) ([]zarr.CodecMetadata, error) {
	codecs, err := zarr.ParseCodecs(string(s))
	if err != nil {
		return nil, err
	}
	for _, c := range codecs {
		k, err := zarr.KindOf(c.Name)
		if err != nil {
			return nil, err
		}
		if k != kind {
			return nil, errors.New(errors.ErrCodeInvalidCodec, "codec %q is not %s codec", c.Name, kindNames[kind])
		}
	}
	return codecs, nil
}

func parseAttributes(s JSONText) (map[string]any, error) {
	var attrs map[string]any
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "attributes are invalid")
	}
	return attrs, nil
}
