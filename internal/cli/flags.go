package cli

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// =============================================================================
// Encoding Flags
// =============================================================================

// encodingFlags describe the encoding of a new array.
type encodingFlags struct {
	fillValue          string
	separator          string
	chunkShape         string
	shardShape         string
	arrayToArrayCodecs string
	arrayToBytesCodec  string
	bytesToBytesCodecs string
	attributes         string
}

func (f *encodingFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.fillValue, "fill-value", "", "fill value as JSON, e.g. 0, \"NaN\" or NaN")
	flags.StringVar(&f.separator, "separator", "", "chunk key separator, / or . (default /)")
	flags.StringVar(&f.chunkShape, "chunk-shape", "", "chunk shape, comma delimited; 0 takes the array dimension")
	flags.StringVar(&f.shardShape, "shard-shape", "", "shard shape, comma delimited; enables sharding")
	flags.StringVar(&f.arrayToArrayCodecs, "array-to-array-codecs", "", "array to array codecs as JSON")
	flags.StringVar(&f.arrayToBytesCodec, "array-to-bytes-codec", "", "array to bytes codec as JSON")
	flags.StringVar(&f.bytesToBytesCodecs, "bytes-to-bytes-codecs", "", "bytes to bytes codecs as JSON, e.g. '[{\"name\":\"zstd\",\"configuration\":{\"level\":5}}]'")
	flags.StringVar(&f.attributes, "attributes", "", "array attributes as a JSON object")
}

// args converts the flags to encoding arguments.
func (f *encodingFlags) args() (encoding.Args, error) {
	a := encoding.Args{
		FillValue:          fillValueJSON(f.fillValue),
		Separator:          f.separator,
		ArrayToArrayCodecs: encoding.JSONText(f.arrayToArrayCodecs),
		ArrayToBytesCodec:  encoding.JSONText(f.arrayToBytesCodec),
		BytesToBytesCodecs: encoding.JSONText(f.bytesToBytesCodecs),
		Attributes:         encoding.JSONText(f.attributes),
	}
	var err error
	if a.ChunkShape, err = optionalShape("chunk shape", f.chunkShape); err != nil {
		return encoding.Args{}, err
	}
	if a.ShardShape, err = optionalShape("shard shape", f.shardShape); err != nil {
		return encoding.Args{}, err
	}
	return a, nil
}

// =============================================================================
// Reencoding Flags
// =============================================================================

// reencodingFlags override the encoding of an existing array.
type reencodingFlags struct {
	encodingFlags
	dataType         string
	dimensionNames   string
	attributesAppend string
}

func (f *reencodingFlags) register(cmd *cobra.Command) {
	f.encodingFlags.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&f.dataType, "data-type", "", "output data type, e.g. uint16 or float32")
	flags.StringVar(&f.dimensionNames, "dimension-names", "", "dimension names, comma delimited")
	flags.StringVar(&f.attributesAppend, "attributes-append", "", "attributes merged into the existing ones, as a JSON object")
}

// args converts the flags to reencoding arguments.
func (f *reencodingFlags) args() (encoding.ReencodingArgs, error) {
	e, err := f.encodingFlags.args()
	if err != nil {
		return encoding.ReencodingArgs{}, err
	}
	r := encoding.ReencodingArgs{
		FillValue:          e.FillValue,
		Separator:          e.Separator,
		ChunkShape:         e.ChunkShape,
		ShardShape:         e.ShardShape,
		ArrayToArrayCodecs: e.ArrayToArrayCodecs,
		ArrayToBytesCodec:  e.ArrayToBytesCodec,
		BytesToBytesCodecs: e.BytesToBytesCodecs,
		Attributes:         e.Attributes,
		AttributesAppend:   encoding.JSONText(f.attributesAppend),
	}
	if f.dataType != "" {
		if r.DataType, err = zarr.ParseDataType(f.dataType); err != nil {
			return encoding.ReencodingArgs{}, err
		}
	}
	if f.dimensionNames != "" {
		r.DimensionNames = splitList(f.dimensionNames)
	}
	return r, nil
}

// =============================================================================
// Value Parsing
// =============================================================================

// fillValueJSON accepts a JSON value or a bare word such as NaN, which is
// quoted.
func fillValueJSON(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}

func optionalShape(name, s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	shape, err := encoding.ParseShape(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidShape, err, "invalid %s", name)
	}
	return shape, nil
}

func parseFloats(name, s string) ([]float64, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty %s", name)
	}
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid %s %q", name, s)
		}
		values[i] = v
	}
	return values, nil
}

// byteSize is a flag holding a number of bytes, written as 1048576, 1MiB
// or 1MB.
type byteSize uint64

func (b *byteSize) String() string {
	if *b == 0 {
		return "0"
	}
	return humanize.IBytes(uint64(*b))
}

func (b *byteSize) Set(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid size %q", s)
	}
	*b = byteSize(n)
	return nil
}

func (b *byteSize) Type() string { return "size" }

// splitList splits a comma delimited list, trimming spaces.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
