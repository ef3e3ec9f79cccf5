package zarr

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

// MetadataKey is the name of the metadata document of every node.
const MetadataKey = "zarr.json"

// NamedConfig is a {"name": ..., "configuration": {...}} metadata entry used for
// codecs, chunk grids and chunk key encodings.
type NamedConfig struct {
	Name          string          `json:"name"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// CodecMetadata describes one codec of a codec chain.
type CodecMetadata = NamedConfig

// UnmarshalJSON accepts a bare name string as shorthand for an entry without configuration.
func (n *NamedConfig) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*n = NamedConfig{Name: name}
		return nil
	}
	type plain NamedConfig
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*n = NamedConfig(p)
	return nil
}

// ParseCodecs parses a JSON codec entry or a JSON list of codec entries.
func ParseCodecs(s string) ([]CodecMetadata, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var codecs []CodecMetadata
		if err := json.Unmarshal([]byte(s), &codecs); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidCodec, err, "invalid codec list %s", s)
		}
		return codecs, nil
	}
	var codec CodecMetadata
	if err := json.Unmarshal([]byte(s), &codec); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidCodec, err, "invalid codec %s", s)
	}
	return []CodecMetadata{codec}, nil
}

// ArrayMetadata is the zarr.json document of an array.
type ArrayMetadata struct {
	ZarrFormat          int             `json:"zarr_format"`
	NodeType            string          `json:"node_type"`
	Shape               []uint64        `json:"shape"`
	DataType            DataType        `json:"data_type"`
	ChunkGrid           NamedConfig     `json:"chunk_grid"`
	ChunkKeyEncoding    NamedConfig     `json:"chunk_key_encoding"`
	FillValue           json.RawMessage `json:"fill_value"`
	Codecs              []CodecMetadata `json:"codecs"`
	Attributes          map[string]any  `json:"attributes,omitempty"`
	StorageTransformers []NamedConfig   `json:"storage_transformers,omitempty"`
	DimensionNames      []*string       `json:"dimension_names,omitempty"`
}

// GroupMetadata is the zarr.json document of a group.
type GroupMetadata struct {
	ZarrFormat int            `json:"zarr_format"`
	NodeType   string         `json:"node_type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type regularGridConfig struct {
	ChunkShape []uint64 `json:"chunk_shape"`
}

type keyEncodingConfig struct {
	Separator string `json:"separator,omitempty"`
}

// RegularChunkGrid returns the metadata entry of a regular chunk grid.
func RegularChunkGrid(chunkShape []uint64) NamedConfig {
	cfg, _ := json.Marshal(regularGridConfig{ChunkShape: chunkShape})
	return NamedConfig{Name: "regular", Configuration: cfg}
}

// DefaultChunkKeyEncoding returns the metadata entry of the default chunk key encoding.
func DefaultChunkKeyEncoding(separator string) NamedConfig {
	cfg, _ := json.Marshal(keyEncodingConfig{Separator: separator})
	return NamedConfig{Name: "default", Configuration: cfg}
}

// ChunkKeyEncoding maps chunk grid indices to store keys.
type ChunkKeyEncoding struct {
	Name      string // "default" or "v2"
	Separator string
}

func parseChunkKeyEncoding(n NamedConfig) (ChunkKeyEncoding, error) {
	var cfg keyEncodingConfig
	if len(n.Configuration) > 0 {
		if err := json.Unmarshal(n.Configuration, &cfg); err != nil {
			return ChunkKeyEncoding{}, errors.Wrap(errors.ErrCodeInvalidMetadata, err, "invalid chunk key encoding")
		}
	}
	switch n.Name {
	case "default":
		if cfg.Separator == "" {
			cfg.Separator = "/"
		}
	case "v2":
		if cfg.Separator == "" {
			cfg.Separator = "."
		}
	default:
		return ChunkKeyEncoding{}, errors.New(errors.ErrCodeUnsupported, "unsupported chunk key encoding %q", n.Name)
	}
	if err := errors.ValidateSeparator(cfg.Separator); err != nil {
		return ChunkKeyEncoding{}, err
	}
	return ChunkKeyEncoding{Name: n.Name, Separator: cfg.Separator}, nil
}

// Key returns the store key of the chunk at indices, relative to the array node.
func (e ChunkKeyEncoding) Key(indices []uint64) string {
	var b strings.Builder
	if e.Name == "v2" {
		if len(indices) == 0 {
			return "0"
		}
	} else {
		b.WriteString("c")
	}
	for i, idx := range indices {
		if i > 0 || e.Name != "v2" {
			b.WriteString(e.Separator)
		}
		b.WriteString(uintString(idx))
	}
	return b.String()
}

func uintString(v uint64) string {
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return string(buf[i:])
}

// nodeKey joins a node path ("/" or "/a/b") with a key below it.
func nodeKey(path, key string) string {
	p := strings.Trim(path, "/")
	if p == "" {
		return key
	}
	return p + "/" + key
}

// NodePrefix returns the store key prefix of all keys below a node path.
func NodePrefix(path string) string {
	p := strings.Trim(path, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// JoinPath joins a node path and a child name.
func JoinPath(path, child string) string {
	if path == "/" || path == "" {
		return "/" + child
	}
	return strings.TrimSuffix(path, "/") + "/" + child
}

// MarshalIndent encodes metadata the way it is written to zarr.json.
func MarshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DimensionNamesFromStrings converts names to metadata form; empty names become null.
func DimensionNamesFromStrings(names []string) []*string {
	if names == nil {
		return nil
	}
	out := make([]*string, len(names))
	for i := range names {
		if names[i] != "" {
			n := names[i]
			out[i] = &n
		}
	}
	return out
}
