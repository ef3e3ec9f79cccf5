package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/filter"
)

// Stage is one entry of a run configuration. Filter arguments, reencoding
// arguments and the stage fields share one flat JSON object:
//
//	{"filter": "gaussian", "input": "in.zarr", "output": "$smooth",
//	 "sigma": [2, 2], "kernel_half_size": [6, 6], "chunk_shape": [64, 64]}
type Stage struct {
	Filter     string `json:"filter"`
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"`
	ChunkLimit int    `json:"chunk_limit,omitempty"`

	// Encoding overrides the encoding of the output.
	Encoding encoding.ReencodingArgs `json:"-"`
	// Args is the complete stage object the filter arguments are read from.
	Args json.RawMessage `json:"-"`
}

// ParseStage decodes one stage object.
func ParseStage(raw json.RawMessage) (Stage, error) {
	var s Stage
	if err := json.Unmarshal(raw, &s); err != nil {
		return Stage{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid stage")
	}
	if s.Filter == "" {
		return Stage{}, errors.New(errors.ErrCodeInvalidConfig, "stage is missing the \"filter\" field")
	}
	if _, ok := filter.Lookup(s.Filter); !ok {
		return Stage{}, errors.New(errors.ErrCodeInvalidConfig, "unknown filter %q (must be one of: %s)", s.Filter, strings.Join(filter.Names(), ", "))
	}
	if s.ChunkLimit < 0 {
		return Stage{}, errors.New(errors.ErrCodeInvalidConfig, "chunk_limit must not be negative, got %d", s.ChunkLimit)
	}
	if err := json.Unmarshal(raw, &s.Encoding); err != nil {
		return Stage{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "filter %s: invalid reencoding arguments", s.Filter)
	}
	s.Args = append(json.RawMessage(nil), raw...)
	return s, nil
}

// MarshalJSON writes the stage back as the flat object it was parsed from.
func (s Stage) MarshalJSON() ([]byte, error) {
	if len(s.Args) > 0 {
		return s.Args, nil
	}
	type plain Stage
	return json.Marshal(plain(s))
}

// Config is a parsed run configuration.
type Config struct {
	Stages []Stage
}

// ParseJSON parses a JSON array of stage objects.
func ParseJSON(data []byte) (*Config, error) {
	var raws []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raws); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "run configuration must be a JSON array of stages")
	}
	return parseStages(raws)
}

// ParseTOML parses a TOML document with one [[stage]] table per stage.
func ParseTOML(data []byte) (*Config, error) {
	var doc struct {
		Stage []map[string]any `toml:"stage"`
	}
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid TOML run configuration")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown keys in run configuration: %v", undecoded)
	}
	raws := make([]json.RawMessage, len(doc.Stage))
	for i, table := range doc.Stage {
		raw, err := json.Marshal(table)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "stage %d", i)
		}
		raws[i] = raw
	}
	return parseStages(raws)
}

// LoadConfig reads a run configuration, choosing the format by extension:
// ".toml" is TOML, anything else JSON.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read run configuration")
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return ParseJSON(data)
}

func parseStages(raws []json.RawMessage) (*Config, error) {
	cfg := &Config{Stages: make([]Stage, 0, len(raws))}
	for i, raw := range raws {
		s, err := ParseStage(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "stage %d", i)
		}
		cfg.Stages = append(cfg.Stages, s)
	}
	return cfg, nil
}
