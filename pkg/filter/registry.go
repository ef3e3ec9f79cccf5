package filter

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

// =============================================================================
// Filter Arguments
// =============================================================================

// Args are the decoded arguments of one filter.
type Args interface {
	// Build validates the arguments and constructs the filter.
	Build(chunkLimit int) (Filter, error)
}

// ReencodeArgs has no fields; the reencoding itself comes from the stage's
// reencoding arguments.
type ReencodeArgs struct{}

func (ReencodeArgs) Build(chunkLimit int) (Filter, error) { return NewReencode(chunkLimit), nil }

// CropArgs select a region by offset and shape.
type CropArgs struct {
	Offset []uint64 `json:"offset"`
	Shape  []uint64 `json:"shape"`
}

func (a CropArgs) Build(chunkLimit int) (Filter, error) {
	if len(a.Offset) != len(a.Shape) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "crop offset %v and shape %v differ in length", a.Offset, a.Shape)
	}
	return NewCrop(a.Offset, a.Shape, chunkLimit), nil
}

// RescaleArgs are the multiplier and addition terms.
type RescaleArgs struct {
	Multiply float64 `json:"multiply"`
	Add      float64 `json:"add"`
	AddFirst bool    `json:"add_first"`
}

func (a RescaleArgs) Build(chunkLimit int) (Filter, error) {
	return NewRescale(a.Multiply, a.Add, a.AddFirst, chunkLimit), nil
}

// ClampArgs bound the output values.
type ClampArgs struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (a ClampArgs) Build(chunkLimit int) (Filter, error) {
	if a.Min > a.Max {
		return nil, errors.New(errors.ErrCodeInvalidInput, "clamp minimum %v exceeds maximum %v", a.Min, a.Max)
	}
	return NewClamp(a.Min, a.Max, chunkLimit), nil
}

// EqualArgs name the value to match.
type EqualArgs struct {
	Value json.RawMessage `json:"value"`
}

func (a EqualArgs) Build(chunkLimit int) (Filter, error) { return NewEqual(a.Value, chunkLimit), nil }

// ReplaceValueArgs name the value to change and its replacement.
type ReplaceValueArgs struct {
	Value   json.RawMessage `json:"value"`
	Replace json.RawMessage `json:"replace"`
}

func (a ReplaceValueArgs) Build(chunkLimit int) (Filter, error) {
	return NewReplaceValue(a.Value, a.Replace, chunkLimit), nil
}

// DownsampleArgs set the stride and whether to take the mode.
type DownsampleArgs struct {
	Stride   []uint64 `json:"stride"`
	Discrete bool     `json:"discrete"`
}

func (a DownsampleArgs) Build(chunkLimit int) (Filter, error) {
	if err := errors.ValidateShape(a.Stride, false); err != nil {
		return nil, err
	}
	return NewDownsample(a.Stride, a.Discrete, chunkLimit), nil
}

// GaussianArgs set sigma and the kernel half size per axis.
type GaussianArgs struct {
	Sigma          []float32 `json:"sigma"`
	KernelHalfSize []uint64  `json:"kernel_half_size"`
}

func (a GaussianArgs) Build(chunkLimit int) (Filter, error) {
	if len(a.Sigma) != len(a.KernelHalfSize) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "gaussian sigma %v and kernel half size %v differ in length", a.Sigma, a.KernelHalfSize)
	}
	for _, s := range a.Sigma {
		if s < 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "gaussian sigma must not be negative, got %v", a.Sigma)
		}
	}
	return NewGaussian(a.Sigma, a.KernelHalfSize, chunkLimit), nil
}

// GradientMagnitudeArgs has no fields.
type GradientMagnitudeArgs struct{}

func (GradientMagnitudeArgs) Build(chunkLimit int) (Filter, error) {
	return NewGradientMagnitude(chunkLimit), nil
}

// GuidedFilterArgs are the regularisation epsilon and the box radius.
type GuidedFilterArgs struct {
	Epsilon float32 `json:"epsilon"`
	Radius  uint8   `json:"radius"`
}

func (a GuidedFilterArgs) Build(chunkLimit int) (Filter, error) {
	if a.Epsilon < 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "guided filter epsilon must not be negative, got %v", a.Epsilon)
	}
	return NewGuidedFilter(a.Epsilon, a.Radius, chunkLimit), nil
}

// SummedAreaTableArgs has no fields.
type SummedAreaTableArgs struct{}

func (SummedAreaTableArgs) Build(chunkLimit int) (Filter, error) {
	return NewSummedAreaTable(chunkLimit), nil
}

// =============================================================================
// Registry
// =============================================================================

// ParamKind describes how a command line value maps to JSON.
type ParamKind int

const (
	// ParamUints is a comma delimited list of unsigned integers.
	ParamUints ParamKind = iota
	// ParamFloats is a comma delimited list of numbers.
	ParamFloats
	// ParamNumber is a single number.
	ParamNumber
	// ParamValue is a fill value: JSON, or a bare string such as NaN.
	ParamValue
	// ParamBool is an optional flag.
	ParamBool
)

// Param describes one filter argument.
type Param struct {
	Name string
	Kind ParamKind
	Help string
}

// Spec describes a registered filter.
type Spec struct {
	Name        string
	Description string
	// Params lists positional (required) arguments followed by flags.
	Params  []Param
	newArgs func() Args
}

// Required returns the names of the non-flag parameters.
func (s Spec) Required() []string {
	var names []string
	for _, p := range s.Params {
		if p.Kind != ParamBool {
			names = append(names, p.Name)
		}
	}
	return names
}

var specs = []Spec{
	{
		Name: "reencode", Description: "Reencode an array.",
		newArgs: func() Args { return &ReencodeArgs{} },
	},
	{
		Name: "crop", Description: "Crop an array given an offset and shape.",
		Params: []Param{
			{"offset", ParamUints, "Crop offset, comma delimited."},
			{"shape", ParamUints, "Crop shape, comma delimited."},
		},
		newArgs: func() Args { return &CropArgs{} },
	},
	{
		Name: "rescale", Description: "Rescale array values given a multiplier and offset.",
		Params: []Param{
			{"multiply", ParamNumber, "Multiplier term."},
			{"add", ParamNumber, "Addition term."},
			{"add_first", ParamBool, "Perform the addition before multiplication."},
		},
		newArgs: func() Args { return &RescaleArgs{} },
	},
	{
		Name: "clamp", Description: "Clamp values between a minimum and maximum.",
		Params: []Param{
			{"min", ParamNumber, "Minimum."},
			{"max", ParamNumber, "Maximum."},
		},
		newArgs: func() Args { return &ClampArgs{} },
	},
	{
		Name: "equal", Description: "Return a binary image where the input is equal to some value.",
		Params: []Param{
			{"value", ParamValue, "The value to compare against, compatible with the input data type."},
		},
		newArgs: func() Args { return &EqualArgs{} },
	},
	{
		Name: "downsample", Description: "Downsample an image given a stride.",
		Params: []Param{
			{"stride", ParamUints, "Downsample stride, comma delimited."},
			{"discrete", ParamBool, "Perform majority filtering (mode downsampling)."},
		},
		newArgs: func() Args { return &DownsampleArgs{} },
	},
	{
		Name: "gradient_magnitude", Description: "Compute the gradient magnitude.",
		newArgs: func() Args { return &GradientMagnitudeArgs{} },
	},
	{
		Name: "gaussian", Description: "Apply a Gaussian kernel.",
		Params: []Param{
			{"sigma", ParamFloats, "Gaussian kernel sigma per axis, comma delimited."},
			{"kernel_half_size", ParamUints, "Gaussian kernel half size per axis, comma delimited. Kernel is 2 x half size + 1."},
		},
		newArgs: func() Args { return &GaussianArgs{} },
	},
	{
		Name: "summed_area_table", Description: "Compute a summed area table (integral image).",
		newArgs: func() Args { return &SummedAreaTableArgs{} },
	},
	{
		Name: "guided_filter", Description: "Apply a guided filter (edge-preserving noise filter).",
		Params: []Param{
			{"epsilon", ParamNumber, "Guided filter epsilon."},
			{"radius", ParamNumber, "Guided filter radius."},
		},
		newArgs: func() Args { return &GuidedFilterArgs{} },
	},
	{
		Name: "replace_value", Description: "Replace a value with another value.",
		Params: []Param{
			{"value", ParamValue, "The value to change, compatible with the input data type."},
			{"replace", ParamValue, "The replacement value, compatible with the output data type."},
		},
		newArgs: func() Args { return &ReplaceValueArgs{} },
	},
}

// Specs returns every registered filter.
func Specs() []Spec { return specs }

// Lookup returns the filter registered under name.
func Lookup(name string) (Spec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Names returns the registered filter names.
func Names() []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// ParseArgs decodes the arguments of filter name from a JSON object. Keys
// that do not belong to the filter are ignored.
func ParseArgs(name string, raw json.RawMessage) (Args, error) {
	spec, ok := Lookup(name)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown filter %q (must be one of: %s)", name, strings.Join(Names(), ", "))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "filter %s: invalid arguments", name)
	}
	for _, key := range spec.Required() {
		if _, ok := present[key]; !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "filter %s: missing required argument %q", name, key)
		}
	}
	args := spec.newArgs()
	if err := json.Unmarshal(raw, args); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "filter %s: invalid arguments", name)
	}
	return args, nil
}

// New constructs filter name from its JSON arguments.
func New(name string, raw json.RawMessage, chunkLimit int) (Filter, error) {
	args, err := ParseArgs(name, raw)
	if err != nil {
		return nil, err
	}
	return args.Build(chunkLimit)
}
