package ome

import "slices"

// Version is the OME-Zarr version written.
const Version = "0.5"

// Multiscale types, by downsampling method.
const (
	TypeMode     = "mode"
	TypeAverage  = "average"
	TypeGaussian = "gaussian"
)

// Axis types.
const (
	AxisSpace   = "space"
	AxisTime    = "time"
	AxisChannel = "channel"
)

var spaceUnits = []string{
	"angstrom", "attometer", "centimeter", "decimeter", "exameter", "femtometer",
	"foot", "gigameter", "hectometer", "inch", "kilometer", "megameter", "meter",
	"micrometer", "mile", "millimeter", "nanometer", "parsec", "petameter",
	"picometer", "terameter", "yard", "yoctometer", "yottameter", "zeptometer",
	"zettameter",
}

var timeUnits = []string{
	"attosecond", "centisecond", "day", "decisecond", "exasecond", "femtosecond",
	"gigasecond", "hectosecond", "hour", "kilosecond", "megasecond", "microsecond",
	"millisecond", "minute", "nanosecond", "petasecond", "picosecond", "second",
	"terasecond", "yoctosecond", "yottasecond", "zeptosecond", "zettasecond",
}

// Axis describes one dimension of a multiscale image.
type Axis struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Unit string `json:"unit,omitempty"`
}

// NewAxis derives the axis type from a physical unit. Space and time units
// set the matching type, "channel" makes a channel axis without a unit, and
// any other non-empty unit is kept as a custom unit without a type.
func NewAxis(name, unit string) Axis {
	switch {
	case unit == "":
		return Axis{Name: name}
	case unit == AxisChannel:
		return Axis{Name: name, Type: AxisChannel}
	case slices.Contains(spaceUnits, unit):
		return Axis{Name: name, Type: AxisSpace, Unit: unit}
	case slices.Contains(timeUnits, unit):
		return Axis{Name: name, Type: AxisTime, Unit: unit}
	}
	return Axis{Name: name, Unit: unit}
}

// Transform is a coordinate transformation.
type Transform struct {
	Type        string    `json:"type"`
	Scale       []float64 `json:"scale,omitempty"`
	Translation []float64 `json:"translation,omitempty"`
}

// Scale returns a scale transformation.
func Scale(scale []float64) Transform {
	return Transform{Type: "scale", Scale: slices.Clone(scale)}
}

// Translation returns a translation transformation.
func Translation(translation []float64) Transform {
	return Transform{Type: "translation", Translation: slices.Clone(translation)}
}

// Dataset is one level of a multiscale image.
type Dataset struct {
	Path                      string      `json:"path"`
	CoordinateTransformations []Transform `json:"coordinateTransformations"`
}

// Multiscale is an entry of the "multiscales" list.
type Multiscale struct {
	Name                      string         `json:"name,omitempty"`
	Axes                      []Axis         `json:"axes"`
	Datasets                  []Dataset      `json:"datasets"`
	CoordinateTransformations []Transform    `json:"coordinateTransformations,omitempty"`
	Type                      string         `json:"type,omitempty"`
	Metadata                  map[string]any `json:"metadata,omitempty"`
}

// Fields is the value of the "ome" group attribute.
type Fields struct {
	Version     string       `json:"version"`
	Multiscales []Multiscale `json:"multiscales"`
}
