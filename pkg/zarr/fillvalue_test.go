package zarr

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseFillValue(t *testing.T) {
	tests := []struct {
		name    string
		d       DataType
		raw     string
		want    FillValue
		wantErr bool
	}{
		{"bool", Bool, `true`, FillValue{1}, false},
		{"uint8", Uint8, `255`, FillValue{255}, false},
		{"uint8 overflow", Uint8, `256`, nil, true},
		{"int16 negative", Int16, `-2`, FillValue{0xfe, 0xff}, false},
		{"int as float", Int32, `1.5`, nil, true},
		{"float32", Float32, `1.0`, FillValue{0, 0, 0x80, 0x3f}, false},
		{"float32 hex", Float32, `"0x7fc00000"`, FillValue{0, 0, 0xc0, 0x7f}, false},
		{"float64 -inf", Float64, `"-Infinity"`, FillValue{0, 0, 0, 0, 0, 0, 0xf0, 0xff}, false},
		{"float bad string", Float32, `"nope"`, nil, true},
		{"complex64", Complex64, `[1.0, 0]`, FillValue{0, 0, 0x80, 0x3f, 0, 0, 0, 0}, false},
		{"complex wrong arity", Complex64, `[1.0]`, nil, true},
		{"raw bits", DataType("r16"), `[1, 2]`, FillValue{1, 2}, false},
		{"string for int", Int8, `"1"`, nil, true},
		{"invalid json", Int8, `{`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFillValue(tt.d, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFillValue(%s, %s) error = %v, wantErr %v", tt.d, tt.raw, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); !tt.wantErr && diff != "" {
				t.Errorf("ParseFillValue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFillValue_NaN(t *testing.T) {
	fv, err := ParseFillValue(Float32, json.RawMessage(`"NaN"`))
	if err != nil {
		t.Fatalf("ParseFillValue: %v", err)
	}
	if v := Float32.Float64At(fv, 0); !math.IsNaN(v) {
		t.Errorf("fill value = %v, want NaN", v)
	}
}

func TestFillValueJSON(t *testing.T) {
	tests := []struct {
		d    DataType
		fv   FillValue
		want string
	}{
		{Bool, FillValue{0}, `false`},
		{Int16, FillValueFromFloat64(Int16, -7), `-7`},
		{Uint32, FillValueFromFloat64(Uint32, 4000000000), `4000000000`},
		{Int64, FillValue{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}, `9223372036854775807`},
		{Uint64, FillValue{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, `18446744073709551615`},
		{Float32, FillValueFromFloat64(Float32, 0.5), `0.5`},
		{Float64, FillValueFromFloat64(Float64, math.Inf(1)), `"Infinity"`},
		{Float64, FillValueFromFloat64(Float64, math.NaN()), `"NaN"`},
		{Complex64, FillValueFromFloat64(Complex64, 2), `[2,0]`},
		{DataType("r8"), FillValue{9}, `[9]`},
	}
	for _, tt := range tests {
		got, err := FillValueJSON(tt.d, tt.fv)
		if err != nil {
			t.Errorf("FillValueJSON(%s): %v", tt.d, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("FillValueJSON(%s) = %s, want %s", tt.d, got, tt.want)
		}
	}

	if _, err := FillValueJSON(Float32, FillValue{0}); err == nil {
		t.Errorf("FillValueJSON with wrong size: want error")
	}
}

func TestFillValue_RepeatAndAllFill(t *testing.T) {
	fv := FillValueFromFloat64(Uint16, 258)
	data := fv.Repeat(3)
	if diff := cmp.Diff([]byte{2, 1, 2, 1, 2, 1}, data); diff != "" {
		t.Errorf("Repeat mismatch (-want +got):\n%s", diff)
	}
	if !AllFill(data, fv) {
		t.Errorf("AllFill(repeated) = false")
	}
	data[5] = 0
	if AllFill(data, fv) {
		t.Errorf("AllFill(modified) = true")
	}
	if got := FillValueZero(Float64).Repeat(2); len(got) != 16 {
		t.Errorf("zero Repeat length = %d, want 16", len(got))
	}
	if got := fv.Repeat(0); len(got) != 0 {
		t.Errorf("Repeat(0) length = %d, want 0", len(got))
	}
}
