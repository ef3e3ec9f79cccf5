package cli

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/filter"
	"github.com/matzehuels/zarrtools/pkg/pipeline"
)

func TestStageJSON(t *testing.T) {
	tests := []struct {
		filter string
		args   []string
		bools  map[string]bool
		enc    encoding.ReencodingArgs
		want   map[string]any
	}{
		{
			filter: "crop",
			args:   []string{"1,2", "3,4", "in.zarr", "out.zarr"},
			want: map[string]any{
				"filter": "crop", "input": "in.zarr", "output": "out.zarr",
				"offset": []any{1.0, 2.0}, "shape": []any{3.0, 4.0},
			},
		},
		{
			filter: "rescale",
			args:   []string{"2", "-1.5", "in.zarr", "$tmp"},
			bools:  map[string]bool{"add_first": true},
			enc:    encoding.ReencodingArgs{DataType: "float32"},
			want: map[string]any{
				"filter": "rescale", "input": "in.zarr", "output": "$tmp",
				"multiply": 2.0, "add": -1.5, "add_first": true, "data_type": "float32",
			},
		},
		{
			filter: "equal",
			args:   []string{"NaN", "in.zarr", "out.zarr"},
			want: map[string]any{
				"filter": "equal", "input": "in.zarr", "output": "out.zarr", "value": "NaN",
			},
		},
		{
			filter: "downsample",
			args:   []string{"2,2", "in.zarr", "out.zarr"},
			enc:    encoding.ReencodingArgs{ChunkShape: []uint64{32, 32}},
			want: map[string]any{
				"filter": "downsample", "input": "in.zarr", "output": "out.zarr",
				"stride": []any{2.0, 2.0}, "discrete": false, "chunk_shape": []any{32.0, 32.0},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			spec, ok := filter.Lookup(tt.filter)
			if !ok {
				t.Fatalf("unknown filter %s", tt.filter)
			}
			raw, err := stageJSON(spec, tt.args, tt.bools, tt.enc)
			if err != nil {
				t.Fatalf("stageJSON: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("stageJSON mismatch (-want +got):\n%s", diff)
			}
			if _, err := pipeline.ParseStage(raw); err != nil {
				t.Errorf("ParseStage: %v", err)
			}
		})
	}
}

func TestStageJSON_Invalid(t *testing.T) {
	spec, _ := filter.Lookup("crop")
	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"too few", []string{"1,2", "in", "out"}, errors.ErrCodeInvalidInput},
		{"bad offset", []string{"1,x", "3,4", "in", "out"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stageJSON(spec, tt.args, nil, encoding.ReencodingArgs{})
			if !errors.Is(err, tt.code) {
				t.Errorf("got %v, want %s", err, tt.code)
			}
		})
	}
}

func TestFilterCommand_Subcommands(t *testing.T) {
	c := New(io.Discard, LogInfo)
	cmd := c.filterCommand()
	for _, spec := range filter.Specs() {
		sub, _, err := cmd.Find([]string{spec.Name})
		if err != nil || sub.Name() != spec.Name {
			t.Errorf("subcommand %s not registered", spec.Name)
			continue
		}
		for _, p := range spec.Params {
			if p.Kind == filter.ParamBool && sub.Flags().Lookup(flagName(p.Name)) == nil {
				t.Errorf("%s: missing flag --%s", spec.Name, flagName(p.Name))
			}
		}
	}
}
