// Package pipeline runs chains of filters over Zarr arrays.
//
// A run configuration is a list of stages. Each stage names a filter, its
// arguments, an input, an output and optional reencoding arguments for the
// output. The pipeline is executed in two phases:
//
//  1. Plan: resolve every input and output to a store URI, build the stage
//     graph (an edge runs from the stage writing an array to every stage
//     reading it), order it topologically, and create each output array so
//     that later stages can be checked against it.
//  2. Run: apply the filters one stage at a time, storing each output's
//     metadata once its stage completes.
//
// # Paths
//
// An input or output that starts with "$" names a temporary array, created
// under the temp root with a random name and deleted as soon as the last
// stage reading it has finished. An empty input reads the previous stage's
// output; an empty output writes a fresh temporary array.
//
// # Usage
//
//	cfg, err := pipeline.LoadConfig("run.toml")
//	runner := pipeline.NewRunner(nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Stages:     cfg.Stages,
//	    ChunkLimit: 8,
//	    Exists:     pipeline.ExistsErase,
//	})
package pipeline

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// ExistsErase deletes an existing output before it is written.
	ExistsErase = "erase"
	// ExistsExit aborts the run when any output already exists.
	ExistsExit = "exit"

	// DefaultExists is the default policy for existing outputs.
	DefaultExists = ExistsErase

	// TempPrefix marks an input or output as a named temporary array.
	TempPrefix = "$"
)

// ValidExists is the set of supported policies for existing outputs.
var ValidExists = map[string]bool{
	ExistsErase: true,
	ExistsExit:  true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options configures a pipeline run.
type Options struct {
	Stages []Stage `json:"stages"`

	// ChunkLimit applies to stages without their own. Zero derives the limit
	// from available memory.
	ChunkLimit int `json:"chunk_limit,omitempty"`

	// Exists is ExistsErase or ExistsExit.
	Exists string `json:"exists,omitempty"`

	// TempDir is the root for temporary arrays: a directory or a store URI
	// such as memory://. Defaults to the system temp directory.
	TempDir string `json:"tmp,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`
	// Summary receives the stage summaries and the completion line.
	Summary io.Writer `json:"-"`
	// Progress returns the progress callback of a stage. It may be nil.
	Progress func(stage *PlannedStage) progress.Callback `json:"-"`

	validated bool `json:"-"`
}

// Result describes a completed run.
type Result struct {
	Stages   []StageResult
	Duration time.Duration
}

// StageResult describes one executed stage.
type StageResult struct {
	Name     string
	Input    string
	Output   string
	Duration time.Duration
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateExists checks that an exists policy is valid.
func ValidateExists(exists string) error {
	if !ValidExists[exists] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid exists policy: %q (must be one of: erase, exit)", exists)
	}
	return nil
}

// ValidateAndSetDefaults checks the options and applies defaults.
// It is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if len(o.Stages) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "no filters supplied")
	}
	if o.Exists == "" {
		o.Exists = DefaultExists
	}
	if err := ValidateExists(o.Exists); err != nil {
		return err
	}
	if o.ChunkLimit < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "chunk limit must not be negative, got %d", o.ChunkLimit)
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.Summary == nil {
		o.Summary = io.Discard
	}
	for i := range o.Stages {
		if o.Stages[i].ChunkLimit == 0 {
			o.Stages[i].ChunkLimit = o.ChunkLimit
		}
	}
	o.validated = true
	return nil
}

// IsTemp reports whether path names a temporary array.
func IsTemp(path string) bool {
	return len(path) > 0 && path[:1] == TempPrefix
}

func stageName(i int, s Stage) string {
	return fmt.Sprintf("%d:%s", i, s.Filter)
}
