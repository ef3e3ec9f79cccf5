package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/zarrtools/pkg/observability"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

// Runner plans and executes pipelines.
//
// The Runner holds no per-run state. Multiple goroutines can safely use the
// same Runner with different options.
type Runner struct {
	Open   Opener
	Logger *log.Logger
}

// NewRunner creates a runner. If open is nil, stores are opened with
// storage.Open and a zero storage.Config. If logger is nil, log.Default()
// is used.
func NewRunner(open Opener, logger *log.Logger) *Runner {
	if open == nil {
		open = func(ctx context.Context, uri string) (storage.Store, error) {
			return storage.Open(ctx, uri, storage.Config{})
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Open: open, Logger: logger}
}

// Plan resolves the stages of opts, creates their output arrays and prints
// the stage summaries. The caller must Close the plan.
func (r *Runner) Plan(ctx context.Context, opts *Options) (*Plan, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	r.applyLogger(opts)

	p, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	p.open = r.Open
	if err := p.create(ctx, opts); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	r.Logger.Debug("planned pipeline",
		"stages", len(p.Stages),
		"temporaries", len(p.temps))
	return p, nil
}

// Execute plans and runs the pipeline. Stages run one at a time in plan
// order; temporary arrays are deleted as soon as no remaining stage reads
// them, and in any case before Execute returns.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	p, err := r.Plan(ctx, &opts)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, p, opts)
}

// Run executes a plan created by Plan with the same options and closes it.
func (r *Runner) Run(ctx context.Context, p *Plan, opts Options) (result *Result, err error) {
	start := time.Now()
	defer func() {
		if cerr := p.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)

	result = &Result{}
	hooks := observability.Pipeline()
	for _, ps := range p.Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := ps.ID()
		hooks.OnStageStart(ctx, name, ps.Input, ps.Output)
		opts.Logger.Info("running stage", "stage", name, "input", ps.Input, "output", ps.Output)

		var cb progress.Callback
		if opts.Progress != nil {
			cb = opts.Progress(ps)
		}
		stageStart := time.Now()
		err := ps.Filter.Apply(ctx, ps.InputArray, ps.OutputArray, cb)
		if err == nil {
			err = ps.OutputArray.StoreMetadata(ctx)
		}
		duration := time.Since(stageStart)
		hooks.OnStageComplete(ctx, name, duration, err)
		if err != nil {
			return nil, wrap(err, "stage %s", name)
		}
		opts.Logger.Info("completed stage", "stage", name, "duration", duration)

		if err := p.release(ctx, ps); err != nil {
			return nil, err
		}
		result.Stages = append(result.Stages, StageResult{
			Name:     ps.Stage.Filter,
			Input:    ps.Input,
			Output:   ps.Output,
			Duration: duration,
		})
	}

	result.Duration = time.Since(start)
	fmt.Fprintf(opts.Summary, "Completed in %.2fs\n", result.Duration.Seconds())
	return result, nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
