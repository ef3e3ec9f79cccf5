package cli

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/filter"
	"github.com/matzehuels/zarrtools/pkg/pipeline"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

// filterOpts holds the flags shared by the run configuration mode and every
// filter subcommand.
type filterOpts struct {
	exists     string
	tmp        string
	chunkLimit int
	graph      string
}

func (c *CLI) filterCommand() *cobra.Command {
	opts := filterOpts{}

	cmd := &cobra.Command{
		Use:   "filter [run-config] | filter <filter> <args...> <input> <output>",
		Short: "Apply filters to an array",
		Long: `Apply a single filter, or a pipeline of filters described by a run
configuration (JSON array of stages, or TOML with one [[stage]] table each).

Inputs and outputs starting with $ name temporary arrays that are created
under --tmp and deleted once no later stage reads them. An omitted input
reads the previous stage's output; an omitted output writes a temporary
array.`,
		Example: `  # Run a pipeline
  zarrtools filter run.json --chunk-limit 8 --graph run.svg

  # Apply one filter
  zarrtools filter gaussian 1.0,1.0,1.0 3,3,3 in.zarr out.zarr --data-type float32`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New(errors.ErrCodeInvalidConfig, "no filters supplied")
			}
			cfg, err := pipeline.LoadConfig(args[0])
			if err != nil {
				return err
			}
			return c.runPipeline(cmd, cfg.Stages, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.exists, "exists", pipeline.DefaultExists, "behaviour if an output exists: erase or exit")
	flags.StringVar(&opts.tmp, "tmp", "", "directory or store URI for temporary arrays (default: config tmp or system temp dir)")
	flags.IntVar(&opts.chunkLimit, "chunk-limit", 0, "chunks processed concurrently by stages without their own limit (default: from available memory)")
	flags.StringVar(&opts.graph, "graph", "", "write the stage graph to this .dot or .svg file")

	for _, spec := range filter.Specs() {
		cmd.AddCommand(c.filterSubcommand(spec, &opts))
	}
	return cmd
}

// filterSubcommand runs one filter as a single stage pipeline. Required
// parameters are positional and precede the input and output; boolean
// parameters are flags.
func (c *CLI) filterSubcommand(spec filter.Spec, opts *filterOpts) *cobra.Command {
	var reencoding reencodingFlags
	bools := make(map[string]*bool)

	required := spec.Required()
	use := spec.Name
	for _, name := range required {
		use += " <" + name + ">"
	}
	use += " <input> <output>"

	cmd := &cobra.Command{
		Use:   use,
		Short: spec.Description,
		Long:  filterLong(spec),
		Args:  cobra.ExactArgs(len(required) + 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := reencoding.args()
			if err != nil {
				return err
			}
			flagValues := make(map[string]bool, len(bools))
			for name, v := range bools {
				flagValues[name] = *v
			}
			raw, err := stageJSON(spec, args, flagValues, enc)
			if err != nil {
				return err
			}
			stage, err := pipeline.ParseStage(raw)
			if err != nil {
				return err
			}
			return c.runPipeline(cmd, []pipeline.Stage{stage}, *opts)
		},
	}

	for _, p := range spec.Params {
		if p.Kind == filter.ParamBool {
			bools[p.Name] = cmd.Flags().Bool(flagName(p.Name), false, p.Help)
		}
	}
	reencoding.register(cmd)
	return cmd
}

func filterLong(spec filter.Spec) string {
	var b strings.Builder
	b.WriteString(spec.Description)
	for _, p := range spec.Params {
		if p.Kind == filter.ParamBool {
			continue
		}
		b.WriteString("\n\n  " + p.Name + ": " + p.Help)
	}
	return b.String()
}

// flagName converts a JSON argument name to a flag name.
func flagName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// stageJSON builds the flat stage object of a filter subcommand from its
// positional arguments, boolean flags and reencoding arguments.
func stageJSON(spec filter.Spec, args []string, bools map[string]bool, enc encoding.ReencodingArgs) (json.RawMessage, error) {
	required := spec.Required()
	if len(args) != len(required)+2 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "filter %s expects %d arguments, got %d", spec.Name, len(required)+2, len(args))
	}

	obj := make(map[string]any)
	encoded, err := json.Marshal(enc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode reencoding arguments")
	}
	if err := json.Unmarshal(encoded, &obj); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode reencoding arguments")
	}

	i := 0
	for _, p := range spec.Params {
		if p.Kind == filter.ParamBool {
			obj[p.Name] = bools[p.Name]
			continue
		}
		v, err := paramValue(p, args[i])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "filter %s: invalid %s", spec.Name, p.Name)
		}
		obj[p.Name] = v
		i++
	}
	obj["filter"] = spec.Name
	obj["input"] = args[i]
	obj["output"] = args[i+1]

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode stage")
	}
	return raw, nil
}

func paramValue(p filter.Param, s string) (any, error) {
	switch p.Kind {
	case filter.ParamUints:
		return encoding.ParseShape(s)
	case filter.ParamFloats:
		return parseFloats(p.Name, s)
	case filter.ParamNumber:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case filter.ParamValue:
		return fillValueJSON(s), nil
	}
	return nil, errors.New(errors.ErrCodeInternal, "unexpected parameter kind %d", p.Kind)
}

// runPipeline plans and executes stages, drawing one progress bar that is
// retitled for every stage.
func (c *CLI) runPipeline(cmd *cobra.Command, stages []pipeline.Stage, opts filterOpts) error {
	ctx := cmd.Context()
	runner := pipeline.NewRunner(func(ctx context.Context, uri string) (storage.Store, error) {
		return c.openStore(ctx, uri)
	}, c.Logger)

	tmp := opts.tmp
	if tmp == "" {
		tmp = c.Config.TempDir
	}
	chunkLimit := opts.chunkLimit
	if chunkLimit == 0 {
		chunkLimit = c.Config.ChunkLimit
	}

	popts := pipeline.Options{
		Stages:     stages,
		ChunkLimit: chunkLimit,
		Exists:     opts.exists,
		TempDir:    tmp,
		Logger:     c.Logger,
		Summary:    cmd.OutOrStdout(),
	}
	plan, err := runner.Plan(ctx, &popts)
	if err != nil {
		return err
	}
	if opts.graph != "" {
		if err := plan.WriteGraph(ctx, opts.graph); err != nil {
			_ = plan.Close(ctx)
			return err
		}
		printFile(cmd.ErrOrStderr(), opts.graph)
	}

	bar := c.newProgressBar(ctx, "")
	popts.Progress = func(ps *pipeline.PlannedStage) progress.Callback {
		return bar.Titled(ps.ID())
	}
	_, err = runner.Run(ctx, plan, popts)
	bar.Finish()
	return err
}
