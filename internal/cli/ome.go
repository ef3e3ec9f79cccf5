package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/ome"
	"github.com/matzehuels/zarrtools/pkg/progress"
)

// omeOpts holds the ome command flags.
type omeOpts struct {
	reencoding             reencodingFlags
	maxLevels              int
	physicalSize           string
	physicalUnits          string
	name                   string
	discrete               bool
	gaussianSigma          string
	gaussianKernelHalfSize string
	exists                 string
	groupAttributes        string
	chunkLimit             int
}

func (c *CLI) omeCommand() *cobra.Command {
	opts := omeOpts{}

	cmd := &cobra.Command{
		Use:   "ome <input> <output> [downsample-factor]",
		Short: "Convert an array to an OME-Zarr multiscale image",
		Long: `Convert an array to an OME-Zarr 0.5 multiscale image.

Level 0 is the input, copied as is or reencoded if any reencoding flag is
given. Each further level downsamples the previous one by the downsample
factor (2 on every axis by default) until every axis has size 1 or a factor
of 1, or --max-levels is reached.

Levels are downsampled by the mean, by the mode with --discrete, or by the
mean after Gaussian smoothing with --gaussian-sigma.`,
		Example: `  zarrtools ome in.zarr out.ome.zarr 2,2,2 --physical-size 2.0,2.0,2.0 \
    --physical-units micrometer,micrometer,micrometer --gaussian-sigma 1,1,1`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOME(cmd, args, opts)
		},
	}

	opts.reencoding.register(cmd)
	flags := cmd.Flags()
	flags.IntVar(&opts.maxLevels, "max-levels", ome.DefaultMaxLevels, "maximum number of downsampled levels")
	flags.StringVar(&opts.physicalSize, "physical-size", "", "physical size of an element per axis, comma delimited")
	flags.StringVar(&opts.physicalUnits, "physical-units", "", "physical unit per axis, comma delimited, e.g. micrometer, second or channel")
	flags.StringVar(&opts.name, "name", "", "multiscale image name")
	flags.BoolVar(&opts.discrete, "discrete", false, "downsample by the mode, for labels and other discrete data")
	flags.StringVar(&opts.gaussianSigma, "gaussian-sigma", "", "smooth with this Gaussian sigma per axis before downsampling, comma delimited")
	flags.StringVar(&opts.gaussianKernelHalfSize, "gaussian-kernel-half-size", "", "Gaussian kernel half size per axis, comma delimited (default: ceil(3 sigma))")
	flags.StringVar(&opts.exists, "exists", ome.ExistsErase, "behaviour if the output exists: erase, overwrite or exit")
	flags.StringVar(&opts.groupAttributes, "group-attributes", "", "extra group attributes as a JSON object")
	flags.IntVar(&opts.chunkLimit, "chunk-limit", 0, "chunks processed concurrently (default: from available memory)")

	return cmd
}

// options converts the flags to ome.Options.
func (o *omeOpts) options(args []string) (ome.Options, error) {
	var opts ome.Options
	var err error
	if len(args) > 2 {
		if opts.DownsampleFactor, err = encoding.ParseShape(args[2]); err != nil {
			return opts, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid downsample factor")
		}
	}
	if opts.Reencoding, err = o.reencoding.args(); err != nil {
		return opts, err
	}
	if o.physicalSize != "" {
		if opts.PhysicalSize, err = parseFloats("physical size", o.physicalSize); err != nil {
			return opts, err
		}
	}
	opts.PhysicalUnits = splitList(o.physicalUnits)
	if o.gaussianSigma != "" {
		sigma, err := parseFloats("gaussian sigma", o.gaussianSigma)
		if err != nil {
			return opts, err
		}
		opts.GaussianSigma = make([]float32, len(sigma))
		for i, s := range sigma {
			opts.GaussianSigma[i] = float32(s)
		}
	}
	if opts.GaussianKernelHalfSize, err = optionalShape("gaussian kernel half size", o.gaussianKernelHalfSize); err != nil {
		return opts, err
	}
	if o.groupAttributes != "" {
		if err := json.Unmarshal([]byte(o.groupAttributes), &opts.GroupAttributes); err != nil {
			return opts, errors.Wrap(errors.ErrCodeInvalidInput, err, "group attributes are invalid")
		}
	}
	opts.MaxLevels = o.maxLevels
	opts.Name = o.name
	opts.Discrete = o.discrete
	opts.Exists = o.exists
	opts.ChunkLimit = o.chunkLimit
	return opts, nil
}

func (c *CLI) runOME(cmd *cobra.Command, args []string, flags omeOpts) error {
	ctx := cmd.Context()
	opts, err := flags.options(args)
	if err != nil {
		return err
	}
	if opts.ChunkLimit == 0 {
		opts.ChunkLimit = c.Config.ChunkLimit
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Input %s\n", args[0])

	storeIn, in, err := c.openArray(ctx, args[0])
	if err != nil {
		return err
	}
	defer storeIn.Close()
	storeOut, err := c.openStore(ctx, args[1])
	if err != nil {
		return err
	}
	defer storeOut.Close()

	bar := c.newProgressBar(ctx, "")
	opts.Logger = c.Logger
	opts.Progress = func(level int, shape []uint64) progress.Callback {
		return bar.Titled(fmt.Sprintf("%d %v", level, shape))
	}
	res, err := ome.Build(ctx, in, storeOut, opts)
	bar.Finish()
	if err != nil {
		return err
	}

	for _, l := range res.Levels {
		printDetail(cmd.ErrOrStderr(), "level %s %v scale %v in %s", l.Path, l.Shape, l.Scale, l.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Output %s in %.2fs\n", args[1], res.Duration.Seconds())
	return nil
}
