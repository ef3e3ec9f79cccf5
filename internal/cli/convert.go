package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/convert"
	"github.com/matzehuels/zarrtools/pkg/encoding"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// createArray erases the store at uri and creates an array with the given
// encoding at its root.
func (c *CLI) createArray(ctx context.Context, uri string, enc encoding.Args, shape []uint64, dt zarr.DataType, dims []string) (storage.Store, *zarr.Array, error) {
	s, err := c.openStore(ctx, uri)
	if err != nil {
		return nil, nil, err
	}
	a, err := buildArray(ctx, s, enc, shape, dt, dims)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, a, nil
}

func buildArray(ctx context.Context, s storage.Store, enc encoding.Args, shape []uint64, dt zarr.DataType, dims []string) (*zarr.Array, error) {
	if err := s.DeletePrefix(ctx, ""); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "erase output")
	}
	b, err := enc.Builder(shape, dt, zarr.DimensionNamesFromStrings(dims))
	if err != nil {
		return nil, err
	}
	a, err := b.Build(s, "/")
	if err != nil {
		return nil, err
	}
	if err := a.StoreMetadata(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "store metadata")
	}
	return a, nil
}

// =============================================================================
// binary2zarr
// =============================================================================

// binaryOpts holds the binary2zarr command flags.
type binaryOpts struct {
	encoding         encodingFlags
	dataType         string
	arrayShape       string
	dimensionNames   string
	endianness       string
	concurrentChunks int
}

func (c *CLI) binaryCommand() *cobra.Command {
	opts := binaryOpts{}

	cmd := &cobra.Command{
		Use:   "binary2zarr <output>",
		Short: "Create an array from raw binary data on stdin",
		Long: `Create an array from an N-dimensional raw binary stream read from stdin.

Elements are read in C order. The stream is read in blocks spanning one chunk
along the first dimension, and each block is written while the next one is
read.`,
		Example: `  cat volume.raw | zarrtools binary2zarr out.zarr -d uint16 -a 1243,1403,1510 \
    --chunk-shape 64,64,64 --endianness little`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBinary(cmd, args[0], opts)
		},
	}

	opts.encoding.register(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&opts.dataType, "data-type", "d", "", "data type of the elements, e.g. uint16")
	flags.StringVarP(&opts.arrayShape, "array-shape", "a", "", "array shape, comma delimited")
	flags.StringVar(&opts.dimensionNames, "dimension-names", "", "dimension names, comma delimited")
	flags.StringVar(&opts.endianness, "endianness", convert.EndianNative, "endianness of the input: little or big (default: native)")
	flags.IntVar(&opts.concurrentChunks, "concurrent-chunks", 0, "number of blocks written concurrently (default: automatic)")
	_ = cmd.MarkFlagRequired("data-type")
	_ = cmd.MarkFlagRequired("array-shape")
	_ = cmd.MarkFlagRequired("chunk-shape")

	return cmd
}

func (c *CLI) runBinary(cmd *cobra.Command, out string, opts binaryOpts) error {
	ctx := cmd.Context()
	if err := convert.ValidateEndianness(opts.endianness); err != nil {
		return err
	}
	dt, err := zarr.ParseDataType(opts.dataType)
	if err != nil {
		return err
	}
	shape, err := encoding.ParseShape(opts.arrayShape)
	if err != nil {
		return err
	}
	enc, err := opts.encoding.args()
	if err != nil {
		return err
	}

	if in, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(in) {
		c.Logger.Warn("reading binary input from a terminal")
	}
	s, a, err := c.createArray(ctx, out, enc, shape, dt, splitList(opts.dimensionNames))
	if err != nil {
		return err
	}
	defer s.Close()

	bar := c.newProgressBar(ctx, "")
	start := time.Now()
	bytesRead, err := convert.Binary(ctx, bufio.NewReader(cmd.InOrStdin()), a, convert.BinaryOptions{
		Endianness:       opts.endianness,
		ConcurrentChunks: c.concurrentChunks(opts.concurrentChunks),
		Callback:         bar.Callback(),
	})
	bar.Finish()
	if err != nil {
		return err
	}
	return c.printConvertSummary(cmd, out, s, time.Since(start), bytesRead)
}

func (c *CLI) printConvertSummary(cmd *cobra.Command, out string, s storage.Store, d time.Duration, bytesRead uint64) error {
	size, err := storage.Size(cmd.Context(), s, "")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "measure output size")
	}
	fmt.Fprintln(cmd.OutOrStdout(), convert.Summary(out, d, bytesRead, size))
	return nil
}

// =============================================================================
// ncvar2zarr
// =============================================================================

// netCDFOpts holds the ncvar2zarr command flags.
type netCDFOpts struct {
	encoding         encodingFlags
	concurrentChunks int
	memoryTest       bool
}

func (c *CLI) netCDFCommand() *cobra.Command {
	opts := netCDFOpts{}

	cmd := &cobra.Command{
		Use:   "ncvar2zarr <input> <variable> <output>",
		Short: "Convert a netCDF variable to an array",
		Long: `Convert a netCDF variable to an array.

The input is a netCDF file, or a directory of netCDF files holding the same
variable. Files in a directory are sorted by name and concatenated along the
first dimension; they must agree on the data type, the dimension names and
every other dimension.`,
		Example: `  zarrtools ncvar2zarr data/ temperature out.zarr --chunk-shape 1,0,0 \
    --bytes-to-bytes-codecs '[{"name":"zstd","configuration":{"level":3}}]'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runNetCDF(cmd, args[0], args[1], args[2], opts)
		},
	}

	opts.encoding.register(cmd)
	flags := cmd.Flags()
	flags.IntVar(&opts.concurrentChunks, "concurrent-chunks", 0, "number of chunks written concurrently (default: automatic)")
	flags.BoolVar(&opts.memoryTest, "memory-test", false, "write to an in-memory store instead of the output, to measure throughput")
	_ = cmd.MarkFlagRequired("chunk-shape")

	return cmd
}

func (c *CLI) runNetCDF(cmd *cobra.Command, input, variable, out string, opts netCDFOpts) error {
	ctx := cmd.Context()
	enc, err := opts.encoding.args()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Input %s\n", input)

	spinner := c.startSpinner(ctx, "Inspecting netCDF files...")
	paths, err := convert.NetCDFPaths(input)
	var src *convert.Source
	if err == nil {
		src, err = convert.Inspect(paths, variable, nil)
	}
	if err != nil {
		spinner.StopWithError("Inspection failed")
		return err
	}
	spinner.StopWithSuccess(fmt.Sprintf("%d file(s), %s %v", len(paths), src.DataType, src.Shape))
	c.Logger.Debug("inspected netCDF input", "files", len(paths), "dimensions", src.DimensionNames, "offsets", src.Offsets)

	var s storage.Store
	var a *zarr.Array
	if opts.memoryTest {
		s = storage.NewMemoryStore()
		a, err = buildArray(ctx, s, enc, src.Shape, src.DataType, src.DimensionNames)
	} else {
		s, a, err = c.createArray(ctx, out, enc, src.Shape, src.DataType, src.DimensionNames)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	bar := c.newProgressBar(ctx, "")
	start := time.Now()
	bytesRead, err := convert.NetCDF(ctx, src, a, convert.NetCDFOptions{
		ConcurrentChunks: c.concurrentChunks(opts.concurrentChunks),
		Callback:         bar.Callback(),
	})
	bar.Finish()
	if err != nil {
		return err
	}
	return c.printConvertSummary(cmd, out, s, time.Since(start), bytesRead)
}
