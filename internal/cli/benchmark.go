package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/benchmark"
)

func (c *CLI) benchmarkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure array throughput",
	}
	cmd.AddCommand(c.benchmarkReadCommand())
	return cmd
}

func (c *CLI) benchmarkReadCommand() *cobra.Command {
	opts := benchmark.Options{}

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Measure the time to read and decode an array",
		Long: `Measure the time to read and decode every chunk of an array, or the whole
array at once with --read-all.

Modes:
  sync           a pool of workers reads chunks through the blocking store API
  async          one goroutine per chunk, bounded by a semaphore
  async-as-sync  the sync reader over an asynchronous store adapter`,
		Example: `  zarrtools benchmark read s3://bucket/volume.zarr --mode async --concurrent-chunks 32`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, a, err := c.openArray(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			opts.ConcurrentChunks = c.concurrentChunks(opts.ConcurrentChunks)
			res, err := benchmark.Read(ctx, a, opts)
			if err != nil {
				return err
			}
			c.Logger.Debug("benchmark complete", "mode", res.Mode, "bytes", res.BytesDecoded)
			fmt.Fprintln(cmd.OutOrStdout(), res.Summary(args[0]))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Mode, "mode", benchmark.ModeSync, "read mode: "+strings.Join(benchmark.Modes, ", "))
	flags.IntVar(&opts.ConcurrentChunks, "concurrent-chunks", 0, "number of chunks read concurrently (default: automatic)")
	flags.BoolVar(&opts.ReadAll, "read-all", false, "read the whole array in one request instead of chunk by chunk")
	flags.BoolVar(&opts.IgnoreChecksums, "ignore-checksums", false, "do not validate checksums")
	return cmd
}
