package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/info"
)

func (c *CLI) validateCommand() *cobra.Command {
	var concurrentChunks int

	cmd := &cobra.Command{
		Use:   "validate <first> <second>",
		Short: "Compare the data of two arrays",
		Long: `Compare the data of two arrays chunk by chunk over the chunk grid of the
first. The arrays must have the same shape and data type; their encodings
and attributes may differ.`,
		Example: `  zarrtools validate in.zarr https://example.com/data/in.zarr`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s1, a, err := c.openArray(ctx, args[0])
			if err != nil {
				return err
			}
			defer s1.Close()
			s2, b, err := c.openArray(ctx, args[1])
			if err != nil {
				return err
			}
			defer s2.Close()

			bar := c.newProgressBar(ctx, "")
			err = info.Compare(ctx, a, b, c.concurrentChunks(concurrentChunks), bar.Callback())
			bar.Finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Success: %s and %s match\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrentChunks, "concurrent-chunks", 0, "number of chunks compared concurrently (default: automatic)")
	return cmd
}
