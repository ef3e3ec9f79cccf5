package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/info"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// infoQuery answers one info subcommand for an array. args are the
// subcommand arguments after the path.
type infoQuery func(ctx context.Context, a *zarr.Array, node *zarr.Node, args []string, limit int) (any, error)

type infoSubcommand struct {
	name  string
	short string
	args  []string
	// group answers the query for a group; nil means unsupported.
	group func(g *zarr.Group, node *zarr.Node) any
	array infoQuery
}

var infoSubcommands = []infoSubcommand{
	{
		name:  "metadata",
		short: "Print the metadata document as stored",
		group: func(_ *zarr.Group, n *zarr.Node) any { return n.Metadata },
		array: func(_ context.Context, _ *zarr.Array, n *zarr.Node, _ []string, _ int) (any, error) {
			return n.Metadata, nil
		},
	},
	{
		name:  "metadata-v3",
		short: "Print the metadata as Zarr V3, normalised",
		group: func(g *zarr.Group, _ *zarr.Node) any { return g.Metadata() },
		array: func(_ context.Context, a *zarr.Array, _ *zarr.Node, _ []string, _ int) (any, error) {
			return a.Metadata(), nil
		},
	},
	{
		name:  "attributes",
		short: "Print the attributes",
		group: func(g *zarr.Group, _ *zarr.Node) any { return attributesOrEmpty(g.Attributes()) },
		array: func(_ context.Context, a *zarr.Array, _ *zarr.Node, _ []string, _ int) (any, error) {
			return attributesOrEmpty(a.Attributes()), nil
		},
	},
	{
		name:  "shape",
		short: "Print the array shape",
		array: func(_ context.Context, a *zarr.Array, _ *zarr.Node, _ []string, _ int) (any, error) {
			return struct {
				Shape []uint64 `json:"shape"`
			}{a.Shape()}, nil
		},
	},
	{
		name:  "data-type",
		short: "Print the array data type",
		array: func(_ context.Context, a *zarr.Array, _ *zarr.Node, _ []string, _ int) (any, error) {
			return struct {
				DataType zarr.DataType `json:"data_type"`
			}{a.DataType()}, nil
		},
	},
	{
		name:  "fill-value",
		short: "Print the array fill value",
		array: func(_ context.Context, a *zarr.Array, _ *zarr.Node, _ []string, _ int) (any, error) {
			fv, err := zarr.FillValueJSON(a.DataType(), a.FillValue())
			if err != nil {
				return nil, err
			}
			return struct {
				FillValue json.RawMessage `json:"fill_value"`
			}{fv}, nil
		},
	},
	{
		name:  "dimension-names",
		short: "Print the array dimension names",
		array: func(_ context.Context, a *zarr.Array, _ *zarr.Node, _ []string, _ int) (any, error) {
			return struct {
				DimensionNames []*string `json:"dimension_names"`
			}{a.DimensionNames()}, nil
		},
	},
	{
		name:  "range",
		short: "Print the minimum and maximum element",
		array: func(ctx context.Context, a *zarr.Array, _ *zarr.Node, _ []string, limit int) (any, error) {
			return info.Range(ctx, a, limit)
		},
	},
	{
		name:  "histogram",
		short: "Print a histogram of the elements",
		args:  []string{"n-bins", "min", "max"},
		array: func(ctx context.Context, a *zarr.Array, _ *zarr.Node, args []string, limit int) (any, error) {
			nBins, lo, hi, err := parseHistogramArgs(args)
			if err != nil {
				return nil, err
			}
			return info.ComputeHistogram(ctx, a, nBins, lo, hi, limit)
		},
	},
}

func attributesOrEmpty(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}

func parseHistogramArgs(args []string) (int, float64, float64, error) {
	nBins, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid number of bins %q", args[0])
	}
	lo, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid histogram min %q", args[1])
	}
	hi, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return 0, 0, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid histogram max %q", args[2])
	}
	return nBins, lo, hi, nil
}

func (c *CLI) infoCommand() *cobra.Command {
	var chunkLimit int

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print information about an array or group",
		Long: `Print information about the array or group at the root of a store as JSON.

Groups support only metadata, metadata-v3 and attributes.`,
		Example: `  zarrtools info shape in.zarr
  zarrtools info histogram in.zarr 10 0 255 --chunk-limit 8`,
	}
	cmd.PersistentFlags().IntVar(&chunkLimit, "chunk-limit", 0, "chunks read concurrently by range and histogram (default: number of CPUs)")

	for _, sub := range infoSubcommands {
		use := sub.name + " <path>"
		for _, a := range sub.args {
			use += " <" + a + ">"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: sub.short,
			Args:  cobra.ExactArgs(1 + len(sub.args)),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.runInfo(cmd, sub, args[0], args[1:], chunkLimit)
			},
		})
	}
	return cmd
}

func (c *CLI) runInfo(cmd *cobra.Command, sub infoSubcommand, path string, args []string, limit int) error {
	ctx := cmd.Context()
	s, err := c.openStore(ctx, path)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := queryInfo(ctx, s, sub, args, limit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

func queryInfo(ctx context.Context, s storage.Store, sub infoSubcommand, args []string, limit int) (any, error) {
	node, err := zarr.OpenNode(ctx, s, "/")
	if err != nil {
		return nil, err
	}
	if node.Type == zarr.NodeGroup {
		if sub.group == nil {
			return nil, errors.New(errors.ErrCodeUnsupported, "The %s command is not supported for a group", sub.name)
		}
		g, err := zarr.OpenGroup(ctx, s, "/")
		if err != nil {
			return nil, err
		}
		return sub.group(g, node), nil
	}
	a, err := zarr.OpenArray(ctx, s, "/")
	if err != nil {
		return nil, err
	}
	return sub.array(ctx, a, node, args, limit)
}

// printJSON writes v as indented JSON. Raw JSON is re-indented with its key
// order kept.
func printJSON(w io.Writer, v any) error {
	var out []byte
	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidMetadata, err, "indent metadata")
		}
		out = buf.Bytes()
	} else {
		var err error
		if out, err = zarr.MarshalIndent(v); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encode JSON")
		}
	}
	_, err := fmt.Fprintf(w, "%s\n", out)
	return err
}
