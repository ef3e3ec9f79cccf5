package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/zarrtools/pkg/cache"
	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/reencode"
	"github.com/matzehuels/zarrtools/pkg/storage"
)

// reencodeOpts holds the reencode command flags.
type reencodeOpts struct {
	encoding          reencodingFlags
	concurrentChunks  int
	ignoreChecksums   bool
	validate          bool
	cacheSize         byteSize
	cacheChunks       int
	cacheSizeThread   byteSize
	cacheChunksThread int
	writeShape        string
}

// cacheSpec picks one cache strategy. Per-worker size takes precedence,
// then total size, per-worker chunks and total chunks.
func (o *reencodeOpts) cacheSpec() cache.Spec {
	switch {
	case o.cacheSizeThread > 0:
		return cache.Spec{SizePerWorker: uint64(o.cacheSizeThread)}
	case o.cacheSize > 0:
		return cache.Spec{SizeTotal: uint64(o.cacheSize)}
	case o.cacheChunksThread > 0:
		return cache.Spec{ChunksPerWorker: o.cacheChunksThread}
	case o.cacheChunks > 0:
		return cache.Spec{ChunksTotal: o.cacheChunks}
	}
	return cache.Spec{}
}

func (c *CLI) reencodeCommand() *cobra.Command {
	opts := reencodeOpts{}

	cmd := &cobra.Command{
		Use:   "reencode <input> <output>",
		Short: "Reencode an array",
		Long: `Reencode an array: change its chunking, sharding, codecs, data type,
dimension names or attributes. The output is erased before it is written.

With --verbose the input metadata is printed first.`,
		Example: `  zarrtools reencode in.zarr out.zarr --chunk-shape 64,64,64 --shard-shape 256,256,256 \
    --bytes-to-bytes-codecs '[{"name":"zstd","configuration":{"level":5,"checksum":false}}]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runReencode(cmd, args[0], args[1], opts)
		},
	}

	opts.encoding.register(cmd)
	flags := cmd.Flags()
	flags.IntVar(&opts.concurrentChunks, "concurrent-chunks", 0, "number of chunks processed concurrently (default: automatic)")
	flags.BoolVar(&opts.ignoreChecksums, "ignore-checksums", false, "do not validate checksums when reading the input")
	flags.BoolVar(&opts.validate, "validate", false, "read every written chunk back and compare it with the input")
	flags.Var(&opts.cacheSize, "cache-size", "decoded chunk cache size, e.g. 512MiB, shared by all workers")
	flags.IntVar(&opts.cacheChunks, "cache-chunks", 0, "decoded chunk cache size in chunks, shared by all workers")
	flags.Var(&opts.cacheSizeThread, "cache-size-thread", "decoded chunk cache size, e.g. 64MiB, per worker")
	flags.IntVar(&opts.cacheChunksThread, "cache-chunks-thread", 0, "decoded chunk cache size in chunks, per worker")
	flags.StringVar(&opts.writeShape, "write-shape", "", "write sharded outputs in blocks of this shape, comma delimited")

	return cmd
}

func (c *CLI) runReencode(cmd *cobra.Command, inPath, outPath string, opts reencodeOpts) error {
	ctx := cmd.Context()
	args, err := opts.encoding.args()
	if err != nil {
		return err
	}
	writeShape, err := optionalShape("write shape", opts.writeShape)
	if err != nil {
		return err
	}

	storeIn, in, err := c.openArray(ctx, inPath)
	if err != nil {
		return err
	}
	defer storeIn.Close()
	if c.Logger.GetLevel() <= log.DebugLevel {
		if err := printJSON(cmd.OutOrStdout(), in.Metadata()); err != nil {
			return err
		}
	}

	storeOut, err := c.openStore(ctx, outPath)
	if err != nil {
		return err
	}
	defer storeOut.Close()
	if err := storeOut.DeletePrefix(ctx, ""); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "erase output %s", outPath)
	}
	b, err := args.Builder(in, nil)
	if err != nil {
		return err
	}
	out, err := b.Build(storeOut, "/")
	if err != nil {
		return err
	}
	if err := out.StoreMetadata(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "store metadata of %s", outPath)
	}

	bar := c.newProgressBar(ctx, "")
	res, err := reencode.Run(ctx, in, out, reencode.Options{
		Validate:         opts.validate,
		ConcurrentChunks: c.concurrentChunks(opts.concurrentChunks),
		IgnoreChecksums:  opts.ignoreChecksums,
		Cache:            opts.cacheSpec(),
		WriteShape:       writeShape,
		Callback:         bar.Callback(),
		Logger:           c.Logger,
	})
	bar.Finish()
	if err != nil {
		return err
	}

	sizeIn, sizeOut := storeSizes(ctx, c.Logger, storeIn, storeOut)
	fmt.Fprintln(cmd.OutOrStdout(), res.Summary(inPath, outPath, sizeIn, sizeOut))
	return nil
}

// storeSizes measures two stores, logging instead of failing when a store
// cannot be listed.
func storeSizes(ctx context.Context, logger *log.Logger, a, b storage.Store) (uint64, uint64) {
	size := func(s storage.Store) uint64 {
		n, err := storage.Size(ctx, s, "")
		if err != nil {
			logger.Debug("cannot measure store size", "error", err)
		}
		return n
	}
	return size(a), size(b)
}
