// Command storemill builds and verifies read-only store chunks from sorted
// runs.  Configuration comes from STOREMILL_* environment variables; see the
// worker package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/storemill/storemill/src/internal/cmdutil"
	"github.com/storemill/storemill/src/internal/log"
	"github.com/storemill/storemill/src/internal/pctx"
	"github.com/storemill/storemill/src/internal/storage/chunk"
	"github.com/storemill/storemill/src/internal/storage/filestore"
	"github.com/storemill/storemill/src/server/worker"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storemill",
		Short: "Build read-only store chunks from sorted runs.",
	}
	rootCmd.PersistentFlags().BoolVarP(&cmdutil.PrintErrorStacks, "verbose", "v", false, "Print error stacks and debug logs.")
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		if cmdutil.PrintErrorStacks {
			if l, err := zap.NewDevelopment(); err == nil {
				log.SetBase(l)
			}
		}
	}

	buildCmd := &cobra.Command{
		Use:   "build <run> [<run> ...]",
		Short: "Build one chunk from the given sorted run files.",
		Long: `Build one chunk from the given sorted run files.

Run file names are relative to STOREMILL_OUTPUT_ROOT.  All runs must carry
records for the same (node, partition, chunk); they are merged in ascending
digest order and the resulting index/data pair is installed atomically under
the final chunk names.`,
		Run: cmdutil.RunMinimumArgs(1, func(args []string) error {
			env, err := worker.EnvFromOS()
			if err != nil {
				return err
			}
			cfg, err := env.BuilderConfig()
			if err != nil {
				return err
			}
			store, err := filestore.NewLocalClient(env.OutputRoot)
			if err != nil {
				return err
			}
			ctx := pctx.Background("storemill")
			d := worker.NewDriver(store, cfg, env.Parallelism, env.Attempts)
			stats, err := d.Build(ctx, []worker.Task{{Runs: args}})
			if err != nil {
				return err
			}
			fmt.Printf("collision groups: %d, max group size: %d\n", stats.Events(), stats.MaxGroupSize())
			return nil
		}),
	}
	rootCmd.AddCommand(buildCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify <node-dir> <prefix>",
		Short: "Verify a published chunk's ordering, offsets, and checksums.",
		Run: cmdutil.RunFixedArgs(2, func(args []string) error {
			env, err := worker.EnvFromOS()
			if err != nil {
				return err
			}
			alg, err := chunk.ParseChecksumAlgorithm(env.Checksum)
			if err != nil {
				return err
			}
			store, err := filestore.NewLocalClient(env.OutputRoot)
			if err != nil {
				return err
			}
			ctx := pctx.Background("storemill")
			res, err := chunk.Verify(ctx, store, env.RetainKeys, alg, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d groups, %d data bytes\n", res.Groups, res.DataBytes)
			return nil
		}),
	}
	rootCmd.AddCommand(verifyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
