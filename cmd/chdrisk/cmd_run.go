package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/chdrisk/chd"
	"github.com/YuminosukeSato/chdrisk/dataset"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// syntheticPositiveRate は元データの陽性率（約15%）に合わせた値
const syntheticPositiveRate = 0.15

type runFlags struct {
	data      string
	out       string
	synthetic int
	seed      uint64
	models    []string
	jobs      int
	noPlots   bool
	markdown  bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline and print the model comparison",
		Long: `Load and clean the CSV, rebalance the classes, split, standardize,
grid-search every configured classifier and report accuracy and F1 on the
held-out split. Plots are written to --out.

  chdrisk run --data framingham.csv
  chdrisk run --synthetic 2000 --models knn,decision_tree --jobs 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, root, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.data, "data", "", "Framingham CSV path (overrides data.path)")
	f.StringVarP(&flags.out, "out", "o", "", "Plot output directory (overrides output.dir)")
	f.IntVar(&flags.synthetic, "synthetic", 0, "Use N generated rows instead of reading a CSV")
	f.Uint64Var(&flags.seed, "seed", 42, "Seed for --synthetic")
	f.StringSliceVar(&flags.models, "models", nil, "Subset of models to run (comma separated)")
	f.IntVar(&flags.jobs, "jobs", -1, "Grid search workers; 0 or less uses every CPU")
	f.BoolVar(&flags.noPlots, "no-plots", false, "Skip writing PNG plots")
	f.BoolVar(&flags.markdown, "markdown", false, "Print tables as Markdown")
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootFlags, flags *runFlags) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if flags.data != "" {
		cfg.Data.Path = flags.data
	}
	if flags.out != "" {
		cfg.Output.Dir = flags.out
	}
	if cmd.Flags().Changed("jobs") {
		cfg.Jobs = flags.jobs
	}
	if flags.noPlots {
		cfg.Output.Plots = false
	}
	if flags.markdown {
		cfg.Output.Markdown = true
	}
	if len(flags.models) > 0 {
		if err := cfg.SelectModels(flags.models); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogging(cmd.ErrOrStderr(), cfg.Log)

	opts := []chd.Option{chd.WithOutput(cmd.OutOrStdout()), chd.WithLogger(logger)}
	if flags.synthetic > 0 {
		tbl, err := dataset.Synthetic(flags.synthetic, syntheticPositiveRate, flags.seed)
		if err != nil {
			return err
		}
		logger.Info("using synthetic data", "rows", flags.synthetic)
		opts = append(opts, chd.WithTable(tbl))
	}

	r, err := chd.NewRunner(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := r.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("pipeline interrupted")
		}
		logger.Error("pipeline failed", err)
		return err
	}
	return nil
}
