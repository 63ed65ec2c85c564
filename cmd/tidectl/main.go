// tidectl is the read-only operator CLI: clustering evaluation harnesses
// that run against the live database without touching the pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tideline/tideline/pkg/cluster"
	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/database"
	"github.com/tideline/tideline/pkg/eval"
	"github.com/tideline/tideline/pkg/store"
)

type globalFlags struct {
	databaseURL string
	hours       int
	limit       int
	outputDir   string
	provider    string
	model       string
}

func main() {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "tidectl",
		Short:        "Read-only evaluation harnesses for the tideline cluster pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.databaseURL, "database-url", "",
		"PostgreSQL connection string (defaults to DATABASE_* environment)")
	root.PersistentFlags().IntVar(&flags.hours, "hours", 24, "Lookback window in hours")
	root.PersistentFlags().IntVar(&flags.limit, "limit", 1000, "Maximum posts/clusters to load")
	root.PersistentFlags().StringVar(&flags.outputDir, "output-dir", "./eval-out", "Snapshot output directory")
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "Provider label recorded in the snapshot")
	root.PersistentFlags().StringVar(&flags.model, "model", "", "Model label recorded in the snapshot")

	root.AddCommand(newStabilityCmd(flags))
	root.AddCommand(newPreviewCmd(flags))
	root.AddCommand(newHealthCmd(flags))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context, flags *globalFlags) (*pgxpool.Pool, error) {
	dsn := flags.databaseURL
	if dsn == "" {
		cfg, err := database.LoadConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("no --database-url and no usable environment: %w", err)
		}
		dsn = cfg.DSN()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func (f *globalFlags) meta(name string) eval.Meta {
	return eval.Meta{
		Name:        name,
		GeneratedAt: time.Now().UTC(),
		Hours:       f.hours,
		Limit:       f.limit,
		Provider:    f.provider,
		Model:       f.model,
	}
}

func newStabilityCmd(flags *globalFlags) *cobra.Command {
	var jaccardThreshold float64
	var minSize int

	cmd := &cobra.Command{
		Use:   "cluster-stability-eval",
		Short: "Compare the lexical Jaccard clusterer against stored assignments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			defer pool.Close()

			harness := eval.NewStabilityEval(store.NewPostStore(pool), store.NewClusterStore(pool))
			report, err := harness.Run(ctx, flags.meta("cluster-stability-eval"), jaccardThreshold, minSize)
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout())
			path, err := eval.WriteSnapshot(flags.outputDir, "cluster-stability-eval", report)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nsnapshot: %s\n", path)
			return nil
		},
	}
	cmd.Flags().Float64Var(&jaccardThreshold, "jaccard-threshold", 0.5, "Token Jaccard linkage threshold")
	cmd.Flags().IntVar(&minSize, "min-cluster-size", 2, "Minimum members per lexical cluster")
	return cmd
}

func newPreviewCmd(flags *globalFlags) *cobra.Command {
	defaults := config.DefaultClusterConfig()
	var similarityThreshold float64
	var minSize, maxDaysWindow int

	cmd := &cobra.Command{
		Use:   "embedding-story-preview",
		Short: "Cluster recent embeddings in process and preview would-be stories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			defer pool.Close()

			harness := eval.NewStoryPreview(store.NewPostStore(pool), defaults.MinTweets, defaults.MinUsers)
			report, err := harness.Run(ctx, flags.meta("embedding-story-preview"),
				similarityThreshold, minSize, maxDaysWindow)
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout())
			path, err := eval.WriteSnapshot(flags.outputDir, "embedding-story-preview", report)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nsnapshot: %s\n", path)
			return nil
		},
	}
	cmd.Flags().Float64Var(&similarityThreshold, "similarity-threshold", defaults.SimilarityThreshold, "Cosine linkage threshold")
	cmd.Flags().IntVar(&minSize, "min-cluster-size", defaults.MinClusterSize, "Minimum members per component")
	cmd.Flags().IntVar(&maxDaysWindow, "max-days-window", defaults.MaxDaysWindow, "Maximum component time span in days")
	return cmd
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	var cohesionFloor float64

	cmd := &cobra.Command{
		Use:   "cluster-health-check",
		Short: "Report cohesion, filter flags, and duplicate suspects per active cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := connect(ctx, flags)
			if err != nil {
				return err
			}
			defer pool.Close()

			harness := eval.NewHealthCheck(store.NewClusterStore(pool), cluster.NewHeuristicFilter())
			report, err := harness.Run(ctx, flags.meta("cluster-health-check"), cohesionFloor)
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout())
			path, err := eval.WriteSnapshot(flags.outputDir, "cluster-health-check", report)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nsnapshot: %s\n", path)
			return nil
		},
	}
	cmd.Flags().Float64Var(&cohesionFloor, "cohesion-floor", 0.75, "Mean pairwise cosine below which a cluster is flagged")
	return cmd
}
