package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/trialdex/internal/config"
	dombatch "github.com/kailas-cloud/trialdex/internal/domain/batch"
	"github.com/kailas-cloud/trialdex/internal/usecase/canonical"
)

// ingester runs the ingestion pass.
type ingester interface {
	Ingest(ctx context.Context, opts canonical.Options) (canonical.Report, error)
}

// pass runs an incremental batch pass over stale records.
type pass interface {
	Run(ctx context.Context) (dombatch.Report, error)
}

// pipeline holds the passes built for one environment.
type pipeline struct {
	ingest  ingester
	embed   pass
	extract pass
	// ingestLimit is the configured default for --limit.
	ingestLimit int
}

// pipelineFactory builds the passes for env. The returned func releases their resources.
type pipelineFactory func(ctx context.Context, env string) (*pipeline, func(), error)

var (
	envFlag     string
	newPipeline pipelineFactory = buildPipeline
)

var rootCmd = &cobra.Command{
	Use:   "trialdex-indexer",
	Short: "Run trialdex indexing passes",
	Long: `Runs the batch passes that keep the trial index current:
ingestion from the registry, embedding generation and eligibility extraction.
Every pass is incremental and safe to re-run.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", config.GetEnv(), "configuration environment (config/<env>.yaml)")
}

// withPipeline builds the pipeline for the selected environment and hands it to fn.
func withPipeline(cmd *cobra.Command, fn func(ctx context.Context, p *pipeline) error) error {
	ctx := cmd.Context()
	p, cleanup, err := newPipeline(ctx, envFlag)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer cleanup()
	return fn(ctx, p)
}

func printIngest(cmd *cobra.Command, r canonical.Report) {
	cmd.Printf("ingest: fetched=%d upserted=%d rejected=%d failed=%d pages=%d\n",
		r.Fetched, r.Upserted, r.Rejected, r.Failed, r.Pages)
}

func printPass(cmd *cobra.Command, name string, r dombatch.Report) {
	cmd.Printf("%s: processed=%d ok=%d skipped=%d rejected=%d failed=%d needs_review=%d\n",
		name, r.Processed, r.OK, r.Skipped, r.Rejected, r.Failed, r.NeedsReview)
}
