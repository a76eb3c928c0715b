package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	dombatch "github.com/kailas-cloud/trialdex/internal/domain/batch"
	"github.com/kailas-cloud/trialdex/internal/usecase/canonical"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest, then embed and extract",
	Long: `Runs a full indexing cycle. Ingestion goes first; the embedding and
extraction passes then run side by side since they write disjoint fields.`,
	Args: cobra.NoArgs,
	RunE: runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAll(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, func(ctx context.Context, p *pipeline) error {
		ingested, err := p.ingest.Ingest(ctx, canonical.Options{Limit: p.ingestLimit})
		printIngest(cmd, ingested)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}

		var embedded, extracted dombatch.Report
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if embedded, err = p.embed.Run(gctx); err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if extracted, err = p.extract.Run(gctx); err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			return nil
		})
		err = g.Wait()
		printPass(cmd, "embed", embedded)
		printPass(cmd, "extract", extracted)
		return err
	})
}
