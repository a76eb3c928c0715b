package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/trialdex/internal/usecase/canonical"
)

var ingestLimit int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch studies from the registry and upsert canonical records",
	Long: `Pages through the registry feed, normalizes each study into a canonical
record and upserts it by NCT id. Records whose text changed become stale for
embedding and extraction.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "stop after this many studies (0 = whole registry; default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, func(ctx context.Context, p *pipeline) error {
		limit := p.ingestLimit
		if cmd.Flags().Changed("limit") {
			limit = ingestLimit
		}
		if limit < 0 {
			return fmt.Errorf("--limit must not be negative, got %d", limit)
		}
		report, err := p.ingest.Ingest(ctx, canonical.Options{Limit: limit})
		printIngest(cmd, report)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		return nil
	})
}
