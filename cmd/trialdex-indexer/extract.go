package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured eligibility criteria for pending records",
	Long: `Sends free-text eligibility criteria to the configured language model,
validates the response against the criteria schema and stores the result with
its provenance. Invalid responses are retried with a correction turn and end in
NEEDS_REVIEW when they never validate.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, func(ctx context.Context, p *pipeline) error {
		report, err := p.extract.Run(ctx)
		printPass(cmd, "extract", report)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		return nil
	})
}
