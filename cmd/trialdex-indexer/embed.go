package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed records whose vector is missing or stale",
	Args:  cobra.NoArgs,
	RunE:  runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, func(ctx context.Context, p *pipeline) error {
		report, err := p.embed.Run(ctx)
		printPass(cmd, "embed", report)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		return nil
	})
}
