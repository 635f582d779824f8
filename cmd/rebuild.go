package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rebuildTimeout time.Duration

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the embedding index from the record store",
	Long: `Rebuild snapshots every index-eligible record (non-empty embedding of
the canonical dimensionality, quality flag other than blurry) into a new
index generation and publishes it atomically. The previous generation stays
active if the rebuild fails.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().DurationVar(&rebuildTimeout, "timeout", 10*time.Minute, "Abort the rebuild after this duration")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
	defer cancel()

	result, err := a.index.Rebuild(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Rebuilt index: %d embeddings indexed, %d skipped (%s)\n",
		result.Indexed, result.Skipped, result.Duration.Round(time.Millisecond))
	return nil
}
