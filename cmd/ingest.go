package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Create records for image assets found on disk",
	Long: `Ingest scans the faces directory for image assets with no record in
the store, and inserts one per asset: the embedding is extracted, the image
is quality-assessed, and an EXIF date seeds the year metadata when present.
The index is rebuilt when any embedding was added.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	unindexed, err := a.reconciler.FindUnindexedAssets()
	if err != nil {
		return err
	}
	if len(unindexed) == 0 {
		fmt.Println("Every asset on disk has a record.")
		return nil
	}

	bar := progressbar.Default(int64(len(unindexed)), "ingesting")
	result, err := a.reconciler.IngestUnindexedAssets(context.Background(), func() { _ = bar.Add(1) })
	if err != nil {
		return err
	}

	fmt.Printf("Inserted %d record(s): %d with embeddings, %d without a detectable face, %d failed\n",
		result.Inserted, result.WithNewVecs, result.NoFace, result.Failed)
	return nil
}
