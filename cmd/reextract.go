package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var reextractCmd = &cobra.Command{
	Use:   "reextract",
	Short: "Re-run embedding extraction for records without an embedding",
	Long: `Reextract runs the embedding extractor over every record whose
embedding is absent, in parallel across the worker pool. Assets that still
yield no detectable face stay embedding-absent. The index is rebuilt when
any embedding was added.`,
	RunE: runReextract,
}

func init() {
	rootCmd.AddCommand(reextractCmd)
}

func runReextract(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	missing, err := a.reconciler.FindMissingEmbeddings()
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		fmt.Println("Every record has an embedding.")
		return nil
	}

	bar := progressbar.Default(int64(len(missing)), "extracting")
	result, err := a.reconciler.ReextractMissing(context.Background(), func() { _ = bar.Add(1) })
	if err != nil {
		return err
	}

	fmt.Printf("Extracted %d embedding(s), %d still missing\n", result.Extracted, result.StillMissing)
	return nil
}
