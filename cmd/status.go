package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dganger475/dopp-sub002/faceindex"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and record store status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	info, err := a.index.Info()
	switch {
	case errors.Is(err, faceindex.ErrIndexUnavailable):
		fmt.Println("Index: not published (run 'dopp rebuild')")
	case err != nil:
		return err
	default:
		fmt.Printf("Index: build %s, %d embeddings (%d dims), built at %s\n",
			info.BuildID, info.Count, info.Dim, info.BuiltAt)
	}

	stats, err := a.reconciler.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Records without embedding: %d\n", stats.MissingEmbeddings)
	fmt.Printf("Records never assessed:    %d\n", stats.Unassessed)
	for flag, count := range stats.ByQualityFlag {
		fmt.Printf("  %-14s %d\n", flag, count)
	}
	return nil
}
