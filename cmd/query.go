package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dganger475/dopp-sub002/faceindex"
)

var (
	queryK             int
	queryMinSimilarity float64
)

var queryCmd = &cobra.Command{
	Use:   "query <image>",
	Short: "Find faces similar to the one in the given image",
	Long: `Query extracts the embedding of the first face detected in the given
image and runs a nearest-neighbor search against the published index.
Similarity percentages use a fixed calibration, so values are comparable
across queries and index generations.

Examples:
  # Top 10 lookalikes
  dopp query ./candidate.jpg

  # Only strong matches
  dopp query ./candidate.jpg --k 25 --min-similarity 70`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVar(&queryK, "k", 10, "Maximum number of matches to return")
	queryCmd.Flags().Float64Var(&queryMinSimilarity, "min-similarity", 0, "Minimum similarity percentage (post-filter)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	embedder := a.newEmbedder()
	defer embedder.Close()
	search := a.newSearchService(embedder)

	matches, err := search.FindMatchesForImage(args[0], queryK, queryMinSimilarity)
	if err != nil {
		if errors.Is(err, faceindex.ErrIndexUnavailable) {
			return fmt.Errorf("no index published yet, run 'dopp rebuild' first")
		}
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matches (no face detected, or nothing above the cutoff).")
		return nil
	}

	fmt.Printf("%-6s %-30s %-10s %s\n", "ID", "FILENAME", "DISTANCE", "SIMILARITY")
	for _, m := range matches {
		fmt.Printf("%-6d %-30s %-10.4f %.2f%%\n", m.FaceID, m.Filename, m.Distance, m.Similarity)
	}
	return nil
}
