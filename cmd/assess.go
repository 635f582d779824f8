package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var assessAll bool

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Run the quality assessor over face assets",
	Long: `Assess computes brightness, contrast and sharpness for face assets and
stores the combined quality score and flag on each record. By default only
records never assessed (flag 'unknown') are processed; --all re-assesses
everything, overwriting prior scores. The index is rebuilt afterwards since
blurry records are excluded from it.`,
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)
	assessCmd.Flags().BoolVar(&assessAll, "all", false, "Re-assess every record, not just unassessed ones")
}

func runAssess(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	bar := progressbar.Default(-1, "assessing")
	result, err := a.reconciler.ReassessAll(context.Background(), !assessAll, func() { _ = bar.Add(1) })
	if err != nil {
		return err
	}
	_ = bar.Finish()

	if result.Assessed == 0 {
		fmt.Println("Nothing to assess.")
		return nil
	}
	fmt.Printf("Assessed %d record(s), index rebuilt\n", result.Assessed)
	return nil
}
