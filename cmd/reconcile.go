package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Detect and repair drift between the store, filesystem and index",
}

var deleteOrphans bool

var reconcileOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Report records whose image asset no longer exists on disk",
	Long: `Orphan detection reports every face record whose image path does not
resolve to an existing file. With --delete the records are removed and the
index is rebuilt afterwards.`,
	RunE: runReconcileOrphans,
}

var reconcileMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "Report records with an absent embedding",
	RunE:  runReconcileMissing,
}

var reconcileScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Report image assets on disk with no record in the store",
	RunE:  runReconcileScan,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.AddCommand(reconcileOrphansCmd)
	reconcileCmd.AddCommand(reconcileMissingCmd)
	reconcileCmd.AddCommand(reconcileScanCmd)

	reconcileOrphansCmd.Flags().BoolVar(&deleteOrphans, "delete", false, "Delete orphaned records and rebuild the index")
}

func runReconcileOrphans(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	orphans, err := a.reconciler.FindOrphanedRecords()
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Println("No orphaned records.")
		return nil
	}

	for _, o := range orphans {
		fmt.Printf("%-6d %-30s %s\n", o.ID, o.Filename, o.ImagePath)
	}
	fmt.Printf("%d orphaned record(s)\n", len(orphans))

	if !deleteOrphans {
		return nil
	}

	bar := progressbar.Default(int64(len(orphans)), "deleting orphans")
	deleted, err := a.reconciler.DeleteOrphans(context.Background(), func() { _ = bar.Add(1) })
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d orphaned record(s), index rebuilt\n", deleted)
	return nil
}

func runReconcileMissing(cmd *cobra.Command, args []string) error {
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

	for i := range missing {
		fmt.Printf("%-6d %-30s flag=%s\n", missing[i].ID, missing[i].Filename, missing[i].QualityFlag)
	}
	fmt.Printf("%d record(s) without an embedding; run 'dopp reextract' to repair\n", len(missing))
	return nil
}

func runReconcileScan(cmd *cobra.Command, args []string) error {
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

	for _, filename := range unindexed {
		fmt.Println(filename)
	}
	fmt.Printf("%d asset(s) without a record; run 'dopp ingest' to add them\n", len(unindexed))
	return nil
}
