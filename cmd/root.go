package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dopp",
	Short: "Face embedding index and similarity search toolkit",
	Long: `dopp maintains a searchable flat L2 index of face embeddings kept
consistent with the face record store, and serves "who looks like this"
similarity queries against it.

The index is a derived artifact: it is rebuilt whole from the record store
and published atomically, never mutated in place. The reconcile commands
detect and repair drift between the store, the asset filesystem and the
index.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
