package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed documents that are missing vectors",
	Long: `Generate embeddings for every stored document whose vector is missing,
typically after a provider outage interrupted an ingest. Safe to run
repeatedly; documents that already have vectors are skipped.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	result, err := m.Backfill(embedProgress())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: some embeddings failed: %v\n", err)
	}

	if result.Embedded == 0 && result.Failed == 0 {
		fmt.Println("Nothing to backfill.")
		return nil
	}
	fmt.Printf("Embedded: %d  Failed: %d\n", result.Embedded, result.Failed)
	return nil
}
