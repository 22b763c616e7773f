package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import documents from a JSON export",
	Long: `Re-ingest documents from a file produced by 'finsight export'.
Vectors are regenerated through the embedding provider; cached
embeddings are reused. Pass "-" to read from stdin.

Examples:
  finsight import corpus.json
  finsight export | finsight import -d /new/dir -`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()
		in = f
	}

	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	result, err := m.Import(in, embedProgress())
	if err != nil {
		// No resolved ids means the input never parsed; embedding
		// trouble after parsing is a warning, not a failure.
		if len(result.IDs) == 0 {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: some embeddings failed: %v\n", err)
	}

	fmt.Printf("Added: %d  Updated: %d  Unchanged: %d  Embedded: %d  Failed: %d\n",
		result.Added, result.Updated, result.Unchanged, result.Embedded, result.Failed)
	if result.Failed > 0 {
		fmt.Println("Run 'finsight backfill' to retry failed embeddings.")
	}
	return nil
}
