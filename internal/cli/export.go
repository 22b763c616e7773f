package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored documents as JSON",
	Long: `Write every stored document to a file (or stdout) as a JSON array,
including metadata and embedding state. Vectors are not exported; they
are regenerated on re-ingest.

Examples:
  finsight export -o corpus.json
  finsight export > corpus.json`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := m.Export(out); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if exportOutput != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", exportOutput)
	}
	return nil
}
