package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and index statistics",
	Long: `Show document and embedding counts plus per-category and per-source
tallies. An embedded count below the document count means some articles
are still waiting for embeddings; run 'finsight backfill' to catch up.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	st, err := m.Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	if statusJSON {
		output, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Documents: %d\n", st.DocumentCount)
	fmt.Printf("Embedded:  %d\n", st.EmbeddedCount)
	fmt.Printf("Vectors:   %d\n", st.IndexSize)
	if st.EmbeddedCount < st.DocumentCount {
		fmt.Printf("Pending:   %d (run 'finsight backfill')\n", st.DocumentCount-st.EmbeddedCount)
	}

	printTally("Categories", st.Categories)
	printTally("Sources", st.Sources)
	return nil
}

func printTally(name string, tally map[string]int) {
	if len(tally) == 0 {
		return
	}
	keys := make([]string, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("\n%s:\n", name)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, tally[k])
	}
}
