package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"finsight/internal/domain"
)

var (
	queryText    string
	queryMethod  string
	queryTopK    int
	queryFilters []string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search ingested articles",
	Long: `Search the corpus using semantic, lexical, or hybrid retrieval.

Examples:
  finsight query -q "fed rate decision"
  finsight query -q "bitcoin" --method lexical -k 5
  finsight query -q "earnings" --filter category=business --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().StringVarP(&queryMethod, "method", "m", "hybrid", "retrieval method: semantic, lexical, or hybrid")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "metadata filter as key=value (repeatable)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	method, err := domain.ParseSearchMethod(queryMethod)
	if err != nil {
		return err
	}

	filters, err := parseFilters(queryFilters)
	if err != nil {
		return err
	}

	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	resp, err := m.Search(queryText, method, queryTopK, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if resp.Degraded {
		fmt.Println("Note: partial results, one retrieval path was unavailable.")
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(resp.Results), queryText)
	for i, r := range resp.Results {
		title := r.Document.Metadata["title"]
		if title == "" {
			title = r.Document.ID
		}
		fmt.Printf("--- [%d] %s (score: %.3f, via %s) ---\n", i+1, title, r.Score, r.RankSource)
		if src := r.Document.Metadata["source"]; src != "" {
			fmt.Printf("    source: %s", src)
			if cat := r.Document.Metadata["category"]; cat != "" {
				fmt.Printf("  category: %s", cat)
			}
			fmt.Println()
		}
		text := r.Document.Text
		if len(text) > 300 {
			text = text[:300] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}
	return nil
}

func parseFilters(pairs []string) (domain.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(domain.Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad filter %q, expected key=value", pair)
		}
		filters[key] = value
	}
	return filters, nil
}
