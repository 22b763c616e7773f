package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"finsight/internal/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <glob>...",
	Short: "Ingest article files",
	Long: `Ingest JSON article files matched by one or more glob patterns.
Each file holds either a single article object or an array of them:

  {"text": "...", "metadata": {"source": "reuters", "category": "business"}}

Re-ingesting unchanged articles is a no-op; changed articles are updated
and queued for re-embedding.

Examples:
  finsight ingest articles/today.json
  finsight ingest "articles/**/*.json"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	files, err := expandGlobs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matched")
	}

	var raws []domain.RawDocument
	for _, file := range files {
		docs, err := readArticleFile(file)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		raws = append(raws, docs...)
	}
	fmt.Printf("Read %d articles from %d files\n", len(raws), len(files))

	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	result, err := m.Ingest(raws, embedProgress())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: some embeddings failed: %v\n", err)
	}

	fmt.Printf("Added: %d  Updated: %d  Unchanged: %d  Embedded: %d  Failed: %d\n",
		result.Added, result.Updated, result.Unchanged, result.Embedded, result.Failed)
	if result.Failed > 0 {
		fmt.Println("Run 'finsight backfill' to retry failed embeddings.")
	}
	return nil
}

// expandGlobs resolves doublestar patterns and literal paths into a
// sorted, deduplicated file list.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		base, pat := doublestar.SplitPattern(filepath.ToSlash(pattern))
		matches, err := doublestar.Glob(os.DirFS(base), pat)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			seen[filepath.Join(base, match)] = struct{}{}
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// readArticleFile parses one JSON file into raw documents. A file may
// hold a single object or an array.
func readArticleFile(path string) ([]domain.RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var many []domain.RawDocument
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}

	var one domain.RawDocument
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("not a valid article file: %w", err)
	}
	return []domain.RawDocument{one}, nil
}
