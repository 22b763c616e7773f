package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"finsight/internal/domain"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a stored document by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its vector",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	doc, err := m.Get(args[0])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no document with id %s", args[0])
		}
		return err
	}

	output, _ := json.MarshalIndent(map[string]any{
		"id":         doc.ID,
		"text":       doc.Text,
		"metadata":   doc.Metadata,
		"embedded":   doc.EmbeddingGenerated,
		"created_at": doc.CreatedAt,
	}, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Delete(args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
