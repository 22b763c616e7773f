package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupMaxAgeDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete documents older than the retention window",
	Long: `Delete documents whose ingestion time is older than the retention
window, cascading to their vectors. The window comes from
retention.max_age_days in the config and can be overridden with
--max-age-days. A window of zero disables cleanup.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupMaxAgeDays, "max-age-days", 0, "retention window in days (overrides config)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	days := GetConfig().Retention.MaxAgeDays
	if cleanupMaxAgeDays > 0 {
		days = cleanupMaxAgeDays
	}
	if days <= 0 {
		fmt.Println("Retention is disabled; set retention.max_age_days or pass --max-age-days.")
		return nil
	}

	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()

	removed, err := m.Cleanup(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Removed %d documents older than %d days\n", removed, days)
	return nil
}
