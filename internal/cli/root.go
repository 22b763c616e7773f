package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"finsight/config"
	"finsight/internal/usecase"
)

var (
	cfgFile string
	cfg     *config.Config
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "FinSight - Vector retrieval engine for financial news",
	Long: `FinSight ingests financial news articles, generates embeddings, and
serves semantic, lexical, and hybrid search over the stored corpus.

Example usage:
  finsight ingest "articles/**/*.json"   # Ingest article files
  finsight query -q "fed rate decision"  # Hybrid search
  finsight status                        # Store and index counts`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if dataDir == "" {
			dataDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(dataDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Debug logging goes to stderr; anything else is silenced so
		// command output stays machine-readable.
		log.SetFlags(0)
		log.SetOutput(os.Stderr)
		if cfg.Logging.Level != "debug" {
			log.SetOutput(io.Discard)
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./finsight.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "dir", "d", "", "data directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetDataDir() string {
	return dataDir
}

// openManager wires the engine from the loaded config. Callers own the
// returned manager and must Close it.
func openManager() (*usecase.Manager, error) {
	log.Printf("opening engine: dir=%s provider=%s model=%s dim=%d",
		GetDataDir(), cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension)
	m, err := usecase.NewManager(GetConfig(), GetDataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open retrieval engine: %w", err)
	}
	return m, nil
}
