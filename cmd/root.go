package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abhisek/alain/internal/config"
	"github.com/abhisek/alain/internal/logging"
	"github.com/abhisek/alain/internal/store"
)

var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "alain",
	Short: "Generate and quality-gate teaching notebooks",
	Long: `alain turns a subject into a Jupyter notebook: an LLM drafts an outline,
writes one section per step, and the result is checked for Colab
compatibility, structural quality and filler content.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			c.Log.Level = lvl
		}
		if f, _ := cmd.Flags().GetString("log-format"); f != "" {
			c.Log.Format = f
		}
		cfg = c
		logger = logging.New(logging.Options{Level: c.Log.Level, Format: c.Log.Format})
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (default ./alain.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides ALAIN_DB env var)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console or json")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(qaCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the store.db setting, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg != nil && cfg.Store.DB != "" {
		return cfg.Store.DB, store.EnsureDir(cfg.Store.DB)
	}
	return store.DefaultDBPath()
}

// openStore opens the event database.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
