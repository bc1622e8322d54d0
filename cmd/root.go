package cmd

import (
	"fmt"
	"os"

	"github.com/RolandSherwin/rekal/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	dbPath     string
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rekal",
	Short: "Persistent cross-tool memory for AI coding sessions",
	Long: `Rekal captures every turn of your Claude Code and Codex sessions,
summarizes them with a local model CLI, and stores them in one shared
searchable index.

Turns are ranked by lexical relevance (BM25), recency, and workspace
affinity, so a later session can recall what was done before - in any
project, from either tool.

Quick Start:
  rekal search "jwt refresh bug"        # Search past turns
  rekal search --recent 10              # Latest turns across sessions
  rekal search --session 4f2a           # All turns of one session
  rekal stats                           # Store statistics`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration, applying the --db override.
func loadConfig() (internal.Config, error) {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Custom store location (path to the SQLite file)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Custom config file location")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
