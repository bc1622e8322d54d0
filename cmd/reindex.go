package cmd

import (
	"fmt"

	"github.com/RolandSherwin/rekal/internal"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the lexical index from stored turns",
	Long: `Rebuild the full-text index from the turns table.

The index holds nothing that is not derivable from the turns themselves,
so this recovers from any index corruption or missed incremental update.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := internal.OpenStore(cfg.DBPathResolved())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		if err := store.Reindex(); err != nil {
			return err
		}
		fmt.Println("Index rebuilt.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
