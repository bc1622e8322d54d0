package cmd

import (
	"fmt"

	"github.com/RolandSherwin/rekal/internal"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long:  `Show total sessions and turns, turns by summarization status, and search hit rates.`,
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

		stats, err := store.Stats()
		if err != nil {
			return err
		}
		fmt.Println(internal.FormatStats(stats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
