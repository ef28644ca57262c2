package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <collection-id>",
	Short: "Rebuild a collection's vector index from stored chunks",
	Long: `Reindex re-embeds every chunk in the collection and rebuilds its index
from scratch. Use it after switching embedding models, when the stored index
reports a model mismatch, or to compact a heavily churned index.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := engine.Reindex(args[0]); err != nil {
			return err
		}

		stats, err := engine.Stats(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Reindexed collection %s: %d vectors\n", args[0], stats.LiveVectors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
