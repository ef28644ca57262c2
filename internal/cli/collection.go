package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var collectionOwner string

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		col, err := engine.CreateCollection(collectionOwner, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created collection %q (%s)\n", col.Name, col.ID)
		return nil
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		cols, err := engine.ListCollections(collectionOwner)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			fmt.Println("No collections.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDOCS\tCHUNKS\tVECTORS\tCREATED")
		for _, col := range cols {
			stats, err := engine.Stats(col.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
				col.ID, col.Name, stats.Documents, stats.Chunks, stats.LiveVectors,
				col.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <collection-id>",
	Short: "Delete a collection and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := engine.DeleteCollection(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted collection %s\n", args[0])
		return nil
	},
}

func init() {
	collectionCmd.PersistentFlags().StringVar(&collectionOwner, "owner", "default", "collection owner")
	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	rootCmd.AddCommand(collectionCmd)
}
