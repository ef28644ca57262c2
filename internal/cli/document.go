package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var documentCollection string

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage documents",
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in a collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		docs, err := engine.ListDocuments(documentCollection)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tCATEGORY\tCREATED")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				d.ID, d.Filename, d.Category, d.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := engine.DeleteDocument(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted document %s\n", args[0])
		return nil
	},
}

func init() {
	documentListCmd.Flags().StringVarP(&documentCollection, "collection", "c", "", "collection ID (required)")
	documentListCmd.MarkFlagRequired("collection")
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}
