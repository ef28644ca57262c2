package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"recall/internal/domain"
	"recall/internal/usecase"
)

var (
	queryCollection    string
	queryText          string
	queryTopK          int
	queryContextWindow int
	queryCategory      string
	queryAutoCategory  bool
	queryJSON          bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search a collection",
	Long: `Query embeds the question, searches the collection's similarity index, and
prints the top matches with their surrounding chunks. Passing --category
restricts results to that category; --auto-category detects one from the
question and boosts matching chunks instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := parseCategoryFlag(queryCategory)
		if err != nil {
			return err
		}
		if queryCategory == "" {
			category = ""
		}

		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		topK := queryTopK
		if topK == 0 {
			topK = cfg.Retrieve.TopK
		}
		window := queryContextWindow
		if window < 0 {
			window = cfg.Retrieve.ContextWindow
		}

		results, err := engine.Query(queryCollection, queryText, usecase.QueryOptions{
			TopK:          topK,
			ContextWindow: window,
			Category:      category,
			AutoCategory:  queryAutoCategory,
		})
		if err != nil {
			return err
		}

		if queryJSON {
			return printJSON(results)
		}
		printResults(results)
		return nil
	},
}

func printResults(results []domain.RetrievedChunk) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, r := range results {
		if r.IsMainMatch {
			fmt.Printf("--- %s [%s] score=%.4f\n", r.Filename, r.Category, *r.Score)
		} else {
			fmt.Printf("    %s [context %+d]\n", r.Filename, r.Offset)
		}
		fmt.Println(indent(r.Content, "  "))
	}
}

type jsonResult struct {
	ChunkID     string   `json:"chunk_id"`
	DocumentID  string   `json:"document_id"`
	Filename    string   `json:"filename"`
	Category    string   `json:"category"`
	Content     string   `json:"content"`
	Seq         int      `json:"seq"`
	Score       *float64 `json:"score,omitempty"`
	IsMainMatch bool     `json:"is_main_match"`
	Offset      int      `json:"offset"`
}

func printJSON(results []domain.RetrievedChunk) error {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{
			ChunkID:     r.ChunkID,
			DocumentID:  r.DocumentID,
			Filename:    r.Filename,
			Category:    string(r.Category),
			Content:     r.Content,
			Seq:         r.Seq,
			Score:       r.Score,
			IsMainMatch: r.IsMainMatch,
			Offset:      r.Offset,
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func init() {
	queryCmd.Flags().StringVarP(&queryCollection, "collection", "c", "", "collection ID (required)")
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "query text (required)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of main matches to return")
	queryCmd.Flags().IntVar(&queryContextWindow, "context-window", -1, "adjacent chunks per side of each match")
	queryCmd.Flags().StringVar(&queryCategory, "category", "", "restrict results to this category")
	queryCmd.Flags().BoolVar(&queryAutoCategory, "auto-category", false, "detect a category from the query and boost matches")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "emit results as JSON")
	queryCmd.MarkFlagRequired("collection")
	queryCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(queryCmd)
}
