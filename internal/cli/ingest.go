package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"recall/internal/adapter/fs"
	"recall/internal/domain"
	"recall/internal/usecase"
)

var (
	ingestCollection string
	ingestCategory   string
	ingestIncludes   []string
	ingestExcludes   []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest a file or directory into a collection",
	Long: `Ingest chunks documents, embeds the chunks, and adds them to the
collection's similarity index. A path to a file ingests that file; a path to
a directory walks it with the configured include/exclude globs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := parseCategoryFlag(ingestCategory)
		if err != nil {
			return err
		}

		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		path := args[0]
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			return ingestFile(engine, path, category)
		}
		return ingestDir(cmd, engine, path, category)
	},
}

func ingestFile(engine *usecase.Engine, path string, category domain.Category) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	docID, err := engine.Ingest(ingestCollection, domain.IngestRecord{
		Filename:  filepath.Base(path),
		Category:  category,
		Content:   string(content),
		SourceRef: path,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %s as document %s\n", path, docID)
	return nil
}

func ingestDir(cmd *cobra.Command, engine *usecase.Engine, root string, category domain.Category) error {
	includes := ingestIncludes
	if len(includes) == 0 {
		includes = cfg.Ingest.Includes
	}
	excludes := ingestExcludes
	if len(excludes) == 0 {
		excludes = cfg.Ingest.Excludes
	}
	walker := fs.NewWalker(includes, excludes)

	var bar *progressbar.ProgressBar
	statuses, err := engine.IngestDir(cmd.Context(), ingestCollection, root, category, walker,
		func(done, total int, path string) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Ingesting"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			bar.Set(done)
		})
	if err != nil {
		return err
	}
	if bar != nil {
		bar.Finish()
	}

	var ok, failed, chunks int
	for _, st := range statuses {
		if st.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", st.Path, st.Err)
			continue
		}
		ok++
		chunks += st.Chunks
	}
	fmt.Printf("Ingested %d files (%d chunks), %d failed\n", ok, chunks, failed)
	return nil
}

func parseCategoryFlag(s string) (domain.Category, error) {
	if s == "" {
		return domain.CategoryUnclassified, nil
	}
	return domain.ParseCategory(s)
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "collection ID (required)")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "category to tag ingested documents with")
	ingestCmd.Flags().StringSliceVar(&ingestIncludes, "include", nil, "include glob patterns (overrides config)")
	ingestCmd.Flags().StringSliceVar(&ingestExcludes, "exclude", nil, "exclude glob patterns (overrides config)")
	ingestCmd.MarkFlagRequired("collection")
	rootCmd.AddCommand(ingestCmd)
}
