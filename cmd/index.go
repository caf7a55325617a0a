package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	indexTenant  string
	indexInclude []string
	indexExclude []string
)

// defaultIndexExcludes keeps build and dependency trees out of the corpus.
var defaultIndexExcludes = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"dist/**",
	"build/**",
	"*.lock",
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index documents into the knowledge base",
	Long: `Walks the given file or directory, chunks each matching document, and
indexes the chunks into the semantic vector store. Unchanged documents
are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := buildLogger(cfg)

		eng, db, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		paths, err := collectFiles(args[0], indexInclude, indexExclude)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no matching files under %s", args[0])
		}

		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)

		indexed, skipped := 0, 0
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			result, err := eng.Indexer().IndexDocument(cmd.Context(), indexTenant, docID(path), filepath.Base(path), string(data))
			if err != nil {
				return fmt.Errorf("indexing %s: %w", path, err)
			}
			if result.Skipped {
				skipped++
			} else {
				indexed++
			}
			bar.Add(1)
		}

		fmt.Printf("Indexed %d documents (%d unchanged)\n", indexed, skipped)
		return nil
	},
}

// collectFiles walks root and returns files matching the include globs and
// none of the exclude globs. A root that is itself a file is returned as-is.
func collectFiles(root string, include, exclude []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("accessing %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	excludes := append(defaultIndexExcludes, exclude...)

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && excludesDir(rel, excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(rel, excludes) {
			return nil
		}
		if len(include) > 0 && !matchesAny(rel, include) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// excludesDir reports whether a directory is covered by an exclude
// pattern, so the walk can skip the whole subtree.
func excludesDir(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if matched, err := doublestar.PathMatch(dir, rel); err == nil && matched {
				return true
			}
		}
	}
	return false
}

func matchesAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.PathMatch(pattern, rel); err == nil && matched {
			return true
		}
		if matched, err := doublestar.PathMatch(pattern, filepath.Base(rel)); err == nil && matched {
			return true
		}
	}
	return false
}

// docID derives a stable document id from the file path so re-indexing
// replaces rather than duplicates.
func docID(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	return strings.TrimPrefix(clean, "./")
}

func init() {
	indexCmd.Flags().StringVar(&indexTenant, "tenant", "default", "tenant to index into")
	indexCmd.Flags().StringSliceVar(&indexInclude, "include", nil, "include globs (default: all files)")
	indexCmd.Flags().StringSliceVar(&indexExclude, "exclude", nil, "extra exclude globs")
	rootCmd.AddCommand(indexCmd)
}
