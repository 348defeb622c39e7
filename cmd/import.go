package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/social-listener/internal/collect"
)

var (
	importText   string
	importAuthor string
	importLabel  string
)

var importCmd = &cobra.Command{
	Use:   "import [file.csv|file.xlsx]",
	Short: "Import posts manually from text, CSV or XLSX",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importText == "" && len(args) == 0 {
			return eris.New("provide a file argument or --text")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var summary collect.ImportSummary
		if importText != "" {
			summary, err = collect.ImportText(cmd.Context(), env.Store, importText, importAuthor, importLabel)
		} else {
			summary, err = importFile(cmd, env, args[0])
		}
		if err != nil {
			return err
		}

		fmt.Printf("parsed %d rows: %d inserted, %d duplicates, %d skipped\n",
			summary.RowsParsed, summary.PostsInserted, summary.Duplicates, summary.RowsSkipped)
		return nil
	},
}

func importFile(cmd *cobra.Command, env *env, path string) (collect.ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return collect.ImportSummary{}, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return collect.ImportCSV(cmd.Context(), env.Store, f)
	case ".xlsx":
		return collect.ImportXLSX(cmd.Context(), env.Store, f)
	default:
		return collect.ImportSummary{}, eris.Errorf("unsupported file type %s, expected .csv or .xlsx", filepath.Ext(path))
	}
}

func init() {
	importCmd.Flags().StringVar(&importText, "text", "", "raw post text to import")
	importCmd.Flags().StringVar(&importAuthor, "author", "", "author for --text imports")
	importCmd.Flags().StringVar(&importLabel, "label", "", "title label for --text imports")
	rootCmd.AddCommand(importCmd)
}
