package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/ingest"
)

var (
	importPath        string
	importSheet       string
	importConcurrency int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import prospects from an XLSX or CSV export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		header, rows, err := ingest.ReadFile(importPath, ingest.Options{SheetName: importSheet})
		if err != nil {
			return err
		}

		prospects := ingest.MapRows(header, rows)
		if len(prospects) == 0 {
			return eris.New("no importable rows found")
		}

		created, err := ingest.Import(ctx, st, prospects, importConcurrency)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.Int("rows", len(rows)),
			zap.String("file", importPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to .xlsx or .csv file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "worksheet name (default first sheet)")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 5, "parallel store writes")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
