package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-enricher/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show prospect counts and per-kind enrichment backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		total, err := st.CountProspects(ctx)
		if err != nil {
			return err
		}

		missing := map[string]int{}
		for _, kind := range model.PipelineOrder {
			ids, err := st.ListMissingKind(ctx, kind, 0)
			if err != nil {
				return err
			}
			missing[string(kind)] = len(ids)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"prospects":    total,
			"missing_kind": missing,
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
