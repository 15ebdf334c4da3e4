package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

var (
	enhanceID    string
	enhanceKinds string
	enhanceUser  string
	enhanceForce bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Run enrichment for a single prospect synchronously",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kinds, ok := model.ParseKinds(enhanceKinds)
		if !ok {
			return eris.Errorf("unknown enhancement kind in %q", enhanceKinds)
		}

		env, err := initEngine(ctx, "enhance")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.AcquireLock(ctx, enhanceID, enhanceUser); err != nil {
			if store.IsLockConflict(err) {
				return eris.New("prospect is locked by another enhancement")
			}
			return eris.Wrap(err, "acquire lock")
		}
		defer func() {
			if err := env.Store.ReleaseLock(ctx, enhanceID); err != nil {
				zap.L().Warn("lock release failed", zap.Error(err))
			}
		}()

		result, err := env.Enricher.Run(ctx, enrich.Request{
			ProspectID: enhanceID,
			Kinds:      kinds,
			Force:      enhanceForce,
			OnKind: func(k model.Kind) {
				zap.L().Info("running enhancement", zap.String("kind", string(k)))
			},
		})
		if err != nil {
			return eris.Wrap(err, "enrichment run")
		}

		zap.L().Info("enrichment complete",
			zap.String("prospect_id", enhanceID),
			zap.Int("changed_kinds", len(result.ChangedKinds())),
			zap.Int("kind_errors", len(result.KindErrors)),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	enhanceCmd.Flags().StringVar(&enhanceID, "id", "", "prospect id (required)")
	enhanceCmd.Flags().StringVar(&enhanceKinds, "kinds", "all", "comma-separated enhancement kinds, or \"all\"")
	enhanceCmd.Flags().StringVar(&enhanceUser, "user", "cli", "requesting user id for the record lock")
	enhanceCmd.Flags().BoolVar(&enhanceForce, "force", false, "redo kinds that already have values")
	_ = enhanceCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(enhanceCmd)
}
