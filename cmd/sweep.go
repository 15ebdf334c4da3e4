package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/model"
)

var (
	sweepKind         string
	sweepSkipExisting bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Bulk-enrich prospects missing one enhancement kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kinds, ok := model.ParseKinds(sweepKind)
		if !ok || len(kinds) != 1 {
			return eris.Errorf("--kind must name exactly one enhancement, got %q", sweepKind)
		}
		kind := kinds.Slice()[0]

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		env.Worker.Start()

		total, err := env.Sweeps.StartSweep(ctx, kind, sweepSkipExisting)
		if err != nil {
			return eris.Wrap(err, "start sweep")
		}
		zap.L().Info("sweep started", zap.String("kind", string(kind)), zap.Int("total", total))
		if total == 0 {
			return nil
		}

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = env.Sweeps.StopSweep()
				return ctx.Err()
			case <-ticker.C:
			}

			prog, err := env.Sweeps.Progress()
			if err != nil {
				return eris.Wrap(err, "sweep progress")
			}
			zap.L().Info("sweep progress",
				zap.Int("enqueued", prog.Enqueued),
				zap.Int("completed", prog.Completed),
				zap.Int("failed", prog.Failed),
				zap.Int("total", prog.Total),
			)
			if !prog.Active && prog.Completed+prog.Failed >= prog.Enqueued {
				for _, msg := range prog.RecentErrors {
					zap.L().Warn("sweep record failed", zap.String("detail", msg))
				}
				zap.L().Info("sweep finished",
					zap.Int("completed", prog.Completed),
					zap.Int("failed", prog.Failed),
				)
				return nil
			}
		}
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepKind, "kind", "", "enhancement kind to sweep (required)")
	sweepCmd.Flags().BoolVar(&sweepSkipExisting, "skip-existing", true, "only enrich records missing the kind")
	_ = sweepCmd.MarkFlagRequired("kind")
	rootCmd.AddCommand(sweepCmd)
}
