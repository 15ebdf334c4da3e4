package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Manage enhancement record locks",
}

var locksReclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Force-release enhancement locks older than the staleness threshold",
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

		n, err := st.ReclaimStaleLocks(ctx, staleLockAge())
		if err != nil {
			return eris.Wrap(err, "reclaim stale locks")
		}

		zap.L().Info("stale locks reclaimed",
			zap.Int("count", n),
			zap.Duration("older_than", staleLockAge()),
		)
		return nil
	},
}

func init() {
	locksCmd.AddCommand(locksReclaimCmd)
	rootCmd.AddCommand(locksCmd)
}
