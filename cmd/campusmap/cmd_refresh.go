package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"campusmap/internal/store"
)

func init() {
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh cycle and store the snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer setupLogging(cfg).Close()

		ctx, cancel := signalContext()
		defer cancel()

		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		snap, err := newRefresher(cfg, &store.Memory{}, db).Run(ctx)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s stored with %d events.\n", snap.ID, len(snap.Events))
		return nil
	},
}
