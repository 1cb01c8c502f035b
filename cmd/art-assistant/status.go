package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mode, backends and watchdog state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, a.dispatcher.Status())

		paths, err := a.watchdog.Watchlist()
		if err != nil {
			return err
		}
		snapshots, err := a.watchdog.Snapshots()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Watchdog:")
		fmt.Fprintf(out, "  Watched files: %d\n", len(paths))
		fmt.Fprintf(out, "  Snapshots: %d\n", len(snapshots))
		fmt.Fprintf(out, "  Backup dir: %s\n", a.cfg.Watchdog.BackupDir)

		if a.nanogpt != nil {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			balance, err := a.nanogpt.Balance(ctx)
			fmt.Fprintln(out)
			if err != nil {
				log.Debug().Err(err).Msg("balance lookup failed")
				fmt.Fprintln(out, "NanoGPT balance: unavailable")
			} else {
				fmt.Fprintf(out, "NanoGPT balance: %s\n", balance.Balance)
			}
		}
		return nil
	},
}
