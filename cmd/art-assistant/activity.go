package main

import (
	"fmt"

	"github.com/fgeck/art-assistant/internal/services/activity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Inspect the activity log",
}

var activityVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the activity log hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		svc := activity.New(log.Logger, cfg.Activity.LogPath)
		result, err := svc.Verify()
		if err != nil {
			log.Error().Err(err).Str("path", svc.Path()).Msg("failed to read activity log")
			return err
		}

		out := cmd.OutOrStdout()
		if !result.Valid {
			fmt.Fprintf(out, "Activity log is broken at line %d: %s\n", result.BadLine, result.Reason)
			return fmt.Errorf("activity log chain broken at line %d", result.BadLine)
		}

		fmt.Fprintf(out, "Activity log OK: %d entr(ies)\n", result.Entries)
		fmt.Fprintf(out, "  Head: %s\n", result.LastHash)
		return nil
	},
}

func init() {
	activityCmd.AddCommand(activityVerifyCmd)
}
