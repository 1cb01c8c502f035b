package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rollbackConfirmation must be typed exactly to allow a rollback.
const rollbackConfirmation = "YES"

var (
	rollbackYes bool
	pruneKeep   int
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Manage the file safety net",
	Long:  `Add files to the watchlist, snapshot them, and roll them back.`,
}

var watchdogAddCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Add files to the watchlist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		for _, path := range args {
			added, err := a.watchdog.Add(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("failed to add to watchlist")
				return err
			}
			printAdd(cmd.OutOrStdout(), path, added)
		}
		return nil
	},
}

var watchdogBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot every watch-listed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.watchdog.Backup(ctx)
		if err != nil {
			log.Error().Err(err).Msg("backup failed")
			return err
		}
		printBackup(cmd.OutOrStdout(), result)
		return nil
	},
}

var watchdogRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore watch-listed files from the latest snapshot",
	Long: `Restore watch-listed files from the latest backup snapshot. Current
files are overwritten; a safety snapshot is taken first unless disabled
in the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !rollbackYes {
			fmt.Fprintf(cmd.OutOrStdout(), "This overwrites watch-listed files. Type %s to continue: ", rollbackConfirmation)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if strings.TrimSpace(answer) != rollbackConfirmation {
				fmt.Fprintln(cmd.OutOrStdout(), "Rollback cancelled.")
				return nil
			}
		}

		a, err := setupApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.watchdog.Rollback(ctx)
		if err != nil {
			log.Error().Err(err).Msg("rollback failed")
			return err
		}
		printRollback(cmd.OutOrStdout(), result)
		return nil
	},
}

var watchdogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the watchlist and the snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), a.watchdog)
	},
}

var watchdogVerifyCmd = &cobra.Command{
	Use:   "verify [snapshot]",
	Short: "Check a snapshot against its manifest",
	Long:  `Check a snapshot against its manifest. Without a name the latest backup is checked.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		result, err := a.watchdog.Verify(name)
		if err != nil {
			log.Error().Err(err).Str("snapshot", name).Msg("verify failed")
			return err
		}
		printVerify(cmd.OutOrStdout(), result)
		if !result.OK() {
			return fmt.Errorf("snapshot %s does not match its manifest", result.Snapshot)
		}
		return nil
	},
}

var watchdogPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old snapshots",
	Long:  `Delete all but the newest snapshots of each kind. Defaults to watchdog.retention.keep_last.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}

		policy := a.cfg.Watchdog.Retention
		if cmd.Flags().Changed("keep") {
			policy = models.RetentionPolicy{KeepLast: pruneKeep}
		}
		if policy.Unlimited() {
			return fmt.Errorf("no retention configured, pass --keep")
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.watchdog.Prune(ctx, policy)
		if err != nil {
			log.Error().Err(err).Msg("prune failed")
			return err
		}
		printPrune(cmd.OutOrStdout(), result)
		return nil
	},
}

var watchdogWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Back up automatically whenever watch-listed files change",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		log.Info().Dur("debounce", a.cfg.Watchdog.Debounce).Msg("watching for changes")
		if err := a.watchdog.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("watcher stopped")
			return err
		}
		log.Info().Msg("watcher stopped")
		return nil
	},
}

func init() {
	watchdogRollbackCmd.Flags().BoolVar(&rollbackYes, "yes", false, "skip the confirmation prompt")
	watchdogPruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "snapshots to keep per kind")

	watchdogCmd.AddCommand(watchdogAddCmd)
	watchdogCmd.AddCommand(watchdogBackupCmd)
	watchdogCmd.AddCommand(watchdogRollbackCmd)
	watchdogCmd.AddCommand(watchdogListCmd)
	watchdogCmd.AddCommand(watchdogVerifyCmd)
	watchdogCmd.AddCommand(watchdogPruneCmd)
	watchdogCmd.AddCommand(watchdogWatchCmd)
}

func setupApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(log.Logger, cfg)
}

func printAdd(w io.Writer, path string, added bool) {
	if added {
		fmt.Fprintf(w, "Added %s to the watchlist\n", path)
		return
	}
	fmt.Fprintf(w, "%s is already on the watchlist\n", path)
}

func printBackup(w io.Writer, r *models.BackupResult) {
	fmt.Fprintf(w, "Snapshot %s: %d file(s) copied, %d missing, %d failed\n",
		r.Snapshot.Name, len(r.Copied), len(r.Missing), len(r.Failed))
	for _, path := range r.Missing {
		fmt.Fprintf(w, "  missing: %s\n", path)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed:  %s (%v)\n", f.Path, f.Error)
	}
	if len(r.Pruned) > 0 {
		fmt.Fprintf(w, "Retention removed %d snapshot(s)\n", len(r.Pruned))
	}
}

func printRollback(w io.Writer, r *models.RollbackResult) {
	fmt.Fprintln(w, r.Message)
	if r.NoSnapshot {
		return
	}
	if r.Safety != nil {
		fmt.Fprintf(w, "  safety snapshot: %s\n", r.Safety.Name)
	}
	for _, path := range r.Skipped {
		fmt.Fprintf(w, "  skipped: %s\n", path)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed:  %s (%v)\n", f.Path, f.Error)
	}
}

// lister is the part of the watchdog printList reads.
type lister interface {
	Watchlist() ([]string, error)
	Snapshots() ([]models.Snapshot, error)
}

func printList(w io.Writer, wd lister) error {
	paths, err := wd.Watchlist()
	if err != nil {
		return err
	}
	snapshots, err := wd.Snapshots()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Watchlist (%d):\n", len(paths))
	for _, path := range paths {
		fmt.Fprintf(w, "  %s\n", path)
	}
	fmt.Fprintf(w, "Snapshots (%d):\n", len(snapshots))
	for _, s := range snapshots {
		fmt.Fprintf(w, "  %s  %s\n", s.Name, s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printVerify(w io.Writer, r *models.VerifyResult) {
	if r.OK() {
		fmt.Fprintf(w, "Snapshot %s OK (%d file(s))\n", r.Snapshot, len(r.Entries))
		return
	}
	fmt.Fprintf(w, "Snapshot %s has problems:\n", r.Snapshot)
	for _, e := range r.Entries {
		if e.Status != models.VerifyOK {
			fmt.Fprintf(w, "  %s: %s\n", e.Status, e.Rel)
		}
	}
}

func printPrune(w io.Writer, r *models.PruneResult) {
	fmt.Fprintf(w, "Removed %d snapshot(s), kept %d\n", len(r.Removed), r.Kept)
	for _, name := range r.Removed {
		fmt.Fprintf(w, "  removed: %s\n", name)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed:  %s (%v)\n", f.Path, f.Error)
	}
}
