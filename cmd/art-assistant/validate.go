package main

import (
	"fmt"
	"os"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the configuration without talking to any backend or touching files.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Root: %s\n", cfg.RootDir)
	fmt.Fprintf(out, "  Default mode: %s\n", defaultModeLabel(cfg.DefaultMode))
	fmt.Fprintf(out, "  Dispatch timeout: %s\n", cfg.Dispatch.Timeout)
	fmt.Fprintf(out, "  Max in-flight calls: %d\n", cfg.Dispatch.MaxInflight)
	fmt.Fprintf(out, "  Offline corpus: %s\n", cfg.Offline.CorpusPath)
	fmt.Fprintf(out, "  Activity log: %s\n", cfg.Activity.LogPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Backends:")
	fmt.Fprintf(out, "  NanoGPT: %v (%s, %s)\n", cfg.NanoGPT.Configured(), cfg.NanoGPT.BaseURL, cfg.NanoGPT.Model)
	fmt.Fprintf(out, "  Grok: %v (%s, %s)\n", cfg.Grok.Configured(), cfg.Grok.BaseURL, cfg.Grok.Model)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Watchdog:")
	fmt.Fprintf(out, "  Backup dir: %s\n", cfg.Watchdog.BackupDir)
	fmt.Fprintf(out, "  Watchlist: %s\n", cfg.Watchdog.WatchlistPath)
	fmt.Fprintf(out, "  Safety snapshot before rollback: %v\n", cfg.Watchdog.SnapshotBeforeRollback)
	if cfg.Watchdog.Retention.Unlimited() {
		fmt.Fprintln(out, "  Keep last: unlimited")
	} else {
		fmt.Fprintf(out, "  Keep last: %d\n", cfg.Watchdog.Retention.KeepLast)
	}
	fmt.Fprintf(out, "  Watch debounce: %s\n", cfg.Watchdog.Debounce)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Telegram: %v\n", cfg.Telegram != nil)
	if cfg.Telegram != nil {
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintln(out, "  Bot Token: (configured)")
	}

	return nil
}

func defaultModeLabel(m models.Mode) string {
	if m == "" {
		return "auto"
	}
	return m.Pretty()
}
