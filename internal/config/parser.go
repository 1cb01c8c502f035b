// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/spf13/viper"
)

// Default backend endpoints and models.
const (
	DefaultNanoGPTURL   = "https://nano-gpt.com/api"
	DefaultNanoGPTModel = "chatgpt-4o-latest"
	DefaultGrokURL      = "https://api.x.ai/v1"
	DefaultGrokModel    = "grok-3"
	DefaultMaxTokens    = 500
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("backends.nanogpt.api_key", "${NANOGPT_API_KEY}")
	v.SetDefault("backends.nanogpt.base_url", DefaultNanoGPTURL)
	v.SetDefault("backends.nanogpt.model", DefaultNanoGPTModel)
	v.SetDefault("backends.grok.api_key", "${XAI_API_KEY}")
	v.SetDefault("backends.grok.base_url", DefaultGrokURL)
	v.SetDefault("backends.grok.model", DefaultGrokModel)
	v.SetDefault("backends.grok.max_tokens", DefaultMaxTokens)
	v.SetDefault("dispatch.timeout", 10*time.Second)
	v.SetDefault("dispatch.max_inflight", 2)
	v.SetDefault("watchdog.snapshot_before_rollback", true)
	v.SetDefault("watchdog.watch.debounce", 2*time.Second)

	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.AppConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.AppConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// LoadDefaults builds a configuration without a file.
func (p *Parser) LoadDefaults() (*models.AppConfig, error) {
	return p.LoadReader("")
}

//nolint:gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.AppConfig, error) {
	cfg := &models.AppConfig{}

	cfg.RootDir = p.expandEnv(p.v.GetString("root_dir"))
	if cfg.RootDir == "" {
		cfg.RootDir = os.Getenv("ART_ROOT")
	}
	if cfg.RootDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		cfg.RootDir = wd
	}
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root_dir: %w", err)
	}
	cfg.RootDir = root

	cfg.DefaultMode = models.Mode(strings.ToLower(p.v.GetString("default_mode")))
	switch cfg.DefaultMode {
	case "", models.ModeNanoGPT, models.ModeGrok, models.ModeOffline:
	default:
		return nil, fmt.Errorf("default_mode must be one of: nanogpt, grok, offline")
	}

	// Backends. Empty credentials leave the backend unavailable.
	cfg.NanoGPT = models.NanoGPTConfig{
		APIKey:  p.expandEnv(p.v.GetString("backends.nanogpt.api_key")),
		BaseURL: strings.TrimRight(p.v.GetString("backends.nanogpt.base_url"), "/"),
		Model:   p.v.GetString("backends.nanogpt.model"),
	}
	cfg.Grok = models.GrokConfig{
		APIKey:    p.expandEnv(p.v.GetString("backends.grok.api_key")),
		BaseURL:   strings.TrimRight(p.v.GetString("backends.grok.base_url"), "/"),
		Model:     p.v.GetString("backends.grok.model"),
		MaxTokens: p.v.GetInt("backends.grok.max_tokens"),
	}
	if cfg.Grok.MaxTokens <= 0 {
		cfg.Grok.MaxTokens = DefaultMaxTokens
	}

	cfg.Dispatch = models.DispatchSettings{
		Timeout:     p.v.GetDuration("dispatch.timeout"),
		MaxInflight: p.v.GetInt("dispatch.max_inflight"),
	}
	if cfg.Dispatch.Timeout <= 0 {
		return nil, fmt.Errorf("dispatch.timeout must be positive")
	}
	if cfg.Dispatch.MaxInflight <= 0 {
		cfg.Dispatch.MaxInflight = 1
	}

	cfg.Offline = models.OfflineSettings{
		CorpusPath: p.path(cfg.RootDir, "offline.corpus_path", "ART_DB", "knowledge", "qa.json"),
	}

	cfg.Watchdog = models.WatchdogSettings{
		BackupDir:              p.path(cfg.RootDir, "watchdog.backup_dir", "ARTchain", "backups"),
		WatchlistPath:          p.path(cfg.RootDir, "watchdog.watchlist", "ARTchain", "watchlist.json"),
		SnapshotBeforeRollback: p.v.GetBool("watchdog.snapshot_before_rollback"),
		Retention: models.RetentionPolicy{
			KeepLast: p.v.GetInt("watchdog.retention.keep_last"),
		},
		Debounce: p.v.GetDuration("watchdog.watch.debounce"),
	}
	if cfg.Watchdog.Retention.KeepLast < 0 {
		return nil, fmt.Errorf("watchdog.retention.keep_last must not be negative")
	}
	if cfg.Watchdog.Debounce <= 0 {
		cfg.Watchdog.Debounce = 2 * time.Second
	}

	cfg.Activity = models.ActivitySettings{
		LogPath: p.path(cfg.RootDir, "activity.log_path", "ARTchain", "logs", "activity.log.jsonl"),
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// path reads a path setting, falling back to root joined with def.
// Relative values are resolved against root.
func (p *Parser) path(root, key string, def ...string) string {
	value := p.expandEnv(p.v.GetString(key))
	if value == "" {
		return filepath.Join(append([]string{root}, def...)...)
	}
	if !filepath.IsAbs(value) {
		value = filepath.Join(root, value)
	}
	return filepath.Clean(value)
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}

	if cfg.Watchdog.BackupDir == "" {
		return fmt.Errorf("watchdog.backup_dir is required")
	}

	if cfg.Watchdog.WatchlistPath == "" {
		return fmt.Errorf("watchdog.watchlist is required")
	}

	if cfg.DefaultMode == models.ModeNanoGPT && !cfg.NanoGPT.Configured() {
		return fmt.Errorf("default_mode nanogpt requires backends.nanogpt.api_key")
	}

	if cfg.DefaultMode == models.ModeGrok && !cfg.Grok.Configured() {
		return fmt.Errorf("default_mode grok requires backends.grok.api_key")
	}

	if cfg.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be positive")
	}

	return nil
}
