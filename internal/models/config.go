// Package models contains the data structures used throughout art-assistant.
package models

import "time"

// AppConfig holds the complete configuration for the assistant.
type AppConfig struct {
	RootDir     string
	DefaultMode Mode // empty means pick from available credentials
	NanoGPT     NanoGPTConfig
	Grok        GrokConfig
	Dispatch    DispatchSettings
	Offline     OfflineSettings
	Watchdog    WatchdogSettings
	Activity    ActivitySettings
	Telegram    *TelegramConfig // nil if not configured
}

// NanoGPTConfig holds the NanoGPT backend configuration.
type NanoGPTConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Configured reports whether a credential is present.
func (c NanoGPTConfig) Configured() bool { return c.APIKey != "" }

// GrokConfig holds the Grok (xAI) backend configuration.
type GrokConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Configured reports whether a credential is present.
func (c GrokConfig) Configured() bool { return c.APIKey != "" }

// DispatchSettings controls how remote backend calls are issued.
type DispatchSettings struct {
	Timeout     time.Duration // bounded wait for one backend reply
	MaxInflight int           // upper bound on live backend workers
}

// OfflineSettings points at the local Q&A corpus.
type OfflineSettings struct {
	CorpusPath string
}

// WatchdogSettings holds backup and rollback settings.
type WatchdogSettings struct {
	BackupDir              string
	WatchlistPath          string
	SnapshotBeforeRollback bool
	Retention              RetentionPolicy
	Debounce               time.Duration // quiet period before the watcher backs up
}

// RetentionPolicy defines how many snapshots to keep per kind.
// KeepLast <= 0 keeps every snapshot.
type RetentionPolicy struct {
	KeepLast int
}

// Unlimited reports whether the policy never deletes snapshots.
func (p RetentionPolicy) Unlimited() bool { return p.KeepLast <= 0 }

// ActivitySettings holds the activity log location.
type ActivitySettings struct {
	LogPath string
}
