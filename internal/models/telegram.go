package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a watchdog notification.
type TelegramMessage struct {
	Success   bool
	Action    string // "backup", "rollback", "prune"
	Host      string
	RootDir   string
	StartTime time.Time
	Duration  time.Duration

	Snapshot string
	Bytes    int64
	Copied   int
	Missing  int
	Failed   int
	Restored int
	Skipped  int
	Removed  int

	// Error info (if failed).
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
