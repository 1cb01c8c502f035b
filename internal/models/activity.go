package models

import "time"

// Activity actions.
const (
	ActionDispatch = "DISPATCH"
	ActionWatchAdd = "WATCHLIST_ADD"
	ActionBackup   = "BACKUP"
	ActionRollback = "ROLLBACK"
	ActionPrune    = "PRUNE"
	ActionStartup  = "STARTUP"
)

// ActivityEntry is one line of the activity log.
type ActivityEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// ActivityVerifyResult holds the result of checking the activity hash chain.
type ActivityVerifyResult struct {
	Entries  int
	Valid    bool
	BadLine  int // 1-based, 0 when valid
	Reason   string
	LastHash string
}
