package models

import (
	"os"
	"time"
)

// SnapshotKind separates regular backups from safety copies taken before a rollback.
type SnapshotKind string

// Snapshot kinds. The value doubles as the directory name prefix.
const (
	KindBackup      SnapshotKind = "backup_"
	KindPreRollback SnapshotKind = "prerollback_"
)

// Snapshot represents one snapshot directory under the backup root.
type Snapshot struct {
	Name      string
	Path      string
	Kind      SnapshotKind
	CreatedAt time.Time
}

// ManifestFile describes one file copied into a snapshot.
type ManifestFile struct {
	Source  string      `json:"source"`
	Rel     string      `json:"rel"`
	Size    int64       `json:"size"`
	Mode    os.FileMode `json:"mode"`
	ModTime time.Time   `json:"mod_time"`
	Digest  string      `json:"blake2b"`
}

// Manifest is written next to the copied files of every snapshot.
type Manifest struct {
	Snapshot  string         `json:"snapshot"`
	CreatedAt time.Time      `json:"created_at"`
	RootDir   string         `json:"root_dir"`
	Files     []ManifestFile `json:"files"`
	Missing   []string       `json:"missing"`
}

// FileFailure records a watch-listed file that could not be processed.
type FileFailure struct {
	Path  string
	Error error
}

// BackupResult holds the result of a backup operation.
type BackupResult struct {
	Snapshot Snapshot
	Copied   []string
	Missing  []string
	Failed   []FileFailure
	Bytes    int64
	Pruned   []string // snapshots removed by retention after this backup
	Duration time.Duration
}

// RollbackResult holds the result of a rollback operation.
type RollbackResult struct {
	NoSnapshot bool
	Source     Snapshot
	Safety     *Snapshot // nil when no safety snapshot was taken
	Restored   []string
	Skipped    []string // absent from the chosen snapshot
	Failed     []FileFailure
	Message    string
	Duration   time.Duration
}

// PruneResult holds the result of applying a retention policy.
type PruneResult struct {
	Removed []string
	Kept    int
	Failed  []FileFailure
}

// VerifyStatus is the verification outcome for one file.
type VerifyStatus string

// Verification outcomes.
const (
	VerifyOK       VerifyStatus = "ok"
	VerifyMismatch VerifyStatus = "mismatch"
	VerifyMissing  VerifyStatus = "missing"
)

// VerifyEntry is the verification result for one manifest file.
type VerifyEntry struct {
	Rel    string       `json:"rel"`
	Status VerifyStatus `json:"status"`
}

// VerifyResult holds the result of verifying a snapshot against its manifest.
type VerifyResult struct {
	Snapshot string        `json:"snapshot"`
	Entries  []VerifyEntry `json:"entries"`
}

// OK reports whether every file matched.
func (r VerifyResult) OK() bool {
	for _, e := range r.Entries {
		if e.Status != VerifyOK {
			return false
		}
	}
	return true
}
