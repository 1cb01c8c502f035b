// Package backup creates and manages timestamped snapshots of watch-listed files.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/fgeck/art-assistant/internal/services/watchlist"
	"github.com/rs/zerolog"
)

// TimestampLayout is the timestamp embedded in snapshot directory names.
const TimestampLayout = "20060102_150405"

// ManifestName is the manifest file written into every snapshot.
const ManifestName = ".snapshot.json"

// maxCollisions bounds the suffixes tried when a snapshot name is taken.
const maxCollisions = 99

var (
	// ErrNoSnapshots is returned when no snapshot of the requested kind exists.
	ErrNoSnapshots = errors.New("no snapshots found")
	// ErrSnapshotNotFound is returned when a named snapshot does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Service defines the interface for snapshot operations.
type Service interface {
	Backup(ctx context.Context, kind models.SnapshotKind) (*models.BackupResult, error)
	List(kind models.SnapshotKind) ([]models.Snapshot, error)
	Latest(kind models.SnapshotKind) (models.Snapshot, error)
	Verify(name string) (*models.VerifyResult, error)
	Prune(policy models.RetentionPolicy) (*models.PruneResult, error)
}

// Impl implements the backup Service interface.
type Impl struct {
	watchlist watchlist.Service
	rootDir   string
	backupDir string
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a new backup service.
func New(logger zerolog.Logger, wl watchlist.Service, rootDir, backupDir string) *Impl {
	return NewWithClock(logger, wl, rootDir, backupDir, time.Now)
}

// NewWithClock creates a new backup service with a custom clock (for testing).
func NewWithClock(logger zerolog.Logger, wl watchlist.Service, rootDir, backupDir string, now func() time.Time) *Impl {
	return &Impl{
		watchlist: wl,
		rootDir:   rootDir,
		backupDir: backupDir,
		now:       now,
		logger:    logger,
	}
}

// Dir returns the backup root.
func (s *Impl) Dir() string {
	return s.backupDir
}

// Backup copies every watch-listed file into a new snapshot directory.
// Missing or unreadable files are reported in the result and skipped.
func (s *Impl) Backup(ctx context.Context, kind models.SnapshotKind) (*models.BackupResult, error) {
	start := time.Now()

	entries, err := s.watchlist.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	created := s.now()
	snap, err := s.createDir(kind, created)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("snapshot", snap.Name).
		Int("files", len(entries)).
		Msg("starting backup")

	result := &models.BackupResult{Snapshot: snap}
	manifest := models.Manifest{
		Snapshot:  snap.Name,
		CreatedAt: created,
		RootDir:   s.rootDir,
		Files:     []models.ManifestFile{},
		Missing:   []string{},
	}

	for _, path := range entries {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, models.FileFailure{Path: path, Error: err})
			continue
		}

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			s.logger.Warn().Str("path", path).Msg("file not found for backup")
			result.Missing = append(result.Missing, path)
			manifest.Missing = append(manifest.Missing, path)
			continue
		}
		if err != nil {
			s.recordFailure(result, path, err)
			continue
		}

		rel := RelPath(s.rootDir, path)
		digest, err := CopyFile(path, filepath.Join(snap.Path, rel))
		if err != nil {
			s.recordFailure(result, path, err)
			continue
		}

		manifest.Files = append(manifest.Files, models.ManifestFile{
			Source:  path,
			Rel:     filepath.ToSlash(rel),
			Size:    info.Size(),
			Mode:    info.Mode().Perm(),
			ModTime: info.ModTime(),
			Digest:  digest,
		})
		result.Copied = append(result.Copied, path)
		result.Bytes += info.Size()
		s.logger.Debug().Str("path", path).Str("rel", rel).Msg("backed up file")
	}

	if err := writeManifest(snap.Path, manifest); err != nil {
		s.recordFailure(result, filepath.Join(snap.Path, ManifestName), err)
	}

	result.Duration = time.Since(start)

	s.logger.Info().
		Str("snapshot", snap.Path).
		Int("copied", len(result.Copied)).
		Int("missing", len(result.Missing)).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("backup completed")

	return result, nil
}

func (s *Impl) recordFailure(result *models.BackupResult, path string, err error) {
	s.logger.Warn().Err(err).Str("path", path).Msg("failed to back up file")
	result.Failed = append(result.Failed, models.FileFailure{Path: path, Error: err})
}

// createDir makes a fresh snapshot directory. Two snapshots within the same
// second get _01, _02, ... suffixes, which still sort after the first one.
func (s *Impl) createDir(kind models.SnapshotKind, at time.Time) (models.Snapshot, error) {
	base := string(kind) + at.Format(TimestampLayout)
	name := base

	for i := 1; ; i++ {
		path := filepath.Join(s.backupDir, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return models.Snapshot{Name: name, Path: path, Kind: kind, CreatedAt: at}, nil
		}
		if !os.IsExist(err) {
			return models.Snapshot{}, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		if i > maxCollisions {
			return models.Snapshot{}, fmt.Errorf("too many snapshots for %s", base)
		}

		s.logger.Warn().Str("snapshot", name).Msg("snapshot name taken, adding suffix")
		name = fmt.Sprintf("%s_%02d", base, i)
	}
}

func writeManifest(dir string, manifest models.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil { //nolint:gosec // manifest is not secret
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of the snapshot in dir.
func ReadManifest(dir string) (*models.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest models.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}

// List returns the snapshots of kind sorted oldest first.
func (s *Impl) List(kind models.SnapshotKind) ([]models.Snapshot, error) {
	dirEntries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var snapshots []models.Snapshot
	for _, e := range dirEntries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), string(kind)) {
			continue
		}

		created, ok := parseTimestamp(strings.TrimPrefix(e.Name(), string(kind)))
		if !ok {
			continue
		}

		snapshots = append(snapshots, models.Snapshot{
			Name:      e.Name(),
			Path:      filepath.Join(s.backupDir, e.Name()),
			Kind:      kind,
			CreatedAt: created,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name < snapshots[j].Name
	})

	return snapshots, nil
}

// parseTimestamp accepts "YYYYMMDD_HHMMSS" optionally followed by a "_NN"
// collision suffix.
func parseTimestamp(s string) (time.Time, bool) {
	if len(s) < len(TimestampLayout) {
		return time.Time{}, false
	}
	if !validSuffix(s[len(TimestampLayout):]) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, s[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func validSuffix(s string) bool {
	if s == "" {
		return true
	}
	if len(s) != 3 || s[0] != '_' {
		return false
	}
	return s[1] >= '0' && s[1] <= '9' && s[2] >= '0' && s[2] <= '9'
}

// Latest returns the snapshot of kind with the greatest name.
func (s *Impl) Latest(kind models.SnapshotKind) (models.Snapshot, error) {
	snapshots, err := s.List(kind)
	if err != nil {
		return models.Snapshot{}, err
	}
	if len(snapshots) == 0 {
		return models.Snapshot{}, ErrNoSnapshots
	}
	return snapshots[len(snapshots)-1], nil
}

// Verify recomputes the digests recorded in a snapshot manifest.
func (s *Impl) Verify(name string) (*models.VerifyResult, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}

	dir := filepath.Join(s.backupDir, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	result := &models.VerifyResult{Snapshot: name}
	for _, f := range manifest.Files {
		entry := models.VerifyEntry{Rel: f.Rel, Status: models.VerifyOK}

		digest, err := Digest(filepath.Join(dir, filepath.FromSlash(f.Rel)))
		switch {
		case os.IsNotExist(err):
			entry.Status = models.VerifyMissing
		case err != nil:
			s.logger.Warn().Err(err).Str("rel", f.Rel).Msg("failed to hash snapshot file")
			entry.Status = models.VerifyMismatch
		case digest != f.Digest:
			entry.Status = models.VerifyMismatch
		}

		result.Entries = append(result.Entries, entry)
	}

	s.logger.Info().
		Str("snapshot", name).
		Int("files", len(result.Entries)).
		Bool("ok", result.OK()).
		Msg("snapshot verified")

	return result, nil
}

// Prune deletes the oldest snapshots of each kind beyond policy.KeepLast.
// An unlimited policy deletes nothing.
func (s *Impl) Prune(policy models.RetentionPolicy) (*models.PruneResult, error) {
	result := &models.PruneResult{}

	for _, kind := range []models.SnapshotKind{models.KindBackup, models.KindPreRollback} {
		snapshots, err := s.List(kind)
		if err != nil {
			return nil, err
		}

		if policy.Unlimited() || len(snapshots) <= policy.KeepLast {
			result.Kept += len(snapshots)
			continue
		}

		excess := len(snapshots) - policy.KeepLast
		for _, snap := range snapshots[:excess] {
			if err := os.RemoveAll(snap.Path); err != nil {
				s.logger.Warn().Err(err).Str("snapshot", snap.Name).Msg("failed to remove snapshot")
				result.Failed = append(result.Failed, models.FileFailure{Path: snap.Path, Error: err})
				continue
			}
			result.Removed = append(result.Removed, snap.Name)
		}
		result.Kept += policy.KeepLast
	}

	s.logger.Info().
		Int("keep_last", policy.KeepLast).
		Int("removed", len(result.Removed)).
		Int("kept", result.Kept).
		Msg("retention policy applied")

	return result, nil
}
