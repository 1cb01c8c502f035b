// Package rollback restores watch-listed files from the latest snapshot.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/fgeck/art-assistant/internal/services/backup"
	"github.com/fgeck/art-assistant/internal/services/watchlist"
	"github.com/rs/zerolog"
)

// NoBackupsMessage is reported when there is nothing to roll back to.
const NoBackupsMessage = "No backups found!"

// Service defines the interface for rollback operations.
type Service interface {
	Rollback(ctx context.Context) (*models.RollbackResult, error)
}

// Impl implements the rollback Service interface.
type Impl struct {
	backups   backup.Service
	watchlist watchlist.Service
	rootDir   string
	safety    bool
	logger    zerolog.Logger
}

// New creates a new rollback service. With safety enabled a prerollback_
// snapshot of the live files is taken before anything is overwritten.
func New(logger zerolog.Logger, backups backup.Service, wl watchlist.Service, rootDir string, safety bool) *Impl {
	return &Impl{
		backups:   backups,
		watchlist: wl,
		rootDir:   rootDir,
		safety:    safety,
		logger:    logger,
	}
}

// Rollback overwrites every watch-listed file with its copy from the latest
// backup_ snapshot. Files absent from that snapshot are skipped.
func (s *Impl) Rollback(ctx context.Context) (*models.RollbackResult, error) {
	start := time.Now()

	source, err := s.backups.Latest(models.KindBackup)
	if errors.Is(err, backup.ErrNoSnapshots) {
		s.logger.Warn().Msg("no backups found, nothing to roll back")
		return &models.RollbackResult{
			NoSnapshot: true,
			Message:    NoBackupsMessage,
			Duration:   time.Since(start),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest snapshot: %w", err)
	}

	entries, err := s.watchlist.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}

	locations := s.snapshotLocations(source)
	result := &models.RollbackResult{Source: source}

	if s.safety {
		safety, err := s.backups.Backup(ctx, models.KindPreRollback)
		if err != nil {
			return nil, fmt.Errorf("safety snapshot failed, rollback aborted: %w", err)
		}
		if len(safety.Failed) > 0 {
			return nil, fmt.Errorf("safety snapshot %s incomplete (%d failed), rollback aborted",
				safety.Snapshot.Name, len(safety.Failed))
		}
		result.Safety = &safety.Snapshot
		s.logger.Info().Str("snapshot", safety.Snapshot.Name).Msg("safety snapshot taken")
	}

	s.logger.Info().
		Str("snapshot", source.Name).
		Int("files", len(entries)).
		Msg("starting rollback")

	for _, path := range entries {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, models.FileFailure{Path: path, Error: err})
			continue
		}

		rel, ok := locations[path]
		if !ok {
			rel = backup.RelPath(s.rootDir, path)
		}
		src := filepath.Join(source.Path, rel)

		if _, err := os.Stat(src); os.IsNotExist(err) {
			s.logger.Warn().Str("path", path).Str("snapshot", source.Name).Msg("no backup found")
			result.Skipped = append(result.Skipped, path)
			continue
		}

		if _, err := backup.CopyFile(src, path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to restore file")
			result.Failed = append(result.Failed, models.FileFailure{Path: path, Error: err})
			continue
		}

		result.Restored = append(result.Restored, path)
		s.logger.Debug().Str("path", path).Msg("restored file")
	}

	result.Duration = time.Since(start)
	result.Message = fmt.Sprintf("Rolled back %d file(s) from %s", len(result.Restored), source.Name)

	s.logger.Info().
		Str("snapshot", source.Name).
		Int("restored", len(result.Restored)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("rollback completed")

	return result, nil
}

// snapshotLocations maps source paths to their location in the snapshot as
// recorded by its manifest, so a later change of root_dir does not lose files.
func (s *Impl) snapshotLocations(snap models.Snapshot) map[string]string {
	locations := map[string]string{}

	manifest, err := backup.ReadManifest(snap.Path)
	if err != nil {
		s.logger.Debug().Err(err).Str("snapshot", snap.Name).Msg("no manifest, using root-relative paths")
		return locations
	}

	for _, f := range manifest.Files {
		locations[f.Source] = filepath.FromSlash(f.Rel)
	}
	return locations
}
