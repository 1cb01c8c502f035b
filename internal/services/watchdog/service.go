// Package watchdog orchestrates the file safety net: watchlist, snapshots,
// rollback, retention, notifications and the activity trail.
package watchdog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/fgeck/art-assistant/internal/services/activity"
	"github.com/fgeck/art-assistant/internal/services/backup"
	"github.com/fgeck/art-assistant/internal/services/rollback"
	"github.com/fgeck/art-assistant/internal/services/telegram"
	"github.com/fgeck/art-assistant/internal/services/watcher"
	"github.com/fgeck/art-assistant/internal/services/watchlist"
	"github.com/rs/zerolog"
)

// Service defines the interface for watchdog operations.
type Service interface {
	Add(path string) (bool, error)
	Watchlist() ([]string, error)
	Backup(ctx context.Context) (*models.BackupResult, error)
	Rollback(ctx context.Context) (*models.RollbackResult, error)
	Prune(ctx context.Context, policy models.RetentionPolicy) (*models.PruneResult, error)
	Snapshots() ([]models.Snapshot, error)
	Verify(name string) (*models.VerifyResult, error)
	Watch(ctx context.Context) error
}

// Impl implements the watchdog Service interface.
type Impl struct {
	watchlistSvc watchlist.Service
	backupSvc    backup.Service
	rollbackSvc  rollback.Service
	activitySvc  activity.Service
	telegramSvc  telegram.Service
	cfg          models.AppConfig
	host         string
	logger       zerolog.Logger

	// mu serialises operations that write snapshots or live files.
	mu sync.Mutex
}

// New creates a watchdog wired to the file-backed services named in cfg.
func New(logger zerolog.Logger, cfg models.AppConfig, act activity.Service) (*Impl, error) {
	wl, err := watchlist.New(logger, cfg.Watchdog.WatchlistPath)
	if err != nil {
		return nil, err
	}

	backups := backup.New(logger, wl, cfg.RootDir, cfg.Watchdog.BackupDir)
	rb := rollback.New(logger, backups, wl, cfg.RootDir, cfg.Watchdog.SnapshotBeforeRollback)

	return NewWithServices(logger, cfg, wl, backups, rb, act, telegram.New(logger)), nil
}

// NewWithServices creates a watchdog with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.AppConfig,
	wl watchlist.Service,
	backups backup.Service,
	rb rollback.Service,
	act activity.Service,
	tg telegram.Service,
) *Impl {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Impl{
		watchlistSvc: wl,
		backupSvc:    backups,
		rollbackSvc:  rb,
		activitySvc:  act,
		telegramSvc:  tg,
		cfg:          cfg,
		host:         host,
		logger:       logger,
	}
}

// Add puts path on the watchlist.
func (s *Impl) Add(path string) (bool, error) {
	added, err := s.watchlistSvc.Add(path)
	if err != nil {
		return false, err
	}

	s.record(models.ActionWatchAdd, map[string]any{"path": path, "added": added})
	return added, nil
}

// Watchlist returns the watch-listed paths.
func (s *Impl) Watchlist() ([]string, error) {
	return s.watchlistSvc.List()
}

// Backup takes a snapshot and, when a retention limit is configured, prunes
// older snapshots afterwards. A prune problem does not fail the backup.
func (s *Impl) Backup(ctx context.Context) (*models.BackupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.backupSvc.Backup(ctx, models.KindBackup)
	if err != nil {
		s.record(models.ActionBackup, map[string]any{"error": err.Error()})
		s.notify(ctx, models.TelegramMessage{Action: "backup", StartTime: start, ErrorMessage: err.Error()})
		return nil, fmt.Errorf("backup failed: %w", err)
	}

	if !s.cfg.Watchdog.Retention.Unlimited() {
		pruned, err := s.backupSvc.Prune(s.cfg.Watchdog.Retention)
		if err != nil {
			s.logger.Warn().Err(err).Msg("retention after backup failed")
		} else {
			result.Pruned = pruned.Removed
		}
	}

	s.record(models.ActionBackup, map[string]any{
		"snapshot": result.Snapshot.Name,
		"copied":   len(result.Copied),
		"missing":  result.Missing,
		"failed":   failurePaths(result.Failed),
		"bytes":    result.Bytes,
		"pruned":   result.Pruned,
	})

	s.notify(ctx, models.TelegramMessage{
		Success:   true,
		Action:    "backup",
		StartTime: start,
		Snapshot:  result.Snapshot.Name,
		Bytes:     result.Bytes,
		Copied:    len(result.Copied),
		Missing:   len(result.Missing),
		Failed:    len(result.Failed),
		Removed:   len(result.Pruned),
	})

	return result, nil
}

// Rollback restores the watch-listed files from the latest snapshot.
func (s *Impl) Rollback(ctx context.Context) (*models.RollbackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.rollbackSvc.Rollback(ctx)
	if err != nil {
		s.record(models.ActionRollback, map[string]any{"error": err.Error()})
		s.notify(ctx, models.TelegramMessage{Action: "rollback", StartTime: start, ErrorMessage: err.Error()})
		return nil, fmt.Errorf("rollback failed: %w", err)
	}

	details := map[string]any{
		"no_snapshot": result.NoSnapshot,
		"message":     result.Message,
	}
	if !result.NoSnapshot {
		details["snapshot"] = result.Source.Name
		details["restored"] = result.Restored
		details["skipped"] = result.Skipped
		details["failed"] = failurePaths(result.Failed)
		if result.Safety != nil {
			details["safety_snapshot"] = result.Safety.Name
		}
	}
	s.record(models.ActionRollback, details)

	if result.NoSnapshot {
		return result, nil
	}

	s.notify(ctx, models.TelegramMessage{
		Success:   true,
		Action:    "rollback",
		StartTime: start,
		Snapshot:  result.Source.Name,
		Restored:  len(result.Restored),
		Skipped:   len(result.Skipped),
		Failed:    len(result.Failed),
	})

	return result, nil
}

// Prune applies policy to the snapshot directory.
func (s *Impl) Prune(ctx context.Context, policy models.RetentionPolicy) (*models.PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.backupSvc.Prune(policy)
	if err != nil {
		s.notify(ctx, models.TelegramMessage{Action: "prune", StartTime: start, ErrorMessage: err.Error()})
		return nil, fmt.Errorf("prune failed: %w", err)
	}

	s.record(models.ActionPrune, map[string]any{
		"keep_last": policy.KeepLast,
		"removed":   result.Removed,
		"kept":      result.Kept,
	})

	if len(result.Removed) > 0 {
		s.notify(ctx, models.TelegramMessage{
			Success:   true,
			Action:    "prune",
			StartTime: start,
			Removed:   len(result.Removed),
			Failed:    len(result.Failed),
		})
	}

	return result, nil
}

// Snapshots lists backup and safety snapshots, oldest first.
func (s *Impl) Snapshots() ([]models.Snapshot, error) {
	var all []models.Snapshot
	for _, kind := range []models.SnapshotKind{models.KindBackup, models.KindPreRollback} {
		snapshots, err := s.backupSvc.List(kind)
		if err != nil {
			return nil, err
		}
		all = append(all, snapshots...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Name < all[j].Name
	})

	return all, nil
}

// Verify checks the named snapshot, or the latest backup when name is empty.
func (s *Impl) Verify(name string) (*models.VerifyResult, error) {
	if name == "" {
		latest, err := s.backupSvc.Latest(models.KindBackup)
		if err != nil {
			return nil, err
		}
		name = latest.Name
	}
	return s.backupSvc.Verify(name)
}

// Watch backs up whenever watch-listed files change, until ctx is cancelled.
func (s *Impl) Watch(ctx context.Context) error {
	w := watcher.New(s.logger, s.watchlistSvc, s.cfg.Watchdog.Debounce, func(ctx context.Context, _ []string) error {
		_, err := s.Backup(ctx)
		return err
	})
	return w.Run(ctx)
}

func (s *Impl) record(action string, details map[string]any) {
	if s.activitySvc == nil {
		return
	}
	if _, err := s.activitySvc.Record(action, details); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}

func (s *Impl) notify(ctx context.Context, msg models.TelegramMessage) {
	if s.cfg.Telegram == nil {
		return
	}

	msg.Host = s.host
	msg.RootDir = s.cfg.RootDir
	msg.Duration = time.Since(msg.StartTime)

	result, err := s.telegramSvc.SendNotification(ctx, *s.cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
	}
}

func failurePaths(failures []models.FileFailure) []string {
	paths := make([]string, 0, len(failures))
	for _, f := range failures {
		paths = append(paths, f.Path)
	}
	return paths
}
