// Package activity keeps a hash-chained JSON-lines log of assistant actions.
package activity

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// GenesisHash is the prev_hash of the first entry.
const GenesisHash = "0"

// maxLine bounds a single log line when reading the file back.
const maxLine = 1 << 20

// Service defines the interface for activity log operations.
type Service interface {
	Record(action string, details map[string]any) (*models.ActivityEntry, error)
	Verify() (*models.ActivityVerifyResult, error)
}

// Impl implements the activity Service interface.
type Impl struct {
	path   string
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger

	mu       sync.Mutex
	lastHash string
	loaded   bool
}

// New creates an activity log writing to path.
func New(logger zerolog.Logger, path string) *Impl {
	return &Impl{
		path:   path,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}
}

// Path returns the location of the log file.
func (s *Impl) Path() string {
	return s.path
}

// Record appends an entry linked to the previous one.
func (s *Impl) Record(action string, details map[string]any) (*models.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		last, err := s.readLastHash()
		if err != nil {
			return nil, err
		}
		s.lastHash = last
		s.loaded = true
	}

	details, err := normalize(details)
	if err != nil {
		return nil, err
	}

	entry := models.ActivityEntry{
		ID:        s.newID(),
		Timestamp: s.now().UTC(),
		Action:    action,
		Details:   details,
		PrevHash:  s.lastHash,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create activity log directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // log is not secret
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write activity log: %w", err)
	}

	s.lastHash = entry.Hash
	s.logger.Debug().Str("action", action).Str("hash", entry.Hash).Msg("activity recorded")

	return &entry, nil
}

// readLastHash returns the hash of the last line, or GenesisHash for an
// empty or missing log.
func (s *Impl) readLastHash() (string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open activity log: %w", err)
	}
	defer func() { _ = f.Close() }()

	last := GenesisHash
	err = scanEntries(f, func(_ int, entry models.ActivityEntry, err error) bool {
		if err == nil {
			last = entry.Hash
		}
		return true
	})
	if err != nil {
		return "", fmt.Errorf("failed to read activity log: %w", err)
	}
	return last, nil
}

// Verify walks the log and reports the first line whose hash or link is wrong.
func (s *Impl) Verify() (*models.ActivityVerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &models.ActivityVerifyResult{Valid: true, LastHash: GenesisHash}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	defer func() { _ = f.Close() }()

	prev := GenesisHash
	err = scanEntries(f, func(line int, entry models.ActivityEntry, err error) bool {
		result.Entries++

		switch {
		case err != nil:
			result.Reason = fmt.Sprintf("unparseable entry: %v", err)
		case entry.PrevHash != prev:
			result.Reason = fmt.Sprintf("broken link: prev_hash %s, expected %s", entry.PrevHash, prev)
		default:
			want, hashErr := entryHash(entry)
			if hashErr != nil || want != entry.Hash {
				result.Reason = "hash mismatch"
			}
		}

		if result.Reason != "" {
			result.Valid = false
			result.BadLine = line
			return false
		}

		prev = entry.Hash
		result.LastHash = entry.Hash
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read activity log: %w", err)
	}

	s.logger.Info().
		Int("entries", result.Entries).
		Bool("valid", result.Valid).
		Int("bad_line", result.BadLine).
		Msg("activity log verified")

	return result, nil
}

// scanEntries calls fn for each non-empty line with its 1-based line number.
// Scanning stops early when fn returns false.
func scanEntries(r io.Reader, fn func(line int, entry models.ActivityEntry, err error) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var entry models.ActivityEntry
		err := json.Unmarshal(raw, &entry)
		if !fn(line, entry, err) {
			return nil
		}
	}
	return scanner.Err()
}

// normalize round-trips details through JSON so the hash computed now matches
// the one recomputed from the file later.
func normalize(details map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(details) == 0 {
		return out, nil
	}

	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity details: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize activity details: %w", err)
	}
	return out, nil
}

// entryHash is blake2b-256 over prev_hash|timestamp|action|details.
func entryHash(entry models.ActivityEntry) (string, error) {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return "", fmt.Errorf("failed to marshal activity details: %w", err)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	_, _ = fmt.Fprintf(h, "%s|%s|%s|", entry.PrevHash, entry.Timestamp.Format(time.RFC3339Nano), entry.Action)
	_, _ = h.Write(details)

	return hex.EncodeToString(h.Sum(nil)), nil
}
