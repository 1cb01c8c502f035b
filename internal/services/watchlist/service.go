// Package watchlist persists the set of files the watchdog snapshots.
package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
)

// Service defines the interface for watchlist operations.
type Service interface {
	Add(path string) (bool, error)
	List() ([]string, error)
}

// Impl implements the watchlist Service interface.
//
// The backing file is read in full on every call. There is no locking;
// a single writer is assumed.
type Impl struct {
	path   string
	logger zerolog.Logger
}

// New creates a watchlist service backed by the JSON file at path,
// creating it with an empty list if it does not exist.
func New(logger zerolog.Logger, path string) (*Impl, error) {
	s := &Impl{path: path, logger: logger}

	if _, err := os.Stat(path); err == nil {
		return s, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat watchlist: %w", err)
	}

	if err := s.write([]string{}); err != nil {
		return nil, err
	}
	logger.Info().Str("path", path).Msg("created empty watchlist")

	return s, nil
}

// Path returns the location of the backing file.
func (s *Impl) Path() string {
	return s.path
}

// Add appends path to the watchlist. It returns false without an error
// when the path is already listed.
func (s *Impl) Add(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	entries, err := s.List()
	if err != nil {
		return false, err
	}

	if slices.Contains(entries, abs) {
		s.logger.Info().Str("path", abs).Msg("already in watchlist")
		return false, nil
	}

	entries = append(entries, abs)
	if err := s.write(entries); err != nil {
		return false, err
	}

	s.logger.Info().Str("path", abs).Int("entries", len(entries)).Msg("added to watchlist")
	return true, nil
}

// List returns the watch-listed paths in insertion order.
func (s *Impl) List() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist %s: %w", s.path, err)
	}
	if entries == nil {
		entries = []string{}
	}

	return entries, nil
}

// write replaces the backing file through a temp file and rename.
func (s *Impl) write(entries []string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watchlist: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watchlist directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".watchlist-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write watchlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write watchlist: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace watchlist: %w", err)
	}

	return nil
}
