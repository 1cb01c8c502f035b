// Package offline answers questions from a local Q&A corpus.
package offline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog"
)

// NoDataMessage is returned when nothing in the corpus matches.
const NoDataMessage = "Offline mode: no data for that one, cap'n!"

// Service defines the interface for offline lookups.
type Service interface {
	Answer(query string) (string, bool)
}

// Impl implements the offline Service interface.
type Impl struct {
	records []models.QARecord
	logger  zerolog.Logger
}

// New loads the corpus at path. A missing file yields an empty corpus.
func New(logger zerolog.Logger, path string) (*Impl, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("path", path).Msg("offline corpus not found, starting empty")
		return NewWithRecords(logger, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read offline corpus: %w", err)
	}

	records, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse offline corpus %s: %w", path, err)
	}

	logger.Info().Str("path", path).Int("records", len(records)).Msg("offline corpus loaded")
	return NewWithRecords(logger, records), nil
}

// NewWithRecords creates a service over an in-memory corpus.
func NewWithRecords(logger zerolog.Logger, records []models.QARecord) *Impl {
	return &Impl{records: records, logger: logger}
}

// Len returns the number of records.
func (s *Impl) Len() int {
	return len(s.records)
}

// parse accepts either a bare array of records or {"entries": [...]}.
func parse(data []byte) ([]models.QARecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []models.QARecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var doc struct {
		Entries []models.QARecord `json:"entries"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// minMatchLen is the shortest normalised text that may match as a fragment.
// Shorter queries and questions only match exactly.
const minMatchLen = 3

// Answer returns the answer of the first record matching query. A query
// matches when it equals the question, when the question contains it, or when
// the question appears in it as whole words. The second return value reports
// a match; on a miss the text is NoDataMessage.
func (s *Impl) Answer(query string) (string, bool) {
	q := normalize(query)
	if q == "" {
		return NoDataMessage, false
	}

	for _, r := range s.records {
		question := normalize(r.Question)
		if question == "" {
			continue
		}
		if matches(q, question) {
			s.logger.Debug().Str("query", q).Str("question", r.Question).Msg("offline match")
			return r.Answer, true
		}
	}

	s.logger.Debug().Str("query", q).Msg("no offline match")
	return NoDataMessage, false
}

func matches(query, question string) bool {
	if query == question {
		return true
	}
	if len([]rune(query)) >= minMatchLen && strings.Contains(question, query) {
		return true
	}
	if len([]rune(question)) >= minMatchLen && strings.Contains(words(query), words(question)) {
		return true
	}
	return false
}

// words reduces s to its letter and digit runs, space separated and padded, so
// that containment only lines up on word boundaries.
func words(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ") + " "
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "?!.")
	return strings.TrimSpace(s)
}
