// Package router owns the active operating mode and recognises control commands.
package router

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownMode is returned for a mode name that matches no mode.
	ErrUnknownMode = errors.New("unknown mode")
	// ErrMissingCredential is returned when switching to a backend without an API key.
	ErrMissingCredential = errors.New("missing credential")
)

// CommandKind classifies a line of user input.
type CommandKind int

// Command kinds.
const (
	KindPrompt CommandKind = iota
	KindSwitch
	KindOfflineQuery
	KindHelp
	KindStatus
)

// Command is the parsed form of a line of user input.
type Command struct {
	Kind CommandKind
	// Mode is set for a KindSwitch with a recognised name.
	Mode models.Mode
	// Arg is the mode name for KindSwitch, the query for KindOfflineQuery
	// and the trimmed input for KindPrompt.
	Arg string
}

var switchPrefixes = []string{"switch to ", "api:", "mode:"}

const offlinePrefix = "art:"

// Parse classifies input. Matching is case-insensitive and ignores
// surrounding whitespace; anything that is not a control command is a prompt.
func Parse(input string) Command {
	trimmed := strings.TrimSpace(input)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "help":
		return Command{Kind: KindHelp}
	case "status":
		return Command{Kind: KindStatus}
	}

	for _, prefix := range switchPrefixes {
		if strings.HasPrefix(lower, prefix) {
			name := strings.TrimSpace(lower[len(prefix):])
			mode, err := ParseMode(name)
			if err != nil {
				return Command{Kind: KindSwitch, Arg: name}
			}
			return Command{Kind: KindSwitch, Mode: mode, Arg: name}
		}
	}

	if strings.HasPrefix(lower, offlinePrefix) {
		return Command{Kind: KindOfflineQuery, Arg: strings.TrimSpace(trimmed[len(offlinePrefix):])}
	}

	return Command{Kind: KindPrompt, Arg: trimmed}
}

// ParseMode maps a mode name or alias to a mode.
func ParseMode(name string) (models.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nanogpt", "nano", "a":
		return models.ModeNanoGPT, nil
	case "grok", "xai", "b":
		return models.ModeGrok, nil
	case "offline", "local":
		return models.ModeOffline, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
}

// Router holds the active mode. It is safe for concurrent use.
type Router struct {
	mu        sync.RWMutex
	mode      models.Mode
	available map[models.Mode]bool
	logger    zerolog.Logger
}

// New creates a router. The initial mode is preferred when its backend is
// available, otherwise NanoGPT, then Grok, then offline.
func New(logger zerolog.Logger, nanogpt, grok bool, preferred models.Mode) *Router {
	r := &Router{
		available: map[models.Mode]bool{
			models.ModeNanoGPT: nanogpt,
			models.ModeGrok:    grok,
			models.ModeOffline: true,
		},
		logger: logger,
	}

	switch {
	case preferred != "" && r.available[preferred]:
		r.mode = preferred
	case nanogpt:
		r.mode = models.ModeNanoGPT
	case grok:
		r.mode = models.ModeGrok
	default:
		r.mode = models.ModeOffline
	}

	logger.Info().Str("mode", string(r.mode)).Msg("initial mode selected")
	return r
}

// Mode returns the active mode.
func (r *Router) Mode() models.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Available reports whether mode has the credentials it needs.
func (r *Router) Available(mode models.Mode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[mode]
}

// Switch makes mode active. A backend without credentials is refused and
// the active mode is left unchanged.
func (r *Router) Switch(mode models.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	available, known := r.available[mode]
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if !available {
		r.logger.Warn().Str("mode", string(mode)).Msg("switch refused, backend not configured")
		return fmt.Errorf("%w: %s", ErrMissingCredential, mode.Pretty())
	}

	if r.mode != mode {
		r.logger.Info().Str("from", string(r.mode)).Str("to", string(mode)).Msg("mode switched")
	}
	r.mode = mode
	return nil
}
