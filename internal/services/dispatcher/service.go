// Package dispatcher turns a line of user input into a reply, resolving control
// commands locally and forwarding prompts to the active backend.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/fgeck/art-assistant/internal/services/activity"
	"github.com/fgeck/art-assistant/internal/services/offline"
	"github.com/fgeck/art-assistant/internal/services/router"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Replies substituted for a failed backend call.
const (
	NanoGPTApology = "NanoGPT offline: Server's lost, cap'n!"
	GrokApology    = "Grok offline: Auth failed, check yer key, mate!"
)

// EmptyInputReply answers a blank line.
const EmptyInputReply = "Say something, cap'n!"

// HelpText lists the control commands.
const HelpText = `Commands:
  switch to <nanogpt|grok|offline>   change mode (also api:<name>, mode:<name>)
  art: <question>                    ask the offline corpus directly
  status                             show the current mode
  help                               show this list`

var apologies = map[models.Mode]string{
	models.ModeNanoGPT: NanoGPTApology,
	models.ModeGrok:    GrokApology,
}

var credentialEnv = map[models.Mode]string{
	models.ModeNanoGPT: "NANOGPT_API_KEY",
	models.ModeGrok:    "XAI_API_KEY",
}

// Backend is a remote chat service.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service defines the interface for dispatching user input.
type Service interface {
	Dispatch(ctx context.Context, input string) models.DispatchResult
	Mode() models.Mode
}

// Impl implements the dispatcher Service interface.
type Impl struct {
	router   *router.Router
	backends map[models.Mode]Backend
	offline  offline.Service
	activity activity.Service
	sem      *semaphore.Weighted
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a dispatcher. backends holds the configured remote backends
// keyed by mode.
func New(
	logger zerolog.Logger,
	r *router.Router,
	backends map[models.Mode]Backend,
	off offline.Service,
	act activity.Service,
	settings models.DispatchSettings,
) *Impl {
	inflight := settings.MaxInflight
	if inflight <= 0 {
		inflight = 1
	}

	return &Impl{
		router:   r,
		backends: backends,
		offline:  off,
		activity: act,
		sem:      semaphore.NewWeighted(int64(inflight)),
		timeout:  settings.Timeout,
		logger:   logger,
	}
}

// Mode returns the active mode.
func (d *Impl) Mode() models.Mode {
	return d.router.Mode()
}

// Dispatch never fails: every problem is turned into reply text. The active
// mode only changes through an explicit switch command.
func (d *Impl) Dispatch(ctx context.Context, input string) models.DispatchResult {
	start := time.Now()
	cmd := router.Parse(input)

	var result models.DispatchResult
	switch cmd.Kind {
	case router.KindSwitch:
		result = d.switchMode(cmd)
	case router.KindOfflineQuery:
		text, _ := d.offline.Answer(cmd.Arg)
		result = models.DispatchResult{Text: text, Outcome: models.OutcomeOffline, Mode: models.ModeOffline}
	case router.KindHelp:
		result = models.DispatchResult{Text: HelpText, Outcome: models.OutcomeControl, Mode: d.router.Mode()}
	case router.KindStatus:
		result = models.DispatchResult{Text: d.Status(), Outcome: models.OutcomeControl, Mode: d.router.Mode()}
	default:
		if cmd.Arg == "" {
			return models.DispatchResult{Text: EmptyInputReply, Outcome: models.OutcomeControl, Mode: d.router.Mode()}
		}
		result = d.ask(ctx, cmd.Arg)
	}

	result.Duration = time.Since(start)
	d.record(input, result)

	return result
}

// Status describes the active mode and which backends are usable.
func (d *Impl) Status() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", d.router.Mode().Pretty())
	for _, mode := range []models.Mode{models.ModeNanoGPT, models.ModeGrok} {
		state := "not configured"
		if d.router.Available(mode) {
			state = "configured"
		}
		fmt.Fprintf(&b, "  %s: %s\n", mode.Pretty(), state)
	}
	b.WriteString("  Offline: always available")
	return b.String()
}

func (d *Impl) switchMode(cmd router.Command) models.DispatchResult {
	if cmd.Mode == "" {
		return models.DispatchResult{
			Text:    fmt.Sprintf("Unknown mode %q. Try nanogpt, grok or offline.", cmd.Arg),
			Outcome: models.OutcomeControl,
			Mode:    d.router.Mode(),
		}
	}

	if err := d.router.Switch(cmd.Mode); err != nil {
		text := fmt.Sprintf("Config error: cannot switch to %s: %v", cmd.Mode.Pretty(), err)
		if errors.Is(err, router.ErrMissingCredential) {
			text = fmt.Sprintf("Config error: no API key for %s. Set %s and try again.",
				cmd.Mode.Pretty(), credentialEnv[cmd.Mode])
		}
		return models.DispatchResult{Text: text, Outcome: models.OutcomeConfigError, Mode: d.router.Mode()}
	}

	return models.DispatchResult{
		Text:    fmt.Sprintf("Switched to %s mode", cmd.Mode.Pretty()),
		Outcome: models.OutcomeSwitched,
		Mode:    cmd.Mode,
	}
}

func (d *Impl) ask(ctx context.Context, prompt string) models.DispatchResult {
	mode := d.router.Mode()

	if mode == models.ModeOffline {
		text, _ := d.offline.Answer(prompt)
		return models.DispatchResult{Text: text, Outcome: models.OutcomeOffline, Mode: mode}
	}

	backend, ok := d.backends[mode]
	if !ok {
		return models.DispatchResult{
			Text:    fmt.Sprintf("Config error: %s backend is not set up.", mode.Pretty()),
			Outcome: models.OutcomeConfigError,
			Mode:    mode,
		}
	}

	text, outcome := d.call(ctx, mode, backend, prompt)
	return models.DispatchResult{Text: text, Outcome: outcome, Mode: mode}
}

type reply struct {
	text string
	err  error
}

// call runs the backend in a worker bounded by the semaphore and waits at most
// d.timeout. The worker's context is cancelled when call returns, so an
// abandoned request is torn down instead of lingering.
func (d *Impl) call(ctx context.Context, mode models.Mode, backend Backend, prompt string) (string, models.Outcome) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.Warn().Err(err).Str("backend", backend.Name()).Msg("no free worker before deadline")
		return apologies[mode], timeoutOutcome(ctx)
	}

	replies := make(chan reply, 1)
	go func() {
		defer d.sem.Release(1)
		text, err := backend.Complete(ctx, prompt)
		replies <- reply{text: text, err: err}
	}()

	select {
	case r := <-replies:
		if r.err != nil {
			d.logger.Warn().Err(r.err).Str("backend", backend.Name()).Msg("backend call failed")
			if errors.Is(r.err, context.DeadlineExceeded) {
				return apologies[mode], models.OutcomeTimeout
			}
			return apologies[mode], models.OutcomeFailure
		}
		d.logger.Debug().Str("backend", backend.Name()).Msg("backend replied")
		return r.text, models.OutcomeSuccess
	case <-ctx.Done():
		d.logger.Warn().Err(ctx.Err()).Str("backend", backend.Name()).Dur("timeout", d.timeout).Msg("backend call abandoned")
		return apologies[mode], timeoutOutcome(ctx)
	}
}

func timeoutOutcome(ctx context.Context) models.Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.OutcomeTimeout
	}
	return models.OutcomeFailure
}

func (d *Impl) record(input string, result models.DispatchResult) {
	if d.activity == nil {
		return
	}

	_, err := d.activity.Record(models.ActionDispatch, map[string]any{
		"input":       input,
		"reply":       result.Text,
		"mode":        string(result.Mode),
		"outcome":     string(result.Outcome),
		"duration_ms": result.Duration.Milliseconds(),
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to record dispatch")
	}
}
