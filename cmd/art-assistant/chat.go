package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fgeck/art-assistant/internal/models"
	"github.com/fgeck/art-assistant/internal/services/dispatcher"
	"github.com/fgeck/art-assistant/internal/services/watchdog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const chatUsage = `watchdog commands:
  watchdog backup          snapshot the watchlist
  watchdog add <path>      watch a file
  watchdog rollback        restore the latest snapshot
  watchdog list            show watchlist and snapshots
  watchdog verify [name]   check a snapshot`

var (
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session. Type "help" for control commands,
"watchdog" for file safety commands and "exit" to leave.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := a.activity.Record(models.ActionStartup, map[string]any{
		"mode":    string(a.dispatcher.Mode()),
		"version": Version,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record startup")
	}

	session := newChatSession(log.Logger, a.dispatcher, a.watchdog, cmd.InOrStdin(), cmd.OutOrStdout())
	return session.run(ctx)
}

// chatSession is one REPL over in and out.
type chatSession struct {
	dispatcher dispatcher.Service
	watchdog   watchdog.Service
	in         io.Reader
	lines      <-chan string
	out        io.Writer
	logger     zerolog.Logger
}

func newChatSession(logger zerolog.Logger, d dispatcher.Service, wd watchdog.Service, in io.Reader, out io.Writer) *chatSession {
	return &chatSession{
		dispatcher: d,
		watchdog:   wd,
		in:         in,
		out:        out,
		logger:     logger,
	}
}

// readLines feeds in line by line so the loop can also watch for cancellation.
// Lines have no length limit. The channel is closed at EOF, on a read error or
// once ctx is done.
func (s *chatSession) readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(s.in)
		for {
			line, err := reader.ReadString('\n')
			if line != "" || err == nil {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.logger.Error().Err(err).Msg("failed to read chat input")
				}
				return
			}
		}
	}()
	return lines
}

func (s *chatSession) next(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-s.lines:
		return line, ok
	}
}

func (s *chatSession) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.lines = s.readLines(ctx)

	fmt.Fprintln(s.out, bannerStyle.Render("ART assistant"))
	fmt.Fprintln(s.out, dimStyle.Render(`Type "help" for commands, "exit" to quit.`))

	for {
		fmt.Fprint(s.out, promptStyle.Render(fmt.Sprintf("[%s] > ", s.dispatcher.Mode().Pretty())))

		line, ok := s.next(ctx)
		if !ok {
			fmt.Fprintln(s.out)
			return nil
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "exit", "quit":
			fmt.Fprintln(s.out, dimStyle.Render("Fair winds, cap'n!"))
			return nil
		}

		if s.handleWatchdog(ctx, input) {
			continue
		}

		result := s.dispatcher.Dispatch(ctx, input)
		s.logger.Debug().
			Str("mode", string(result.Mode)).
			Str("outcome", string(result.Outcome)).
			Dur("duration", result.Duration).
			Msg("dispatched")
		s.printReply(result)
	}
}

func (s *chatSession) printReply(result models.DispatchResult) {
	switch result.Outcome {
	case models.OutcomeTimeout, models.OutcomeFailure, models.OutcomeConfigError:
		fmt.Fprintln(s.out, warnStyle.Render(result.Text))
	default:
		fmt.Fprintln(s.out, replyStyle.Render(result.Text))
	}
}

// handleWatchdog runs "watchdog ..." lines and reports whether input was one.
func (s *chatSession) handleWatchdog(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 || strings.ToLower(fields[0]) != "watchdog" {
		return false
	}
	if len(fields) == 1 {
		fmt.Fprintln(s.out, chatUsage)
		return true
	}

	var err error
	switch strings.ToLower(fields[1]) {
	case "backup":
		var result *models.BackupResult
		if result, err = s.watchdog.Backup(ctx); err == nil {
			printBackup(s.out, result)
		}
	case "add":
		path := strings.Join(fields[2:], " ")
		if path == "" {
			fmt.Fprintln(s.out, "usage: watchdog add <path>")
			return true
		}
		var added bool
		if added, err = s.watchdog.Add(path); err == nil {
			printAdd(s.out, path, added)
		}
	case "rollback":
		err = s.rollback(ctx)
	case "list":
		err = printList(s.out, s.watchdog)
	case "verify":
		var result *models.VerifyResult
		if result, err = s.watchdog.Verify(strings.Join(fields[2:], " ")); err == nil {
			printVerify(s.out, result)
		}
	default:
		fmt.Fprintln(s.out, chatUsage)
	}

	if err != nil {
		s.logger.Debug().Err(err).Str("command", input).Msg("watchdog command failed")
		fmt.Fprintln(s.out, errorStyle.Render("Watchdog error: "+err.Error()))
	}
	return true
}

func (s *chatSession) rollback(ctx context.Context) error {
	fmt.Fprint(s.out, warnStyle.Render(fmt.Sprintf("This overwrites watch-listed files. Type %s to continue: ", rollbackConfirmation)))

	answer, ok := s.next(ctx)
	if !ok || strings.TrimSpace(answer) != rollbackConfirmation {
		fmt.Fprintln(s.out, "Rollback cancelled.")
		return nil
	}

	result, err := s.watchdog.Rollback(ctx)
	if err != nil {
		return err
	}
	printRollback(s.out, result)
	return nil
}
