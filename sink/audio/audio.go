// Package audio implements the local notification sink: a terminal bell
// by default, or an operator-configured external command.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/webitel/notifyhub/internal/domain/event"
)

// Config configures a Sink. An empty (or nil) CommandArgv selects the
// terminal-bell mode; a non-empty CommandArgv spawns that command instead
// and never touches the bell.
type Config struct {
	CommandArgv []string
}

// Sink is the local audio/bell delivery adapter.
type Sink struct {
	commandArgv []string
	logger      *slog.Logger
}

// New builds a Sink, rejecting an empty program name up front. The
// command vector, if given, is trusted local configuration: the sink
// never interpolates event data into argv.
func New(cfg Config) (*Sink, error) {
	if err := validateArgv(cfg.CommandArgv); err != nil {
		return nil, err
	}
	return &Sink{commandArgv: cfg.CommandArgv, logger: slog.Default()}, nil
}

// validateArgv applies the same checks sendCommand relies on, but at
// construction time: an empty CommandArgv is valid (it selects terminal-
// bell mode), a non-empty one with a blank program name is not.
func validateArgv(argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	if strings.TrimSpace(argv[0]) == "" {
		return fmt.Errorf("sound command program is empty")
	}
	return nil
}

func (s *Sink) Name() string { return "audio" }

// bellCount maps severity to a deterministic, non-decreasing number of
// bell characters (Info and Success both ring once). The exact mapping is a documented design choice —
// see the audio sink section of DESIGN.md.
func bellCount(sev event.Severity) int {
	switch sev {
	case event.Warning:
		return 2
	case event.Error:
		return 3
	default:
		return 1
	}
}

func (s *Sink) Send(ctx context.Context, ev event.Event) error {
	if len(s.commandArgv) > 0 {
		return sendCommand(ctx, s.commandArgv, s.logger)
	}
	return sendTerminalBell(ev)
}

func sendTerminalBell(ev event.Event) error {
	const bell = "\a"
	n := bellCount(ev.Severity())
	for i := 0; i < n; i++ {
		if _, err := fmt.Fprint(os.Stderr, bell); err != nil {
			return err
		}
	}
	return nil
}

// sendCommand spawns argv[0] with argv[1:], reaping the child on a
// background goroutine so it never becomes a zombie even though the sink
// itself returns as soon as the process has started.
func sendCommand(ctx context.Context, argv []string, logger *slog.Logger) error {
	if len(argv) == 0 {
		return fmt.Errorf("sound command argv is empty")
	}
	program := strings.TrimSpace(argv[0])
	if program == "" {
		return fmt.Errorf("sound command program is empty")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn sound command %s: %w", program, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("notifyhub: sound command exited non-zero", slog.String("program", program), slog.Any("error", err))
		}
	}()

	return nil
}
