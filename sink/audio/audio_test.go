package audio

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webitel/notifyhub/internal/domain/event"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBellCountIsDeterministicAndIncreasesWithSeverity(t *testing.T) {
	assert.Equal(t, 1, bellCount(event.Info))
	assert.Equal(t, 1, bellCount(event.Success))
	assert.Equal(t, 2, bellCount(event.Warning))
	assert.Equal(t, 3, bellCount(event.Error))
}

func TestSendCommandRejectsEmptyArgv(t *testing.T) {
	err := sendCommand(context.Background(), nil, discardLogger())
	assert.ErrorContains(t, err, "argv is empty")
}

func TestSendCommandRejectsEmptyProgram(t *testing.T) {
	err := sendCommand(context.Background(), []string{"  "}, discardLogger())
	assert.ErrorContains(t, err, "program is empty")
}

func TestTerminalBellModeHasNoCommand(t *testing.T) {
	s, err := New(Config{})
	assert.NoError(t, err)
	assert.Empty(t, s.commandArgv)
	assert.Equal(t, "audio", s.Name())
}

func TestNewRejectsEmptyProgram(t *testing.T) {
	_, err := New(Config{CommandArgv: []string{"  "}})
	assert.ErrorContains(t, err, "program is empty")
}
