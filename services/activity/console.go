package activitysvc

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core/chat"
)

type consoleLogger struct {
	std           *log.Logger
	disableOutput bool

	mu      sync.Mutex
	entries []chat.ActivityEntry
}

var _ chat.ActivityLogger = (*consoleLogger)(nil)

// NewConsoleLogger prints chat turns to std. Used when no backend is configured.
func NewConsoleLogger(std *log.Logger) *consoleLogger {
	return &consoleLogger{std: std}
}

// NewConsoleLoggerMock keeps chat turns in memory only.
func NewConsoleLoggerMock() *consoleLogger {
	return &consoleLogger{disableOutput: true}
}

func (l *consoleLogger) LogTurn(_ context.Context, _ string, entry chat.ActivityEntry) error {
	if l.disableOutput {
		l.mu.Lock()
		l.entries = append(l.entries, entry)
		l.mu.Unlock()
		return nil
	}
	out, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encoding chat turn")
	}
	l.std.Printf("chat turn: %s", out)
	return nil
}

// Entries returns the chat turns kept by the mock.
func (l *consoleLogger) Entries() []chat.ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]chat.ActivityEntry(nil), l.entries...)
}
