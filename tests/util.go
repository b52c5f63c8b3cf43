package testutil

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
)

const SecretKey = "test-secret"

func Token(t *testing.T, id auth.Identity) string {
	token, err := auth.NewToken(SecretKey, id, time.Hour)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return token
}

func NewValidator() *validator.Validate {
	validate, _ := NewValidatorAndTranslator()
	return validate
}

// NewValidatorAndTranslator returns a validator set up like the API's, with the translator holding its texts.
func NewValidatorAndTranslator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	chat.InitValidators(validate, translator)
	return validate, translator
}

// Attempt scripts one generation of a FakeEngine: Chunks are yielded, then Err if set.
type Attempt struct {
	Chunks []string
	Err    error
}

// FakeEngine replays scripted attempts, one per StreamCompletion call. The last attempt repeats.
type FakeEngine struct {
	mu       sync.Mutex
	attempts []Attempt
	calls    int
	requests []chat.CompletionRequest
}

var _ chat.Engine = (*FakeEngine)(nil)

func NewFakeEngine(attempts ...Attempt) *FakeEngine {
	return &FakeEngine{attempts: attempts}
}

func (e *FakeEngine) StreamCompletion(ctx context.Context, req chat.CompletionRequest) iter.Seq2[string, error] {
	e.mu.Lock()
	var attempt Attempt
	if n := len(e.attempts); n > 0 {
		attempt = e.attempts[min(e.calls, n-1)]
	}
	e.calls++
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, chunk := range attempt.Chunks {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if attempt.Err != nil {
			yield("", attempt.Err)
		}
	}
}

func (e *FakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *FakeEngine) Requests() []chat.CompletionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]chat.CompletionRequest(nil), e.requests...)
}

// SyncRunner runs submitted tasks right away, on the caller's goroutine.
type SyncRunner struct {
	mu     sync.Mutex
	Names  []string
	Errors []error
}

var _ chat.TaskRunner = (*SyncRunner)(nil)

func (r *SyncRunner) Submit(name string, fn func(ctx context.Context) error) bool {
	err := fn(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Names = append(r.Names, name)
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
	return true
}

func (r *SyncRunner) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, nm := range r.Names {
		if nm == name {
			n++
		}
	}
	return n
}

// ActivityRecorder is a chat.ActivityLogger keeping logged entries in memory.
type ActivityRecorder struct {
	mu      sync.Mutex
	Entries []chat.ActivityEntry
	Auth    []string
	Err     error // returned by LogTurn when set
}

var _ chat.ActivityLogger = (*ActivityRecorder)(nil)

func (r *ActivityRecorder) LogTurn(_ context.Context, authHeader string, entry chat.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, entry)
	r.Auth = append(r.Auth, authHeader)
	return r.Err
}

// Logger is a core.Logger keeping formatted messages in memory.
type Logger struct {
	mu   sync.Mutex
	Logs []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Logs = append(l.Logs, fmt.Sprintf("%s: %s %v", level, msg, args))
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

// NoSleep disables chat retry delays until the test ends.
func NoSleep(t *testing.T) {
	prev := chat.SleepFunc
	chat.SleepFunc = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { chat.SleepFunc = prev })
}
