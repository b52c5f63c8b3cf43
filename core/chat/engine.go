package chat

import (
	"context"
	"iter"
)

type (
	CompletionRequest struct {
		SystemPrompt string
		History      []Turn
		Current      Turn
	}

	// Engine is a hosted generation engine.
	// StreamCompletion yields text chunks as they are generated; an error ends the sequence.
	// Each call starts a new generation.
	Engine interface {
		StreamCompletion(ctx context.Context, req CompletionRequest) iter.Seq2[string, error]
	}

	// ActivityLogger persists chat turns. It is called off the request path and its failures are only logged.
	ActivityLogger interface {
		LogTurn(ctx context.Context, authHeader string, entry ActivityEntry) error
	}

	// TaskRunner runs detached work, at most once and on a best effort basis.
	TaskRunner interface {
		Submit(name string, fn func(ctx context.Context) error) bool
	}
)
