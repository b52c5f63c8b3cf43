// Package tasksvc runs detached background work off the request path.
//
// Tasks run at most once, on a best effort basis: a task is dropped when the queue is full
// or the runner is closed, and a failing task is logged, never retried.
package tasksvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
)

type task struct {
	id   string
	name string
	fn   func(ctx context.Context) error
}

type Runner struct {
	queue   chan task
	timeout time.Duration
	logger  core.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

var _ chat.TaskRunner = (*Runner)(nil)

// NewRunner starts `workers` goroutines consuming a queue of `queueSize` tasks.
// Each task gets its own context, cancelled after timeout.
func NewRunner(conf core.TasksConfig, logger core.Logger) *Runner {
	workers := conf.Workers
	if workers <= 0 {
		workers = 1
	}
	r := &Runner{
		queue:   make(chan task, conf.QueueSize),
		timeout: conf.Timeout,
		logger:  logger,
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.work()
	}
	return r
}

// Submit queues fn without blocking. It reports whether the task was queued.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := task{id: uuid.NewString(), name: name, fn: fn}
	if r.closed {
		r.logger.Warn("task runner closed; dropping task", map[string]interface{}{"task": t.name, "id": t.id})
		return false
	}
	select {
	case r.queue <- t:
		return true
	default:
		r.logger.Warn("task queue full; dropping task", map[string]interface{}{"task": t.name, "id": t.id})
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish, or for ctx to be done.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "draining task queue")
	}
}

func (r *Runner) work() {
	defer r.wg.Done()
	for t := range r.queue {
		r.run(t)
	}
}

func (r *Runner) run(t task) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked", errors.New(fmt.Sprint(rec)), map[string]interface{}{"task": t.name, "id": t.id})
		}
	}()

	if err := t.fn(ctx); err != nil {
		r.logger.Warn("task failed", err, map[string]interface{}{"task": t.name, "id": t.id})
	}
}
