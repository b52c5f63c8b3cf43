package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	retryNoticeFmt = "\n\n_[Connection interrupted. Retrying (%d/%d)...]_\n\n"
	failureNotice  = "\n\n_[Unable to complete response. Please try again.]_"
)

// SleepFunc waits for d or until ctx is done.
var SleepFunc = sleep // mockable

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type flusher interface {
	Flush()
}

// Streamer forwards engine chunks to a writer as they arrive, restarting the generation on transient failures.
type Streamer struct {
	engine Engine
}

func NewStreamer(engine Engine) *Streamer {
	return &Streamer{engine: engine}
}

// Stream writes the completion of req to w. Output already written is never retracted:
// a retry appends a notice and the new generation after it.
// On failure the error is returned, after a terminal notice unless the client went away.
func (s *Streamer) Stream(ctx context.Context, w io.Writer, req CompletionRequest) (StreamResult, error) {
	var res StreamResult
	var full strings.Builder

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		err := s.streamOnce(ctx, w, req, &full)
		if err == nil {
			res.FullResponse = full.String()
			return res, nil
		}

		action, delay := NextAction(res.Retries, err)
		switch action {
		case ActionAbort:
			res.FullResponse = full.String()
			return res, errors.Wrap(err, "streaming completion")
		case ActionRetry:
			res.Retries++
			notice := fmt.Sprintf(retryNoticeFmt, res.Retries, MaxRetries)
			res.Notices = append(res.Notices, notice)
			if wErr := write(w, notice); wErr != nil {
				res.FullResponse = full.String()
				return res, wErr
			}
			if sErr := SleepFunc(ctx, delay); sErr != nil {
				if Classify(sErr) != ActionAbort {
					res.Notices = append(res.Notices, failureNotice)
					_ = write(w, failureNotice)
				}
				res.FullResponse = full.String()
				return res, errors.Wrap(sErr, "waiting to retry completion")
			}
		default:
			res.Notices = append(res.Notices, failureNotice)
			_ = write(w, failureNotice)
			res.FullResponse = full.String()
			return res, errors.Wrap(err, "streaming completion")
		}
	}

	// unreachable: NextAction fails once retries are exhausted
	res.FullResponse = full.String()
	return res, errors.New("streaming completion: retries exhausted")
}

func (s *Streamer) streamOnce(ctx context.Context, w io.Writer, req CompletionRequest, full *strings.Builder) error {
	for chunk, err := range s.engine.StreamCompletion(ctx, req) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if wErr := write(w, chunk); wErr != nil {
			return wErr
		}
	}
	return ctx.Err()
}

// write sends p to the client right away.
func write(w io.Writer, p string) error {
	if _, err := io.WriteString(w, p); err != nil {
		return errors.Wrap(ErrClientGone, err.Error())
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}
