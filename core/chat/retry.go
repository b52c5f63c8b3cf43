package chat

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// MaxRetries is the number of times a generation is restarted after a transient failure.
const MaxRetries = 2

type Action int

const (
	ActionDone  Action = iota // completed
	ActionRetry               // transient failure, retries left
	ActionFail                // fatal failure or retries exhausted
	ActionAbort               // client went away: stop without notice
)

func (a Action) String() string {
	switch a {
	case ActionDone:
		return "done"
	case ActionRetry:
		return "retry"
	case ActionFail:
		return "fail"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

var (
	retryableMessages = []string{"network", "timeout", "econnreset"}
	retryableStatuses = map[int]bool{503: true, 429: true}

	// 1s, 2s, ...
	retryDelays = backoffSchedule(MaxRetries)
)

func backoffSchedule(n int) []time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()

	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = b.NextBackOff()
	}
	return delays
}

// Classify tells what to do about a generation error, regardless of the retries left.
func Classify(err error) Action {
	if err == nil {
		return ActionDone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClientGone) {
		return ActionAbort
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionFail
	}

	var sc StatusCoder
	if errors.As(err, &sc) && retryableStatuses[sc.StatusCode()] {
		return ActionRetry
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableMessages {
		if strings.Contains(msg, s) {
			return ActionRetry
		}
	}
	return ActionFail
}

// NextAction returns the action for err given the number of retries already made,
// and the delay to wait before retrying.
func NextAction(retries int, err error) (Action, time.Duration) {
	action := Classify(err)
	if action != ActionRetry {
		return action, 0
	}
	if retries >= MaxRetries {
		return ActionFail, 0
	}
	return ActionRetry, retryDelays[retries]
}
