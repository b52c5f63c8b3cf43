package chat

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

var (
	ErrEmptyMessage        = core.NewValidationError(errors.New("message cannot be empty"))
	ErrQuotaExceeded       = errors.New("daily token quota exceeded")
	ErrEngineNotConfigured = errors.New("generation engine API key is not configured")
	ErrClientGone          = errors.New("client disconnected")
)

// RateLimitedError is returned when the per-minute request budget is exhausted.
type RateLimitedError struct {
	Result quota.Result
}

func (e *RateLimitedError) Error() string {
	return e.Result.Message
}

// StatusCoder is implemented by upstream errors carrying an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// UpstreamError is an error reported by the generation engine.
type UpstreamError struct {
	Code    int
	Message string
}

var _ StatusCoder = (*UpstreamError)(nil)

func (e *UpstreamError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
}

func (e *UpstreamError) StatusCode() int {
	return e.Code
}
