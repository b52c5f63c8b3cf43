// Package quota defines the per-user request rate limit and daily token budget.
package quota

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	// Window is the fixed rate limit window.
	Window = time.Minute

	DefaultRequestsPerMinute = 10
	DefaultTokensPerDay      = 100000

	RateLimitMessage = "Rate limit exceeded. Please try again later."
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNegativeTokens = errors.New("token count cannot be negative")
)

type (
	Limits struct {
		RequestsPerMinute int
		TokensPerDay      int
	}

	// Result is the outcome of a rate limit check. Its metadata is meaningful whether or not the request is allowed.
	Result struct {
		Allowed   bool
		Message   string
		ResetTime time.Time
		Remaining int
		Limit     int
		Window    time.Duration
	}

	Usage struct {
		UserID        string    `json:"userId"`
		Requests      int       `json:"requests"`
		RequestsLimit int       `json:"requestsLimit"`
		Tokens        int       `json:"tokens"`
		TokensLimit   int       `json:"tokensLimit"`
		WindowResetAt time.Time `json:"windowResetAt"`
		DayResetAt    time.Time `json:"dayResetAt"`
	}

	// Store persists request counts and token usage per user.
	// Implementations must be safe for concurrent use.
	Store interface {
		// CheckRateLimit counts the request against the current window.
		CheckRateLimit(ctx context.Context, userID string, limits Limits) (Result, error)
		// CheckTokenQuota reports whether the user still has tokens left today.
		CheckTokenQuota(ctx context.Context, userID string) (bool, error)
		// TrackTokenUsage adds tokens to the user's usage for today.
		TrackTokenUsage(ctx context.Context, userID string, tokens int) error
		Usage(ctx context.Context, userID string) (Usage, error)
		ResetUsage(ctx context.Context, userID string) error
	}
)

func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute: DefaultRequestsPerMinute,
		TokensPerDay:      DefaultTokensPerDay,
	}
}

// WithDefaults fills unset limits with the defaults.
func (l Limits) WithDefaults() Limits {
	if l.RequestsPerMinute <= 0 {
		l.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if l.TokensPerDay <= 0 {
		l.TokensPerDay = DefaultTokensPerDay
	}
	return l
}

// WindowStart returns the start of the fixed window holding t.
func WindowStart(t time.Time) time.Time {
	return t.UTC().Truncate(Window)
}

// DayStart returns the start of the UTC day holding t.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewResult builds the Result for the count-th request of the window starting at windowStart.
func NewResult(count int, limit int, windowStart time.Time) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   count <= limit,
		ResetTime: windowStart.Add(Window),
		Remaining: remaining,
		Limit:     limit,
		Window:    Window,
	}
	if !res.Allowed {
		res.Message = RateLimitMessage
	}
	return res
}

// ValidateTokens rejects negative token counts. Zero is a no-op for stores.
func ValidateTokens(tokens int) error {
	if tokens < 0 {
		return ErrNegativeTokens
	}
	return nil
}
