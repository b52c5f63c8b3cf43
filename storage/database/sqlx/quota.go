package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

// pgUndefinedTable is raised when the quota tables were dropped under a running API.
// Migrations run at boot, so the API asks to be restarted.
const pgUndefinedTable = "42P01"

const (
	countRequestQuery = `INSERT INTO chat_rate_windows (user_id, window_start, count) VALUES ($1, $2, 1)
ON CONFLICT (user_id) DO UPDATE SET
	count = CASE WHEN chat_rate_windows.window_start = EXCLUDED.window_start THEN chat_rate_windows.count + 1 ELSE 1 END,
	window_start = EXCLUDED.window_start
RETURNING count`

	requestCountQuery = `SELECT COALESCE(SUM(count), 0) FROM chat_rate_windows WHERE user_id = $1 AND window_start = $2`

	trackTokensQuery = `INSERT INTO chat_token_usage (user_id, day, tokens) VALUES ($1, $2, $3)
ON CONFLICT (user_id, day) DO UPDATE SET tokens = chat_token_usage.tokens + EXCLUDED.tokens`

	tokensQuery = `SELECT COALESCE(SUM(tokens), 0) FROM chat_token_usage WHERE user_id = $1 AND day = $2`

	deleteRateWindowsQuery = `DELETE FROM chat_rate_windows WHERE user_id = $1`
	deleteTokenUsageQuery  = `DELETE FROM chat_token_usage WHERE user_id = $1`
)

// wrap is errors.Wrap, except for missing tables which become shutdown errors.
func wrap(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable {
		return core.NewShutdownError(msg + ": quota tables are missing: " + pqErr.Message)
	}
	return errors.Wrap(err, msg)
}

type quotaStore struct {
	db     *sqlx.DB
	limits quota.Limits
}

var _ quota.Store = (*quotaStore)(nil)

func NewQuotaStore(db *sqlx.DB, limits quota.Limits) quota.Store {
	return &quotaStore{db: db, limits: limits.WithDefaults()}
}

func (s *quotaStore) CheckRateLimit(ctx context.Context, userID string, limits quota.Limits) (quota.Result, error) {
	limits = limits.WithDefaults()
	start := quota.WindowStart(quota.NowFunc())

	var count int
	if err := s.db.GetContext(ctx, &count, countRequestQuery, userID, start); err != nil {
		return quota.Result{}, wrap(err, "counting request")
	}
	return quota.NewResult(count, limits.RequestsPerMinute, start), nil
}

func (s *quotaStore) CheckTokenQuota(ctx context.Context, userID string) (bool, error) {
	var tokens int
	if err := s.db.GetContext(ctx, &tokens, tokensQuery, userID, quota.DayStart(quota.NowFunc())); err != nil {
		return false, wrap(err, "getting token usage")
	}
	return tokens < s.limits.TokensPerDay, nil
}

func (s *quotaStore) TrackTokenUsage(ctx context.Context, userID string, tokens int) error {
	if err := quota.ValidateTokens(tokens); err != nil {
		return err
	}
	if tokens == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, trackTokensQuery, userID, quota.DayStart(quota.NowFunc()), tokens)
	return wrap(err, "tracking token usage")
}

func (s *quotaStore) Usage(ctx context.Context, userID string) (quota.Usage, error) {
	now := quota.NowFunc()
	start := quota.WindowStart(now)
	day := quota.DayStart(now)

	usage := quota.Usage{
		UserID:        userID,
		RequestsLimit: s.limits.RequestsPerMinute,
		TokensLimit:   s.limits.TokensPerDay,
		WindowResetAt: start.Add(quota.Window),
		DayResetAt:    day.AddDate(0, 0, 1),
	}
	if err := s.db.GetContext(ctx, &usage.Requests, requestCountQuery, userID, start); err != nil {
		return quota.Usage{}, wrap(err, "getting request count")
	}
	if err := s.db.GetContext(ctx, &usage.Tokens, tokensQuery, userID, day); err != nil {
		return quota.Usage{}, wrap(err, "getting token usage")
	}
	return usage, nil
}

func (s *quotaStore) ResetUsage(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, deleteRateWindowsQuery, userID); err != nil {
		return wrap(err, "deleting rate windows")
	}
	if _, err = tx.ExecContext(ctx, deleteTokenUsageQuery, userID); err != nil {
		return wrap(err, "deleting token usage")
	}
	return wrap(tx.Commit(), "committing transaction")
}
