package sqlxrepos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

var (
	now         = time.Date(2024, 5, 6, 14, 30, 20, 0, time.UTC)
	windowStart = time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	day         = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
)

func setup(t *testing.T) (quota.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	quota.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { quota.NowFunc = time.Now })

	return NewQuotaStore(sqlx.NewDb(db, "postgres"), quota.DefaultLimits()), mock
}

func TestQuotaStore_CheckRateLimit(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  quota.Result
	}{
		{name: "first", count: 1, want: quota.NewResult(1, 10, windowStart)},
		{name: "tenth", count: 10, want: quota.NewResult(10, 10, windowStart)},
		{name: "eleventh", count: 11, want: quota.Result{
			Allowed: false, Message: quota.RateLimitMessage, ResetTime: windowStart.Add(time.Minute),
			Remaining: 0, Limit: 10, Window: time.Minute,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setup(t)
			mock.ExpectQuery(countRequestQuery).
				WithArgs("u1", windowStart).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			got, err := store.CheckRateLimit(context.Background(), "u1", quota.DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuotaStore_CheckRateLimit_OneRowPerUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	current := now
	quota.NowFunc = func() time.Time { return current }
	defer func() { quota.NowFunc = time.Now }()

	store := NewQuotaStore(sqlx.NewDb(db, "postgres"), quota.DefaultLimits())
	upsert := `INSERT INTO chat_rate_windows \(user_id, window_start, count\) VALUES \(\$1, \$2, 1\)\s+` +
		`ON CONFLICT \(user_id\) DO UPDATE SET\s+` +
		`count = CASE WHEN chat_rate_windows.window_start = EXCLUDED.window_start THEN chat_rate_windows.count \+ 1 ELSE 1 END,\s+` +
		`window_start = EXCLUDED.window_start\s+RETURNING count`

	mock.ExpectQuery(upsert).WithArgs("u1", windowStart).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	// next window: same row, count restarted
	mock.ExpectQuery(upsert).WithArgs("u1", windowStart.Add(time.Minute)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	res, err := store.CheckRateLimit(context.Background(), "u1", quota.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)

	current = now.Add(time.Minute)
	res, err = store.CheckRateLimit(context.Background(), "u1", quota.DefaultLimits())
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
	assert.Equal(t, windowStart.Add(2*time.Minute), res.ResetTime)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotaStore_CheckRateLimit_Error(t *testing.T) {
	store, mock := setup(t)
	mock.ExpectQuery(countRequestQuery).WithArgs("u1", windowStart).WillReturnError(errors.New("connection refused"))

	_, err := store.CheckRateLimit(context.Background(), "u1", quota.DefaultLimits())
	assert.EqualError(t, err, "counting request: connection refused")
}

func TestQuotaStore_MissingTables(t *testing.T) {
	store, mock := setup(t)
	mock.ExpectQuery(countRequestQuery).WithArgs("u1", windowStart).
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "chat_rate_windows" does not exist`})
	mock.ExpectQuery(tokensQuery).WithArgs("u1", day).WillReturnError(errors.New("connection refused"))

	_, err := store.CheckRateLimit(context.Background(), "u1", quota.DefaultLimits())
	require.Error(t, err)
	assert.True(t, core.IsShutdown(err))
	assert.Equal(t, `counting request: quota tables are missing: relation "chat_rate_windows" does not exist`, err.Error())

	_, err = store.CheckTokenQuota(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, core.IsShutdown(err))
}

func TestQuotaStore_CheckTokenQuota(t *testing.T) {
	tests := []struct {
		tokens int
		want   bool
	}{
		{tokens: 0, want: true},
		{tokens: 99999, want: true},
		{tokens: 100000, want: false},
		{tokens: 250000, want: false},
	}
	for _, tt := range tests {
		store, mock := setup(t)
		mock.ExpectQuery(tokensQuery).
			WithArgs("u1", day).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(tt.tokens))

		got, err := store.CheckTokenQuota(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "tokens = %d", tt.tokens)
	}
}

func TestQuotaStore_TrackTokenUsage(t *testing.T) {
	store, mock := setup(t)
	mock.ExpectExec(trackTokensQuery).WithArgs("u1", day, 120).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.TrackTokenUsage(context.Background(), "u1", 120))

	// no queries
	assert.NoError(t, store.TrackTokenUsage(context.Background(), "u1", 0))
	assert.Equal(t, quota.ErrNegativeTokens, store.TrackTokenUsage(context.Background(), "u1", -3))
}

func TestQuotaStore_Usage(t *testing.T) {
	store, mock := setup(t)
	mock.ExpectQuery(requestCountQuery).WithArgs("u1", windowStart).WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))
	mock.ExpectQuery(tokensQuery).WithArgs("u1", day).WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1234))

	usage, err := store.Usage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, quota.Usage{
		UserID:        "u1",
		Requests:      4,
		RequestsLimit: 10,
		Tokens:        1234,
		TokensLimit:   100000,
		WindowResetAt: windowStart.Add(time.Minute),
		DayResetAt:    day.AddDate(0, 0, 1),
	}, usage)
}

func TestQuotaStore_ResetUsage(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(deleteRateWindowsQuery).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(deleteTokenUsageQuery).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, store.ResetUsage(context.Background(), "u1"))
	})
	t.Run("rollback", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(deleteRateWindowsQuery).WithArgs("u1").WillReturnError(errors.New("boom"))
		mock.ExpectRollback()

		assert.EqualError(t, store.ResetUsage(context.Background(), "u1"), "deleting rate windows: boom")
	})
}
