package inmemdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

func setNow(t *testing.T, now time.Time) *time.Time {
	curr := now
	quota.NowFunc = func() time.Time { return curr }
	t.Cleanup(func() { quota.NowFunc = time.Now })
	return &curr
}

func TestQuotaStore_CheckRateLimit(t *testing.T) {
	now := setNow(t, time.Date(2024, 5, 6, 14, 30, 20, 0, time.UTC))
	store := NewQuotaStore(Open(), quota.DefaultLimits())
	ctx := context.Background()
	limits := quota.Limits{RequestsPerMinute: 10, TokensPerDay: 100000}

	for i := 1; i <= 10; i++ {
		res, err := store.CheckRateLimit(ctx, "u1", limits)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 10-i, res.Remaining)
		assert.Equal(t, 10, res.Limit)
	}

	// 11th request in the same minute
	res, err := store.CheckRateLimit(ctx, "u1", limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, quota.RateLimitMessage, res.Message)
	assert.True(t, res.ResetTime.After(*now))
	assert.Equal(t, time.Date(2024, 5, 6, 14, 31, 0, 0, time.UTC), res.ResetTime)
	assert.Equal(t, 0, res.Remaining)

	// other users are not affected
	res, err = store.CheckRateLimit(ctx, "u2", limits)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// next window
	*now = now.Add(40 * time.Second)
	res, err = store.CheckRateLimit(ctx, "u1", limits)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestQuotaStore_Tokens(t *testing.T) {
	now := setNow(t, time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC))
	store := NewQuotaStore(Open(), quota.Limits{TokensPerDay: 100000})
	ctx := context.Background()

	ok, err := store.CheckTokenQuota(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.TrackTokenUsage(ctx, "u1", 99999))
	ok, _ = store.CheckTokenQuota(ctx, "u1")
	assert.True(t, ok)

	require.NoError(t, store.TrackTokenUsage(ctx, "u1", 1))
	ok, _ = store.CheckTokenQuota(ctx, "u1")
	assert.False(t, ok, "usage >= quota")

	// usage never decreases
	assert.Equal(t, quota.ErrNegativeTokens, store.TrackTokenUsage(ctx, "u1", -50))
	require.NoError(t, store.TrackTokenUsage(ctx, "u1", 0))
	usage, err := store.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100000, usage.Tokens)

	// rate limit state does not matter
	_, _ = store.CheckRateLimit(ctx, "u1", quota.DefaultLimits())
	ok, _ = store.CheckTokenQuota(ctx, "u1")
	assert.False(t, ok)

	// new UTC day
	*now = now.Add(2 * time.Minute)
	ok, _ = store.CheckTokenQuota(ctx, "u1")
	assert.True(t, ok)
}

func TestQuotaStore_UsageAndReset(t *testing.T) {
	setNow(t, time.Date(2024, 5, 6, 8, 0, 30, 0, time.UTC))
	store := NewQuotaStore(Open(), quota.DefaultLimits())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = store.CheckRateLimit(ctx, "u1", quota.DefaultLimits())
	}
	require.NoError(t, store.TrackTokenUsage(ctx, "u1", 42))

	usage, err := store.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, quota.Usage{
		UserID:        "u1",
		Requests:      3,
		RequestsLimit: 10,
		Tokens:        42,
		TokensLimit:   100000,
		WindowResetAt: time.Date(2024, 5, 6, 8, 1, 0, 0, time.UTC),
		DayResetAt:    time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC),
	}, usage)

	require.NoError(t, store.ResetUsage(ctx, "u1"))
	usage, err = store.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Requests)
	assert.Equal(t, 0, usage.Tokens)
}

func TestQuotaStore_Concurrent(t *testing.T) {
	setNow(t, time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	store := NewQuotaStore(Open(), quota.DefaultLimits())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var allowed int
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.CheckRateLimit(ctx, "u1", quota.DefaultLimits())
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
			_ = store.TrackTokenUsage(ctx, "u1", 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
	usage, err := store.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 500, usage.Tokens)
}
