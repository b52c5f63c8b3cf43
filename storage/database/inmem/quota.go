package inmemdb

import (
	"context"

	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

type quotaStore struct {
	db     *DB
	limits quota.Limits
}

var _ quota.Store = (*quotaStore)(nil)

// NewQuotaStore returns a quota.Store keeping counters in process memory. Counters are lost on restart
// and not shared between replicas.
func NewQuotaStore(db *DB, limits quota.Limits) quota.Store {
	return &quotaStore{db: db, limits: limits.WithDefaults()}
}

func (s *quotaStore) CheckRateLimit(_ context.Context, userID string, limits quota.Limits) (quota.Result, error) {
	limits = limits.WithDefaults()
	start := quota.WindowStart(quota.NowFunc())

	s.db.rates.mutex.Lock()
	defer s.db.rates.mutex.Unlock()

	win, ok := s.db.rates.t[userID]
	if !ok || !win.start.Equal(start) {
		win = &rateWindow{start: start}
		s.db.rates.t[userID] = win
	}
	win.count++
	return quota.NewResult(win.count, limits.RequestsPerMinute, start), nil
}

func (s *quotaStore) CheckTokenQuota(_ context.Context, userID string) (bool, error) {
	return s.tokensToday(userID) < s.limits.TokensPerDay, nil
}

func (s *quotaStore) TrackTokenUsage(_ context.Context, userID string, tokens int) error {
	if err := quota.ValidateTokens(tokens); err != nil {
		return err
	}
	if tokens == 0 {
		return nil
	}
	day := quota.DayStart(quota.NowFunc())

	s.db.tokens.mutex.Lock()
	defer s.db.tokens.mutex.Unlock()

	usage, ok := s.db.tokens.t[userID]
	if !ok || !usage.day.Equal(day) {
		usage = &tokenUsage{day: day}
		s.db.tokens.t[userID] = usage
	}
	usage.tokens += tokens
	return nil
}

func (s *quotaStore) Usage(_ context.Context, userID string) (quota.Usage, error) {
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

	s.db.rates.mutex.RLock()
	if win, ok := s.db.rates.t[userID]; ok && win.start.Equal(start) {
		usage.Requests = win.count
	}
	s.db.rates.mutex.RUnlock()

	usage.Tokens = s.tokensToday(userID)
	return usage, nil
}

func (s *quotaStore) ResetUsage(_ context.Context, userID string) error {
	s.db.rates.mutex.Lock()
	delete(s.db.rates.t, userID)
	s.db.rates.mutex.Unlock()

	s.db.tokens.mutex.Lock()
	delete(s.db.tokens.t, userID)
	s.db.tokens.mutex.Unlock()
	return nil
}

func (s *quotaStore) tokensToday(userID string) int {
	day := quota.DayStart(quota.NowFunc())

	s.db.tokens.mutex.RLock()
	defer s.db.tokens.mutex.RUnlock()

	if usage, ok := s.db.tokens.t[userID]; ok && usage.day.Equal(day) {
		return usage.tokens
	}
	return 0
}
