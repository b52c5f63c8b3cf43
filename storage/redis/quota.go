// Package redisdb keeps quota counters in Redis, so that they are shared by all API replicas.
package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

const (
	rateKeyTTL  = 2 * quota.Window
	tokenKeyTTL = 48 * time.Hour
)

func Open(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

// Ping waits for Redis to be ready, backing off exponentially between attempts.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	expo.MaxInterval = 2 * time.Second
	expo.MaxElapsedTime = 30 * time.Second

	op := func() error { return rdb.Ping(ctx).Err() }
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return errors.Wrap(err, "redis ping timeout")
	}
	return nil
}

type quotaStore struct {
	rdb    redis.UniversalClient
	limits quota.Limits
}

var _ quota.Store = (*quotaStore)(nil)

func NewQuotaStore(rdb redis.UniversalClient, limits quota.Limits) quota.Store {
	return &quotaStore{rdb: rdb, limits: limits.WithDefaults()}
}

// chat:rl:{user}:{unix minute}
func rateKey(userID string, windowStart time.Time) string {
	return fmt.Sprintf("chat:rl:%s:%d", userID, windowStart.Unix()/int64(quota.Window/time.Second))
}

// chat:tokens:{user}:{yyyymmdd}
func tokenKey(userID string, day time.Time) string {
	return fmt.Sprintf("chat:tokens:%s:%s", userID, day.Format("20060102"))
}

func (s *quotaStore) CheckRateLimit(ctx context.Context, userID string, limits quota.Limits) (quota.Result, error) {
	limits = limits.WithDefaults()
	start := quota.WindowStart(quota.NowFunc())
	key := rateKey(userID, start)

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rateKeyTTL)
		return nil
	})
	if err != nil {
		return quota.Result{}, errors.Wrap(err, "incrementing request count")
	}
	return quota.NewResult(int(incr.Val()), limits.RequestsPerMinute, start), nil
}

func (s *quotaStore) CheckTokenQuota(ctx context.Context, userID string) (bool, error) {
	tokens, err := s.getInt(ctx, tokenKey(userID, quota.DayStart(quota.NowFunc())))
	if err != nil {
		return false, errors.Wrap(err, "getting token usage")
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
	key := tokenKey(userID, quota.DayStart(quota.NowFunc()))

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, key, int64(tokens))
		pipe.Expire(ctx, key, tokenKeyTTL)
		return nil
	})
	return errors.Wrap(err, "incrementing token usage")
}

func (s *quotaStore) Usage(ctx context.Context, userID string) (quota.Usage, error) {
	now := quota.NowFunc()
	start := quota.WindowStart(now)
	day := quota.DayStart(now)

	requests, err := s.getInt(ctx, rateKey(userID, start))
	if err != nil {
		return quota.Usage{}, errors.Wrap(err, "getting request count")
	}
	tokens, err := s.getInt(ctx, tokenKey(userID, day))
	if err != nil {
		return quota.Usage{}, errors.Wrap(err, "getting token usage")
	}

	return quota.Usage{
		UserID:        userID,
		Requests:      requests,
		RequestsLimit: s.limits.RequestsPerMinute,
		Tokens:        tokens,
		TokensLimit:   s.limits.TokensPerDay,
		WindowResetAt: start.Add(quota.Window),
		DayResetAt:    day.AddDate(0, 0, 1),
	}, nil
}

func (s *quotaStore) ResetUsage(ctx context.Context, userID string) error {
	now := quota.NowFunc()
	err := s.rdb.Del(ctx,
		rateKey(userID, quota.WindowStart(now)),
		tokenKey(userID, quota.DayStart(now)),
	).Err()
	return errors.Wrap(err, "deleting usage keys")
}

// getInt reads a counter; missing keys count as 0.
func (s *quotaStore) getInt(ctx context.Context, key string) (int, error) {
	n, err := s.rdb.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
