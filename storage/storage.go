// Package storage opens the quota store selected by the configuration.
package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
	"github.com/CognicAI/EduLearn-sub001/storage/database"
	inmemdb "github.com/CognicAI/EduLearn-sub001/storage/database/inmem"
	sqlxrepos "github.com/CognicAI/EduLearn-sub001/storage/database/sqlx"
	redisdb "github.com/CognicAI/EduLearn-sub001/storage/redis"
)

// OpenQuotaStore opens the store selected by `quota.store`. The returned func releases it.
func OpenQuotaStore(ctx context.Context, conf *core.Config, limits quota.Limits) (quota.Store, func() error, error) {
	switch conf.Quota.Store {
	case core.QuotaStoreRedis:
		rdb := redisdb.Open(conf)
		if err := redisdb.Ping(ctx, rdb); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return redisdb.NewQuotaStore(rdb, limits), rdb.Close, nil

	case core.QuotaStorePostgres:
		db, err := SetUpDB(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		return sqlxrepos.NewQuotaStore(db, limits), db.Close, nil

	case core.QuotaStoreMemory, "":
		return inmemdb.NewQuotaStore(inmemdb.Open(), limits), func() error { return nil }, nil

	default:
		return nil, nil, errors.Errorf("unknown quota store %q", conf.Quota.Store)
	}
}

// SetUpDB creates the app database if needed, opens it and runs pending migrations.
func SetUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
