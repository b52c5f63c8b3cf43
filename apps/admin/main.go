package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
	"github.com/CognicAI/EduLearn-sub001/storage"
	"github.com/CognicAI/EduLearn-sub001/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	if conf.Quota.Store == core.QuotaStoreMemory {
		logger.Println("warning: the memory quota store is per process; usage commands only see this process")
	}
	limits := quota.Limits{RequestsPerMinute: conf.Chat.RequestsPerMinute, TokensPerDay: conf.Chat.TokensPerDay}

	// start CLI
	cl := commandLine{
		conf: conf,
		out:  os.Stdout,
		openStore: func(ctx context.Context) (quota.Store, func() error, error) {
			return storage.OpenQuotaStore(ctx, conf, limits)
		},
		openDB: func(ctx context.Context) (*sqlx.DB, error) {
			return database.Open(ctx, conf)
		},
		createDB: func(ctx context.Context) error {
			return database.CreateIfNotExist(ctx, conf)
		},
	}
	if err := cl.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
