package main

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/CognicAI/EduLearn-sub001/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cl *commandLine) migrate(ctx context.Context, args []string) error {
	db, err := cl.openDB(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err = goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseRunFunc(ctx, args[0], db.DB, database.MigrationsDir, args[1:]...)
}
