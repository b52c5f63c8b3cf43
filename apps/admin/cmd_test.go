package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
	inmemdb "github.com/CognicAI/EduLearn-sub001/storage/database/inmem"
)

const testSecret = "s3cr3t"

var store quota.Store

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	now := time.Date(2024, 5, 6, 14, 30, 20, 0, time.UTC)
	oldNow := quota.NowFunc
	quota.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { quota.NowFunc = oldNow })

	store = inmemdb.NewQuotaStore(inmemdb.Open(), quota.Limits{RequestsPerMinute: 10, TokensPerDay: 1000})
	out := new(bytes.Buffer)

	return &commandLine{
		conf: &core.Config{SecretKey: testSecret},
		out:  out,
		openStore: func(context.Context) (quota.Store, func() error, error) {
			return store, func() error { return nil }, nil
		},
		openDB: func(context.Context) (*sqlx.DB, error) {
			db, _, err := sqlmock.New()
			if err != nil {
				return nil, err
			}
			return sqlx.NewDb(db, "postgres"), nil
		},
		createDB: func(context.Context) error { return nil },
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_help(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no command", args: []string{}, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
			assert.Contains(t, out.String(), "reset-usage")
		})
	}
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no user", args: []string{"token"}, wantErrStr: "not set"},
		{name: "bad ttl", args: []string{"token", "--user", "42", "--ttl", "lol"}, wantErrStr: "invalid value"},
		{name: "student", args: []string{"token", "--user", "42", "--role", "student:"}, extra: auth.Identity{UserID: "42", Roles: []string{"student:"}}},
		{
			name:  "admin & teacher",
			args:  []string{"token", "-u", "7", "-r", "admin:", "-r", "teacher:math", "--ttl", "5m"},
			extra: auth.Identity{UserID: "7", Roles: []string{"admin:", "teacher:math"}},
		},
	}
	verifier := auth.NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)

			if want, ok := tt.extra.(auth.Identity); ok {
				id, err := verifier.Verify("Bearer " + strings.TrimSpace(out.String()))
				require.NoError(t, err)
				assert.Equal(t, want, id)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	_, err := store.CheckRateLimit(ctx, "42", quota.Limits{RequestsPerMinute: 10, TokensPerDay: 1000})
	require.NoError(t, err)
	require.NoError(t, store.TrackTokenUsage(ctx, "42", 120))

	t.Run("no user", func(t *testing.T) {
		err := cli.run([]string{"admin", "usage"})
		assert.Error(t, err)
	})

	t.Run("show", func(t *testing.T) {
		out.Reset()
		err := cli.run([]string{"admin", "usage", "--user", " 42 "})
		require.NoError(t, err)
		assert.Contains(t, out.String(), `"userId": "42"`)
		assert.Contains(t, out.String(), `"requests": 1`)
		assert.Contains(t, out.String(), `"tokens": 120`)
		assert.Contains(t, out.String(), `"tokensLimit": 1000`)
	})

	t.Run("reset", func(t *testing.T) {
		out.Reset()
		err := cli.run([]string{"admin", "reset-usage", "--user", "42"})
		require.NoError(t, err)
		assert.Equal(t, "usage of 42 reset\n", out.String())

		usage, err := store.Usage(ctx, "42")
		require.NoError(t, err)
		assert.Zero(t, usage.Requests)
		assert.Zero(t, usage.Tokens)
	})

	t.Run("store error", func(t *testing.T) {
		old := cli.openStore
		defer func() { cli.openStore = old }()
		cli.openStore = func(context.Context) (quota.Store, func() error, error) {
			return nil, nil, fmt.Errorf("redis ping timeout")
		}
		err := cli.run([]string{"admin", "usage", "--user", "42"})
		assert.EqualError(t, err, "redis ping timeout")
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	oldRun := gooseRunFunc
	defer func() { gooseRunFunc = oldRun }()
	gooseRunFunc = func(_ context.Context, command string, db *sql.DB, dir string, args ...string) error {
		if db == nil || dir != "migrations" {
			return fmt.Errorf("bad migration setup")
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	t.Run("db error", func(t *testing.T) {
		old := cli.openDB
		defer func() { cli.openDB = old }()
		cli.openDB = func(context.Context) (*sqlx.DB, error) { return nil, fmt.Errorf("connection refused") }
		assert.EqualError(t, cli.run([]string{"admin", "migrate", "up"}), "connection refused")
	})
}

func Test_commandLine_createdb(t *testing.T) {
	cli, _ := setup(t)

	called := false
	cli.createDB = func(context.Context) error {
		called = true
		return nil
	}
	require.NoError(t, cli.run([]string{"admin", "createdb"}))
	assert.True(t, called)
}
