package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf      *core.Config
	out       io.Writer
	openStore func(ctx context.Context) (quota.Store, func() error, error)
	openDB    func(ctx context.Context) (*sqlx.DB, error)
	createDB  func(ctx context.Context) error
}

func (cl *commandLine) run(args []string) error {
	return cl.app().RunContext(context.Background(), args)
}

func (cl *commandLine) app() *cli.App {
	userFlag := &cli.StringFlag{
		Name:     "user",
		Usage:    "The user's ID (the `sub` claim of their tokens)",
		Aliases:  []string{"u"},
		Required: true,
	}

	return &cli.App{
		Name:           "admin",
		Usage:          "EduLearn chat administration",
		Writer:         cl.out,
		ErrWriter:      cl.out,
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(c *cli.Context) error {
			_ = cli.ShowAppHelp(c)
			return errHelp
		},
		Commands: []*cli.Command{
			{
				Name:  "token",
				Usage: "Mint a bearer token for local development",
				Flags: []cli.Flag{
					userFlag,
					&cli.StringSliceFlag{Name: "role", Usage: "Role claims, eg. student:, teacher:, admin:", Aliases: []string{"r"}},
					&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: time.Hour},
				},
				Action: func(c *cli.Context) error {
					return cl.token(c.String("user"), c.StringSlice("role"), c.Duration("ttl"))
				},
			},
			{
				Name:  "usage",
				Usage: "Show a user's request & token usage",
				Flags: []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					return cl.usage(c.Context, c.String("user"))
				},
			},
			{
				Name:  "reset-usage",
				Usage: "Reset a user's rate window & daily token usage",
				Flags: []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					return cl.resetUsage(c.Context, c.String("user"))
				},
			},
			{
				Name:      "migrate",
				Usage:     "Run goose migration commands against the quota database",
				ArgsUsage: "COMMAND [ARGS...] (up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version)",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						_ = cli.ShowSubcommandHelp(c)
						return errHelp
					}
					return cl.migrate(c.Context, c.Args().Slice())
				},
			},
			{
				Name:  "createdb",
				Usage: "Create the app database user & database if they do not exist",
				Action: func(c *cli.Context) error {
					return cl.createDB(c.Context)
				},
			},
		},
	}
}

func (cl *commandLine) token(userID string, roles []string, ttl time.Duration) error {
	token, err := auth.NewToken(cl.conf.SecretKey, auth.Identity{UserID: userID, Roles: roles}, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cl.out, token)
	return err
}

func (cl *commandLine) usage(ctx context.Context, userID string) error {
	store, closeStore, err := cl.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	usage, err := store.Usage(ctx, core.CleanString(userID))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cl.out)
	enc.SetIndent("", "  ")
	return enc.Encode(usage)
}

func (cl *commandLine) resetUsage(ctx context.Context, userID string) error {
	store, closeStore, err := cl.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	userID = core.CleanString(userID)
	if err = store.ResetUsage(ctx, userID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cl.out, "usage of %s reset\n", userID)
	return err
}
