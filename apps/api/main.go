package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	echoapi "github.com/CognicAI/EduLearn-sub001/apps/api/echo"
	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
	activitysvc "github.com/CognicAI/EduLearn-sub001/services/activity"
	genaisvc "github.com/CognicAI/EduLearn-sub001/services/genai"
	logsvc "github.com/CognicAI/EduLearn-sub001/services/logger"
	tasksvc "github.com/CognicAI/EduLearn-sub001/services/tasks"
	"github.com/CognicAI/EduLearn-sub001/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	defer logger.Close()

	storeLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up quota store
	limits := quota.Limits{RequestsPerMinute: conf.Chat.RequestsPerMinute, TokensPerDay: conf.Chat.TokensPerDay}
	store, closeStore, err := storage.OpenQuotaStore(ctx, conf, limits)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up quota store: %v", err), err)
	}
	defer func() {
		if err = closeStore(); err != nil {
			storeLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	engine, err := genaisvc.NewEngine(ctx, conf.Chat)
	if err != nil && errors.Cause(err) != chat.ErrEngineNotConfigured {
		logger.Fatal(fmt.Sprintf("setting up generation engine: %v", err), err)
	}
	if err != nil {
		logger.Warn("generation engine API key is not set: chat requests will fail")
	}

	var activity chat.ActivityLogger
	if conf.Activity.BackendURL != "" {
		activity = activitysvc.NewBackendLogger(conf.Activity)
	} else {
		activity = activitysvc.NewConsoleLogger(log.New(os.Stdout, "ACTIVITY : ", log.LstdFlags))
	}

	tasks := tasksvc.NewRunner(conf.Tasks, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	chat.InitValidators(validate, translator)

	opts := chat.Options{
		Store:          store,
		Limits:         limits,
		Activity:       activity,
		Tasks:          tasks,
		Logger:         logger,
		Validate:       validate,
		RequestTimeout: conf.Chat.RequestTimeout,
	}
	if engine != nil {
		opts.Engine = engine
	}
	chatSvc, err := chat.NewService(opts)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up chat service: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("quotaStore").Set(conf.Quota.Store)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			ChatSvc:    chatSvc,
			Verifier:   auth.NewVerifier(conf.SecretKey),
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}

	// let detached work (token accounting, activity logs) finish
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err = tasks.Close(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not drain background tasks: %v", err), err)
	}
}
