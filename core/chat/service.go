package chat

import (
	"context"
	"io"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

type (
	Options struct {
		Store          quota.Store
		Limits         quota.Limits
		Engine         Engine // nil when no API key is configured
		Activity       ActivityLogger
		Tasks          TaskRunner
		Logger         core.Logger
		Validate       *validator.Validate
		RequestTimeout time.Duration // 0: no overall deadline
	}

	Service struct {
		store          quota.Store
		limits         quota.Limits
		engine         Engine
		streamer       *Streamer
		activity       ActivityLogger
		tasks          TaskRunner
		logger         core.Logger
		validate       *validator.Validate
		requestTimeout time.Duration
	}
)

func NewService(opts Options) (*Service, error) {
	err := vala.BeginValidation().Validate(
		isSet(opts.Store, "Store"),
		isSet(opts.Activity, "Activity"),
		isSet(opts.Tasks, "Tasks"),
		isSet(opts.Logger, "Logger"),
		vala.IsNotNil(opts.Validate, "Validate"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "validating chat service options")
	}

	svc := &Service{
		store:          opts.Store,
		limits:         opts.Limits.WithDefaults(),
		engine:         opts.Engine,
		activity:       opts.Activity,
		tasks:          opts.Tasks,
		logger:         opts.Logger,
		validate:       opts.Validate,
		requestTimeout: opts.RequestTimeout,
	}
	if opts.Engine != nil {
		svc.streamer = NewStreamer(opts.Engine)
	}
	return svc, nil
}

// isSet is vala.IsNotNil for interface values: value types holding no pointer are always set.
func isSet(obtained interface{}, paramName string) vala.Checker {
	if obtained == nil {
		return vala.IsNotNil(nil, paramName)
	}
	switch reflect.ValueOf(obtained).Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return vala.IsNotNil(obtained, paramName)
	}
	return func() (bool, string) { return true, "" }
}

func (svc *Service) Limits() quota.Limits {
	return svc.limits
}

// Gate counts the request against the user's rate limit, then checks the daily token quota.
// The returned Result is set whenever the rate limit check ran, even on error.
func (svc *Service) Gate(ctx context.Context, userID string) (quota.Result, error) {
	res, err := svc.store.CheckRateLimit(ctx, userID, svc.limits)
	if err != nil {
		return quota.Result{}, errors.Wrap(err, "checking rate limit")
	}
	if !res.Allowed {
		return res, &RateLimitedError{Result: res}
	}

	ok, err := svc.store.CheckTokenQuota(ctx, userID)
	if err != nil {
		return res, errors.Wrap(err, "checking token quota")
	}
	if !ok {
		return res, ErrQuotaExceeded
	}
	return res, nil
}

// Prepare validates req and builds the conversation to send to the engine.
func (svc *Service) Prepare(req Request) (Conversation, error) {
	if err := svc.validate.Struct(req); err != nil {
		return Conversation{}, errors.Wrap(err, "validating chat request")
	}

	history, current, err := SplitConversation(req.Messages)
	if err != nil {
		return Conversation{}, err
	}
	if svc.engine == nil {
		return Conversation{}, ErrEngineNotConfigured
	}

	return Conversation{
		SessionID:    req.SessionID,
		SystemPrompt: GenerateSystemPrompt(req.UserProfile),
		History:      history,
		Current:      current,
		Message:      req.Messages[len(req.Messages)-1],
	}, nil
}

// LogUserTurn records the current message in the background when the conversation belongs to a session.
func (svc *Service) LogUserTurn(authHeader string, conv Conversation) {
	if conv.SessionID == "" {
		return
	}
	attachments := conv.Message.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	svc.logTurn(authHeader, ActivityEntry{
		SessionID:   conv.SessionID,
		Sender:      SenderUser,
		Text:        conv.Message.Content,
		Attachments: attachments,
	})
}

// Stream writes the completion of conv to w, then records the token usage in the background,
// whatever the outcome, and the bot turn when the completion succeeded.
func (svc *Service) Stream(ctx context.Context, w io.Writer, id auth.Identity, authHeader string, conv Conversation) (StreamResult, error) {
	if svc.streamer == nil {
		return StreamResult{}, ErrEngineNotConfigured
	}
	if svc.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.requestTimeout)
		defer cancel()
	}

	req := conv.CompletionRequest()
	res, err := svc.streamer.Stream(ctx, w, req)

	tokens := EstimateTokens(PromptText(req), res.FullResponse)
	svc.tasks.Submit("track-token-usage", func(ctx context.Context) error {
		return errors.Wrapf(svc.store.TrackTokenUsage(ctx, id.UserID, tokens), "tracking %d tokens for %s", tokens, id.UserID)
	})

	if err != nil && Classify(err) != ActionAbort {
		svc.logger.Warn("chat completion failed", err, id)
	}
	if err == nil && conv.SessionID != "" {
		svc.logTurn(authHeader, ActivityEntry{
			SessionID:   conv.SessionID,
			Sender:      senderBot,
			Text:        res.FullResponse,
			Attachments: []Attachment{},
		})
	}
	return res, err
}

func (svc *Service) Usage(ctx context.Context, userID string) (quota.Usage, error) {
	usage, err := svc.store.Usage(ctx, userID)
	return usage, errors.Wrap(err, "getting usage")
}

func (svc *Service) logTurn(authHeader string, entry ActivityEntry) {
	svc.tasks.Submit("log-"+entry.Sender+"-turn", func(ctx context.Context) error {
		return errors.Wrap(svc.activity.LogTurn(ctx, authHeader, entry), "logging chat turn")
	})
}

// ResetUsage clears the rate window and daily token usage of userID.
func (svc *Service) ResetUsage(ctx context.Context, userID string) error {
	return errors.Wrap(svc.store.ResetUsage(ctx, userID), "resetting usage")
}
