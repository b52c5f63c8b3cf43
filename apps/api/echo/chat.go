package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
)

type chatApi struct {
	svc    *chat.Service
	logger core.Logger
}

func registerChatAPI(g *echo.Group, authed echo.MiddlewareFunc, svc *chat.Service, logger core.Logger) {
	api := chatApi{svc: svc, logger: logger}

	cg := g.Group("/chat", authed)
	cg.POST("", api.chat)
	cg.GET("/usage", api.usage)

	ag := g.Group("/admin/usage", authed, adminMiddleware())
	ag.GET("/:userId", api.userUsage)
	ag.DELETE("/:userId", api.resetUserUsage)
}

// Handlers

func (api *chatApi) chat(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Gate(ctx.Request().Context(), id.UserID)
	if res.Limit > 0 {
		setRateLimitHeaders(ctx, res)
	}
	if err != nil {
		return failChat(err)
	}

	var req chat.Request
	if err = ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to chat.Request")
	}
	conv, err := api.svc.Prepare(req)
	if err != nil {
		return failChat(err)
	}

	authHeader := ctx.Request().Header.Get(echo.HeaderAuthorization)
	api.svc.LogUserTurn(authHeader, conv)

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set(echo.HeaderXContentTypeOptions, "nosniff")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	if _, err = api.svc.Stream(ctx.Request().Context(), resp, id, authHeader, conv); err != nil {
		if chat.Classify(err) == chat.ActionAbort {
			api.logger.Debug("chat client went away", err, id)
			return nil
		}
		return abortResponse(ctx, err)
	}
	return nil
}

func (api *chatApi) usage(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	usage, err := api.svc.Usage(ctx.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usage)
}

func (api *chatApi) userUsage(ctx echo.Context) error {
	usage, err := api.svc.Usage(ctx.Request().Context(), ctx.Param("userId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usage)
}

func (api *chatApi) resetUserUsage(ctx echo.Context) error {
	if err := api.svc.ResetUsage(ctx.Request().Context(), ctx.Param("userId")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// failChat lets the error handler answer known chat errors; anything else is a chatFailure.
func failChat(err error) error {
	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError, *chat.RateLimitedError, validator.ValidationErrors, *core.ValidationError:
		return err
	default:
		if cause == chat.ErrQuotaExceeded {
			return err
		}
	}
	return chatFailure{err}
}

// abortResponse cuts the connection of a response which already started,
// so that the client sees an incomplete body rather than a clean end of stream.
func abortResponse(ctx echo.Context, err error) error {
	if hj, ok := ctx.Response().Writer.(http.Hijacker); ok {
		if conn, _, hjErr := hj.Hijack(); hjErr == nil {
			_ = conn.Close()
			return nil
		}
	}
	return errors.Wrap(err, "aborting chat response")
}
