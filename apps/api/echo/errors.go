package echoapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

	quotaExceededMessage = "Daily token quota exceeded. Please try again tomorrow."
	configErrorMessage   = "Server configuration error"
	chatFailedMessage    = "Failed to process chat request"
)

// chatFailure is an unexpected error which stopped a chat request before streaming started.
type chatFailure struct {
	error
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *chat.RateLimitedError:
			code = http.StatusTooManyRequests
			setRetryAfter(ctx, origErr.Result)
			message = echo.Map{
				"error":     origErr.Result.Message,
				"resetTime": origErr.Result.ResetTime.UTC().Format(time.RFC3339),
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[fieldKey(vErr)] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case chatFailure:
			code = http.StatusInternalServerError
			msg := chatFailedMessage
			if errors.Cause(origErr.error) == chat.ErrEngineNotConfigured {
				msg = configErrorMessage
			}
			message = echo.Map{"error": msg, "details": origErr.Error()}
			logger.Error(msg, err, contextIdentity(ctx))
			if core.IsShutdown(origErr.error) {
				signalShutdown()
			}
		default:
			if origErr == chat.ErrQuotaExceeded {
				code = http.StatusTooManyRequests
				message = quotaExceededMessage
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextIdentity(ctx))

			if ctx.Echo().Debug {
				message = err.Error()
			}
			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// fieldKey is the JSON path of the invalid field, without the root struct, eg. `messages[0].role`.
func fieldKey(vErr validator.FieldError) string {
	ns := vErr.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return vErr.Field()
}

func setRateLimitHeaders(ctx echo.Context, res quota.Result) {
	h := ctx.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
}

func setRetryAfter(ctx echo.Context, res quota.Result) {
	secs := int(math.Ceil(res.ResetTime.Sub(quota.NowFunc()).Seconds()))
	if secs < 1 {
		secs = 1
	}
	ctx.Response().Header().Set("Retry-After", strconv.Itoa(secs))
}

func contextIdentity(ctx echo.Context) auth.Identity {
	id, _ := getContextIdentity(ctx)
	return id
}
