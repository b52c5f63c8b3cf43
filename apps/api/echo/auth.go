package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
)

const contextIdentityKey = "identity"

// authMiddleware verifies the request's bearer token and stores the caller's auth.Identity in the context.
func authMiddleware(verifier *auth.Verifier, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := verifier.Verify(ctx.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				logger.Debug("authentication failed", err, map[string]interface{}{
					"path":      ctx.Path(),
					"requestId": ctx.Response().Header().Get(echo.HeaderXRequestID),
				})
				return errUnauthorized
			}
			ctx.Set(contextIdentityKey, id)
			return next(ctx)
		}
	}
}

func getContextIdentity(ctx echo.Context) (auth.Identity, error) {
	if id, ok := ctx.Get(contextIdentityKey).(auth.Identity); ok {
		return id, nil
	}
	return auth.Identity{}, errUnauthorized
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if id, err := getContextIdentity(ctx); err == nil {
		for _, role := range roles {
			for _, r := range id.Roles {
				if r == role {
					return true
				}
			}
		}
	}
	return false
}
