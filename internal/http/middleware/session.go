package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/auth"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/shared/apperr"
)

const ctxKeyAuth = "auth_context"

// SessionResolver maps a session token to the caller.
type SessionResolver interface {
	Resolve(ctx context.Context, token string, now time.Time) (auth.Context, error)
}

// Session resolves the session cookie (or a Bearer token) into an
// auth.Context. Requests without a valid session continue anonymously.
func Session(resolver SessionResolver, cookieName string, l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(cookieName)
		}
		if token == "" {
			c.Next()
			return
		}

		ac, err := resolver.Resolve(c.Request.Context(), token, time.Now())
		switch {
		case err == nil:
			c.Set(ctxKeyAuth, ac)
		case errors.Is(err, auth.ErrNoSession):
		default:
			l.ErrorContext(c.Request.Context(), "session lookup failed", "request_id", GetRequestID(c), "err", err)
			Fail(c, apperr.Wrap(err))
			return
		}
		c.Next()
	}
}

// AuthContext returns the caller set by Session.
func AuthContext(c *gin.Context) (auth.Context, bool) {
	v, ok := c.Get(ctxKeyAuth)
	if !ok {
		return auth.Context{}, false
	}
	ac, ok := v.(auth.Context)
	return ac, ok && ac.Authenticated()
}

// CurrentAuth is AuthContext without the ok flag; anonymous callers get the zero Context.
func CurrentAuth(c *gin.Context) auth.Context {
	ac, _ := AuthContext(c)
	return ac
}

// RequireRole aborts with 401 for anonymous callers and 403 for other roles.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := AuthContext(c)
		if !ok {
			Fail(c, apperr.UnauthorizedErr("Authentication required."))
			return
		}
		if !ac.HasRole(roles...) {
			Fail(c, apperr.ForbiddenErr("You do not have access to this resource."))
			return
		}
		c.Next()
	}
}

func bearerToken(h string) string {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
