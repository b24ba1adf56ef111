package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/internal/logs"
)

const (
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
)

// SessionAuthenticator decides sessions for the HTTP boundary
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, presented core.Presented) (*core.Session, error)
	Logout(ctx context.Context, presented core.Presented) error
}

// SessionMiddleware authenticates requests from their cookies.
// Renewed credentials and cleanup instructions are written back before the handler runs,
// including on rejection.
func SessionMiddleware(guard SessionAuthenticator, cookies Cookies, exposeReason bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := guard.Authenticate(c.Request.Context(), cookies.Read(c))
		if err != nil {
			authErr := authFailure(err)
			cookies.Clear(c, authErr.Clear)
			abortAuth(c, authErr, exposeReason)
			return
		}

		if session.Renewed() {
			cookies.Write(c, session.Renewal)
		}

		c.Set(identityKey, session.Identity)
		c.Next()
	}
}

// IdentityFrom returns the identity set by SessionMiddleware
func IdentityFrom(c *gin.Context) (core.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return core.Identity{}, false
	}
	ident, ok := v.(core.Identity)
	return ident, ok
}

// RequestLogger attaches a request-scoped logger and logs each request once it completes
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)

		scoped := logger.With(slog.String("request_id", requestID))
		c.Request = c.Request.WithContext(logs.WithLogger(c.Request.Context(), scoped))

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		scoped.LogAttrs(c.Request.Context(), level, "http",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}
