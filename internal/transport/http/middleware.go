package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vinrai007/neww-mesgar10/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

// credentialFromRequest returns the auth cookie, falling back to a Bearer header.
func credentialFromRequest(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// AuthMiddleware rejects requests that carry no valid credential for an existing user.
func AuthMiddleware(authService *auth.Service, cookieName string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credentialFromRequest(c.Request, cookieName)
		if token == "" {
			logger.Debug().Msg("missing credential")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing credential"})
			return
		}

		id, err := authService.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyUsername, id.Username)

		c.Next()
	}
}

// currentUserID returns the caller set by AuthMiddleware.
func currentUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
