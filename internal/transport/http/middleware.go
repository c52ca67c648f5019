package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/auth"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/metrics"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

const (
	// ContextKeyUser is the context key for storing the authenticated *store.User.
	ContextKeyUser = "user"
)

// AuthMiddleware creates a middleware that validates bearer tokens and resolves the user.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthenticated", Error: "missing authorization header"})
			return
		}

		token, ok := auth.BearerToken(authHeader)
		if !ok {
			logger.Debug().Msg("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthenticated", Error: "invalid authorization header format"})
			return
		}

		user, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !isAuthFailure(err) {
				logger.Error().Err(err).Msg("authenticate request")
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Error: "internal server error"})
				return
			}
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthenticated", Error: "invalid token"})
			return
		}

		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

func isAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrMissingToken) ||
		errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrUnknownUser)
}

// currentUser returns the user stored by AuthMiddleware.
func currentUser(c *gin.Context) *store.User {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return nil
	}
	user, _ := v.(*store.User)
	return user
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

// MetricsMiddleware records request duration by route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
