package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/auth"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/config"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
)

// NewServer builds the HTTP server: websocket endpoint, REST API, health and metrics.
func NewServer(svc *core.Service, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), MetricsMiddleware(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", gin.WrapH(NewWSHandler(svc, authService, cfg, logger)))

	conversations := NewConversationHandlers(svc, logger)
	messages := NewMessageHandlers(svc, logger)
	users := NewUserHandlers(svc, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/me", users.Me)
		api.GET("/users/:id", users.Get)
		api.GET("/presence", users.Presence)

		api.GET("/conversations", conversations.List)
		api.POST("/conversations", conversations.Create)
		api.GET("/conversations/:id", conversations.Get)
		api.GET("/conversations/:id/messages", conversations.Messages)
		api.POST("/conversations/:id/messages", messages.Send)
		api.POST("/conversations/:id/read", conversations.MarkRead)
		api.DELETE("/conversations/:id/participants/me", conversations.Leave)

		api.PATCH("/messages/:id", messages.Edit)
		api.DELETE("/messages/:id", messages.Delete)
	}

	var handler stdhttp.Handler = router
	handler = cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodPatch, stdhttp.MethodDelete, stdhttp.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler(handler)
	if cfg.HTTPRateLimit > 0 {
		handler = httprate.Limit(
			cfg.HTTPRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(stdhttp.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"rate_limited","error":"rate limit exceeded"}`))
			}),
		)(handler)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
