package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/auth"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/config"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/fabric"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/presence"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/redisconn"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store/sqlite"
	transporthttp "github.com/Tshikamisava/kasi-rent-sub000/internal/transport/http"
)

// App wires together storage, the broadcast fabric, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	svc             *core.Service
	bus             fabric.Bus
	redis           *redis.Client
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = st
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	if cfg.FabricBackend == config.FabricRedis || cfg.PresenceBackend == config.PresenceRedis {
		a.redis, err = redisconn.Open(ctx, cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		logger.Info().Msg("redis connected")
	}

	a.bus, err = a.openFabric(cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	logger.Info().Str("backend", cfg.FabricBackend).Msg("broadcast fabric ready")

	var reg presence.Registry = presence.NewMemory()
	if cfg.PresenceBackend == config.PresenceRedis {
		reg = presence.NewRedis(a.redis, cfg.PresenceTTL)
	}

	a.hub = core.NewHub(a.bus, logger)
	if err := a.hub.Start(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("start hub: %w", err)
	}

	a.svc = core.NewService(st, a.hub, reg, core.Options{
		MaxContentLength: cfg.MaxContentLength,
		HistoryPageSize:  cfg.HistoryPageSize,
		HistoryMaxPage:   cfg.HistoryMaxPage,
		PresenceTTL:      cfg.PresenceTTL,
	}, logger)

	authService := auth.NewService(st, JWTConfig(cfg))
	a.server = transporthttp.NewServer(a.svc, authService, cfg, logger)

	return a, nil
}

// JWTConfig derives token settings from the server configuration.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

func (a *App) openFabric(cfg *config.Config) (fabric.Bus, error) {
	switch cfg.FabricBackend {
	case config.FabricRedis:
		return fabric.NewRedis(a.redis, a.log), nil
	case config.FabricNATS:
		bus, err := fabric.ConnectNATS(fabric.NATSConfig{URL: cfg.NATSURL, Token: cfg.NATSToken}, a.log)
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return fabric.NewLocal(), nil
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.svc.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup releases resources in reverse order of construction.
func (a *App) cleanup() {
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fabric")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
