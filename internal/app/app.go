package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinrai007/neww-mesgar10/internal/auth"
	"github.com/vinrai007/neww-mesgar10/internal/config"
	"github.com/vinrai007/neww-mesgar10/internal/core"
	"github.com/vinrai007/neww-mesgar10/internal/files"
	"github.com/vinrai007/neww-mesgar10/internal/store"
	"github.com/vinrai007/neww-mesgar10/internal/store/sqlite"
	transporthttp "github.com/vinrai007/neww-mesgar10/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	uploads, err := files.NewOS(cfg.UploadsDir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init uploads: %w", err)
	}
	logger.Info().Str("uploads_dir", cfg.UploadsDir).Msg("attachment storage initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	hubLogger := logger.With().Str("component", "hub").Logger()
	hub := core.NewHub(st, uploads, authService,
		core.WithLogger(hubLogger),
		core.WithHeartbeat(cfg.HeartbeatInterval, cfg.HeartbeatTimeout),
	)
	server := transporthttp.NewServer(hub, authService, st, uploads, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

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
		shutdownErr := a.server.Shutdown(shutdownCtx)

		// Stopping the hub closes every event stream so WebSocket handlers wind
		// down. The store stays open until the messages they accepted are stored.
		stopHub()
		if err := a.server.Drain(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("websocket sessions still running at shutdown")
		}

		a.cleanup()
		if shutdownErr != nil {
			return shutdownErr
		}
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
