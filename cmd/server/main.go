package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vinrai007/neww-mesgar10/internal/app"
	"github.com/vinrai007/neww-mesgar10/internal/config"
	applog "github.com/vinrai007/neww-mesgar10/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "mesgar",
		Short:         "Real-time direct messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, overrides)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	flags.StringVar(&overrides.UploadsDir, "uploads", "", "attachment directory")

	return cmd
}

func run(ctx context.Context, configPath string, overrides config.Config) error {
	bootLogger := applog.New("info")

	cfg, resolvedPath, err := config.Load(bootLogger, configPath)
	if err != nil {
		bootLogger.Error().Err(err).Msg("failed to load config")
		return err
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		bootLogger.Error().Err(err).Msg("invalid config")
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := applog.New(cfg.LogLevel)
	logger.Info().Str("config", resolvedPath).Msg("configuration loaded")
	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn().Msg("jwt_secret is the default placeholder; set MESGAR_JWT_SECRET in production")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting mesgar server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
