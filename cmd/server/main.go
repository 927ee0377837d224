// Package main is the entry point for the cart API server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/storecart/internal/auth"
	"github.com/vyrodovalexey/storecart/internal/config"
	"github.com/vyrodovalexey/storecart/internal/events"
	"github.com/vyrodovalexey/storecart/internal/server"
	"github.com/vyrodovalexey/storecart/internal/store"
)

// dotEnvPath is read before the environment is parsed.
const dotEnvPath = ".env"

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to load .env file", zap.Error(err))
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use a basic logger for startup errors
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.Strings("cors_origins", cfg.CORSOrigins),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("auth_mode", cfg.AuthMode),
	)

	authenticator, err := createAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("failed to create authenticator", zap.Error(err))
		return 1
	}

	cartStore, closeStore, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return 1
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	hub := events.NewHub(cfg.EventBuffer)
	srv := server.New(cfg, logger, cartStore, hub, authenticator)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// openStore builds the configured store, migrates it when needed and loads
// fixtures. The returned closer releases the underlying connections.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, io.Closer, error) {
	var (
		cartStore store.Store
		seeder    store.Seeder
		closer    io.Closer = io.NopCloser(nil)
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory, "":
		mem := store.NewMemoryStore()
		cartStore, seeder = mem, mem
		logger.Info("using in-memory store")
	case config.StoreDriverMySQL:
		gs, err := store.OpenMySQL(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := gs.Migrate(ctx); err != nil {
			_ = gs.Close()
			return nil, nil, err
		}
		cartStore, seeder, closer = gs, gs, gs
		logger.Info("using MySQL store")
	default:
		return nil, nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}

	if cfg.FixturesPath != "" {
		if err := loadFixtures(ctx, seeder, cfg.FixturesPath); err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		logger.Info("fixtures loaded", zap.String("path", cfg.FixturesPath))
	}

	return cartStore, closer, nil
}

// loadFixtures seeds stores and products from a YAML file.
func loadFixtures(ctx context.Context, seeder store.Seeder, path string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()

	fixtures, err := store.ParseFixtures(f)
	if err != nil {
		return fmt.Errorf("parsing fixtures %s: %w", path, err)
	}

	return seeder.Seed(ctx, fixtures)
}

// createAuthenticator creates an authenticator based on the config auth mode.
func createAuthenticator(
	cfg *config.Config,
	logger *zap.Logger,
) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case "none", "":
		logger.Info("authentication disabled")
		return nil, nil
	case "basic":
		logger.Info("authentication mode: basic auth")
		return auth.NewBasicAuthenticator(cfg.BasicAuthUsers)
	case "apikey":
		logger.Info("authentication mode: API key")
		return auth.NewAPIKeyAuthenticator(cfg.APIKeys)
	case "jwt":
		logger.Info("authentication mode: JWT",
			zap.String("issuer", cfg.JWTIssuer),
			zap.String("audience", cfg.JWTAudience),
		)
		return auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	case "multi":
		logger.Info("authentication mode: multi")
		return createMultiAuthenticator(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown auth mode: %s", cfg.AuthMode)
	}
}

// createMultiAuthenticator creates a multi-method authenticator
// from the available auth configurations.
func createMultiAuthenticator(
	cfg *config.Config,
	logger *zap.Logger,
) (auth.Authenticator, error) {
	var authenticators []auth.Authenticator

	if cfg.JWTSecret != "" {
		ja, err := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			return nil, fmt.Errorf("creating JWT authenticator: %w", err)
		}
		authenticators = append(authenticators, ja)
		logger.Info("multi-auth: JWT enabled")
	}

	if cfg.BasicAuthUsers != "" {
		ba, err := auth.NewBasicAuthenticator(cfg.BasicAuthUsers)
		if err != nil {
			return nil, fmt.Errorf("creating basic authenticator: %w", err)
		}
		authenticators = append(authenticators, ba)
		logger.Info("multi-auth: basic auth enabled")
	}

	if cfg.APIKeys != "" {
		ak, err := auth.NewAPIKeyAuthenticator(cfg.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("creating API key authenticator: %w", err)
		}
		authenticators = append(authenticators, ak)
		logger.Info("multi-auth: API key auth enabled")
	}

	if len(authenticators) == 0 {
		return nil, fmt.Errorf("multi auth mode requires at least one authenticator")
	}

	return auth.NewMultiAuthenticator(authenticators...), nil
}
