// Package app wires configuration, logging, tracing, stores and brokers for
// every binary.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-recipes/internal/common/config"
	"task-recipes/internal/common/database"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/observability"

	"go.uber.org/zap"
)

// App holds the process-wide dependencies of one binary.
type App struct {
	Name   string
	Config *config.Config
	Zap    *zap.Logger
	Log    logger.Logger
	Obs    *observability.Observability

	redis   *database.RedisClient
	closers []func() error
	tracing func(context.Context) error
}

// New loads the configuration (from path when set) and sets up logging,
// tracing and metrics for the binary called name.
func New(ctx context.Context, name, path string) (*App, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return FromConfig(ctx, name, cfg)
}

// FromConfig is New for an already loaded configuration.
func FromConfig(ctx context.Context, name string, cfg *config.Config) (*App, error) {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format).Named(name)
	log := logger.NewZapAdapter(zapLog)

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, name, log)
	if err != nil {
		return nil, err
	}

	obs, err := observability.New(name)
	if err != nil {
		log.Warn("Metrics provider init failed, recording nothing", map[string]interface{}{"error": err.Error()})
		obs = observability.NewNoop()
	}

	return &App{
		Name:    name,
		Config:  cfg,
		Zap:     zapLog,
		Log:     log,
		Obs:     obs,
		tracing: shutdown,
	}, nil
}

// OnClose registers fn to run on Close, in reverse registration order.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Redis returns the shared Redis client, connecting on first use.
func (a *App) Redis(ctx context.Context) (*database.RedisClient, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := database.NewRedis(a.Config.Database.Redis)
	if err != nil {
		return nil, err
	}
	err = RetryWithBackoff(ctx, func() error { return client.Ping(ctx) }, 10, 2*time.Second, a.Zap, "Redis connection")
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	a.Zap.Info("Redis connected successfully", zap.String("address", a.Config.Database.Redis.Address))
	a.redis = client
	a.OnClose(client.Close)
	return client, nil
}

// Close releases everything opened through the App and flushes telemetry.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Zap.Warn("Close failed", zap.Error(err))
		}
	}
	a.closers = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.tracing != nil {
		_ = a.tracing(ctx)
	}
	_ = a.Obs.Shutdown(ctx)
	_ = a.Zap.Sync()
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
