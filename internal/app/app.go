package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	wclog "github.com/vovakirdan/wirechat-rooms/internal/log"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
	"github.com/vovakirdan/wirechat-rooms/internal/store/file"
	redisstore "github.com/vovakirdan/wirechat-rooms/internal/store/redis"
	"github.com/vovakirdan/wirechat-rooms/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-rooms/internal/transport/http"
)

const connectTimeout = 5 * time.Second

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	history         *core.HistoryStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	p, err := loadProtocol(cfg.ProtocolPath)
	if err != nil {
		return nil, fmt.Errorf("load protocol: %w", err)
	}

	snap, err := newSnapshotter(cfg)
	if err != nil {
		return nil, fmt.Errorf("init history backend: %w", err)
	}
	logger.Info().
		Str("backend", cfg.HistoryBackend).
		Str("protocol_version", p.Version()).
		Msg("history backend initialized")

	history := core.NewHistoryStore(snap, core.HistoryOptions{
		Limit:      cfg.HistoryLimit,
		FlushEvery: cfg.FlushEvery,
	}, wclog.Component(logger, "history"))

	hub := core.NewHub(p, history, core.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		FlushInterval:     cfg.FlushInterval,
		PreviewLength:     cfg.PreviewLength,
	}, wclog.Component(logger, "hub"))

	server := transporthttp.NewServer(hub, cfg, wclog.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		history:         history,
		log:             logger,
	}, nil
}

func loadProtocol(path string) (*proto.Protocol, error) {
	if path == "" {
		return proto.Default()
	}
	return proto.Load(path)
}

func newSnapshotter(cfg config.Config) (store.HistorySnapshotter, error) {
	switch cfg.HistoryBackend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendFile:
		return file.New(cfg.HistoryDir)
	case config.BackendSQLite:
		return sqlite.New(cfg.DatabasePath)
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return redisstore.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	a.history.Start()
	go a.hub.Run(hubCtx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup(stopHub)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup(stopHub)
			return err
		}

		a.cleanup(stopHub)
		return <-serverErr
	}
}

// cleanup stops the hub, then writes the final history snapshots.
func (a *App) cleanup(stopHub context.CancelFunc) {
	stopHub()
	a.hub.Wait()

	a.history.Close()
	a.log.Info().Msg("history flushed")
}
