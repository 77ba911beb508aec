// Package bootstrap holds the start-up and shutdown sequence every binary
// shares: env loading, config, logging, and the clients a process opens.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type closer struct {
	name  string
	close func() error
}

// Runtime is a started process. Clients opened through it are closed in
// reverse order by Close.
type Runtime struct {
	Service  string
	Instance string
	Config   *config.Config
	Logger   *logger.Logger

	closers []closer
	exit    func(int)
}

// Start loads .env and the config, then builds the configured logger.
// A config error ends the process.
func Start(service string) *Runtime {
	rt := &Runtime{Service: service, Instance: InstanceID(), Logger: logger.New(logger.Options{ServiceName: service}), exit: os.Exit}
	if err := godotenv.Load(); err != nil {
		rt.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		rt.Fail("failed to load config", err)
	}
	cfg.Service.Kind = service
	rt.Config = cfg
	rt.Logger = logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	return rt
}

// Fail logs err, releases everything opened so far and exits non-zero.
func (rt *Runtime) Fail(msg string, err error) {
	rt.Logger.Error(context.Background(), msg, err)
	rt.Close()
	rt.exit(1)
}

func (rt *Runtime) onClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, close: fn})
}

// Close releases opened clients, newest first. It is safe to call twice.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			rt.Logger.Error(rt.Logger.WithField(context.Background(), "client", c.name), "error closing client", err)
		}
	}
	rt.closers = nil
}

// Database opens the configured database and, in dev, applies pending migrations.
func (rt *Runtime) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		rt.Fail("failed to bootstrap database", err)
		return nil
	}
	rt.onClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, client); err != nil {
		rt.Fail("failed to run dev migrations", err)
	}
	return client
}

func (rt *Runtime) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		rt.Fail("failed to bootstrap redis", err)
		return nil
	}
	rt.onClose("redis", client.Close)
	return client
}

func (rt *Runtime) PubSub(ctx context.Context, role pubsub.Role) *pubsub.Client {
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, rt.Config.PubSub, role, rt.Logger)
	if err != nil {
		rt.Fail("failed to bootstrap pubsub", err)
		return nil
	}
	rt.onClose("pubsub", client.Close)
	return client
}

// Run blocks in fn until it returns or the process is interrupted, then
// closes the runtime. Cancellation counts as a clean stop.
func (rt *Runtime) Run(fn func(ctx context.Context) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = rt.Logger.WithFields(ctx, map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": rt.Service,
		"instance":    rt.Instance,
	})

	rt.Logger.Info(ctx, "starting "+rt.Service)
	err := fn(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		rt.Fail(rt.Service+" stopped unexpectedly", err)
		return
	}
	rt.Logger.Info(ctx, rt.Service+" shutting down gracefully")
	rt.Close()
}

// InstanceID names this replica in logs and lock ownership.
func InstanceID() string {
	for _, env := range []string{"STOREFRONT_WORKER_ID", "DYNO"} {
		if id := os.Getenv(env); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
