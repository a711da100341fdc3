package app

import (
	"context"
	stderrors "errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
	"trigger-engine/internal/crypto"
	"trigger-engine/internal/events"
	"trigger-engine/internal/locks"
	"trigger-engine/internal/middleware"
	"trigger-engine/internal/ratelimit"
	"trigger-engine/internal/redis"
	"trigger-engine/internal/schedule"
	"trigger-engine/internal/storage"
	"trigger-engine/internal/triggers"
	"trigger-engine/internal/webhooks"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Logger      logging.Logger
	Encryptor   *crypto.Encryptor
	Store       storage.TriggerStore
	RedisClient *redis.Client
	Locker      *locks.RedsyncLocker
	Publisher   events.Publisher
	Registry    *prometheus.Registry
	Metrics     *triggers.Metrics
	Webhooks    *webhooks.Registry
	Schedules   *schedule.Manager
	Triggers    *triggers.Service
	Dispatcher  *webhooks.Dispatcher
	Limiter     *ratelimit.WebhookLimiter
	Auth        *middleware.JWTAuth
}

// New creates a new application instance with all dependencies.
// Nothing runs in the background until Serve is called.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{"component", "app"}),
	}

	// Initialize components in order of dependency
	if err := app.initializeEncryption(); err != nil {
		return nil, err
	}
	if err := app.initializeStorage(ctx); err != nil {
		return nil, err
	}
	if err := app.initializeRedis(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.initializeLimits(); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.initializeAuth(); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.initializeEvents(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = triggers.MustNewMetrics(app.Registry)

	if err := app.initializeTriggers(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) initializeEncryption() error {
	if app.Config.EncryptionKey == "" {
		app.Logger.Warn("CONFIG_ENCRYPTION_KEY not set, webhook_config is stored in plain text")
		return nil
	}
	enc, err := crypto.NewEncryptor(app.Config.EncryptionKey)
	if err != nil {
		return err
	}
	app.Encryptor = enc
	return nil
}

func (app *App) initializeEvents(ctx context.Context) error {
	publisher, err := events.New(ctx, app.Config, app.RedisClient, app.Logger)
	if err != nil {
		return err
	}
	app.Publisher = publisher
	app.Logger.Info("Event publisher ready", logging.Field{"backend", app.Config.EventsBackend})
	return nil
}

// Close waits for detached webhook executions, then releases every resource.
// It is safe on a partially initialized App.
func (app *App) Close(ctx context.Context) error {
	var errs []error
	if app.Schedules != nil {
		app.Schedules.Stop()
	}
	if app.Dispatcher != nil {
		if err := app.Dispatcher.Wait(ctx); err != nil {
			app.Logger.Warn("Gave up waiting for webhook executions", logging.Err(err))
		}
	}
	if app.Publisher != nil {
		errs = append(errs, app.Publisher.Close())
	}
	if app.Locker != nil {
		errs = append(errs, app.Locker.Close())
	}
	if app.RedisClient != nil {
		errs = append(errs, app.RedisClient.Close())
	}
	if app.Store != nil {
		errs = append(errs, app.Store.Close())
	}
	return stderrors.Join(errs...)
}
