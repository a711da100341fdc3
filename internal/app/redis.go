package app

import (
	"context"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
	"trigger-engine/internal/locks"
	"trigger-engine/internal/redis"
)

// initializeRedis connects when REDIS_ADDRESS is set. Redis is optional unless
// distributed locks or the redis event backend ask for it.
func (app *App) initializeRedis(ctx context.Context) error {
	required := app.Config.LocksEnabled || app.Config.EventsBackend == config.EventsBackendRedis
	if app.Config.RedisAddress == "" {
		app.Logger.Info("Redis: Not configured (shared execution windows and distributed locks disabled)")
		return nil
	}

	client, err := redis.NewClient(ctx, &redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
		PoolSize: app.Config.RedisPoolSize,
	})
	if err != nil {
		if required {
			return errors.DependencyUnavailableError("redis", err)
		}
		app.Logger.Warn("Redis initialization failed, continuing without Redis", logging.Err(err))
		return nil
	}
	app.RedisClient = client
	app.Logger.Info("Redis: Connected", logging.Field{"address", app.Config.RedisAddress})

	if app.Config.LocksEnabled {
		locker, err := locks.NewRedsyncLocker(client, app.Config.LockTTL, app.Logger)
		if err != nil {
			return err
		}
		app.Locker = locker
		app.Logger.Info("Distributed Locks: Enabled", logging.Field{"ttl", app.Config.LockTTL.String()})
	}
	return nil
}
