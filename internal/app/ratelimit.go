package app

import (
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/middleware"
	"trigger-engine/internal/ratelimit"
)

func (app *App) initializeLimits() error {
	limiter, err := ratelimit.NewWebhookLimiter(ratelimit.WebhookConfig{
		RequestsPerSecond: app.Config.WebhookRateLimitRPS,
		Burst:             app.Config.WebhookRateLimitBurst,
	})
	if err != nil {
		return err
	}
	app.Limiter = limiter
	if limiter == nil {
		app.Logger.Info("Webhook Rate Limiting: Disabled")
		return nil
	}
	app.Logger.Info("Webhook Rate Limiting: Enabled",
		logging.Field{"rps", app.Config.WebhookRateLimitRPS},
		logging.Field{"burst", app.Config.WebhookRateLimitBurst},
	)
	return nil
}

// executionWindow shares the hourly budget through Redis when it is available;
// nil makes the trigger service count stored executions instead
func (app *App) executionWindow() ratelimit.ExecutionWindow {
	if app.RedisClient == nil {
		return nil
	}
	return ratelimit.NewRedisWindow(app.RedisClient)
}

func (app *App) initializeAuth() error {
	if !app.Config.AuthEnabled {
		app.Logger.Warn("Admin API authentication disabled")
		return nil
	}
	auth, err := middleware.NewJWTAuth(app.Config.JWTSecret, jwtIssuer, app.Logger)
	if err != nil {
		return err
	}
	app.Auth = auth
	return nil
}

const jwtIssuer = "trigger-engine"
