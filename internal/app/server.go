package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/server"
)

// Start loads the webhook registry and the cron schedules concurrently.
// The schedule manager keeps ticking until ctx is done.
func (app *App) Start(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := app.Triggers.LoadWebhooks(ctx)
		return err
	})
	if app.Config.ScheduleEnabled {
		g.Go(func() error {
			return app.Schedules.Start(ctx, app.Triggers)
		})
	} else {
		app.Logger.Info("Scheduler: Disabled")
	}
	return g.Wait()
}

// Serve starts the background components and the HTTP server, and blocks until ctx is done
func (app *App) Serve(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	srv := server.New(app.Handler(), app.Config.Port, server.DefaultTimeouts(), app.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Schedules.Stop()
		return nil
	})

	app.Logger.Info("Trigger engine started",
		logging.Field{"port", app.Config.Port},
		logging.Field{"auth_enabled", app.Auth != nil},
		logging.Field{"events_backend", app.Config.EventsBackend},
	)
	return g.Wait()
}
