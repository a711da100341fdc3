package app

import (
	"context"

	"trigger-engine/internal/agents"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/conditions"
	"trigger-engine/internal/llm"
	"trigger-engine/internal/locks"
	"trigger-engine/internal/schedule"
	"trigger-engine/internal/tasks"
	"trigger-engine/internal/triggers"
	"trigger-engine/internal/webhooks"
)

// initializeTriggers builds the trigger service and its collaborators.
// The schedule manager is created before the service and started later by Serve.
func (app *App) initializeTriggers(ctx context.Context) error {
	cfg := app.Config

	completer, err := app.completer(ctx)
	if err != nil {
		return err
	}
	evaluator := conditions.NewEvaluator(completer, app.Logger, conditions.WithLLMTimeout(cfg.LLMTimeout))

	registry, err := webhooks.NewRegistry(app.Store, cfg.WebhookCacheSize, app.Logger)
	if err != nil {
		return err
	}
	app.Webhooks = registry

	app.Schedules = schedule.NewManager(app.Store, app.Logger, schedule.Options{CatchUp: cfg.ScheduleCatchUp})

	var locker locks.Locker
	if app.Locker != nil {
		locker = app.Locker
	}

	service, err := triggers.NewService(triggers.Dependencies{
		Store:     app.Store,
		Evaluator: evaluator,
		Registry:  registry,
		Tasks:     app.taskService(),
		Schedules: app.Schedules,
		Publisher: app.Publisher,
		Agents:    app.agentLookup(),
		Locker:    locker,
		Limiter:   app.executionWindow(),
		Logger:    app.Logger,
		Metrics:   app.Metrics,
		Options: triggers.Options{
			DefaultFailureThreshold: cfg.DefaultFailureThreshold,
			AtRiskRatio:             cfg.SafetyAtRiskRatio,
			ConditionTimeout:        cfg.ConditionTimeout,
			TaskTimeout:             cfg.TaskTimeout,
		},
	})
	if err != nil {
		return err
	}
	app.Triggers = service

	app.Dispatcher = webhooks.NewDispatcher(registry, service, webhooks.NewSignatureVerifier(), webhooks.Options{
		StrictStatusCodes: cfg.WebhookStrictStatusCodes,
		ResponseTimeout:   cfg.WebhookResponseTimeout,
	}, app.Logger)
	return nil
}

// completer returns nil when no LLM is configured; llm conditions then fail closed
func (app *App) completer(ctx context.Context) (conditions.Completer, error) {
	cfg := app.Config
	if cfg.LLMProvider == "" || cfg.LLMProvider == "none" {
		app.Logger.Info("LLM: Disabled (llm conditions will fail)")
		return nil, nil
	}
	chat, err := llm.NewChatModel(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.OpenAIModel,
		BaseURL:  cfg.OpenAIBaseURL,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}
	app.Logger.Info("LLM: Enabled",
		logging.Field{"provider", cfg.LLMProvider},
		logging.Field{"model", cfg.OpenAIModel},
	)
	return llm.NewClient(chat, cfg.OpenAIModel, app.Logger), nil
}

func (app *App) taskService() triggers.TaskService {
	cfg := app.Config
	if cfg.TaskServiceURL == "" {
		app.Logger.Warn("TASK_SERVICE_URL not set, tasks are only logged in-process")
		return tasks.NewLocalService(0, app.Logger)
	}
	return tasks.NewHTTPService(cfg.TaskServiceURL, cfg.TaskServiceToken, cfg.TaskTimeout, app.Logger)
}

func (app *App) agentLookup() triggers.AgentLookup {
	cfg := app.Config
	if cfg.AgentServiceURL == "" {
		return agents.NewStaticList(cfg.AgentIDs...)
	}
	return agents.NewDirectory(cfg.AgentServiceURL, cfg.TaskServiceToken, cfg.TaskTimeout, app.Logger)
}
