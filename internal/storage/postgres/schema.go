package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS triggers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		agent_id TEXT NOT NULL,
		trigger_type TEXT NOT NULL CHECK (trigger_type IN ('cron', 'webhook')),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		task_parameters JSONB NOT NULL DEFAULT '{}',
		conditions JSONB,
		failure_threshold INTEGER NOT NULL DEFAULT 5 CHECK (failure_threshold >= 1),
		consecutive_failures INTEGER NOT NULL DEFAULT 0 CHECK (consecutive_failures >= 0),
		max_executions_per_hour INTEGER CHECK (max_executions_per_hour IS NULL OR max_executions_per_hour >= 1),
		last_execution_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		cron_expression TEXT,
		timezone TEXT,
		next_run_time TIMESTAMPTZ,
		webhook_id TEXT,
		allowed_methods JSONB,
		webhook_type TEXT,
		validation_rules JSONB,
		webhook_config TEXT,
		CONSTRAINT triggers_webhook_id_key UNIQUE (webhook_id),
		CONSTRAINT triggers_kind_fields CHECK (
			(trigger_type = 'cron' AND cron_expression IS NOT NULL AND webhook_id IS NULL)
			OR (trigger_type = 'webhook' AND webhook_id IS NOT NULL AND cron_expression IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_triggers_agent ON triggers(agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_triggers_type_active ON triggers(trigger_type, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_triggers_next_run ON triggers(next_run_time) WHERE trigger_type = 'cron'`,
	`CREATE TABLE IF NOT EXISTS trigger_executions (
		id TEXT PRIMARY KEY,
		trigger_id TEXT NOT NULL REFERENCES triggers(id) ON DELETE CASCADE,
		executed_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('SUCCESS', 'FAILED', 'TIMEOUT', 'SKIPPED')),
		task_id TEXT,
		execution_time_ms BIGINT NOT NULL DEFAULT 0,
		error_message TEXT,
		trigger_data JSONB NOT NULL DEFAULT '{}',
		workflow_id TEXT,
		run_id TEXT,
		correlation_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_trigger_time ON trigger_executions(trigger_id, executed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_status ON trigger_executions(status)`,
	`CREATE TABLE IF NOT EXISTS retired_webhook_ids (
		webhook_id TEXT PRIMARY KEY,
		retired_at TIMESTAMPTZ NOT NULL
	)`,
}
