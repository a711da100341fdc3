package sqlite

var schema = []string{
	`CREATE TABLE IF NOT EXISTS triggers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		agent_id TEXT NOT NULL,
		trigger_type TEXT NOT NULL CHECK (trigger_type IN ('cron', 'webhook')),
		is_active INTEGER NOT NULL DEFAULT 1,
		task_parameters TEXT NOT NULL DEFAULT '{}',
		conditions TEXT,
		failure_threshold INTEGER NOT NULL DEFAULT 5 CHECK (failure_threshold >= 1),
		consecutive_failures INTEGER NOT NULL DEFAULT 0 CHECK (consecutive_failures >= 0),
		max_executions_per_hour INTEGER CHECK (max_executions_per_hour IS NULL OR max_executions_per_hour >= 1),
		last_execution_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		cron_expression TEXT,
		timezone TEXT,
		next_run_time DATETIME,
		webhook_id TEXT UNIQUE,
		allowed_methods TEXT,
		webhook_type TEXT,
		validation_rules TEXT,
		webhook_config TEXT,
		CHECK ((trigger_type = 'cron' AND cron_expression IS NOT NULL AND webhook_id IS NULL)
			OR (trigger_type = 'webhook' AND webhook_id IS NOT NULL AND cron_expression IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_triggers_agent ON triggers(agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_triggers_type_active ON triggers(trigger_type, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_triggers_next_run ON triggers(next_run_time) WHERE trigger_type = 'cron'`,
	`CREATE TABLE IF NOT EXISTS trigger_executions (
		id TEXT PRIMARY KEY,
		trigger_id TEXT NOT NULL REFERENCES triggers(id) ON DELETE CASCADE,
		executed_at DATETIME NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('SUCCESS', 'FAILED', 'TIMEOUT', 'SKIPPED')),
		task_id TEXT,
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		trigger_data TEXT NOT NULL DEFAULT '{}',
		workflow_id TEXT,
		run_id TEXT,
		correlation_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_trigger_time ON trigger_executions(trigger_id, executed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_status ON trigger_executions(status)`,
	`CREATE TABLE IF NOT EXISTS retired_webhook_ids (
		webhook_id TEXT PRIMARY KEY,
		retired_at DATETIME NOT NULL
	)`,
}
