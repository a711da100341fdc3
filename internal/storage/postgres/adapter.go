package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/crypto"
	"trigger-engine/internal/models"
	"trigger-engine/internal/storage"
)

const uniqueViolation = "23505"

type Adapter struct {
	pool   *pgxpool.Pool
	config *Config
	enc    *crypto.Encryptor
	logger logging.Logger
}

var _ storage.TriggerStore = (*Adapter)(nil)

func NewAdapter(ctx context.Context, config *Config, enc *crypto.Encryptor, logger logging.Logger) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = config.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		pool:   pool,
		config: config,
		enc:    enc,
		logger: logging.OrGlobal(logger).WithFields(logging.Field{"component", "postgres_store"}),
	}

	if err := adapter.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	a.logger.Debug("Schema migrated")
	return nil
}

func (a *Adapter) Create(ctx context.Context, t *models.Trigger) error {
	args, err := storage.TriggerArgs(t, a.enc)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		if webhookID := t.WebhookID(); webhookID != "" {
			var retired bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM retired_webhook_ids WHERE webhook_id = $1)`, webhookID).Scan(&retired); err != nil {
				return err
			}
			if retired {
				return storage.ErrDuplicateWebhookID
			}
		}

		query := fmt.Sprintf(`INSERT INTO triggers (%s) VALUES (%s)`, storage.TriggerColumns, placeholders(1, len(args)))
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && strings.Contains(pgErr.ConstraintName, "webhook_id") {
				return storage.ErrDuplicateWebhookID
			}
			return fmt.Errorf("insert trigger: %w", err)
		}
		return nil
	})
}

func (a *Adapter) Get(ctx context.Context, id string) (*models.Trigger, error) {
	return a.getOne(ctx, `SELECT `+storage.TriggerColumns+` FROM triggers WHERE id = $1`, id)
}

func (a *Adapter) GetByWebhookID(ctx context.Context, webhookID string) (*models.Trigger, error) {
	return a.getOne(ctx, `SELECT `+storage.TriggerColumns+` FROM triggers
		WHERE webhook_id = $1 AND trigger_type = 'webhook'`, webhookID)
}

func (a *Adapter) getOne(ctx context.Context, query string, args ...interface{}) (*models.Trigger, error) {
	t, err := storage.ScanTrigger(a.pool.QueryRow(ctx, query, args...), a.enc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return t, err
}

func (a *Adapter) Update(ctx context.Context, t *models.Trigger) error {
	args, err := storage.UpdateArgs(t, a.enc)
	if err != nil {
		return err
	}
	sets := make([]string, len(storage.UpdateColumns))
	for i, col := range storage.UpdateColumns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	query := fmt.Sprintf(`UPDATE triggers SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)+1)

	tag, err := a.pool.Exec(ctx, query, append(args, t.ID)...)
	if err != nil {
		return fmt.Errorf("update trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, id string) (bool, error) {
	found := false
	err := pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		var webhookID *string
		err := tx.QueryRow(ctx, `SELECT webhook_id FROM triggers WHERE id = $1 FOR UPDATE`, id).Scan(&webhookID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		if _, err := tx.Exec(ctx, `DELETE FROM trigger_executions WHERE trigger_id = $1`, id); err != nil {
			return fmt.Errorf("delete executions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM triggers WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete trigger: %w", err)
		}
		if webhookID != nil && *webhookID != "" {
			if _, err := tx.Exec(ctx, `INSERT INTO retired_webhook_ids (webhook_id, retired_at) VALUES ($1, $2)
				ON CONFLICT (webhook_id) DO NOTHING`, *webhookID, time.Now().UTC()); err != nil {
				return fmt.Errorf("retire webhook id: %w", err)
			}
		}
		return nil
	})
	return found, err
}

func (a *Adapter) List(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error) {
	var q queryBuilder
	if filter.AgentID != "" {
		q.where("agent_id = " + q.arg(filter.AgentID))
	}
	if filter.TriggerType != "" {
		q.where("trigger_type = " + q.arg(string(filter.TriggerType)))
	}
	if filter.ActiveOnly {
		q.where("is_active")
	}
	return a.queryTriggers(ctx, `SELECT `+storage.TriggerColumns+` FROM triggers`+q.clause()+
		` ORDER BY created_at, id`, q.args...)
}

func (a *Adapter) ListByAgent(ctx context.Context, agentID string) ([]*models.Trigger, error) {
	return a.List(ctx, models.TriggerFilter{AgentID: agentID})
}

func (a *Adapter) ListByType(ctx context.Context, triggerType models.TriggerType) ([]*models.Trigger, error) {
	return a.List(ctx, models.TriggerFilter{TriggerType: triggerType})
}

func (a *Adapter) ListActive(ctx context.Context) ([]*models.Trigger, error) {
	return a.List(ctx, models.TriggerFilter{ActiveOnly: true})
}

func (a *Adapter) ListCronTriggersDue(ctx context.Context, before time.Time) ([]*models.Trigger, error) {
	return a.queryTriggers(ctx, `SELECT `+storage.TriggerColumns+` FROM triggers
		WHERE trigger_type = 'cron' AND is_active AND next_run_time IS NOT NULL AND next_run_time <= $1
		ORDER BY next_run_time, id`, before.UTC())
}

func (a *Adapter) WebhookIDExists(ctx context.Context, webhookID string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx, `SELECT
		EXISTS(SELECT 1 FROM triggers WHERE webhook_id = $1) OR
		EXISTS(SELECT 1 FROM retired_webhook_ids WHERE webhook_id = $1)`, webhookID).Scan(&exists)
	return exists, err
}

func (a *Adapter) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	tag, err := a.pool.Exec(ctx,
		`UPDATE triggers SET consecutive_failures = 0, last_execution_at = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) RecordFailure(ctx context.Context, id string, at time.Time) (*models.FailureOutcome, error) {
	var outcome models.FailureOutcome
	err := pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		var active bool
		var failures, threshold int
		err := tx.QueryRow(ctx, `SELECT is_active, consecutive_failures, failure_threshold
			FROM triggers WHERE id = $1 FOR UPDATE`, id).Scan(&active, &failures, &threshold)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		outcome = models.FailureOutcome{
			ConsecutiveFailures: failures + 1,
			FailureThreshold:    threshold,
			Disabled:            active && failures+1 >= threshold,
		}

		_, err = tx.Exec(ctx, `UPDATE triggers SET consecutive_failures = $1, last_execution_at = $2, is_active = $3
			WHERE id = $4`, outcome.ConsecutiveFailures, at.UTC(), active && !outcome.Disabled, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (a *Adapter) ResetFailures(ctx context.Context, id string) (bool, error) {
	tag, err := a.pool.Exec(ctx,
		`UPDATE triggers SET consecutive_failures = 0, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("reset failures: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (a *Adapter) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	tag, err := a.pool.Exec(ctx,
		`UPDATE triggers SET is_active = $1, updated_at = $2 WHERE id = $3`, active, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("set active: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (a *Adapter) SetNextRunTime(ctx context.Context, id string, next *time.Time) error {
	var value interface{}
	if next != nil {
		value = next.UTC()
	}
	tag, err := a.pool.Exec(ctx,
		`UPDATE triggers SET next_run_time = $1 WHERE id = $2 AND trigger_type = 'cron'`, value, id)
	if err != nil {
		return fmt.Errorf("set next run time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) CreateExecution(ctx context.Context, e *models.TriggerExecution) error {
	args, err := storage.ExecutionArgs(e)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO trigger_executions (%s) VALUES (%s)`,
		storage.ExecutionColumns, placeholders(1, len(args)))
	if _, err := a.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (a *Adapter) ListExecutionsByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.queryExecutions(ctx, `SELECT `+storage.ExecutionColumns+` FROM trigger_executions
		WHERE trigger_id = $1 ORDER BY executed_at DESC, id DESC LIMIT $2`, triggerID, limit)
}

func (a *Adapter) CountExecutionsInPeriod(ctx context.Context, triggerID string, since, until time.Time, statuses ...models.ExecutionStatus) (int, error) {
	var q queryBuilder
	q.where("trigger_id = " + q.arg(triggerID))
	q.where("executed_at >= " + q.arg(since.UTC()))
	q.where("executed_at < " + q.arg(until.UTC()))
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		q.where("status = ANY(" + q.arg(names) + ")")
	}

	var count int
	err := a.pool.QueryRow(ctx, `SELECT COUNT(1) FROM trigger_executions`+q.clause(), q.args...).Scan(&count)
	return count, err
}

func (a *Adapter) ListExecutions(ctx context.Context, filter models.ExecutionFilter, page models.Page) (*models.ExecutionPage, error) {
	page = page.Normalize()

	var q queryBuilder
	if filter.TriggerID != "" {
		q.where("trigger_id = " + q.arg(filter.TriggerID))
	}
	if filter.Status != "" {
		q.where("status = " + q.arg(string(filter.Status)))
	}
	if filter.Since != nil {
		q.where("executed_at >= " + q.arg(filter.Since.UTC()))
	}
	if filter.Until != nil {
		q.where("executed_at < " + q.arg(filter.Until.UTC()))
	}

	var total int
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(1) FROM trigger_executions`+q.clause(), q.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}

	clause := q.clause()
	limit := q.arg(page.Limit)
	offset := q.arg(page.Offset)
	items, err := a.queryExecutions(ctx, `SELECT `+storage.ExecutionColumns+` FROM trigger_executions`+clause+
		` ORDER BY executed_at DESC, id DESC LIMIT `+limit+` OFFSET `+offset, q.args...)
	if err != nil {
		return nil, err
	}
	return &models.ExecutionPage{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (a *Adapter) queryTriggers(ctx context.Context, query string, args ...interface{}) ([]*models.Trigger, error) {
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*models.Trigger
	for rows.Next() {
		t, err := storage.ScanTrigger(rows, a.enc)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

func (a *Adapter) queryExecutions(ctx context.Context, query string, args ...interface{}) ([]*models.TriggerExecution, error) {
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	executions := []*models.TriggerExecution{}
	for rows.Next() {
		e, err := storage.ScanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

// queryBuilder numbers positional parameters as they are added
type queryBuilder struct {
	args       []interface{}
	conditions []string
}

func (q *queryBuilder) arg(v interface{}) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *queryBuilder) where(condition string) {
	q.conditions = append(q.conditions, condition)
}

func (q *queryBuilder) clause() string {
	if len(q.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conditions, " AND ")
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
