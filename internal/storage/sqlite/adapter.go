package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/crypto"
	"trigger-engine/internal/models"
	"trigger-engine/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
	enc    *crypto.Encryptor
	logger logging.Logger
}

var _ storage.TriggerStore = (*Adapter)(nil)

func NewAdapter(ctx context.Context, config *Config, enc *crypto.Encryptor, logger logging.Logger) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps every write on one lock holder; WAL still lets it read while writing.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
		enc:    enc,
		logger: logging.OrGlobal(logger).WithFields(logging.Field{"component", "sqlite_store"}),
	}

	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	a.logger.Debug("Schema migrated", logging.Field{"path", a.config.DatabasePath})
	return nil
}

func (a *Adapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (a *Adapter) Create(ctx context.Context, t *models.Trigger) error {
	args, err := storage.TriggerArgs(t, a.enc)
	if err != nil {
		return err
	}

	return a.withTx(ctx, func(tx *sql.Tx) error {
		if webhookID := t.WebhookID(); webhookID != "" {
			var retired int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(1) FROM retired_webhook_ids WHERE webhook_id = ?`, webhookID).Scan(&retired); err != nil {
				return err
			}
			if retired > 0 {
				return storage.ErrDuplicateWebhookID
			}
		}

		query := fmt.Sprintf(`INSERT INTO triggers (%s) VALUES (%s)`,
			storage.TriggerColumns, placeholders(len(args)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err, "webhook_id") {
				return storage.ErrDuplicateWebhookID
			}
			return fmt.Errorf("insert trigger: %w", err)
		}
		return nil
	})
}

func (a *Adapter) Get(ctx context.Context, id string) (*models.Trigger, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT `+storage.TriggerColumns+` FROM triggers WHERE id = ?`, id)
	t, err := storage.ScanTrigger(row, a.enc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return t, err
}

func (a *Adapter) GetByWebhookID(ctx context.Context, webhookID string) (*models.Trigger, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT `+storage.TriggerColumns+` FROM triggers WHERE webhook_id = ? AND trigger_type = 'webhook'`, webhookID)
	t, err := storage.ScanTrigger(row, a.enc)
	if errors.Is(err, sql.ErrNoRows) {
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
		sets[i] = col + " = ?"
	}
	query := fmt.Sprintf(`UPDATE triggers SET %s WHERE id = ?`, strings.Join(sets, ", "))

	res, err := a.db.ExecContext(ctx, query, append(args, t.ID)...)
	if err != nil {
		return fmt.Errorf("update trigger: %w", err)
	}
	return requireAffected(res)
}

func (a *Adapter) Delete(ctx context.Context, id string) (bool, error) {
	found := false
	err := a.withTx(ctx, func(tx *sql.Tx) error {
		var webhookID sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT webhook_id FROM triggers WHERE id = ?`, id).Scan(&webhookID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		if _, err := tx.ExecContext(ctx, `DELETE FROM trigger_executions WHERE trigger_id = ?`, id); err != nil {
			return fmt.Errorf("delete executions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM triggers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete trigger: %w", err)
		}
		if webhookID.Valid && webhookID.String != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO retired_webhook_ids (webhook_id, retired_at) VALUES (?, ?)`,
				webhookID.String, time.Now().UTC()); err != nil {
				return fmt.Errorf("retire webhook id: %w", err)
			}
		}
		return nil
	})
	return found, err
}

func (a *Adapter) List(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error) {
	var where []string
	var args []interface{}
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, string(filter.TriggerType))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	return a.queryTriggers(ctx, `SELECT `+storage.TriggerColumns+` FROM triggers`+whereClause(where)+
		` ORDER BY created_at, id`, args...)
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
		WHERE trigger_type = 'cron' AND is_active = 1 AND next_run_time IS NOT NULL AND next_run_time <= ?
		ORDER BY next_run_time, id`, before.UTC())
}

func (a *Adapter) WebhookIDExists(ctx context.Context, webhookID string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx, `SELECT
		EXISTS(SELECT 1 FROM triggers WHERE webhook_id = ?) OR
		EXISTS(SELECT 1 FROM retired_webhook_ids WHERE webhook_id = ?)`, webhookID, webhookID).Scan(&exists)
	return exists, err
}

func (a *Adapter) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE triggers SET consecutive_failures = 0, last_execution_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return requireAffected(res)
}

func (a *Adapter) RecordFailure(ctx context.Context, id string, at time.Time) (*models.FailureOutcome, error) {
	var outcome models.FailureOutcome
	err := a.withTx(ctx, func(tx *sql.Tx) error {
		var active bool
		var failures, threshold int
		err := tx.QueryRowContext(ctx,
			`SELECT is_active, consecutive_failures, failure_threshold FROM triggers WHERE id = ?`, id).
			Scan(&active, &failures, &threshold)
		if errors.Is(err, sql.ErrNoRows) {
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
		stillActive := active && !outcome.Disabled

		_, err = tx.ExecContext(ctx,
			`UPDATE triggers SET consecutive_failures = ?, last_execution_at = ?, is_active = ? WHERE id = ?`,
			outcome.ConsecutiveFailures, at.UTC(), stillActive, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (a *Adapter) ResetFailures(ctx context.Context, id string) (bool, error) {
	res, err := a.db.ExecContext(ctx,
		`UPDATE triggers SET consecutive_failures = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("reset failures: %w", err)
	}
	return affected(res)
}

func (a *Adapter) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	res, err := a.db.ExecContext(ctx,
		`UPDATE triggers SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("set active: %w", err)
	}
	return affected(res)
}

func (a *Adapter) SetNextRunTime(ctx context.Context, id string, next *time.Time) error {
	var value interface{}
	if next != nil {
		value = next.UTC()
	}
	res, err := a.db.ExecContext(ctx,
		`UPDATE triggers SET next_run_time = ? WHERE id = ? AND trigger_type = 'cron'`, value, id)
	if err != nil {
		return fmt.Errorf("set next run time: %w", err)
	}
	return requireAffected(res)
}

func (a *Adapter) CreateExecution(ctx context.Context, e *models.TriggerExecution) error {
	args, err := storage.ExecutionArgs(e)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO trigger_executions (%s) VALUES (%s)`,
		storage.ExecutionColumns, placeholders(len(args)))
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (a *Adapter) ListExecutionsByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.queryExecutions(ctx, `SELECT `+storage.ExecutionColumns+` FROM trigger_executions
		WHERE trigger_id = ? ORDER BY executed_at DESC, id DESC LIMIT ?`, triggerID, limit)
}

func (a *Adapter) CountExecutionsInPeriod(ctx context.Context, triggerID string, since, until time.Time, statuses ...models.ExecutionStatus) (int, error) {
	query := `SELECT COUNT(1) FROM trigger_executions WHERE trigger_id = ? AND executed_at >= ? AND executed_at < ?`
	args := []interface{}{triggerID, since.UTC(), until.UTC()}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, storage.StatusStrings(statuses)...)
	}
	var count int
	err := a.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (a *Adapter) ListExecutions(ctx context.Context, filter models.ExecutionFilter, page models.Page) (*models.ExecutionPage, error) {
	page = page.Normalize()

	var where []string
	var args []interface{}
	if filter.TriggerID != "" {
		where = append(where, "trigger_id = ?")
		args = append(args, filter.TriggerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "executed_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Until != nil {
		where = append(where, "executed_at < ?")
		args = append(args, filter.Until.UTC())
	}
	clause := whereClause(where)

	var total int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM trigger_executions`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}

	items, err := a.queryExecutions(ctx, `SELECT `+storage.ExecutionColumns+` FROM trigger_executions`+clause+
		` ORDER BY executed_at DESC, id DESC LIMIT ? OFFSET ?`, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, err
	}

	return &models.ExecutionPage{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (a *Adapter) queryTriggers(ctx context.Context, query string, args ...interface{}) ([]*models.Trigger, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
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
	rows, err := a.db.QueryContext(ctx, query, args...)
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(sqliteErr.Error(), column)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func requireAffected(res sql.Result) error {
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}
	return nil
}
