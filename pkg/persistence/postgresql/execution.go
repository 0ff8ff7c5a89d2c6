package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/lib/pq"
)

const executionColumns = `id, workflow_id, status, logs, started_at, finished_at, created_at`

const stepColumns = `id, execution_id, step_key, step_order, status, input, output, duration_ms, created_at`

// ExecutionRepository stores executions in one table and their steps in another.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	if execution.Logs == nil {
		execution.Logs = []models.LogEntry{}
	}

	logsJSON, err := json.Marshal(execution.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal logs: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, logs, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		logsJSON,
		execution.StartedAt,
		execution.FinishedAt,
		execution.CreatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	steps, err := r.StepsByExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	execution.Steps = steps

	return execution, nil
}

// Update writes the non-empty fields of update.
func (r *ExecutionRepository) Update(ctx context.Context, id string, update models.ExecutionUpdate) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE executions SET
			status = COALESCE(NULLIF($2, ''), status),
			started_at = COALESCE($3, started_at),
			finished_at = COALESCE($4, finished_at)
		WHERE id = $1
	`, id, string(update.Status), update.StartedAt, update.FinishedAt)

	return affectedOne(result, err, persistence.NewExecutionError, "Update", id, persistence.ErrExecutionNotFound)
}

// AppendLog concatenates entry to the logs array in place.
func (r *ExecutionRepository) AppendLog(ctx context.Context, id string, entry models.LogEntry) error {
	entryJSON, err := json.Marshal([]models.LogEntry{entry})
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE executions SET logs = logs || $2::jsonb WHERE id = $1",
		id, entryJSON,
	)

	return affectedOne(result, err, persistence.NewExecutionError, "AppendLog", id, persistence.ErrExecutionNotFound)
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	// LIMIT NULL returns every row.
	var take sql.NullInt64
	if limit > 0 {
		take = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, workflowID, take)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)
	byID := make(map[string]*models.Execution)
	ids := make([]string, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
		byID[execution.ID] = execution
		ids = append(ids, execution.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	if len(ids) == 0 {
		return executions, nil
	}

	steps, err := r.querySteps(ctx, `SELECT `+stepColumns+`
		FROM execution_steps
		WHERE execution_id = ANY($1)
		ORDER BY step_order
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	for _, step := range steps {
		if execution, ok := byID[step.ExecutionID]; ok {
			execution.Steps = append(execution.Steps, step)
		}
	}

	return executions, nil
}

func (r *ExecutionRepository) LastRunAt(ctx context.Context, workflowID string) (*time.Time, error) {
	var last sql.NullTime

	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(COALESCE(started_at, created_at)) FROM executions WHERE workflow_id = $1",
		workflowID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to query last start: %w", err)
	}

	if !last.Valid {
		return nil, nil
	}

	t := last.Time.UTC()

	return &t, nil
}

func (r *ExecutionRepository) CreateStep(ctx context.Context, step *models.ExecutionStep) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	input, err := nullableJSON(step.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	output, err := nullableJSON(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_steps (id, execution_id, step_key, step_order, status, input, output, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		step.ID,
		step.ExecutionID,
		step.StepKey,
		step.StepOrder,
		step.Status,
		input,
		output,
		step.DurationMs,
		step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create step %s: %w", step.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) CompleteStep(ctx context.Context, id string, status models.StepStatus, output any, durationMs int64) error {
	outputJSON, err := nullableJSON(output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE execution_steps SET status = $2, output = $3, duration_ms = $4 WHERE id = $1",
		id, status, outputJSON, durationMs,
	)
	if err != nil {
		return fmt.Errorf("complete step %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete step %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("complete step %s: %w", id, persistence.ErrStepNotFound)
	}

	return nil
}

func (r *ExecutionRepository) StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	return r.querySteps(ctx, `SELECT `+stepColumns+`
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY step_order
	`, executionID)
}

func (r *ExecutionRepository) querySteps(ctx context.Context, query string, args ...any) ([]*models.ExecutionStep, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var (
			step          models.ExecutionStep
			input, output []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.StepKey,
			&step.StepOrder,
			&step.Status,
			&input,
			&output,
			&step.DurationMs,
			&step.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if step.Input, err = decodeAny(input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
		}

		if step.Output, err = decodeAny(output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution             models.Execution
		logsJSON              []byte
		startedAt, finishedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&logsJSON,
		&startedAt,
		&finishedAt,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Logs = []models.LogEntry{}
	if len(logsJSON) > 0 {
		if err := json.Unmarshal(logsJSON, &execution.Logs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
		}
	}

	execution.StartedAt = timePtr(startedAt)
	execution.FinishedAt = timePtr(finishedAt)

	return &execution, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time.UTC()

	return &v
}

// nullableJSON maps nil to SQL NULL.
func nullableJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func decodeAny(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}

	return v, nil
}
