package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/google/uuid"
)

const recordColumns = `id, model, data, created_at, updated_at`

// RecordRepository keeps schemaless records in a JSONB column. Where clauses other than
// id use JSONB containment.
type RecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRecordRepository(db *sql.DB, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *RecordRepository) Create(ctx context.Context, model string, data map[string]any) (*models.Record, error) {
	record, err := r.create(ctx, r.db, model, data)
	if err != nil {
		return nil, persistence.NewRecordError("Create", model, err)
	}

	return record, nil
}

func (r *RecordRepository) Update(ctx context.Context, model string, where, data map[string]any) (*models.Record, error) {
	if len(where) == 0 {
		return nil, persistence.NewRecordError("Update", model, persistence.ErrInvalidWhere)
	}

	var record *models.Record

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		found, err := r.first(ctx, tx, model, where, true)
		if err != nil {
			return err
		}

		if found == nil {
			return persistence.ErrRecordNotFound
		}

		record, err = r.merge(ctx, tx, found, data)

		return err
	})
	if err != nil {
		return nil, persistence.NewRecordError("Update", model, err)
	}

	return record, nil
}

func (r *RecordRepository) Upsert(ctx context.Context, model string, where, create, update map[string]any) (*models.Record, error) {
	if len(where) == 0 {
		return nil, persistence.NewRecordError("Upsert", model, persistence.ErrInvalidWhere)
	}

	var record *models.Record

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		found, err := r.first(ctx, tx, model, where, true)
		if err != nil {
			return err
		}

		if found == nil {
			record, err = r.create(ctx, tx, model, create)

			return err
		}

		record, err = r.merge(ctx, tx, found, update)

		return err
	})
	if err != nil {
		return nil, persistence.NewRecordError("Upsert", model, err)
	}

	return record, nil
}

func (r *RecordRepository) Delete(ctx context.Context, model string, where map[string]any) (*models.Record, error) {
	if len(where) == 0 {
		return nil, persistence.NewRecordError("Delete", model, persistence.ErrInvalidWhere)
	}

	var record *models.Record

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		found, err := r.first(ctx, tx, model, where, true)
		if err != nil {
			return err
		}

		if found == nil {
			return persistence.ErrRecordNotFound
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = $1", found.ID); err != nil {
			return err
		}

		record = found

		return nil
	})
	if err != nil {
		return nil, persistence.NewRecordError("Delete", model, err)
	}

	return record, nil
}

func (r *RecordRepository) FindMany(ctx context.Context, model string, where map[string]any, take int) ([]*models.Record, error) {
	records, err := r.find(ctx, r.db, model, where, take, false)
	if err != nil {
		return nil, persistence.NewRecordError("FindMany", model, err)
	}

	return records, nil
}

func (r *RecordRepository) FindUnique(ctx context.Context, model string, where map[string]any) (*models.Record, error) {
	if len(where) == 0 {
		return nil, persistence.NewRecordError("FindUnique", model, persistence.ErrInvalidWhere)
	}

	record, err := r.first(ctx, r.db, model, where, false)
	if err != nil {
		return nil, persistence.NewRecordError("FindUnique", model, err)
	}

	return record, nil
}

func (r *RecordRepository) create(ctx context.Context, q querier, model string, data map[string]any) (*models.Record, error) {
	now := time.Now().UTC()
	record := &models.Record{
		ID:        uuid.NewString(),
		Model:     model,
		Data:      withoutID(data),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if id, ok := data["id"].(string); ok && id != "" {
		record.ID = id
	}

	dataJSON, err := json.Marshal(record.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record data: %w", err)
	}

	_, err = q.ExecContext(ctx,
		"INSERT INTO records (id, model, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		record.ID, record.Model, dataJSON, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (r *RecordRepository) merge(ctx context.Context, q querier, record *models.Record, data map[string]any) (*models.Record, error) {
	merged := maps.Clone(record.Data)
	if merged == nil {
		merged = map[string]any{}
	}

	maps.Copy(merged, withoutID(data))

	dataJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record data: %w", err)
	}

	now := time.Now().UTC()

	_, err = q.ExecContext(ctx,
		"UPDATE records SET data = $2, updated_at = $3 WHERE id = $1",
		record.ID, dataJSON, now,
	)
	if err != nil {
		return nil, err
	}

	record.Data = merged
	record.UpdatedAt = now

	return record, nil
}

func (r *RecordRepository) first(ctx context.Context, q querier, model string, where map[string]any, lock bool) (*models.Record, error) {
	records, err := r.find(ctx, q, model, where, 1, lock)
	if err != nil || len(records) == 0 {
		return nil, err
	}

	return records[0], nil
}

// find returns matching records oldest first. take <= 0 means all.
func (r *RecordRepository) find(ctx context.Context, q querier, model string, where map[string]any, take int, lock bool) ([]*models.Record, error) {
	clause, args, err := whereClause(model, where)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + clause + ` ORDER BY created_at, id`
	if take > 0 {
		args = append(args, take)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	if lock {
		query += " FOR UPDATE"
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.Record, 0)

	for rows.Next() {
		var (
			record   models.Record
			dataJSON []byte
		)

		if err := rows.Scan(&record.ID, &record.Model, &dataJSON, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		if err := json.Unmarshal(dataJSON, &record.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

func (r *RecordRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.ErrorContext(ctx, "failed to roll back transaction", "error", rbErr)
		}

		return err
	}

	return tx.Commit()
}

// whereClause matches id by equality and every other key by JSONB containment.
func whereClause(model string, where map[string]any) (string, []any, error) {
	clause := "model = $1"
	args := []any{model}

	if id, ok := where["id"]; ok {
		args = append(args, fmt.Sprint(id))
		clause += " AND id = $" + strconv.Itoa(len(args))
	}

	if rest := withoutID(where); len(rest) > 0 {
		restJSON, err := json.Marshal(rest)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal where clause: %w", err)
		}

		args = append(args, restJSON)
		clause += " AND data @> $" + strconv.Itoa(len(args)) + "::jsonb"
	}

	return clause, args, nil
}

func withoutID(data map[string]any) map[string]any {
	out := maps.Clone(data)
	if out == nil {
		return map[string]any{}
	}

	delete(out, "id")

	return out
}
