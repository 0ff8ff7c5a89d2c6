package postgresql

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPersistence(t *testing.T) (*Persistence, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return newPersistence(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestWhereClause(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		where      map[string]any
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "model only",
			where:      nil,
			wantClause: "model = $1",
			wantArgs:   []any{"contacts"},
		},
		{
			name:       "id uses equality",
			where:      map[string]any{"id": "r1"},
			wantClause: "model = $1 AND id = $2",
			wantArgs:   []any{"contacts", "r1"},
		},
		{
			name:       "data keys use containment",
			where:      map[string]any{"id": "r1", "email": "a@b.c"},
			wantClause: "model = $1 AND id = $2 AND data @> $3::jsonb",
			wantArgs:   []any{"contacts", "r1", []byte(`{"email":"a@b.c"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clause, args, err := whereClause("contacts", tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClause, clause)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestExecutionRepository_AppendLogMissing(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE executions SET logs = logs || $2::jsonb WHERE id = $1")).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.ExecutionRepository().AppendLog(context.Background(), "missing", models.NewLogEntry(models.LogLevelInfo, "hi"))
	assert.True(t, persistence.IsExecutionNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_UpdateKeepsUnsetFields(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)
	finished := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE executions SET")).
		WithArgs("e1", "FAIL", nil, &finished).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.ExecutionRepository().Update(context.Background(), "e1", models.ExecutionUpdate{
		Status:     models.ExecutionStatusFail,
		FinishedAt: &finished,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_LastRunAtNone(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(COALESCE(started_at, created_at)) FROM executions WHERE workflow_id = $1")).
		WithArgs("wf").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	last, err := p.ExecutionRepository().LastRunAt(context.Background(), "wf")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestWorkflowRepository_GetByIDNotFound(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)

	mock.ExpectQuery("SELECT .* FROM workflows").
		WithArgs("wf").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := p.WorkflowRepository().GetByID(context.Background(), "wf")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestRecordRepository_UpdateRollsBackWhenMissing(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, model, data, created_at, updated_at FROM records WHERE model = $1 AND data @> $2::jsonb ORDER BY created_at, id LIMIT $3 FOR UPDATE")).
		WithArgs("contacts", []byte(`{"email":"x@y.z"}`), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "model", "data", "created_at", "updated_at"}))
	mock.ExpectRollback()

	_, err := p.RecordRepository().Update(context.Background(), "contacts",
		map[string]any{"email": "x@y.z"}, map[string]any{"plan": "pro"})
	assert.True(t, persistence.IsRecordNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
