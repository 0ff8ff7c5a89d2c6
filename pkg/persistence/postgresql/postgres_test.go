package postgresql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"records", "execution_steps", "executions", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("autoflow_test"),
			postgres.WithUsername("autoflow"),
			postgres.WithPassword("autoflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func scheduleGraph(t *testing.T) models.Graph {
	t.Helper()

	var g models.Graph

	err := json.Unmarshal([]byte(`{
		"nodes": [
			{"id": "t1", "type": "trigger", "data": {"type": "schedule", "config": {"cron": "*/5 * * * *"}}, "width": 180},
			{"id": "a1", "type": "action", "data": {"type": "transform", "config": {"expression": "input"}}}
		],
		"edges": [{"id": "e1", "source": "t1", "target": "a1"}]
	}`), &g)
	require.NoError(t, err)

	return g
}

func newWorkflow(t *testing.T, name string, status models.WorkflowStatus) *models.Workflow {
	t.Helper()

	return &models.Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Status:      status,
		TriggerType: models.TriggerTypeCron,
		Graph:       scheduleGraph(t),
		UserID:      "user-1",
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "executions", "execution_steps", "records", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := newWorkflow(t, "Nightly report", models.WorkflowStatusActive)
	require.NoError(t, repo.Save(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	retrieved, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.Equal(t, models.WorkflowStatusActive, retrieved.Status)
	assert.Equal(t, models.TriggerTypeCron, retrieved.TriggerType)
	assert.Equal(t, "user-1", retrieved.UserID)
	require.Len(t, retrieved.Graph.Nodes, 2)
	assert.Equal(t, "*/5 * * * *", retrieved.Graph.Nodes[0].Config()["cron"])
	require.Len(t, retrieved.Graph.Edges, 1)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_UpdateAndListActive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	active := newWorkflow(t, "Active", models.WorkflowStatusActive)
	inactive := newWorkflow(t, "Inactive", models.WorkflowStatusInactive)
	require.NoError(t, repo.Save(ctx, active))
	require.NoError(t, repo.Save(ctx, inactive))

	initialUpdatedAt := active.UpdatedAt

	// Wait a moment to ensure different timestamp
	time.Sleep(10 * time.Millisecond)

	active.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, active))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	listed, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Renamed", listed[0].Name)
	assert.True(t, listed[0].UpdatedAt.After(initialUpdatedAt))

	graph, ok := active.Graph.WithConfigValue("t1", "lastRun", "2025-01-01T00:00:00Z")
	require.True(t, ok)
	require.NoError(t, repo.UpdateGraph(ctx, active.ID, graph))

	reloaded, err := repo.GetByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01T00:00:00Z", reloaded.Graph.Nodes[0].Config()["lastRun"])

	raw, err := json.Marshal(reloaded.Graph.Nodes[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"width":180`)

	assert.True(t, persistence.IsWorkflowNotFound(repo.UpdateGraph(ctx, uuid.NewString(), graph)))

	require.NoError(t, repo.Delete(ctx, inactive.ID))
	assert.True(t, persistence.IsWorkflowNotFound(repo.Delete(ctx, inactive.ID)))
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := newWorkflow(t, "Runs", models.WorkflowStatusActive)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	executions := p.ExecutionRepository()

	first := &models.Execution{ID: uuid.NewString(), WorkflowID: workflow.ID, Status: models.ExecutionStatusPending}
	require.NoError(t, executions.Create(ctx, first))

	started := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, executions.Update(ctx, first.ID, models.ExecutionUpdate{
		Status:    models.ExecutionStatusRunning,
		StartedAt: &started,
	}))

	require.NoError(t, executions.AppendLog(ctx, first.ID, models.NewLogEntry(models.LogLevelInfo, "Execution started")))
	require.NoError(t, executions.AppendLog(ctx, first.ID, models.NewLogEntry(models.LogLevelWarn, "Retrying")))

	step := &models.ExecutionStep{
		ID:          uuid.NewString(),
		ExecutionID: first.ID,
		StepKey:     "a1",
		StepOrder:   0,
		Status:      models.StepStatusPending,
		Input:       map[string]any{"n": 1.0},
	}
	require.NoError(t, executions.CreateStep(ctx, step))
	require.NoError(t, executions.CompleteStep(ctx, step.ID, models.StepStatusSuccess, map[string]any{"ok": true}, 42))

	err := executions.CompleteStep(ctx, uuid.NewString(), models.StepStatusFail, nil, 0)
	assert.ErrorIs(t, err, persistence.ErrStepNotFound)

	finished := started.Add(2 * time.Second)
	require.NoError(t, executions.Update(ctx, first.ID, models.ExecutionUpdate{
		Status:     models.ExecutionStatusSuccess,
		FinishedAt: &finished,
	}))

	got, err := executions.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, started.Equal(*got.StartedAt))
	require.Len(t, got.Logs, 2)
	assert.Equal(t, "Retrying", got.Logs[1].Message)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, models.StepStatusSuccess, got.Steps[0].Status)
	assert.Equal(t, map[string]any{"ok": true}, got.Steps[0].Output)
	assert.Equal(t, int64(42), got.Steps[0].DurationMs)

	second := &models.Execution{ID: uuid.NewString(), WorkflowID: workflow.ID, Status: models.ExecutionStatusPending}
	require.NoError(t, executions.Create(ctx, second))

	listed, err := executions.ListByWorkflow(ctx, workflow.ID, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, second.ID, listed[0].ID)

	listed, err = executions.ListByWorkflow(ctx, workflow.ID, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Len(t, listed[1].Steps, 1)

	last, err := executions.LastRunAt(ctx, workflow.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, second.CreatedAt, *last, time.Millisecond, "a pending run counts by its creation time")

	_, err = executions.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsExecutionNotFound(err))
	assert.True(t, persistence.IsExecutionNotFound(executions.AppendLog(ctx, "missing", models.LogEntry{})))
}

func TestRecordRepository_CRUD(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	records := p.RecordRepository()

	alice, err := records.Create(ctx, "contacts", map[string]any{"email": "alice@example.com", "plan": "free"})
	require.NoError(t, err)

	_, err = records.Create(ctx, "contacts", map[string]any{"email": "bob@example.com", "plan": "free"})
	require.NoError(t, err)

	free, err := records.FindMany(ctx, "contacts", map[string]any{"plan": "free"}, 0)
	require.NoError(t, err)
	assert.Len(t, free, 2)

	updated, err := records.Update(ctx, "contacts", map[string]any{"id": alice.ID}, map[string]any{"plan": "pro"})
	require.NoError(t, err)
	assert.Equal(t, "pro", updated.Data["plan"])
	assert.Equal(t, "alice@example.com", updated.Data["email"])

	found, err := records.FindUnique(ctx, "contacts", map[string]any{"email": "alice@example.com"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "pro", found.Data["plan"])

	missing, err := records.FindUnique(ctx, "contacts", map[string]any{"email": "carol@example.com"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := records.Upsert(ctx, "contacts",
		map[string]any{"email": "carol@example.com"},
		map[string]any{"email": "carol@example.com", "plan": "free"},
		map[string]any{"plan": "pro"},
	)
	require.NoError(t, err)
	assert.Equal(t, "free", created.Data["plan"])

	upserted, err := records.Upsert(ctx, "contacts",
		map[string]any{"email": "carol@example.com"},
		map[string]any{"email": "carol@example.com", "plan": "free"},
		map[string]any{"plan": "pro"},
	)
	require.NoError(t, err)
	assert.Equal(t, created.ID, upserted.ID)
	assert.Equal(t, "pro", upserted.Data["plan"])

	deleted, err := records.Delete(ctx, "contacts", map[string]any{"email": "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", deleted.Data["email"])

	_, err = records.Delete(ctx, "contacts", map[string]any{"email": "bob@example.com"})
	assert.True(t, persistence.IsRecordNotFound(err))

	_, err = records.Update(ctx, "contacts", nil, map[string]any{"plan": "x"})
	assert.ErrorIs(t, err, persistence.ErrInvalidWhere)

	other, err := records.FindMany(ctx, "orders", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
