// Package runner executes one workflow run: it holds the execution lease, derives the steps
// from the graph, folds the payload through the step handlers and records every transition.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/lock"
	"github.com/dukex/autoflow/pkg/mail"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultStepTimeout = 15 * time.Second
	DefaultLockTTL     = 30 * time.Minute
)

// ActionCreator builds the handler for a step. *registry.Registry implements it.
type ActionCreator interface {
	CreateAction(step models.WorkflowStep) (protocol.Action, error)
}

type Runner struct {
	locks      lock.Store
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	actions    ActionCreator
	normalizer *graph.Normalizer
	mailer     mail.Mailer
	tracer     trace.Tracer
	logger     *slog.Logger

	defaultTimeout time.Duration
	lockTTL        time.Duration
}

type Option func(*Runner)

// WithMailer enables notifyEmail failure notifications.
func WithMailer(m mail.Mailer) Option {
	return func(r *Runner) { r.mailer = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

func WithNormalizer(n *graph.Normalizer) Option {
	return func(r *Runner) { r.normalizer = n }
}

// WithDefaultTimeout bounds attempts of steps that carry no timeoutMs.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.lockTTL = d
		}
	}
}

func New(
	locks lock.Store,
	store persistence.Persistence,
	actions ActionCreator,
	logger *slog.Logger,
	opts ...Option,
) *Runner {
	r := &Runner{
		locks:          locks,
		workflows:      store.WorkflowRepository(),
		executions:     store.ExecutionRepository(),
		actions:        actions,
		normalizer:     graph.NewNormalizer(),
		tracer:         otelhelper.NoopTracer(),
		logger:         logger.With("module", "runner"),
		defaultTimeout: DefaultStepTimeout,
		lockTTL:        DefaultLockTTL,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run processes one job. A job whose execution lease is held elsewhere is a no-op. Step
// failures are recorded on the execution and never returned; only lock and persistence
// errors are, so the transport can redeliver.
func (r *Runner) Run(ctx context.Context, job models.Job) error {
	executionID := job.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	logger := r.logger.With("workflow_id", job.WorkflowID, "execution_id", executionID, "source", job.Source)
	key := lock.ExecutionKey(executionID)

	token, acquired, err := r.locks.Acquire(ctx, key, r.lockTTL)
	if err != nil {
		return err
	}

	if !acquired {
		logger.DebugContext(ctx, "Execution already locked, skipping")

		return nil
	}

	defer func() {
		if err := r.locks.Release(context.WithoutCancel(ctx), key, token); err != nil {
			logger.WarnContext(ctx, "Failed to release workflow lock", "error", err)
		}
	}()

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, job.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.SourceKey, string(job.Source)),
	)
	defer span.End()

	status, err := r.run(ctx, logger, job, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(status)))

	return nil
}

func (r *Runner) run(
	ctx context.Context,
	logger *slog.Logger,
	job models.Job,
	executionID string,
) (models.ExecutionStatus, error) {
	workflow, err := r.workflows.GetByID(ctx, job.WorkflowID)
	if persistence.IsWorkflowNotFound(err) {
		logger.WarnContext(ctx, "Workflow not found, dropping job")

		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to load workflow: %w", err)
	}

	execution, err := r.loadOrCreateExecution(ctx, workflow.ID, executionID)
	if err != nil {
		return "", err
	}

	if execution.Status.IsTerminal() {
		logger.InfoContext(ctx, "Execution already finished, skipping", "status", execution.Status)

		return execution.Status, nil
	}

	rec := &recorder{executions: r.executions, executionID: execution.ID}

	now := time.Now().UTC()
	if err := rec.update(ctx, models.ExecutionUpdate{Status: models.ExecutionStatusRunning, StartedAt: &now}); err != nil {
		return "", err
	}

	started := models.NewLogEntry(models.LogLevelInfo, "Workflow started")
	started.Source = string(job.Source)

	if err := rec.log(ctx, started); err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "Workflow started")

	steps, err := r.normalizer.Normalize(workflow.Graph, job.Source)
	if err != nil {
		message := "Workflow graph is invalid"
		if errors.Is(err, graph.ErrCyclicGraph) {
			message = "Workflow graph is cyclic"
		}

		logger.ErrorContext(ctx, message, "error", err)

		return rec.finish(ctx, models.ExecutionStatusFail, rec.errorEntry(message, "", err.Error()))
	}

	var input any = map[string]any{}
	if job.Payload != nil {
		input = job.Payload
	}

	for i, step := range steps {
		output, failure, err := r.runStep(ctx, logger, rec, step, i+1, input)
		if err != nil {
			return "", err
		}

		if failure != "" {
			return r.applyFailurePolicy(ctx, logger, rec, step, failure)
		}

		input = output
	}

	logger.InfoContext(ctx, "Workflow completed", "steps", len(steps))

	return rec.finish(ctx, models.ExecutionStatusSuccess, models.NewLogEntry(models.LogLevelInfo, "Workflow completed"))
}

func (r *Runner) loadOrCreateExecution(ctx context.Context, workflowID, executionID string) (*models.Execution, error) {
	execution, err := r.executions.GetByID(ctx, executionID)
	if err == nil {
		return execution, nil
	}

	if !persistence.IsExecutionNotFound(err) {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}

	execution = &models.Execution{
		ID:         executionID,
		WorkflowID: workflowID,
		Status:     models.ExecutionStatusPending,
		Logs:       []models.LogEntry{},
	}

	if err := r.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	return execution, nil
}

// runStep records one ExecutionStep around the retry loop. failure holds the last error
// message once retries are exhausted.
func (r *Runner) runStep(
	ctx context.Context,
	logger *slog.Logger,
	rec *recorder,
	step models.WorkflowStep,
	order int,
	input any,
) (any, string, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.step",
		attribute.String(otelhelper.StepKeyKey, step.Key),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)
	defer span.End()

	stepRecord := &models.ExecutionStep{
		ID:          uuid.NewString(),
		ExecutionID: rec.executionID,
		StepKey:     step.Key,
		StepOrder:   order,
		Status:      models.StepStatusPending,
		Input:       input,
	}

	if err := r.executions.CreateStep(ctx, stepRecord); err != nil {
		return nil, "", fmt.Errorf("failed to create step %s: %w", step.Key, err)
	}

	result, err := r.executeWithRetries(ctx, logger, rec, step, input)
	if err != nil {
		return nil, "", err
	}

	if !result.ok {
		otelhelper.SetError(span, errors.New(result.err), attribute.Int(otelhelper.AttemptKey, result.attempts))

		output := map[string]any{"error": result.err, "attempts": result.attempts}
		if err := r.executions.CompleteStep(ctx, stepRecord.ID, models.StepStatusFail, output, result.duration.Milliseconds()); err != nil {
			return nil, "", fmt.Errorf("failed to complete step %s: %w", step.Key, err)
		}

		entry := rec.errorEntry("Step failed", step.Key, result.err)
		entry.Attempts = result.attempts

		if err := rec.log(ctx, entry); err != nil {
			return nil, "", err
		}

		logger.ErrorContext(ctx, "Step failed", "step_key", step.Key, "attempts", result.attempts, "error", result.err)

		return nil, result.err, nil
	}

	if err := r.executions.CompleteStep(ctx, stepRecord.ID, models.StepStatusSuccess, result.output, result.duration.Milliseconds()); err != nil {
		return nil, "", fmt.Errorf("failed to complete step %s: %w", step.Key, err)
	}

	entry := models.NewLogEntry(models.LogLevelInfo, "Step completed")
	entry.StepKey = step.Key

	if err := rec.log(ctx, entry); err != nil {
		return nil, "", err
	}

	logger.DebugContext(ctx, "Step completed", "step_key", step.Key, "duration_ms", result.duration.Milliseconds())

	return result.output, "", nil
}

// applyFailurePolicy sends the optional notification and applies the step's onError policy.
func (r *Runner) applyFailurePolicy(
	ctx context.Context,
	logger *slog.Logger,
	rec *recorder,
	step models.WorkflowStep,
	failure string,
) (models.ExecutionStatus, error) {
	if err := r.notify(ctx, rec, step, failure); err != nil {
		return "", err
	}

	if policy(step) == policyPause {
		if err := rec.update(ctx, models.ExecutionUpdate{Status: models.ExecutionStatusPaused}); err != nil {
			return "", err
		}

		entry := models.NewLogEntry(models.LogLevelWarn, "Workflow paused after step failure")
		entry.StepKey = step.Key

		if err := rec.log(ctx, entry); err != nil {
			return "", err
		}

		logger.WarnContext(ctx, "Workflow paused after step failure", "step_key", step.Key)

		return models.ExecutionStatusPaused, nil
	}

	now := time.Now().UTC()
	if err := rec.update(ctx, models.ExecutionUpdate{Status: models.ExecutionStatusFail, FinishedAt: &now}); err != nil {
		return "", err
	}

	return models.ExecutionStatusFail, nil
}
