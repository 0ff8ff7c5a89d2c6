package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/registry"
)

// ErrStepTimedOut is the failure recorded when an attempt outlives its deadline.
var ErrStepTimedOut = errors.New("Step timed out") //nolint:stylecheck // surfaced verbatim in execution logs

const (
	policyFail  = "fail"
	policyPause = "pause"
)

type stepResult struct {
	ok       bool
	output   any
	err      string
	duration time.Duration
	attempts int
}

func policy(step models.WorkflowStep) string {
	raw, _ := step.ConfigString("onError")
	if p := strings.ToLower(strings.TrimSpace(raw)); p == policyPause {
		return policyPause
	}

	return policyFail
}

func configInt(step models.WorkflowStep, key string) int64 {
	n, ok := graph.Number(step.Config[key])
	if !ok || n < 0 {
		return 0
	}

	return int64(n)
}

// permanent errors cannot be fixed by trying again.
func permanent(err error) bool {
	return errors.Is(err, actions.ErrConfig) || errors.Is(err, registry.ErrUnsupportedStepType)
}

// executeWithRetries makes up to retryCount+1 attempts, sleeping retryDelayMs between them.
// The returned error is a persistence or cancellation error, never a step failure.
func (r *Runner) executeWithRetries(
	ctx context.Context,
	logger *slog.Logger,
	rec *recorder,
	step models.WorkflowStep,
	input any,
) (stepResult, error) {
	retryCount := int(configInt(step, "retryCount"))
	retryDelay := time.Duration(configInt(step, "retryDelayMs")) * time.Millisecond

	var last stepResult

	for attempt := 1; attempt <= retryCount+1; attempt++ {
		start := time.Now()
		output, err := r.attempt(ctx, step, input)
		duration := time.Since(start)

		if err == nil {
			return stepResult{ok: true, output: output, duration: duration, attempts: attempt}, nil
		}

		message := err.Error()
		if message == "" {
			message = "Unknown error"
		}

		last = stepResult{err: message, duration: duration, attempts: attempt}

		entry := rec.errorEntry("Step attempt failed", step.Key, message)
		entry.Level = models.LogLevelWarn
		entry.Attempt = attempt

		if err := rec.log(ctx, entry); err != nil {
			return stepResult{}, err
		}

		logger.WarnContext(ctx, "Step attempt failed", "step_key", step.Key, "attempt", attempt, "error", message)

		if permanent(err) || attempt > retryCount {
			break
		}

		if retryDelay > 0 {
			scheduled := models.NewLogEntry(models.LogLevelInfo, "Retry scheduled")
			scheduled.StepKey = step.Key
			scheduled.Attempt = attempt + 1
			scheduled.DelayMs = retryDelay.Milliseconds()

			if err := rec.log(ctx, scheduled); err != nil {
				return stepResult{}, err
			}

			select {
			case <-ctx.Done():
				return stepResult{}, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return last, nil
}

// attempt runs the handler once under the step deadline. A handler that ignores its context
// is abandoned when the deadline passes.
func (r *Runner) attempt(ctx context.Context, step models.WorkflowStep, input any) (any, error) {
	timeout := r.defaultTimeout
	if step.TimeoutMs > 0 {
		timeout = time.Duration(step.TimeoutMs) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	action, err := r.actions.CreateAction(step)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		output any
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("step panicked: %v", p)}
			}
		}()

		output, err := action.Execute(ctx, input)
		done <- outcome{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrStepTimedOut
		}

		return res.output, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrStepTimedOut
		}

		return nil, ctx.Err()
	}
}
