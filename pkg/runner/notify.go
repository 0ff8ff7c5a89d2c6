package runner

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/dukex/autoflow/pkg/mail"
	"github.com/dukex/autoflow/pkg/models"
)

// notify mails the step's notifyEmail address, if any. A failed send is logged on the
// execution and does not change the outcome.
func (r *Runner) notify(ctx context.Context, rec *recorder, step models.WorkflowStep, failure string) error {
	to, _ := step.ConfigString("notifyEmail")
	to = strings.TrimSpace(to)

	if to == "" || r.mailer == nil {
		return nil
	}

	_, err := r.mailer.Send(ctx, mail.Message{
		To:      to,
		Subject: "Workflow step failed: " + step.Key,
		HTML: fmt.Sprintf("<p>Step <strong>%s</strong> failed.</p><p>Error: %s</p>",
			html.EscapeString(step.Key), html.EscapeString(failure)),
		Text: fmt.Sprintf("Step %s failed. Error: %s", step.Key, failure),
	})
	if err == nil {
		return nil
	}

	r.logger.WarnContext(ctx, "Failure notification failed", "step_key", step.Key, "error", err)

	entry := rec.errorEntry("Failure notification failed", step.Key, err.Error())
	entry.Level = models.LogLevelWarn

	return rec.log(ctx, entry)
}
