// Package schedule decides which cron-triggered workflows are due and queues their runs.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned for cron expressions or timezones that cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid schedule")

const (
	initialLookback = time.Hour
	// Long enough for any expression that matches at least once per leap cycle.
	maxLookback = 8 * 366 * 24 * time.Hour
)

// Trigger is the cron configuration of a connected schedule trigger.
type Trigger struct {
	NodeID   string
	Cron     string
	Timezone string
}

// FindTrigger returns the connected schedule trigger of g, if it carries a cron expression.
func FindTrigger(g models.Graph) (Trigger, bool) {
	node, ok := graph.ConnectedTrigger(g, graph.TriggerSchedule)
	if !ok {
		return Trigger{}, false
	}

	expr := actions.String(node.Config, "cron")
	if expr == "" {
		return Trigger{}, false
	}

	return Trigger{NodeID: node.ID, Cron: expr, Timezone: actions.String(node.Config, "timezone")}, true
}

// Parse parses the trigger's 5-field expression in its timezone, UTC when unset.
func (t Trigger) Parse() (cron.Schedule, error) {
	expression := t.Cron
	if t.Timezone != "" && !strings.HasPrefix(expression, "CRON_TZ=") && !strings.HasPrefix(expression, "TZ=") {
		expression = "CRON_TZ=" + t.Timezone + " " + expression
	}

	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, expression, err)
	}

	return schedule, nil
}

// Previous returns the latest activation of s at or before now. ok is false when s has no
// activation within the lookback window.
func Previous(s cron.Schedule, now time.Time) (time.Time, bool) {
	for lookback := initialLookback; lookback <= maxLookback; lookback *= 2 {
		var prev time.Time

		for next := s.Next(now.Add(-lookback)); !next.IsZero() && !next.After(now); next = s.Next(next) {
			prev = next
		}

		if !prev.IsZero() {
			return prev, true
		}
	}

	return time.Time{}, false
}

// Due reports whether the connected schedule trigger of g fired since lastRunAt. A graph
// without a connected schedule trigger is never due.
func Due(g models.Graph, now time.Time, lastRunAt *time.Time) (bool, error) {
	trigger, ok := FindTrigger(g)
	if !ok {
		return false, nil
	}

	s, err := trigger.Parse()
	if err != nil {
		return false, err
	}

	prev, ok := Previous(s, now)
	if !ok {
		return false, nil
	}

	return lastRunAt == nil || lastRunAt.Before(prev), nil
}
