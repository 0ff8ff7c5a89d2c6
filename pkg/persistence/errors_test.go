package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		executionErr := persistence.NewExecutionError("Update", "exec-1", persistence.ErrExecutionNotFound)
		recordErr := persistence.NewRecordError("Delete", "contacts", persistence.ErrRecordNotFound)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsExecutionNotFound(executionErr))
		assert.True(t, persistence.IsRecordNotFound(recordErr))
		assert.False(t, persistence.IsWorkflowNotFound(executionErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
	})

	t.Run("errors contain context", func(t *testing.T) {
		err := persistence.NewWorkflowError("UpdateGraph", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "UpdateGraph")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")

		recordErr := persistence.NewRecordError("Update", "contacts", persistence.ErrInvalidWhere)
		assert.Contains(t, recordErr.Error(), "contacts")
	})
}
