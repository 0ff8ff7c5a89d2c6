package mocks

import (
	"context"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of dispatch.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Enqueue(ctx context.Context, job models.Job) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

// Jobs returns the jobs passed to Enqueue, in call order.
func (m *MockDispatcher) Jobs() []models.Job {
	var jobs []models.Job

	for _, call := range m.Calls {
		if call.Method == "Enqueue" {
			jobs = append(jobs, call.Arguments.Get(1).(models.Job))
		}
	}

	return jobs
}
