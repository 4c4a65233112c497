package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
)

// MockCommandRunner is a mock implementation of domain.CommandRunner
type MockCommandRunner struct {
	mock.Mock
}

func (m *MockCommandRunner) Run(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(domain.CommandResult), args.Error(1)
}
