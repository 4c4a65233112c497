// Package mocks provides testify mocks of the observability contracts.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// MockLogger is a mock implementation of types.Logger.
type MockLogger struct {
	mock.Mock
}

// NewPermissiveLogger returns a MockLogger that accepts every call.
// Tests can still assert on specific messages with AssertCalled.
func NewPermissiveLogger() *MockLogger {
	m := &MockLogger{}
	m.On("Info", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("Warn", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("Debug", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("Error", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	return m
}

// Info mocks the Info method
func (m *MockLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// Error mocks the Error method
func (m *MockLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	m.Called(ctx, msg, err, fields)
}

// Warn mocks the Warn method
func (m *MockLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// Debug mocks the Debug method
func (m *MockLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// WithFields returns the logger configured with On("WithFields"), or m itself.
func (m *MockLogger) WithFields(fields types.Fields) types.Logger {
	for _, c := range m.ExpectedCalls {
		if c.Method == "WithFields" {
			args := m.Called(fields)
			if logger, ok := args.Get(0).(types.Logger); ok {
				return logger
			}
			return m
		}
	}
	return m
}
