// Package mocks provides testify mocks of the domain ports.
package mocks

import (
	"context"
	"io"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// MockPortalClient is a mock implementation of domain.PortalClient
type MockPortalClient struct {
	mock.Mock
}

func (m *MockPortalClient) SignOn(ctx context.Context, username, password string) error {
	args := m.Called(ctx, username, password)
	return args.Error(0)
}

func (m *MockPortalClient) GetCatalog(ctx context.Context, params url.Values) (io.ReadCloser, error) {
	args := m.Called(ctx, params)

	var body io.ReadCloser
	if args.Get(0) != nil {
		body = args.Get(0).(io.ReadCloser)
	}
	return body, args.Error(1)
}

func (m *MockPortalClient) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	args := m.Called(ctx, remotePath)

	var body io.ReadCloser
	if args.Get(0) != nil {
		body = args.Get(0).(io.ReadCloser)
	}
	return body, args.Error(1)
}
