package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/shamanpi/BAD-Mutations/shared/storage/types"
)

// MockObjectStorage is a mock implementation of types.ObjectStorage
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) error {
	args := m.Called(ctx, bucket, key, reader, metadata)
	return args.Error(0)
}

func (m *MockObjectStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)

	var body io.ReadCloser
	if args.Get(0) != nil {
		body = args.Get(0).(io.ReadCloser)
	}
	return body, args.Error(1)
}

func (m *MockObjectStorage) Stat(ctx context.Context, bucket, key string) (*types.ObjectMetadata, error) {
	args := m.Called(ctx, bucket, key)

	var meta *types.ObjectMetadata
	if args.Get(0) != nil {
		meta = args.Get(0).(*types.ObjectMetadata)
	}
	return meta, args.Error(1)
}

func (m *MockObjectStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockObjectStorage) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	args := m.Called(ctx, bucket, prefix)

	var objects []types.ObjectInfo
	if args.Get(0) != nil {
		objects = args.Get(0).([]types.ObjectInfo)
	}
	return objects, args.Error(1)
}
