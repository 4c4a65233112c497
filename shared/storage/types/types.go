// Package types holds the object storage contract shared by the storage adapters.
package types

import (
	"context"
	"io"
	"time"
)

// ObjectStorage defines the interface for object storage operations.
// An empty bucket means the adapter's configured default.
type ObjectStorage interface {
	// Put stores an object in the specified bucket with the given key
	Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ObjectMetadata) error

	// Get retrieves an object from the specified bucket by key
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Stat returns an object's metadata without its content
	Stat(ctx context.Context, bucket, key string) (*ObjectMetadata, error)

	// Exists checks if an object exists in the specified bucket
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Delete removes an object from the specified bucket
	Delete(ctx context.Context, bucket, key string) error

	// List returns a list of objects in the specified bucket with optional prefix
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// ObjectMetadata represents metadata associated with stored objects
type ObjectMetadata struct {
	ContentType     string            `json:"content_type,omitempty"`
	ContentLength   int64             `json:"content_length"`
	ContentEncoding string            `json:"content_encoding,omitempty"`
	LastModified    time.Time         `json:"last_modified"`
	ETag            string            `json:"etag,omitempty"`
	UserMetadata    map[string]string `json:"user_metadata,omitempty"`
}

// ObjectInfo represents information about a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}
