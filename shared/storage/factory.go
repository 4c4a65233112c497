// Package storage builds the object storage adapter selected by configuration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability"
	"github.com/shamanpi/BAD-Mutations/shared/storage/adapters/fs"
	"github.com/shamanpi/BAD-Mutations/shared/storage/adapters/s3"
	"github.com/shamanpi/BAD-Mutations/shared/storage/types"
)

// ErrStorageDisabled is returned by New when no provider is configured.
var ErrStorageDisabled = errors.New("storage is not configured")

// New creates the ObjectStorage named by cfg.Provider.
// This is the only place that knows about concrete implementations.
func New(ctx context.Context, cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (types.ObjectStorage, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, ErrStorageDisabled
	case "fs":
		store, err := fs.NewStorage(cfg.BucketOrPath, logger, metrics)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		client, err := s3.NewClient(ctx, cfg, logger, metrics)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
