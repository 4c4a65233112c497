// Package fs implements types.ObjectStorage on a local directory tree.
// Each object's metadata lives next to it in a "<object>.metadata.json" file.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shamanpi/BAD-Mutations/shared/observability"
	"github.com/shamanpi/BAD-Mutations/shared/storage/types"
)

const metadataSuffix = ".metadata.json"

// Storage implements ObjectStorage using the local filesystem
type Storage struct {
	basePath string
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewStorage creates a new filesystem-based object storage rooted at basePath
func NewStorage(basePath string, logger observability.Logger, metrics observability.Metrics) (*Storage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &Storage{
		basePath: abs,
		logger:   logger.WithFields(observability.Fields{"storage": "filesystem"}),
		metrics:  metrics,
	}, nil
}

// Put stores an object. Content is written to a temporary file and renamed
// into place, so readers never see a partial object.
func (s *Storage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("storage_put", time.Since(start).Seconds())
	}()

	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		s.metrics.RecordError("storage_put", "mkdir")
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), ".put-*")
	if err != nil {
		s.metrics.RecordError("storage_put", "create")
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, reader)
	if err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err != nil {
		s.metrics.RecordError("storage_put", "write")
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := os.Rename(tmp.Name(), objectPath); err != nil {
		s.metrics.RecordError("storage_put", "rename")
		return fmt.Errorf("failed to move object into place: %w", err)
	}

	metadata.ContentLength = written
	metadata.LastModified = time.Now().UTC()
	if err := s.saveMetadata(objectPath, metadata); err != nil {
		s.metrics.RecordError("storage_put", "metadata")
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	s.logger.Debug(ctx, "Object stored", observability.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  written,
	})
	s.metrics.RecordSuccess("storage_put")
	s.metrics.RecordFileSize("mirrored_object", written)

	return nil
}

// Get retrieves an object
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(objectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", types.ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Stat returns the stored metadata of an object, falling back to what the
// filesystem knows when no metadata file exists.
func (s *Storage) Stat(ctx context.Context, bucket, key string) (*types.ObjectMetadata, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(objectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", types.ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	metadata, err := s.loadMetadata(objectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	metadata.ContentLength = info.Size()
	if metadata.LastModified.IsZero() {
		metadata.LastModified = info.ModTime()
	}

	return &metadata, nil
}

// Exists checks if an object exists
func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(objectPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object existence: %w", err)
}

// Delete removes an object and its metadata. Deleting a missing object is not an error.
func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(objectPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	if err := os.Remove(objectPath + metadataSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	s.logger.Debug(ctx, "Object deleted", observability.Fields{"bucket": bucket, "key": key})
	return nil
}

// List returns objects in a bucket with optional prefix, sorted by key
func (s *Storage) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	bucketPath := filepath.Join(s.basePath, bucket)

	var objects []types.ObjectInfo
	err := filepath.WalkDir(bucketPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == bucketPath {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metadataSuffix) || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}

		rel, err := filepath.Rel(bucketPath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, types.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Helper methods

// objectPath maps bucket and key below basePath, rejecting keys that would escape it.
func (s *Storage) objectPath(bucket, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", types.ErrInvalidKey)
	}

	root := filepath.Join(s.basePath, bucket)
	path := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidKey, key)
	}
	if strings.HasSuffix(path, metadataSuffix) {
		return "", fmt.Errorf("%w: %q uses the reserved %s suffix", types.ErrInvalidKey, key, metadataSuffix)
	}
	return path, nil
}

func (s *Storage) saveMetadata(objectPath string, metadata types.ObjectMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(objectPath+metadataSuffix, data, 0o644)
}

func (s *Storage) loadMetadata(objectPath string) (types.ObjectMetadata, error) {
	data, err := os.ReadFile(objectPath + metadataSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.ObjectMetadata{}, nil
		}
		return types.ObjectMetadata{}, err
	}

	var metadata types.ObjectMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return types.ObjectMetadata{}, err
	}
	return metadata, nil
}
