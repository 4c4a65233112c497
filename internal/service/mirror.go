package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/internal/domain/util"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
	storagetypes "github.com/shamanpi/BAD-Mutations/shared/storage/types"
)

// checksumMetadataKey is the user metadata entry holding an object's MD5.
const checksumMetadataKey = "md5"

// Mirror copies verified archives into object storage.
type Mirror struct {
	store   storagetypes.ObjectStorage
	prefix  string
	timeout time.Duration
	logger  types.Logger
	metrics types.Metrics
}

// NewMirror creates a mirror that stores objects below prefix. timeout
// bounds each upload; zero means no limit beyond ctx.
func NewMirror(store storagetypes.ObjectStorage, prefix string, timeout time.Duration, logger types.Logger, metrics types.Metrics) *Mirror {
	return &Mirror{
		store:   store,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Key returns the object key for a local archive at base/<entity>/<file>.
func (m *Mirror) Key(localPath string) string {
	entity := filepath.Base(filepath.Dir(localPath))
	return path.Join(m.prefix, entity, filepath.Base(localPath))
}

// MirrorAll uploads every path and returns how many objects were written.
// Objects already stored with the same checksum are left alone.
func (m *Mirror) MirrorAll(ctx context.Context, paths []string) (int, error) {
	var errs *multierror.Error
	uploaded := 0

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}

		wrote, err := m.mirrorOne(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return uploaded, ctx.Err()
			}
			m.metrics.RecordError("mirror", categorizeError(err))
			m.logger.Error(ctx, "Failed to mirror file", err, types.Fields{"file": p})
			errs = multierror.Append(errs, domain.NewDomainError(
				domain.ErrStorageFailed.Code,
				fmt.Sprintf("cannot mirror %s", filepath.Base(p)),
				err,
				true,
			))
			continue
		}
		if wrote {
			uploaded++
		}
	}

	return uploaded, errs.ErrorOrNil()
}

func (m *Mirror) mirrorOne(ctx context.Context, localPath string) (bool, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	key := m.Key(localPath)
	digest, err := util.FileDigest(localPath)
	if err != nil {
		return false, err
	}

	existing, err := m.store.Stat(ctx, "", key)
	switch {
	case err == nil:
		if util.SameDigest(existing.UserMetadata[checksumMetadataKey], digest) {
			m.logger.Debug(ctx, "Object is current, skipping", types.Fields{"key": key})
			m.metrics.RecordSuccess("mirror_current")
			return false, nil
		}
	case errors.Is(err, storagetypes.ErrObjectNotFound):
	default:
		m.logger.Warn(ctx, "Cannot stat object, uploading anyway", types.Fields{
			"key":   key,
			"error": err.Error(),
		})
	}

	f, err := os.Open(localPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}

	startTime := time.Now()
	err = m.store.Put(ctx, "", key, f, storagetypes.ObjectMetadata{
		ContentType:   "application/gzip",
		ContentLength: info.Size(),
		UserMetadata:  map[string]string{checksumMetadataKey: digest},
	})
	if err != nil {
		return false, err
	}

	m.metrics.RecordDuration("mirror", time.Since(startTime).Seconds())
	m.metrics.RecordSuccess("mirror")
	m.logger.Info(ctx, "Mirrored file", types.Fields{
		"key":  key,
		"size": info.Size(),
	})
	return true, nil
}
