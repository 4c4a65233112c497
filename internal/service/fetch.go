// Package service holds the fetch, mirror and conversion steps of a run.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/internal/domain/util"
	"github.com/shamanpi/BAD-Mutations/internal/layout"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// chunkSize bounds how much of a download is held in memory at once.
const chunkSize = 32 * 1024

var errChecksumMismatch = errors.New("checksum mismatch")

// FetchResult is what one pass over a work list did.
type FetchResult struct {
	Changed    *domain.ChangedFiles
	Current    int
	Downloaded int
	// Failed lists the local file names of entries that could not be fetched.
	Failed []string
}

// FetchEngine brings local archives in line with the catalog.
type FetchEngine struct {
	portal         domain.PortalClient
	layout         *layout.Manager
	retry          config.RetryConfig
	attemptTimeout time.Duration
	logger         types.Logger
	metrics        types.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetchEngine creates a fetch engine. attemptTimeout bounds each
// download attempt; zero leaves attempts bounded only by ctx.
func NewFetchEngine(
	portal domain.PortalClient,
	lm *layout.Manager,
	retry config.RetryConfig,
	attemptTimeout time.Duration,
	logger types.Logger,
	metrics types.Metrics,
) *FetchEngine {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &FetchEngine{
		portal:         portal,
		layout:         lm,
		retry:          retry,
		attemptTimeout: attemptTimeout,
		logger:         logger,
		metrics:        metrics,
		sleep:          sleepContext,
	}
}

// FetchAll processes work in order and returns the paths it wrote.
// Entries that fail are reported in the aggregated error; the rest of the
// list is still processed. Cancelling ctx stops the pass and returns ctx.Err().
func (e *FetchEngine) FetchAll(ctx context.Context, work domain.WorkList) (*domain.ChangedFiles, error) {
	result, err := e.Fetch(ctx, work)
	return result.Changed, err
}

// Fetch is FetchAll with per-entry counts.
func (e *FetchEngine) Fetch(ctx context.Context, work domain.WorkList) (*FetchResult, error) {
	result := &FetchResult{Changed: domain.NewChangedFiles()}
	var errs *multierror.Error

	for _, entry := range work {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := entry.LocalFilename
		if name == "" {
			name = e.layout.LocalFilename(entry.RemotePath)
		}
		entryCtx := context.WithValue(ctx, types.EntityKey, entry.Entity)

		path, err := e.layout.Resolve(entry)
		if err != nil {
			e.fail(entryCtx, result, &errs, name, err)
			continue
		}

		current, err := e.isCurrent(entryCtx, path, entry.ExpectedChecksum)
		if err != nil {
			e.fail(entryCtx, result, &errs, name, err)
			continue
		}
		if current {
			e.logger.Info(entryCtx, "File is current, skipping", types.Fields{"file": path})
			e.metrics.RecordSuccess("skip_current")
			result.Current++
			continue
		}

		if err := e.download(entryCtx, entry, path); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			e.fail(entryCtx, result, &errs, name, err)
			continue
		}

		result.Changed.Add(path)
		result.Downloaded++
	}

	return result, errs.ErrorOrNil()
}

func (e *FetchEngine) fail(ctx context.Context, result *FetchResult, errs **multierror.Error, name string, err error) {
	e.logger.Error(ctx, "Failed to fetch file", err, types.Fields{
		"file":       name,
		"error_type": categorizeError(err),
	})
	result.Failed = append(result.Failed, name)
	*errs = multierror.Append(*errs, fmt.Errorf("%s: %w", name, err))
}

// isCurrent reports whether path exists with the expected digest.
func (e *FetchEngine) isCurrent(ctx context.Context, path, expected string) (bool, error) {
	digest, err := util.FileDigest(path)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			e.logger.Info(ctx, "File is absent, downloading", types.Fields{"file": path})
			return false, nil
		}
		return false, err
	}

	if util.SameDigest(digest, expected) {
		return true, nil
	}

	e.logger.Info(ctx, "Local checksum differs from catalog, downloading", types.Fields{
		"file":     path,
		"local":    digest,
		"expected": expected,
	})
	return false, nil
}

// download retries attempt until the file verifies or attempts run out.
// An existing file at path is only replaced by a verified download.
func (e *FetchEngine) download(ctx context.Context, entry domain.RemoteEntry, path string) error {
	e.metrics.StartOperation("download")
	defer e.metrics.EndOperation("download")
	startTime := time.Now()
	defer func() {
		e.metrics.RecordDuration("download", time.Since(startTime).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < e.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := e.retry.Backoff(attempt - 1)
			e.logger.Info(ctx, "Retrying download", types.Fields{
				"file":    path,
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			})
			if err := e.sleep(ctx, backoff); err != nil {
				return err
			}
		}

		err := e.attempt(ctx, entry, path)
		if err == nil {
			e.metrics.RecordSuccess("download")
			e.logger.Info(ctx, "Downloaded and verified", types.Fields{
				"file":     path,
				"attempts": attempt + 1,
			})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		errorType := categorizeError(err)
		e.metrics.RecordError("download_attempt", errorType)
		e.logger.Warn(ctx, "Download attempt failed", types.Fields{
			"file":         path,
			"attempt":      attempt + 1,
			"max_attempts": e.retry.MaxAttempts,
			"error_type":   errorType,
			"error":        err.Error(),
		})
	}

	e.metrics.RecordError("download", categorizeError(lastErr))

	if errors.Is(lastErr, errChecksumMismatch) {
		return domain.NewDomainError(
			domain.ErrVerificationFailed.Code,
			fmt.Sprintf("%s did not match %s after %d attempts", filepath.Base(path), entry.ExpectedChecksum, e.retry.MaxAttempts),
			lastErr,
			false,
		)
	}
	return domain.NewDomainError(
		domain.ErrDownloadFailed.Code,
		fmt.Sprintf("%s failed after %d attempts", filepath.Base(path), e.retry.MaxAttempts),
		lastErr,
		true,
	)
}

// attempt streams one download into the part file and moves it into place
// if its on-disk digest matches the catalog.
func (e *FetchEngine) attempt(ctx context.Context, entry domain.RemoteEntry, path string) error {
	if e.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()
	}

	body, err := e.portal.Download(ctx, entry.RemotePath)
	if err != nil {
		return err
	}
	defer body.Close()

	part := layout.PartPath(path)
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", part, err)
	}

	written, streamed, err := copyChunks(f, body)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to write %s: %w", part, err)
	}

	onDisk, err := util.FileDigest(part)
	if err != nil {
		os.Remove(part)
		return err
	}
	if onDisk != streamed {
		os.Remove(part)
		return fmt.Errorf("%s changed while being written", part)
	}
	if !util.SameDigest(onDisk, entry.ExpectedChecksum) {
		os.Remove(part)
		return fmt.Errorf("%w: got %s, want %s", errChecksumMismatch, onDisk, entry.ExpectedChecksum)
	}

	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to move %s into place: %w", part, err)
	}

	e.metrics.RecordFileSize("archive", written)
	return nil
}

// copyChunks writes r to w in chunkSize pieces and returns the byte count
// and hex digest of what was written.
func copyChunks(w io.Writer, r io.Reader) (int64, string, error) {
	h := util.NewDigest()
	buf := make([]byte, chunkSize)
	var written int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, "", werr
			}
			h.Write(buf[:n])
			written += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, "", err
		}
	}

	return written, hex.EncodeToString(h.Sum(nil)), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// categorizeError categorizes errors for metrics
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	switch {
	case errors.Is(err, errChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrMalformedName):
		return "malformed_name"
	case errors.Is(err, domain.ErrLayout):
		return "layout"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection"):
		return "connection"
	case strings.Contains(errStr, "404") || strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "403") || strings.Contains(errStr, "forbidden"):
		return "forbidden"
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "unauthorized"):
		return "unauthorized"
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "server"):
		return "server_error"
	default:
		return "unknown"
	}
}
