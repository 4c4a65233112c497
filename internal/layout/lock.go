package layout

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
)

// LockFileName is the lock file kept in the base directory during a fetch.
const LockFileName = ".phytofetch.lock"

// Lock takes an exclusive lock on the base directory, waiting up to wait
// for another run to release it. The returned func releases the lock.
func (m *Manager) Lock(ctx context.Context, wait time.Duration) (func() error, error) {
	fileLock := flock.New(filepath.Join(m.base, LockFileName))

	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 250*time.Millisecond)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lockCtx.Err() == nil {
			return nil, domain.NewDomainError(domain.ErrLayout.Code, fmt.Sprintf("cannot lock %s", m.base), err, false)
		}
	}
	if !locked {
		return nil, domain.NewDomainError(domain.ErrLocked.Code, fmt.Sprintf("%s is locked by another run", m.base), nil, false)
	}

	return fileLock.Unlock, nil
}
