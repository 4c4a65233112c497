// Package layout maps catalog entries onto the local base/<entity>/<file> tree.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/internal/domain/util"
)

// Manager owns the directory tree below one base directory. Every path it
// returns is absolute.
type Manager struct {
	base string
}

// NewManager creates the base directory if needed and returns a Manager for it.
func NewManager(base string) (*Manager, error) {
	if base == "" {
		return nil, domain.NewDomainError(domain.ErrLayout.Code, "base directory is empty", nil, false)
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrLayout.Code, "cannot resolve base directory", err, false)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, domain.NewDomainError(domain.ErrLayout.Code, fmt.Sprintf("cannot create %s", abs), err, false)
	}
	return &Manager{base: abs}, nil
}

// Base returns the absolute base directory.
func (m *Manager) Base() string {
	return m.base
}

// LocalFilename returns the file name a remote path is stored under.
func (m *Manager) LocalFilename(remotePath string) string {
	return util.LocalFilename(remotePath)
}

// EntityIdentifier derives the entity from a local file name.
func (m *Manager) EntityIdentifier(localFilename string) (string, error) {
	return util.EntityIdentifier(localFilename)
}

// EnsureEntityDir creates base/entity when absent and returns its path.
// Calling it again for the same entity returns the same path.
func (m *Manager) EnsureEntityDir(entity string) (string, error) {
	if entity == "" || entity == "." || entity == ".." ||
		strings.ContainsAny(entity, `/\`) || strings.Contains(entity, "..") {
		return "", domain.NewDomainError(
			domain.ErrMalformedName.Code,
			fmt.Sprintf("entity %q is not a single path element", entity),
			nil,
			false,
		)
	}

	dir := filepath.Join(m.base, entity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.NewDomainError(domain.ErrLayout.Code, fmt.Sprintf("cannot create %s", dir), err, false)
	}
	return dir, nil
}

// Resolve returns the absolute local path for entry, creating its entity
// directory. Entries built without derived fields are derived here.
func (m *Manager) Resolve(entry domain.RemoteEntry) (string, error) {
	name := entry.LocalFilename
	if name == "" {
		name = m.LocalFilename(entry.RemotePath)
	}
	entity := entry.Entity
	if entity == "" {
		var err error
		if entity, err = m.EntityIdentifier(name); err != nil {
			return "", err
		}
	}

	dir, err := m.EnsureEntityDir(entity)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Discover returns every regular file below base whose name ends with
// suffix, sorted. Symlinked archives count; symlinked directories are not
// descended into. In-progress ".part" downloads never match.
func (m *Manager) Discover(suffix string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(m.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) && path != m.base {
				return nil
			}
			return err
		}
		if !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		if isRegularFile(path, d) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrLayout.Code, fmt.Sprintf("cannot scan %s", m.base), err, false)
	}

	sort.Strings(found)
	return found, nil
}

// isRegularFile reports whether d is a regular file or a symlink that
// resolves to one. Dangling links are skipped.
func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// PartPath is where a download of path is staged until it verifies.
func PartPath(path string) string {
	return path + ".part"
}
