package layout

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
)

func TestNewManager(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "base")

	m, err := NewManager(base)
	require.NoError(t, err)
	assert.Equal(t, base, m.Base())
	assert.DirExists(t, base)

	_, err = NewManager("")
	assert.ErrorIs(t, err, domain.ErrLayout)
}

func TestManager_EnsureEntityDir_Idempotent(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	first, err := m.EnsureEntityDir("species1")
	require.NoError(t, err)
	second, err := m.EnsureEntityDir("species1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(m.Base(), "species1"), first)
	assert.True(t, filepath.IsAbs(first))
	assert.DirExists(t, first)
}

func TestManager_EnsureEntityDir_RejectsPaths(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	for _, entity := range []string{"", ".", "..", "a/b", `a\b`, "x..y"} {
		t.Run(entity, func(t *testing.T) {
			_, err := m.EnsureEntityDir(entity)
			assert.ErrorIs(t, err, domain.ErrMalformedName)
		})
	}
}

func TestManager_EnsureEntityDir_IOError(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(base)
	require.NoError(t, err)

	// A regular file where the entity directory should go.
	require.NoError(t, os.WriteFile(filepath.Join(base, "species1"), []byte("x"), 0o644))

	_, err = m.EnsureEntityDir("species1")
	assert.ErrorIs(t, err, domain.ErrLayout)
}

func TestManager_Resolve(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	t.Run("derived fields present", func(t *testing.T) {
		path, err := m.Resolve(domain.RemoteEntry{
			RemotePath:    "/PhytozomeV10/Athaliana_167_TAIR10.cds.fa.gz",
			LocalFilename: "Athaliana_167_TAIR10.cds.fa.gz",
			Entity:        "Athaliana",
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(m.Base(), "Athaliana", "Athaliana_167_TAIR10.cds.fa.gz"), path)
	})

	t.Run("derived from remote path", func(t *testing.T) {
		path, err := m.Resolve(domain.RemoteEntry{RemotePath: "/PhytozomeV10/species1.cds.fa.gz"})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(m.Base(), "species1", "species1.cds.fa.gz"), path)
	})

	t.Run("malformed name", func(t *testing.T) {
		_, err := m.Resolve(domain.RemoteEntry{RemotePath: "/PhytozomeV10/_bad.cds.fa.gz"})
		assert.ErrorIs(t, err, domain.ErrMalformedName)
	})
}

func TestManager_Discover(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(base)
	require.NoError(t, err)

	files := []string{
		"Zmays/Zmays_284_6a.cds.fa.gz",
		"Athaliana/Athaliana_167_TAIR10.cds.fa.gz",
		"Athaliana/Athaliana_167_TAIR10.cds.fa.gz.part",
		"Athaliana/Athaliana_167_TAIR10.protein.fa.gz",
		"notes.txt",
	}
	for _, f := range files {
		path := filepath.Join(base, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(f), 0o644))
	}

	found, err := m.Discover(".cds.fa.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(base, "Athaliana", "Athaliana_167_TAIR10.cds.fa.gz"),
		filepath.Join(base, "Zmays", "Zmays_284_6a.cds.fa.gz"),
	}, found)

	empty, err := NewManager(t.TempDir())
	require.NoError(t, err)
	none, err := empty.Discover(".cds.fa.gz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManager_Discover_FollowsFileSymlinks(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(base)
	require.NoError(t, err)

	store := t.TempDir()
	target := filepath.Join(store, "Zmays_284_6a.cds.fa.gz")
	require.NoError(t, os.WriteFile(target, []byte("ATG"), 0o644))

	linked := filepath.Join(base, "Zmays", "Zmays_284_6a.cds.fa.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(linked), 0o755))
	require.NoError(t, os.Symlink(target, linked))

	dangling := filepath.Join(base, "Sbicolor", "Sbicolor_313_v3.1.cds.fa.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(dangling), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(store, "absent.cds.fa.gz"), dangling))

	dirLink := filepath.Join(base, "linked.cds.fa.gz")
	require.NoError(t, os.Symlink(store, dirLink))

	found, err := m.Discover(".cds.fa.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{linked}, found)
}

func TestPartPath(t *testing.T) {
	assert.Equal(t, "/b/s/x.cds.fa.gz.part", PartPath("/b/s/x.cds.fa.gz"))
}

func TestManager_Lock(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	unlock, err := m.Lock(ctx, time.Second)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(m.Base(), LockFileName))

	// flock locks are per file descriptor, so a second Manager contends.
	other, err := NewManager(m.Base())
	require.NoError(t, err)
	_, err = other.Lock(ctx, 300*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrLocked)

	require.NoError(t, unlock())

	unlockAgain, err := other.Lock(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, unlockAgain())
}
