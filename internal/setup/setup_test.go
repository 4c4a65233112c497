package setup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/mocks"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	obmocks "github.com/shamanpi/BAD-Mutations/shared/observability/mocks"
)

func testSetupConfig(dir string) config.SetupConfig {
	return config.SetupConfig{
		DepsDir:          filepath.Join(dir, "deps"),
		InstallerScript:  "./Shell_Scripts/get_dependencies.sh",
		ConfigPath:       filepath.Join(dir, "BAD_Mutations_Config.txt"),
		Target:           "Athaliana",
		EvalThreshold:    0.05,
		MissingThreshold: 0.75,
	}
}

// fakePath resolves only the named programs, under /usr/bin.
func fakePath(found ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, f := range found {
			if f == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", domain.NewDomainError(domain.ErrToolNotFound.Code, name, nil, false)
	}
}

func sampleRecord() *ConfigRecord {
	return &ConfigRecord{
		Base:             "/data/phytozome",
		DepsDir:          "/data/deps",
		TargetSpecies:    "Athaliana",
		EvalThreshold:    0.05,
		MissingThreshold: 0.75,
		Bash:             "/bin/bash",
		Gzip:             "/bin/gzip",
		Sum:              "/usr/bin/sum",
		TBlastX:          "/data/deps/ncbi_blast+/bin/tblastx",
		Pasta:            "",
		HyPhy:            "/opt/hyphy/HYPHYMP",
		MissingProgs:     []string{"tBLASTx", "PASTA"},
	}
}

func TestConfigRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *ConfigRecord)
		wantErr string
	}{
		{name: "valid", mutate: func(r *ConfigRecord) {}},
		{name: "empty base", mutate: func(r *ConfigRecord) { r.Base = " " }, wantErr: "base directory is required"},
		{name: "zero evalue", mutate: func(r *ConfigRecord) { r.EvalThreshold = 0 }, wantErr: "e-value threshold must be positive"},
		{name: "missing above one", mutate: func(r *ConfigRecord) { r.MissingThreshold = 1.5 }, wantErr: "missing threshold must be within [0, 1]"},
		{name: "missing boundary", mutate: func(r *ConfigRecord) { r.MissingThreshold = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRecord()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteReadConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BAD_Mutations_Config.txt")
	env := NewEnvironment(testSetupConfig(dir), dir, nil, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

	want := sampleRecord()
	require.NoError(t, env.WriteConfig(context.Background(), path, want))

	got, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `TARGET_SPECIES="Athaliana"`)
	assert.Contains(t, string(raw), `MISSING_PROGS="tBLASTx,PASTA"`)
}

func TestWriteReadConfig_RoundTripVerbatimValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ConfigRecord)
	}{
		{"leading zero", func(r *ConfigRecord) { r.TargetSpecies = "0123" }},
		{"signed integer", func(r *ConfigRecord) { r.TargetSpecies = "+5" }},
		{"plain integer", func(r *ConfigRecord) { r.DepsDir = "42" }},
		{"dollar reference", func(r *ConfigRecord) { r.Base = "$HOME/phytozome" }},
		{"braced reference", func(r *ConfigRecord) { r.DepsDir = "/data/${USER}/deps" }},
		{"backslash", func(r *ConfigRecord) { r.HyPhy = `C:\hyphy\HYPHYMP` }},
		{"exclamation", func(r *ConfigRecord) { r.TargetSpecies = "Athaliana!" }},
		{"quote and backtick", func(r *ConfigRecord) { r.Pasta = "/opt/\"pasta\"/`run`" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "cfg.txt")
			env := NewEnvironment(testSetupConfig(dir), dir, nil, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

			want := sampleRecord()
			tt.mutate(want)
			require.NoError(t, env.WriteConfig(context.Background(), path, want))

			got, err := ReadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestWriteConfig_NoMissingPrograms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.txt")
	env := NewEnvironment(testSetupConfig(dir), dir, nil, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

	want := sampleRecord()
	want.MissingProgs = nil
	require.NoError(t, env.WriteConfig(context.Background(), path, want))

	got, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Nil(t, got.MissingProgs)
}

func TestWriteConfig_OverwriteWarns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.txt")
	require.NoError(t, os.WriteFile(path, []byte("OLD=1\n"), 0o644))

	logger := &obmocks.MockLogger{}
	logger.On("Warn", mock.Anything, "Config file already exists and will be overwritten", mock.Anything).Return()
	logger.On("Info", mock.Anything, "Wrote configuration", mock.Anything).Return()
	env := NewEnvironment(testSetupConfig(dir), dir, nil, logger, obmocks.NewPermissiveMetrics())

	require.NoError(t, env.WriteConfig(context.Background(), path, sampleRecord()))

	got, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/phytozome", got.Base)
	logger.AssertExpectations(t)
}

func TestWriteConfig_InvalidRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.txt")
	env := NewEnvironment(testSetupConfig(dir), dir, nil, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

	rec := sampleRecord()
	rec.EvalThreshold = -1
	err := env.WriteConfig(context.Background(), path, rec)

	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestReadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadConfig(filepath.Join(dir, "absent.txt"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("BASE=/data\nEVAL_THRESHOLD=abc\nMISSING_THRESHOLD=0.5\n"), 0o644))
	_, err = ReadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid EVAL_THRESHOLD")
}

func TestEnvironment_DiscoverTools(t *testing.T) {
	dir := t.TempDir()
	logger := obmocks.NewPermissiveLogger()
	env := NewEnvironment(testSetupConfig(dir), "/data", nil, logger, obmocks.NewPermissiveMetrics())
	env.lookPath = fakePath("bash", "sum", "tblastx")

	rec := env.DiscoverTools(context.Background())

	assert.Equal(t, "/data", rec.Base)
	assert.Equal(t, "Athaliana", rec.TargetSpecies)
	assert.Equal(t, "/usr/bin/bash", rec.Bash)
	assert.Empty(t, rec.Gzip)
	assert.Equal(t, "/usr/bin/tblastx", rec.TBlastX)
	assert.Equal(t, []string{"PASTA", "HyPhy"}, rec.MissingProgs)
	logger.AssertCalled(t, "Error", mock.Anything, "Cannot find required program", mock.Anything, mock.Anything)
}

func TestEnvironment_InstallMissing(t *testing.T) {
	t.Run("runs installer and points tools at deps", func(t *testing.T) {
		dir := t.TempDir()
		cfg := testSetupConfig(dir)
		runner := &mocks.MockCommandRunner{}
		runner.On("Run", mock.Anything, domain.Command{
			Path: "/usr/bin/bash",
			Args: []string{cfg.InstallerScript, cfg.DepsDir, "PASTA", "HyPhy"},
		}).Return(domain.CommandResult{Stdout: []byte("done")}, nil)

		env := NewEnvironment(cfg, dir, runner, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())
		env.lookPath = fakePath("bash", "gzip", "sum", "tblastx")
		rec := env.DiscoverTools(context.Background())

		require.NoError(t, env.InstallMissing(context.Background(), rec))

		assert.Equal(t, "/usr/bin/tblastx", rec.TBlastX)
		assert.Equal(t, filepath.Join(cfg.DepsDir, "pasta-master", "run_pasta.py"), rec.Pasta)
		assert.Equal(t, filepath.Join(cfg.DepsDir, "hyphy-master", "HYPHYMP"), rec.HyPhy)
		runner.AssertExpectations(t)
	})

	t.Run("nothing missing", func(t *testing.T) {
		runner := &mocks.MockCommandRunner{}
		env := NewEnvironment(testSetupConfig(t.TempDir()), "/data", runner, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

		require.NoError(t, env.InstallMissing(context.Background(), sampleRecordWithout()))
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("installer cannot start", func(t *testing.T) {
		runner := &mocks.MockCommandRunner{}
		runner.On("Run", mock.Anything, mock.Anything).Return(domain.CommandResult{}, errors.New("exec format error"))
		env := NewEnvironment(testSetupConfig(t.TempDir()), "/data", runner, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

		err := env.InstallMissing(context.Background(), sampleRecord())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to run installer")
	})

	t.Run("no bash", func(t *testing.T) {
		rec := sampleRecord()
		rec.Bash = ""
		env := NewEnvironment(testSetupConfig(t.TempDir()), "/data", &mocks.MockCommandRunner{}, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

		assert.ErrorIs(t, env.InstallMissing(context.Background(), rec), domain.ErrToolNotFound)
	})
}

func TestEnvironment_Run(t *testing.T) {
	dir := t.TempDir()
	cfg := testSetupConfig(dir)
	env := NewEnvironment(cfg, filepath.Join(dir, "data"), nil, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())
	env.lookPath = fakePath("bash", "gzip", "sum", "tblastx", "run_pasta.py", "HYPHYSP")

	rec, err := env.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, rec.MissingProgs)

	got, err := ReadConfig(cfg.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func sampleRecordWithout() *ConfigRecord {
	r := sampleRecord()
	r.MissingProgs = nil
	return r
}
