// Package setup records where the analysis tools live and fetches the
// ones that are missing.
package setup

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	execadapter "github.com/shamanpi/BAD-Mutations/internal/adapters/exec"
	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// tool is one external program the pipeline depends on.
type tool struct {
	executable string
	required   bool
	// name is what the installer script calls the tool.
	name string
	// installed is where the installer puts it, relative to the deps dir.
	installed string
	field     func(r *ConfigRecord) *string
}

var tools = []tool{
	{executable: "bash", required: true, field: func(r *ConfigRecord) *string { return &r.Bash }},
	{executable: "gzip", required: true, field: func(r *ConfigRecord) *string { return &r.Gzip }},
	{executable: "sum", required: true, field: func(r *ConfigRecord) *string { return &r.Sum }},
	{executable: "tblastx", name: "tBLASTx", installed: "ncbi_blast+/bin/tblastx", field: func(r *ConfigRecord) *string { return &r.TBlastX }},
	{executable: "run_pasta.py", name: "PASTA", installed: "pasta-master/run_pasta.py", field: func(r *ConfigRecord) *string { return &r.Pasta }},
	{executable: "HYPHYSP", name: "HyPhy", installed: "hyphy-master/HYPHYMP", field: func(r *ConfigRecord) *string { return &r.HyPhy }},
}

// Environment builds and writes the configuration record.
type Environment struct {
	cfg     config.SetupConfig
	base    string
	runner  domain.CommandRunner
	logger  types.Logger
	metrics types.Metrics

	lookPath func(name string) (string, error)
}

// NewEnvironment creates an Environment for the data under base.
func NewEnvironment(cfg config.SetupConfig, base string, runner domain.CommandRunner, logger types.Logger, metrics types.Metrics) *Environment {
	return &Environment{
		cfg:      cfg,
		base:     base,
		runner:   runner,
		logger:   logger,
		metrics:  metrics,
		lookPath: execadapter.LookPath,
	}
}

// DiscoverTools looks every tool up on PATH. Missing required tools are
// logged as errors; missing optional ones are added to MissingProgs.
func (e *Environment) DiscoverTools(ctx context.Context) *ConfigRecord {
	rec := &ConfigRecord{
		Base:             e.base,
		DepsDir:          e.cfg.DepsDir,
		TargetSpecies:    e.cfg.Target,
		EvalThreshold:    e.cfg.EvalThreshold,
		MissingThreshold: e.cfg.MissingThreshold,
	}

	for _, t := range tools {
		path, err := e.lookPath(t.executable)
		if err == nil {
			*t.field(rec) = path
			continue
		}

		if t.required {
			e.logger.Error(ctx, "Cannot find required program", err, types.Fields{"program": t.executable})
			e.metrics.RecordError("setup", "tool_missing")
			continue
		}
		e.logger.Warn(ctx, "Cannot find program, will download", types.Fields{"program": t.name})
		rec.MissingProgs = append(rec.MissingProgs, t.name)
	}

	e.logger.Debug(ctx, "Discovered tools", types.Fields{
		"bash":    rec.Bash,
		"gzip":    rec.Gzip,
		"sum":     rec.Sum,
		"tblastx": rec.TBlastX,
		"pasta":   rec.Pasta,
		"hyphy":   rec.HyPhy,
	})
	return rec
}

// InstallMissing runs the installer script for rec.MissingProgs and points
// those tools at their install locations under the deps directory. A
// failing installer is logged; only failing to start it is an error.
func (e *Environment) InstallMissing(ctx context.Context, rec *ConfigRecord) error {
	if len(rec.MissingProgs) == 0 {
		e.logger.Info(ctx, "No missing dependencies", nil)
		return nil
	}

	bash := rec.Bash
	if bash == "" {
		return domain.NewDomainError(domain.ErrToolNotFound.Code, "bash is required to run the installer", nil, false)
	}

	e.logger.Warn(ctx, "Installing missing dependencies", types.Fields{
		"missing":  strings.Join(rec.MissingProgs, ", "),
		"deps_dir": rec.DepsDir,
	})

	args := append([]string{e.cfg.InstallerScript, rec.DepsDir}, rec.MissingProgs...)
	res, err := e.runner.Run(ctx, domain.Command{Path: bash, Args: args})
	if err != nil {
		e.metrics.RecordError("install", "run_failed")
		return fmt.Errorf("failed to run installer %s: %w", e.cfg.InstallerScript, err)
	}

	e.logger.Info(ctx, "Installer output", types.Fields{
		"stdout":    string(res.Stdout),
		"stderr":    string(res.Stderr),
		"exit_code": res.ExitCode,
	})
	if res.ExitCode != 0 {
		e.metrics.RecordError("install", "nonzero_exit")
		e.logger.Error(ctx, "Installer exited with an error", nil, types.Fields{"exit_code": res.ExitCode})
	} else {
		e.metrics.RecordSuccess("install")
	}

	for _, t := range tools {
		if t.installed == "" || !slices.Contains(rec.MissingProgs, t.name) {
			continue
		}
		*t.field(rec) = filepath.Join(rec.DepsDir, filepath.FromSlash(t.installed))
	}
	return nil
}

// WriteConfig validates rec and writes it to path, replacing any existing
// file.
func (e *Environment) WriteConfig(ctx context.Context, path string, rec *ConfigRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid configuration record: %w", err)
	}

	existed, err := writeRecord(path, rec)
	if existed {
		e.logger.Warn(ctx, "Config file already exists and will be overwritten", types.Fields{"path": path})
	}
	if err != nil {
		e.metrics.RecordError("write_config", "io")
		return err
	}

	e.metrics.RecordSuccess("write_config")
	e.logger.Info(ctx, "Wrote configuration", types.Fields{"path": path})
	return nil
}

// Run discovers tools, optionally installs the missing ones and writes
// the configuration file.
func (e *Environment) Run(ctx context.Context, install bool) (*ConfigRecord, error) {
	ctx = context.WithValue(ctx, types.StageKey, "setup")

	rec := e.DiscoverTools(ctx)
	if install {
		if err := e.InstallMissing(ctx, rec); err != nil {
			return rec, err
		}
	}
	if err := e.WriteConfig(ctx, e.cfg.ConfigPath, rec); err != nil {
		return rec, err
	}
	return rec, nil
}
