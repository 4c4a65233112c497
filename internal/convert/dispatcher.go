// Package convert turns downloaded CDS archives into BLAST nucleotide databases.
package convert

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-shellwords"

	execadapter "github.com/shamanpi/BAD-Mutations/internal/adapters/exec"
	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/internal/layout"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// DefaultConverter is looked up on PATH when no converter is configured.
const DefaultConverter = "makeblastdb"

// Dispatcher runs the converter once per archive, one at a time.
type Dispatcher struct {
	runner  domain.CommandRunner
	layout  *layout.Manager
	cfg     config.ConvertConfig
	suffix  string
	logger  types.Logger
	metrics types.Metrics

	lookPath func(name string) (string, error)
}

// NewDispatcher creates a dispatcher. suffix is the archive suffix used to
// discover files and to name databases.
func NewDispatcher(
	runner domain.CommandRunner,
	lm *layout.Manager,
	cfg config.ConvertConfig,
	suffix string,
	logger types.Logger,
	metrics types.Metrics,
) *Dispatcher {
	if cfg.DBType == "" {
		cfg.DBType = "nucl"
	}
	return &Dispatcher{
		runner:   runner,
		layout:   lm,
		cfg:      cfg,
		suffix:   suffix,
		logger:   logger,
		metrics:  metrics,
		lookPath: execadapter.LookPath,
	}
}

// Convert converts the given files, or every archive below the base
// directory when files is empty. A file whose conversion fails does not
// stop the others; failures come back aggregated.
func (d *Dispatcher) Convert(ctx context.Context, files []string) ([]domain.ConversionResult, error) {
	converter, err := d.converter()
	if err != nil {
		return nil, err
	}

	extra, err := shellwords.Parse(d.cfg.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid converter arguments %q: %w", d.cfg.ExtraArgs, err)
	}

	if len(files) == 0 {
		files, err = d.layout.Discover(d.suffix)
		if err != nil {
			return nil, err
		}
		d.logger.Info(ctx, "Converting every archive under base", types.Fields{
			"base":  d.layout.Base(),
			"files": len(files),
		})
	}

	var (
		results []domain.ConversionResult
		errs    *multierror.Error
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := d.convertOne(ctx, converter, extra, file)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			d.metrics.RecordError("convert", errorType(err))
			d.logger.Error(ctx, "Conversion failed", err, types.Fields{"file": file})
			errs = multierror.Append(errs, err)
		} else {
			d.metrics.RecordSuccess("convert")
		}
		if result != nil {
			results = append(results, *result)
		}
	}

	return results, errs.ErrorOrNil()
}

func (d *Dispatcher) converter() (string, error) {
	if d.cfg.Converter != "" {
		return d.cfg.Converter, nil
	}
	return d.lookPath(DefaultConverter)
}

// DatabaseName returns the database path prefix for an archive: the
// archive's directory joined with its name minus the suffix.
func (d *Dispatcher) DatabaseName(file string) (dir, stem string) {
	dir, name := filepath.Split(file)
	stem = strings.TrimSuffix(name, d.suffix)
	if stem == name {
		stem = strings.TrimSuffix(name, ".gz")
		stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	}
	return filepath.Clean(dir), stem
}

func (d *Dispatcher) convertOne(ctx context.Context, converter string, extra []string, file string) (*domain.ConversionResult, error) {
	d.metrics.StartOperation("convert")
	defer d.metrics.EndOperation("convert")
	startTime := time.Now()

	f, err := os.Open(file)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrConversionFailed.Code, fmt.Sprintf("cannot open %s", file), err, false)
	}
	defer f.Close()

	var stdin io.Reader = f
	if strings.HasSuffix(file, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrConversionFailed.Code, fmt.Sprintf("%s is not gzip data", file), err, false)
		}
		defer gz.Close()
		stdin = gz
	}

	dir, stem := d.DatabaseName(file)
	database := filepath.Join(dir, stem)
	args := append([]string{
		"-in", "-",
		"-dbtype", d.cfg.DBType,
		"-title", stem,
		"-out", database,
	}, extra...)

	d.logger.Info(ctx, "Converting archive", types.Fields{
		"file":      file,
		"database":  database,
		"converter": converter,
	})

	res, err := d.runner.Run(ctx, domain.Command{
		Path:  converter,
		Args:  args,
		Dir:   dir,
		Stdin: stdin,
	})
	elapsed := time.Since(startTime)
	d.metrics.RecordDuration("convert", elapsed.Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewDomainError(domain.ErrConversionFailed.Code, fmt.Sprintf("cannot run converter on %s", file), err, false)
	}

	result := &domain.ConversionResult{
		File:     file,
		Database: database,
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
		Duration: elapsed,
	}

	d.logger.Info(ctx, "Converter output", types.Fields{
		"file":      file,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	})

	if res.ExitCode != 0 {
		return result, domain.NewDomainError(
			domain.ErrConversionFailed.Code,
			fmt.Sprintf("converter exited with status %d for %s", res.ExitCode, file),
			nil,
			false,
		)
	}
	return result, nil
}

func errorType(err error) string {
	switch {
	case strings.Contains(err.Error(), "exited with status"):
		return "nonzero_exit"
	case strings.Contains(err.Error(), "gzip"):
		return "bad_archive"
	default:
		return "run_failed"
	}
}
