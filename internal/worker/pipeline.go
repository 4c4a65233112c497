// Package worker runs one fetch/convert pass end to end.
package worker

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/internal/service"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// CatalogLister lists the archives to keep locally.
type CatalogLister interface {
	ListTargets(ctx context.Context, query url.Values) (domain.WorkList, error)
}

// Fetcher downloads the entries of a work list.
type Fetcher interface {
	Fetch(ctx context.Context, work domain.WorkList) (*service.FetchResult, error)
}

// Mirrorer copies files to object storage.
type Mirrorer interface {
	MirrorAll(ctx context.Context, paths []string) (int, error)
}

// Converter builds databases from archives. An empty list means all of them.
type Converter interface {
	Convert(ctx context.Context, files []string) ([]domain.ConversionResult, error)
}

// Locker guards the base directory against concurrent runs.
type Locker interface {
	Lock(ctx context.Context, wait time.Duration) (func() error, error)
}

// Options select what a run does.
type Options struct {
	Username    string
	Password    string
	ConvertOnly bool
	NoConvert   bool
	// LockWait is how long to wait for another run's lock.
	LockWait time.Duration
}

// Pipeline wires the run stages together.
type Pipeline struct {
	portal    domain.PortalClient
	catalog   CatalogLister
	query     url.Values
	locker    Locker
	fetcher   Fetcher
	mirror    Mirrorer
	converter Converter
	retry     config.RetryConfig
	logger    types.Logger
	metrics   types.Metrics
	sleep     func(context.Context, time.Duration) error
}

// Dependencies holds the stages of a Pipeline. Mirror may be nil.
type Dependencies struct {
	Portal    domain.PortalClient
	Catalog   CatalogLister
	Query     url.Values
	Locker    Locker
	Fetcher   Fetcher
	Mirror    Mirrorer
	Converter Converter
	// Retry applies to sign on and catalog reads.
	Retry   config.RetryConfig
	Logger  types.Logger
	Metrics types.Metrics
}

// NewPipeline creates a pipeline from its stages.
func NewPipeline(deps Dependencies) *Pipeline {
	return &Pipeline{
		portal:    deps.Portal,
		catalog:   deps.Catalog,
		query:     deps.Query,
		locker:    deps.Locker,
		fetcher:   deps.Fetcher,
		mirror:    deps.Mirror,
		converter: deps.Converter,
		retry:     deps.Retry,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		sleep:     sleepContext,
	}
}

// stage wraps fn with the middleware every stage gets. Retryable stages
// are re-run on transient portal errors.
func (p *Pipeline) stage(name string, retryable bool, fn StageFunc) StageFunc {
	middlewares := []Middleware{
		RecoveryMiddleware(name, p.logger, p.metrics),
		StageMiddleware(name),
		LoggingMiddleware(name, p.logger),
		MetricsMiddleware(name, p.metrics),
	}
	if retryable {
		middlewares = append(middlewares, RetryMiddleware(&p.retry, p.logger, p.sleep))
	}
	return Chain(fn, middlewares...)
}

// Run signs on, fetches what changed, mirrors and converts it. Sign-on,
// catalog and lock failures end the run before anything is downloaded;
// failures of individual files are collected and returned together with
// the report.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*domain.FetchReport, error) {
	runID := uuid.New().String()
	ctx = context.WithValue(ctx, types.RunIDKey, runID)

	report := &domain.FetchReport{RunID: runID, StartedAt: time.Now().UTC()}
	defer func() {
		report.FinishedAt = time.Now().UTC()
	}()

	p.metrics.StartOperation("run")
	defer p.metrics.EndOperation("run")
	defer func() {
		p.metrics.RecordDuration("run", time.Since(report.StartedAt).Seconds())
	}()

	p.logger.Info(ctx, "Starting run", types.Fields{
		"convert_only": opts.ConvertOnly,
		"no_convert":   opts.NoConvert,
	})

	var errs *multierror.Error
	var changed []string

	// collect keeps a stage error for the report unless the run was cancelled.
	collect := func(err error) error {
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = multierror.Append(errs, err)
		return nil
	}

	if !opts.ConvertOnly {
		signOn := p.stage("sign_on", true, func(ctx context.Context) error {
			if err := p.portal.SignOn(ctx, opts.Username, opts.Password); err != nil {
				return err
			}
			p.logger.Info(ctx, "Signed on", types.Fields{"user": opts.Username})
			return nil
		})
		if err := signOn(ctx); err != nil {
			p.metrics.RecordError("run", stageError(err))
			return report, err
		}

		var work domain.WorkList
		listTargets := p.stage("catalog", true, func(ctx context.Context) error {
			var err error
			work, err = p.catalog.ListTargets(ctx, p.query)
			return err
		})
		if err := listTargets(ctx); err != nil {
			p.metrics.RecordError("run", stageError(err))
			return report, err
		}
		report.Listed = len(work)

		unlock, err := p.locker.Lock(ctx, opts.LockWait)
		if err != nil {
			p.metrics.RecordError("run", stageError(err))
			return report, err
		}
		defer func() {
			if err := unlock(); err != nil {
				p.logger.Warn(ctx, "Failed to release base lock", types.Fields{"error": err.Error()})
			}
		}()

		fetch := p.stage("fetch", false, func(ctx context.Context) error {
			result, err := p.fetcher.Fetch(ctx, work)
			if result != nil {
				report.Current = result.Current
				report.Downloaded = result.Downloaded
				report.Failed = result.Failed
				report.Changed = result.Changed.Paths()
			}
			return err
		})
		if err := collect(fetch(ctx)); err != nil {
			return report, err
		}
		changed = report.Changed

		if p.mirror != nil && len(changed) > 0 {
			mirror := p.stage("mirror", false, func(ctx context.Context) error {
				n, err := p.mirror.MirrorAll(ctx, changed)
				report.Mirrored = n
				return err
			})
			if err := collect(mirror(ctx)); err != nil {
				return report, err
			}
		}
	}

	if !opts.NoConvert {
		convert := p.stage("convert", false, func(ctx context.Context) error {
			results, err := p.converter.Convert(ctx, changed)
			report.Converted = results
			return err
		})
		if err := collect(convert(ctx)); err != nil {
			return report, err
		}
	}

	err := errs.ErrorOrNil()
	if err != nil {
		p.metrics.RecordError("run", "partial")
		p.logger.Error(ctx, "Run finished with errors", err, reportFields(report))
	} else {
		p.metrics.RecordSuccess("run")
		p.logger.Info(ctx, "Run finished", reportFields(report))
	}
	return report, err
}

func stageError(err error) string {
	var de *domain.DomainError
	switch {
	case errors.As(err, &de):
		return de.Code
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}

func reportFields(r *domain.FetchReport) types.Fields {
	return types.Fields{
		"listed":     r.Listed,
		"current":    r.Current,
		"downloaded": r.Downloaded,
		"failed":     len(r.Failed),
		"mirrored":   r.Mirrored,
		"converted":  len(r.Converted),
	}
}
