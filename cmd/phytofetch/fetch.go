package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	execadapter "github.com/shamanpi/BAD-Mutations/internal/adapters/exec"
	portalhttp "github.com/shamanpi/BAD-Mutations/internal/adapters/http"
	"github.com/shamanpi/BAD-Mutations/internal/catalog"
	"github.com/shamanpi/BAD-Mutations/internal/convert"
	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/internal/layout"
	"github.com/shamanpi/BAD-Mutations/internal/service"
	"github.com/shamanpi/BAD-Mutations/internal/worker"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/storage"
)

// lockWait is how long a run waits for another run on the same base directory.
const lockWait = 30 * time.Second

const fetchDesc = `
Sign on to the JGI Genome Portal, download every CDS archive in the
catalog whose local copy is missing or out of date, verify it against the
catalog MD5 and build a BLAST database from each archive that changed.

If nothing changed, every archive under the base directory is converted.
`

type fetchCmd struct {
	base        string
	user        string
	password    string
	speciesFile string
	convertOnly bool
	noConvert   bool
	out         io.Writer
}

func newFetchCmd(out io.Writer, load loader) *cobra.Command {
	f := &fetchCmd{out: out}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "download, verify and convert CDS archives",
		Long:  fetchDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(f.apply)
			if err != nil {
				return err
			}
			defer e.close()
			return f.run(cmd, e)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.base, "base", "b", "", "base directory for the archives (FETCH_BASE_DIR)")
	flags.StringVarP(&f.user, "user", "u", "", "portal username (JGI_USERNAME)")
	flags.StringVarP(&f.password, "password", "p", "", "portal password (JGI_PASSWORD)")
	flags.StringVar(&f.speciesFile, "species-file", "", "YAML list of species to fetch (FETCH_SPECIES_FILE)")
	flags.BoolVar(&f.convertOnly, "convert-only", false, "skip the portal and convert every archive under base")
	flags.BoolVar(&f.noConvert, "no-convert", false, "download only")
	return cmd
}

func (f *fetchCmd) apply(cfg *config.Config) {
	if f.base != "" {
		cfg.Fetch.BaseDir = f.base
	}
	if f.user != "" {
		cfg.Portal.Username = f.user
	}
	if f.password != "" {
		cfg.Portal.Password = f.password
	}
	if f.speciesFile != "" {
		cfg.Fetch.SpeciesFile = f.speciesFile
	}
	if f.convertOnly {
		cfg.Fetch.ConvertOnly = true
	}
	if f.noConvert {
		cfg.Fetch.NoConvert = true
	}
}

func (f *fetchCmd) run(cmd *cobra.Command, e *env) error {
	ctx := cmd.Context()
	cfg := e.cfg

	if cfg.Fetch.ConvertOnly && cfg.Fetch.NoConvert {
		return errors.New("--convert-only and --no-convert cannot be combined")
	}
	if !cfg.Fetch.ConvertOnly && (cfg.Portal.Username == "" || cfg.Portal.Password == "") {
		return errors.New("portal username and password are required (--user/--password or JGI_USERNAME/JGI_PASSWORD)")
	}

	pipeline, err := buildPipeline(cmd, e)
	if err != nil {
		return err
	}
	defer e.pushMetrics(cmd)

	report, err := pipeline.Run(ctx, worker.Options{
		Username:    cfg.Portal.Username,
		Password:    cfg.Portal.Password,
		ConvertOnly: cfg.Fetch.ConvertOnly,
		NoConvert:   cfg.Fetch.NoConvert,
		LockWait:    lockWait,
	})
	if report != nil {
		printReport(f.out, report)
	}
	if domain.IsAuthError(err) {
		return fmt.Errorf("sign on rejected: %w", err)
	}
	return err
}

func buildPipeline(cmd *cobra.Command, e *env) (*worker.Pipeline, error) {
	cfg := e.cfg

	lm, err := layout.NewManager(cfg.Fetch.BaseDir)
	if err != nil {
		return nil, err
	}

	portal, err := portalhttp.NewClient(portalhttp.ConfigFromPortal(cfg.Portal), e.obs.Logger("portal"))
	if err != nil {
		return nil, err
	}

	allow := catalog.DefaultAllowList()
	if cfg.Fetch.SpeciesFile != "" {
		if allow, err = catalog.LoadAllowList(cfg.Fetch.SpeciesFile); err != nil {
			return nil, err
		}
	}

	var mirror worker.Mirrorer
	if cfg.MirrorEnabled() {
		store, err := storage.New(cmd.Context(), &cfg.Storage, e.obs.Logger("storage"), e.obs.Metrics("storage"))
		if err != nil {
			return nil, err
		}
		mirror = service.NewMirror(store, cfg.Storage.Prefix, cfg.Storage.Timeout, e.obs.Logger("mirror"), e.obs.Metrics("mirror"))
	}

	return worker.NewPipeline(worker.Dependencies{
		Portal:  portal,
		Catalog: catalog.NewReader(portal, cfg.Fetch.Suffix, allow, e.obs.Logger("catalog"), e.obs.Metrics("catalog")),
		Query:   catalog.Query(cfg.Portal.Organism),
		Locker:  lm,
		Fetcher: service.NewFetchEngine(portal, lm, cfg.Retry, cfg.Portal.AttemptTimeout, e.obs.Logger("fetch"), e.obs.Metrics("fetch")),
		Mirror:  mirror,
		Converter: convert.NewDispatcher(
			execadapter.NewRunner(), lm, cfg.Convert, cfg.Fetch.Suffix,
			e.obs.Logger("convert"), e.obs.Metrics("convert"),
		),
		Retry:   cfg.Retry,
		Logger:  e.obs.Logger("pipeline"),
		Metrics: e.obs.Metrics("pipeline"),
	}), nil
}

func printReport(out io.Writer, r *domain.FetchReport) {
	fmt.Fprintf(out, "run %s\n", r.RunID)
	fmt.Fprintf(out, "  listed:     %d\n", r.Listed)
	fmt.Fprintf(out, "  current:    %d\n", r.Current)
	fmt.Fprintf(out, "  downloaded: %d\n", r.Downloaded)
	fmt.Fprintf(out, "  mirrored:   %d\n", r.Mirrored)
	fmt.Fprintf(out, "  converted:  %d\n", len(r.Converted))
	for _, name := range r.Failed {
		fmt.Fprintf(out, "  failed:     %s\n", name)
	}
}
