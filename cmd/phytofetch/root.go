package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability"
	"github.com/shamanpi/BAD-Mutations/shared/observability/metrics"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

const rootHelp = `phytofetch keeps a local mirror of Phytozome CDS archives from the JGI
Genome Portal, verifies them against the portal's MD5 checksums and turns
them into BLAST nucleotide databases.

Configuration is read from the environment and from .env files; flags
override it.`

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose bool
	envFile string
}

// env is what a subcommand runs with once configuration is loaded.
type env struct {
	cfg *config.Config
	obs *observability.DefaultProvider
	log types.Logger
	out io.Writer
}

func newRootCmd(out, errOut io.Writer, provider *config.Provider) *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "phytofetch",
		Short:         "fetch, verify and convert Phytozome CDS archives",
		Long:          rootHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&g.envFile, "env-file", "", "additional env file to load after .env")

	load := func(override func(*config.Config)) (*env, error) {
		return loadEnv(g, provider, out, errOut, override)
	}

	cmd.AddCommand(
		newFetchCmd(out, load),
		newConvertCmd(out, load),
		newSetupCmd(out, load),
	)
	return cmd
}

type loader func(override func(*config.Config)) (*env, error)

// loadEnv loads configuration, applies flag overrides and sets up logging
// and metrics for one command.
func loadEnv(g *globalFlags, provider *config.Provider, out, errOut io.Writer, override func(*config.Config)) (*env, error) {
	var files []string
	if g.envFile != "" {
		files = append(files, g.envFile)
	}
	if err := provider.Load(files...); err != nil {
		return nil, err
	}
	cfg := *provider.MustGet()
	if override != nil {
		override(&cfg)
	}
	if g.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	obs := observability.NewProvider(&observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		LogOutput:   errOut,
		Registerer:  prometheus.NewRegistry(),
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})

	return &env{cfg: &cfg, obs: obs, log: obs.Logger("cli"), out: out}, nil
}

// pushMetrics publishes the run's metrics when a Pushgateway is configured.
func (e *env) pushMetrics(cmd *cobra.Command) {
	url := e.cfg.Observability.PushgatewayURL
	if url == "" {
		return
	}
	grouping := map[string]string{"base": filepath.Base(e.cfg.Fetch.BaseDir)}
	if err := metrics.Push(cmd.Context(), url, e.cfg.Observability.PushJob, e.obs.Gatherer(), grouping); err != nil {
		e.log.Warn(cmd.Context(), "Failed to push metrics", types.Fields{"error": err.Error()})
	}
}

func (e *env) close() {
	if err := e.obs.Close(); err != nil {
		fmt.Fprintf(e.out, "warning: %v\n", err)
	}
}
