package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	execadapter "github.com/shamanpi/BAD-Mutations/internal/adapters/exec"
	"github.com/shamanpi/BAD-Mutations/internal/setup"
	"github.com/shamanpi/BAD-Mutations/shared/config"
)

type setupCmd struct {
	base    string
	deps    string
	target  string
	evalue  float64
	missing float64
	config  string
	install bool
	out     io.Writer
}

func newSetupCmd(out io.Writer, load loader) *cobra.Command {
	s := &setupCmd{out: out}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "write the configuration file for the analysis pipeline",
		Long: `Look up the programs the analysis pipeline needs, optionally install the
missing ones, and write their paths and the analysis thresholds to a
KEY=value configuration file. An existing file is overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(func(cfg *config.Config) { s.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			defer e.close()
			return s.run(cmd, e)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&s.base, "base", "b", "", "base directory for the archives (FETCH_BASE_DIR)")
	f.StringVar(&s.deps, "deps", "", "directory for installed dependencies (SETUP_DEPS_DIR)")
	f.StringVarP(&s.target, "target", "t", "", "target species, left out of alignments (SETUP_TARGET_SPECIES)")
	f.Float64Var(&s.evalue, "evalue", 0, "maximum E-value for alignment hits (SETUP_EVAL_THRESHOLD)")
	f.Float64Var(&s.missing, "missing", 0, "maximum gap fraction per codon (SETUP_MISSING_THRESHOLD)")
	f.StringVarP(&s.config, "config", "c", "", "configuration file to write (SETUP_CONFIG_PATH)")
	f.BoolVar(&s.install, "install", false, "run the installer for missing programs")
	return cmd
}

func (s *setupCmd) apply(cmd *cobra.Command, cfg *config.Config) {
	if s.base != "" {
		cfg.Fetch.BaseDir = s.base
	}
	if s.deps != "" {
		cfg.Setup.DepsDir = s.deps
	}
	if s.target != "" {
		cfg.Setup.Target = s.target
	}
	if cmd.Flags().Changed("evalue") {
		cfg.Setup.EvalThreshold = s.evalue
	}
	if cmd.Flags().Changed("missing") {
		cfg.Setup.MissingThreshold = s.missing
	}
	if s.config != "" {
		cfg.Setup.ConfigPath = s.config
	}
}

func (s *setupCmd) run(cmd *cobra.Command, e *env) error {
	environment := setup.NewEnvironment(
		e.cfg.Setup, e.cfg.Fetch.BaseDir, execadapter.NewRunner(),
		e.obs.Logger("setup"), e.obs.Metrics("setup"),
	)
	rec, err := environment.Run(cmd.Context(), s.install)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "wrote %s\n", e.cfg.Setup.ConfigPath)
	if len(rec.MissingProgs) > 0 && !s.install {
		fmt.Fprintf(s.out, "missing programs: %v (rerun with --install to fetch them)\n", rec.MissingProgs)
	}
	return nil
}
