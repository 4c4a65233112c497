package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	execadapter "github.com/shamanpi/BAD-Mutations/internal/adapters/exec"
	"github.com/shamanpi/BAD-Mutations/internal/convert"
	"github.com/shamanpi/BAD-Mutations/internal/layout"
	"github.com/shamanpi/BAD-Mutations/shared/config"
)

type convertCmd struct {
	base      string
	converter string
	out       io.Writer
}

func newConvertCmd(out io.Writer, load loader) *cobra.Command {
	c := &convertCmd{out: out}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "build BLAST databases from every archive under base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(c.apply)
			if err != nil {
				return err
			}
			defer e.close()
			return c.run(cmd, e)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&c.base, "base", "b", "", "base directory for the archives (FETCH_BASE_DIR)")
	f.StringVar(&c.converter, "converter", "", "path to makeblastdb (CONVERT_CONVERTER)")
	return cmd
}

func (c *convertCmd) apply(cfg *config.Config) {
	if c.base != "" {
		cfg.Fetch.BaseDir = c.base
	}
	if c.converter != "" {
		cfg.Convert.Converter = c.converter
	}
}

func (c *convertCmd) run(cmd *cobra.Command, e *env) error {
	lm, err := layout.NewManager(e.cfg.Fetch.BaseDir)
	if err != nil {
		return err
	}
	defer e.pushMetrics(cmd)

	d := convert.NewDispatcher(
		execadapter.NewRunner(), lm, e.cfg.Convert, e.cfg.Fetch.Suffix,
		e.obs.Logger("convert"), e.obs.Metrics("convert"),
	)
	results, err := d.Convert(cmd.Context(), nil)
	for _, r := range results {
		status := "ok"
		if r.ExitCode != 0 {
			status = fmt.Sprintf("exit %d", r.ExitCode)
		}
		fmt.Fprintf(c.out, "%s\t%s\n", r.Database, status)
	}
	fmt.Fprintf(c.out, "%d databases\n", len(results))
	return err
}
