package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
)

type scanOptions struct {
	json   bool
	strict bool
}

// moduleSummary is one module line of the scan report
type moduleSummary struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Units   int    `json:"units"`
	Loaded  int    `json:"loaded"`
	Errored int    `json:"errored"`
	Error   string `json:"error,omitempty"`
}

type rejectionSummary struct {
	Module string `json:"module"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type scanReport struct {
	Modules  []moduleSummary    `json:"modules"`
	Rejected []rejectionSummary `json:"rejected"`
}

func newScanCommand(opts *globalOptions) *cobra.Command {
	so := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a load pass and report what was loaded",
		Long: `Scan every configured root, load all modules found and print a per-module
summary together with the modules that were rejected. The enable state is
persisted to the configured store as a normal boot would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, so)
		},
	}
	cmd.Flags().BoolVar(&so.json, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&so.strict, "strict", false, "Fail when any unit or module could not be loaded")
	return cmd
}

func runScan(cmd *cobra.Command, opts *globalOptions, so *scanOptions) error {
	a, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.load(cmd.Context()); err != nil {
		return err
	}

	report := buildScanReport(a.registry.ListModules(), a.registry.Rejected())
	out := cmd.OutOrStdout()
	if so.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printScanReport(out, report)
	}

	if so.strict {
		failed := len(report.Rejected)
		for _, m := range report.Modules {
			failed += m.Errored
		}
		if failed > 0 {
			return fmt.Errorf("%d units or modules failed to load", failed)
		}
	}
	return nil
}

func buildScanReport(modules []*descriptor.Module, rejected []descriptor.Rejection) scanReport {
	report := scanReport{
		Modules:  make([]moduleSummary, 0, len(modules)),
		Rejected: make([]rejectionSummary, 0, len(rejected)),
	}
	for _, m := range modules {
		s := moduleSummary{Name: m.Name, Version: m.Version, Units: len(m.Units)}
		for _, u := range m.Units {
			if u.Loaded {
				s.Loaded++
			}
			if u.Err != nil {
				s.Errored++
			}
		}
		if m.Err != nil {
			s.Error = m.Err.Error()
		}
		report.Modules = append(report.Modules, s)
	}
	for _, r := range rejected {
		rs := rejectionSummary{Module: r.Module}
		if r.Reason != nil {
			rs.Code = descriptor.Code(r.Reason)
			rs.Reason = r.Reason.Error()
		}
		report.Rejected = append(report.Rejected, rs)
	}
	return report
}

func printScanReport(out io.Writer, report scanReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tVERSION\tUNITS\tLOADED\tERRORS")
	for _, m := range report.Modules {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", m.Name, m.Version, m.Units, m.Loaded, m.Errored)
	}
	w.Flush()

	if len(report.Rejected) == 0 {
		return
	}
	fmt.Fprintf(out, "\nRejected (%d):\n", len(report.Rejected))
	for _, r := range report.Rejected {
		fmt.Fprintf(out, "  %s: %s\n", r.Module, r.Reason)
	}
}
