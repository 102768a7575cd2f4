package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/registry"
)

type listOptions struct {
	module string
	kind   string
	errors bool
	json   bool
}

// unitEntry is one unit line of the listing
type unitEntry struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	State   string   `json:"state"`
	Types   []string `json:"types"`
	Error   string   `json:"error,omitempty"`
	Enabled bool     `json:"enabled"`
}

func newListCommand(opts *globalOptions) *cobra.Command {
	lo := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the units of every loaded module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, lo)
		},
	}
	cmd.Flags().StringVar(&lo.module, "module", "", "Only list units of this module")
	cmd.Flags().StringVar(&lo.kind, "kind", "", "Filter by kind (node, plugin)")
	cmd.Flags().BoolVar(&lo.errors, "errors", false, "Only list units that failed to load")
	cmd.Flags().BoolVar(&lo.json, "json", false, "Output in JSON format")
	return cmd
}

func (lo *listOptions) predicates() ([]registry.UnitPredicate, error) {
	var preds []registry.UnitPredicate
	if lo.module != "" {
		preds = append(preds, registry.InModule(lo.module))
	}
	switch descriptor.Kind(lo.kind) {
	case "":
	case descriptor.KindNode, descriptor.KindPlugin:
		preds = append(preds, registry.OfKind(descriptor.Kind(lo.kind)))
	default:
		return nil, fmt.Errorf("invalid kind %q (must be node or plugin)", lo.kind)
	}
	if lo.errors {
		preds = append(preds, registry.HasError)
	}
	return preds, nil
}

func runList(cmd *cobra.Command, opts *globalOptions, lo *listOptions) error {
	preds, err := lo.predicates()
	if err != nil {
		return err
	}

	a, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.load(cmd.Context()); err != nil {
		return err
	}

	units := a.registry.ListUnits(preds...)
	entries := make([]unitEntry, 0, len(units))
	for _, u := range units {
		entries = append(entries, newUnitEntry(u))
	}

	out := cmd.OutOrStdout()
	if lo.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No units found.")
		return nil
	}
	printUnits(out, entries)
	return nil
}

func newUnitEntry(u *descriptor.Unit) unitEntry {
	e := unitEntry{
		ID:      u.ID,
		Kind:    string(u.Kind),
		Types:   u.Types,
		Enabled: u.Enabled,
	}
	switch {
	case u.Err != nil:
		e.State = "error"
		e.Error = u.Err.Message
	case !u.Enabled:
		e.State = "disabled"
	case u.Loaded:
		e.State = "loaded"
	default:
		e.State = "pending"
	}
	return e
}

func printUnits(out io.Writer, entries []unitEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tKIND\tSTATE\tTYPES")
	for _, e := range entries {
		detail := strings.Join(e.Types, ",")
		if e.Error != "" {
			detail = e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Kind, e.State, detail)
	}
	w.Flush()
}
