package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dejo1307/edgezip/internal/archive"
	"github.com/dejo1307/edgezip/internal/graph"
)

func (a *app) newInspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect ARCHIVE",
		Short: "List the modules stored in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print modules as JSON")
	return cmd
}

type inspectRow struct {
	Specifier   string   `json:"specifier"`
	ContentType string   `json:"content_type"`
	Size        int      `json:"size"`
	SourceMap   int      `json:"source_map_size"`
	Deps        []string `json:"dependencies,omitempty"`
	Dependents  []string `json:"dependents,omitempty"`
}

func (a *app) runInspect(cmd *cobra.Command, ref string, asJSON bool) error {
	rc, err := a.openArchive(cmd, ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	arc, err := archive.ParseReader(cmd.Context(), rc)
	if err != nil {
		return err
	}

	g, err := arc.Graph()
	if err != nil {
		return err
	}

	rows := make([]inspectRow, 0, arc.Len())
	for _, spec := range arc.Specifiers() {
		m, _ := arc.Module(spec)
		ct, _ := m.Header(archive.HeaderContentType)
		rows = append(rows, inspectRow{
			Specifier:   spec,
			ContentType: ct,
			Size:        len(m.Content),
			SourceMap:   len(m.SourceMap),
			Deps:        edgeTargets(g.Dependencies(spec)),
			Dependents:  edgeTargets(g.Dependents(spec)),
		})
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SPECIFIER\tCONTENT-TYPE\tSIZE\tSOURCE MAP\tDEPS\tDEPENDENTS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", r.Specifier, r.ContentType, r.Size, r.SourceMap, len(r.Deps), len(r.Dependents))
	}
	return tw.Flush()
}

func edgeTargets(edges []graph.Edge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.Target)
	}
	sort.Strings(out)
	return out
}
