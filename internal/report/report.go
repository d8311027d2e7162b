// Package report renders a completed validation run as a human-readable
// table for the CLI "report" subcommand.
package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 100,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// WriteVRPs renders a table of every validated ROA payload.
func WriteVRPs(w io.Writer, vrps []store.VRP) error {
	table := newTable([]string{"Prefix", "Max Length", "ASN"}, w)
	for _, v := range vrps {
		if err := table.Append([]string{v.Prefix, fmt.Sprintf("%d", v.MaxLen), fmt.Sprintf("AS%d", v.ASN)}); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteChecks renders a table of every Check produced by a run, Rejects
// first (its descent-suppressing findings are the ones operators
// need to see first).
func WriteChecks(w io.Writer, checks check.List) error {
	table := newTable([]string{"Severity", "Location", "Key", "Params"}, w)

	ordered := make(check.List, 0, len(checks))
	ordered = append(ordered, checks.Rejects()...)
	ordered = append(ordered, checks.Warnings()...)

	for _, c := range ordered {
		if err := table.Append([]string{c.Severity.String(), string(c.Location), string(c.Key), joinParams(c.Params)}); err != nil {
			return err
		}
	}
	return table.Render()
}

// Summary is the aggregate counters a "report" subcommand prints above
// the detail tables.
type Summary struct {
	RunID    string
	VRPCount int
	Rejects  int
	Warnings int
}

// WriteSummary renders a single-row overview table.
func WriteSummary(w io.Writer, s Summary) error {
	table := newTable([]string{"Run ID", "VRPs", "Rejects", "Warnings"}, w)
	if err := table.Append([]string{s.RunID, fmt.Sprintf("%d", s.VRPCount), fmt.Sprintf("%d", s.Rejects), fmt.Sprintf("%d", s.Warnings)}); err != nil {
		return err
	}
	return table.Render()
}

func joinParams(params []string) string {
	if len(params) == 0 {
		return ""
	}
	out := params[0]
	for _, p := range params[1:] {
		out += ", " + p
	}
	return out
}
