// Package reporting renders runs and comparison reports for the console.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/gauntlet-eval/gauntlet/stats"
	"github.com/gauntlet-eval/gauntlet/types"
)

// FormatRunText renders one run as a case-per-row table followed by a
// summary line.
func FormatRunText(w io.Writer, run *types.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Run %s (%s)", run.ID, run.Suite))

	t.AppendHeader(table.Row{"Case", "Status", "Score", "Latency", "Tokens", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Case", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Score", Align: text.AlignRight},
		{Name: "Latency", Align: text.AlignRight},
		{Name: "Tokens", Align: text.AlignRight},
		{Name: "Detail", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, res := range run.Results {
		t.AppendRow(table.Row{
			res.CaseName,
			statusString(res.Status),
			fmt.Sprintf("%.2f", res.Score),
			fmt.Sprintf("%dms", res.LatencyMS),
			res.TokensIn + res.TokensOut,
			detailString(res),
		})
	}

	s := run.Summary
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d cases", s.Total),
		fmt.Sprintf("%d passed, %d failed", s.Passed, s.Failed),
		fmt.Sprintf("%.0f%%", s.PassRate*100),
		fmt.Sprintf("%.0fms avg", s.AvgLatencyMS),
		s.TokensIn + s.TokensOut,
		fmt.Sprintf("$%.4f", s.TotalCostUSD),
	})
	t.Render()
}

// FormatRunsTable renders run headers, one row per run.
func FormatRunsTable(w io.Writer, runs []*types.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	t.AppendHeader(table.Row{"Run ID", "Suite", "Agent", "Cases", "Passed", "Pass Rate", "Cost", "Created"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Cases", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Pass Rate", Align: text.AlignRight},
		{Name: "Cost", Align: text.AlignRight},
	})

	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.Suite,
			run.AgentRef,
			run.Summary.Total,
			run.Summary.Passed,
			fmt.Sprintf("%.0f%%", run.Summary.PassRate*100),
			fmt.Sprintf("$%.4f", run.Summary.TotalCostUSD),
			run.CreatedAt.Format(time.RFC3339),
		})
	}
	t.Render()
}

// FormatComparisonText renders a comparison report: one row per case plus
// the observational deltas and the improved/regressed/unchanged tally.
func FormatComparisonText(w io.Writer, report *stats.ComparisonReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Comparison")

	t.AppendHeader(table.Row{"Case", "Status", "Base Mean", "Target Mean", "Diff", "p-value", "95% CI"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Case", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Base Mean", Align: text.AlignRight},
		{Name: "Target Mean", Align: text.AlignRight},
		{Name: "Diff", Align: text.AlignRight},
		{Name: "p-value", Align: text.AlignRight},
	})

	for _, c := range report.Cases {
		t.AppendRow(table.Row{
			c.CaseName,
			changeString(c),
			meanString(c.Base),
			meanString(c.Target),
			fmt.Sprintf("%+.3f", c.MeanDiff),
			pValueString(c),
			ciString(c),
		})
	}
	t.Render()

	fmt.Fprintf(w, "\n%s\n", report.SummaryLine())
	fmt.Fprintf(w, "pass rate %+.3f, cost %+.4f USD, latency %+.0fms (target minus base)\n",
		report.PassRateDelta, report.CostDelta, report.AvgLatencyDelta)
}

// FormatComparisonJSON writes the report as indented JSON.
func FormatComparisonJSON(w io.Writer, report *stats.ComparisonReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// FormatRunJSON writes the run as indented JSON.
func FormatRunJSON(w io.Writer, run *types.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

func statusString(status types.CaseStatus) string {
	switch status {
	case types.CaseStatusPass:
		return text.FgGreen.Sprint("pass")
	case types.CaseStatusFail:
		return text.FgRed.Sprint("fail")
	case types.CaseStatusTimeout:
		return text.FgYellow.Sprint("timeout")
	case types.CaseStatusCancelled:
		return text.FgYellow.Sprint("cancelled")
	default:
		return text.FgRed.Sprint(string(status))
	}
}

func changeString(c stats.CaseComparison) string {
	switch c.Status {
	case stats.StatusImproved:
		return text.FgGreen.Sprint("improved")
	case stats.StatusRegressed:
		return text.FgRed.Sprint("regressed")
	default:
		return string(c.Status)
	}
}

func detailString(res types.CaseResult) string {
	if res.Details == nil {
		return ""
	}
	if v, ok := res.Details["error"]; ok {
		return fmt.Sprint(v)
	}
	if v, ok := res.Details["reason"]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func meanString(s *stats.CaseStats) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f (n=%d)", s.Mean, s.N)
}

func pValueString(c stats.CaseComparison) string {
	if !c.Tested {
		return "-"
	}
	return fmt.Sprintf("%.4f", c.PValue)
}

func ciString(c stats.CaseComparison) string {
	if !c.Tested {
		return "-"
	}
	return fmt.Sprintf("[%+.3f, %+.3f]", c.CILower, c.CIUpper)
}
