package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlet-eval/gauntlet/types"
)

func runWithScores(id string, scores map[string]float64, order []string) *types.Run {
	run := &types.Run{ID: id, Suite: "s"}
	for _, name := range order {
		score := scores[name]
		run.Results = append(run.Results, types.CaseResult{
			CaseName: name,
			Score:    score,
			Passed:   score >= 1.0,
			Status:   types.CaseStatusPass,
		})
	}
	run.Summary = types.Summarize(run.Results)
	return run
}

func TestCompareRunsRegression(t *testing.T) {
	order := []string{"A", "B", "C"}
	base := []*types.Run{
		runWithScores("b1", map[string]float64{"A": 1, "B": 1, "C": 1}, order),
		runWithScores("b2", map[string]float64{"A": 1, "B": 1, "C": 1}, order),
	}
	target := []*types.Run{
		runWithScores("t1", map[string]float64{"A": 1, "B": 0, "C": 1}, order),
		runWithScores("t2", map[string]float64{"A": 1, "B": 0, "C": 1}, order),
	}

	report := CompareRuns(base, target, 0.05, 0.0)
	require.Len(t, report.Cases, 3)
	assert.Equal(t, "0 improved, 1 regressed, 2 unchanged", report.SummaryLine())

	rows := make(map[string]CaseComparison)
	for _, c := range report.Cases {
		rows[c.CaseName] = c
	}

	b := rows["B"]
	assert.Equal(t, StatusRegressed, b.Status)
	assert.InDelta(t, -1.0, b.MeanDiff, 1e-9)
	assert.True(t, b.Significant)
	assert.Less(t, b.PValue, 0.05)

	for _, name := range []string{"A", "C"} {
		row := rows[name]
		assert.Equal(t, StatusUnchanged, row.Status, name)
		assert.Zero(t, row.MeanDiff, name)
		assert.False(t, row.Significant, name)
	}

	// Rows follow the suite's declared order.
	assert.Equal(t, "A", report.Cases[0].CaseName)
	assert.Equal(t, "B", report.Cases[1].CaseName)
	assert.Equal(t, "C", report.Cases[2].CaseName)

	// Pass-rate delta is observational: B went from passing to failing.
	assert.InDelta(t, -1.0/3.0, report.PassRateDelta, 1e-9)

	regs := report.Regressions()
	require.Len(t, regs, 1)
	assert.Equal(t, "B", regs[0].CaseName)
}

func TestCompareRunsSingleSampleDescriptiveOnly(t *testing.T) {
	order := []string{"A"}
	base := []*types.Run{runWithScores("b1", map[string]float64{"A": 1}, order)}
	target := []*types.Run{runWithScores("t1", map[string]float64{"A": 0}, order)}

	report := CompareRuns(base, target, 0.05, 0.0)
	require.Len(t, report.Cases, 1)

	row := report.Cases[0]
	assert.False(t, row.Tested)
	assert.False(t, row.Significant)
	assert.Equal(t, 1.0, row.PValue)
	assert.InDelta(t, -1.0, row.MeanDiff, 1e-9)
	// With no significance the drop cannot be classified as a regression.
	assert.Equal(t, StatusUnchanged, row.Status)
}

func TestCompareRunsImproved(t *testing.T) {
	order := []string{"A"}
	base := []*types.Run{
		runWithScores("b1", map[string]float64{"A": 0}, order),
		runWithScores("b2", map[string]float64{"A": 0}, order),
	}
	target := []*types.Run{
		runWithScores("t1", map[string]float64{"A": 1}, order),
		runWithScores("t2", map[string]float64{"A": 1}, order),
	}

	report := CompareRuns(base, target, 0.05, 0.0)
	assert.Equal(t, StatusImproved, report.Cases[0].Status)
	assert.Equal(t, 1, report.Summary[string(StatusImproved)])
}

func TestCompareRunsRegressionThreshold(t *testing.T) {
	order := []string{"A"}
	base := []*types.Run{
		runWithScores("b1", map[string]float64{"A": 1.0}, order),
		runWithScores("b2", map[string]float64{"A": 1.0}, order),
	}
	target := []*types.Run{
		runWithScores("t1", map[string]float64{"A": 0.9}, order),
		runWithScores("t2", map[string]float64{"A": 0.9}, order),
	}

	// Drop of 0.1 is significant but below a 0.2 threshold.
	report := CompareRuns(base, target, 0.05, 0.2)
	row := report.Cases[0]
	assert.True(t, row.Significant)
	assert.Equal(t, StatusUnchanged, row.Status)

	report = CompareRuns(base, target, 0.05, 0.05)
	assert.Equal(t, StatusRegressed, report.Cases[0].Status)
}

func TestCompareRunsNewAndRemovedCases(t *testing.T) {
	base := []*types.Run{runWithScores("b1", map[string]float64{"old": 1, "both": 1}, []string{"old", "both"})}
	target := []*types.Run{runWithScores("t1", map[string]float64{"both": 1, "fresh": 1}, []string{"both", "fresh"})}

	report := CompareRuns(base, target, 0.05, 0.0)
	require.Len(t, report.Cases, 3)

	rows := make(map[string]CaseComparison)
	for _, c := range report.Cases {
		rows[c.CaseName] = c
	}
	assert.Equal(t, StatusRemoved, rows["old"].Status)
	assert.Equal(t, StatusNew, rows["fresh"].Status)
	assert.Nil(t, rows["old"].Target)
	assert.Nil(t, rows["fresh"].Base)
	assert.Equal(t, 1, report.Summary[string(StatusNew)])
	assert.Equal(t, 1, report.Summary[string(StatusRemoved)])
}
