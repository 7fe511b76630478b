package reporting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlet-eval/gauntlet/stats"
	"github.com/gauntlet-eval/gauntlet/types"
)

func testRun() *types.Run {
	results := []types.CaseResult{
		{CaseName: "alpha", Status: types.CaseStatusPass, Passed: true, Score: 1.0,
			Details: map[string]any{"reason": "exact match"}, LatencyMS: 120, TokensIn: 10, TokensOut: 5},
		{CaseName: "beta", Status: types.CaseStatusFail, Score: 0.25,
			Details: map[string]any{"reason": "missing substring"}, LatencyMS: 95},
		{CaseName: "gamma", Status: types.CaseStatusTimeout,
			Details: map[string]any{"error": "agent call timed out after 30s"}},
	}
	return &types.Run{
		ID:        "run-123",
		Suite:     "smoke",
		AgentRef:  "echo",
		Results:   results,
		Summary:   types.Summarize(results),
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFormatRunText(t *testing.T) {
	var buf bytes.Buffer
	FormatRunText(&buf, testRun())
	out := buf.String()

	assert.Contains(t, out, "run-123")
	assert.Contains(t, out, "smoke")
	for _, name := range []string{"alpha", "beta", "gamma"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "missing substring")
	assert.Contains(t, out, "1 passed, 2 failed")
}

func TestFormatRunsTable(t *testing.T) {
	var buf bytes.Buffer
	FormatRunsTable(&buf, []*types.Run{testRun()})
	out := buf.String()

	assert.Contains(t, out, "run-123")
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "33%")
}

func TestFormatComparisonText(t *testing.T) {
	report := &stats.ComparisonReport{
		Cases: []stats.CaseComparison{
			{
				CaseName: "alpha",
				Status:   stats.StatusRegressed,
				Base:     &stats.CaseStats{CaseName: "alpha", N: 3, Mean: 1.0},
				Target:   &stats.CaseStats{CaseName: "alpha", N: 3, Mean: 0.2},
				MeanDiff: -0.8,
				PValue:   0.012,
				CILower:  -1.1,
				CIUpper:  -0.5,
				Tested:   true, Significant: true,
			},
			{
				CaseName: "solo",
				Status:   stats.StatusUnchanged,
				Base:     &stats.CaseStats{CaseName: "solo", N: 1, Mean: 1.0},
				Target:   &stats.CaseStats{CaseName: "solo", N: 1, Mean: 1.0},
			},
		},
		Summary: map[string]int{
			string(stats.StatusRegressed): 1,
			string(stats.StatusUnchanged): 1,
		},
		PassRateDelta: -0.4,
	}

	var buf bytes.Buffer
	FormatComparisonText(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "regressed")
	assert.Contains(t, out, "0.0120")
	assert.Contains(t, out, "0 improved, 1 regressed, 1 unchanged")
	// Untested rows render placeholders, not fake p-values.
	assert.True(t, strings.Contains(out, "-"))
}

func TestFormatComparisonJSON(t *testing.T) {
	report := &stats.ComparisonReport{
		Summary: map[string]int{string(stats.StatusUnchanged): 1},
		Alpha:   0.05,
	}
	var buf bytes.Buffer
	require.NoError(t, FormatComparisonJSON(&buf, report))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 0.05, decoded["alpha"])
}

func TestFormatRunJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatRunJSON(&buf, testRun()))

	var decoded types.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-123", decoded.ID)
	assert.Len(t, decoded.Results, 3)
}
