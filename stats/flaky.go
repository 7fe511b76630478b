package stats

import (
	"math"
	"sort"

	"github.com/gauntlet-eval/gauntlet/types"
)

// MultiRunResult aggregates one case's outcomes across repeated runs of the
// same suite, for detecting non-deterministic (flaky) cases.
type MultiRunResult struct {
	CaseName string `json:"case_name"`
	Runs     int    `json:"runs"`
	Passed   int    `json:"passed"`

	PassRate    float64   `json:"pass_rate"`
	MeanScore   float64   `json:"mean_score"`
	StddevScore float64   `json:"stddev_score"`
	Scores      []float64 `json:"scores"`

	// Consistency peaks at 1.0 when every run agrees (all pass or all fail)
	// and bottoms out at 0.0 for a 50/50 split.
	Consistency float64 `json:"consistency"`
	Flaky       bool    `json:"flaky"`
	Quarantined bool    `json:"quarantined"`
}

// MultiRunReport covers all cases across repeated runs.
type MultiRunReport struct {
	Cases       []MultiRunResult `json:"cases"`
	RunsPerCase int              `json:"runs_per_case"`
	FlakyCount  int              `json:"flaky_count"`
	Quarantined int              `json:"quarantined_count"`
}

// QuarantineConfig bounds the failure-rate band treated as flaky rather than
// simply broken.
type QuarantineConfig struct {
	MinFailRate float64
	MaxFailRate float64
	MinRuns     int
}

// DefaultQuarantineConfig mirrors the conventional 30-70% flaky band.
func DefaultQuarantineConfig() QuarantineConfig {
	return QuarantineConfig{MinFailRate: 0.3, MaxFailRate: 0.7, MinRuns: 3}
}

// AggregateMultiRun reduces one case's results from repeated runs.
func AggregateMultiRun(caseName string, results []types.CaseResult) MultiRunResult {
	out := MultiRunResult{CaseName: caseName, Runs: len(results)}
	if out.Runs == 0 {
		return out
	}

	for _, r := range results {
		if r.Passed {
			out.Passed++
		}
		out.Scores = append(out.Scores, r.Score)
	}
	out.PassRate = float64(out.Passed) / float64(out.Runs)

	cs := ComputeStats(caseName, out.Scores)
	out.MeanScore = cs.Mean
	out.StddevScore = cs.Stddev

	out.Consistency = math.Max(0, 1-4*out.PassRate*(1-out.PassRate))
	out.Flaky = out.Passed > 0 && out.Passed < out.Runs
	return out
}

// ShouldQuarantine reports whether a case's failure rate sits inside the
// configured flaky band with enough runs to judge.
func ShouldQuarantine(r MultiRunResult, cfg QuarantineConfig) bool {
	if r.Runs < cfg.MinRuns {
		return false
	}
	failRate := 1 - r.PassRate
	return failRate >= cfg.MinFailRate && failRate <= cfg.MaxFailRate
}

// StatisticalPass applies a pass-rate criterion instead of all-runs-pass.
func StatisticalPass(r MultiRunResult, requiredPassRate float64) bool {
	return r.PassRate >= requiredPassRate
}

// BuildMultiRunReport aggregates grouped per-case results from repeated runs.
func BuildMultiRunReport(byCase map[string][]types.CaseResult, runsPerCase int, cfg QuarantineConfig) *MultiRunReport {
	report := &MultiRunReport{RunsPerCase: runsPerCase}

	names := make([]string, 0, len(byCase))
	for name := range byCase {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		agg := AggregateMultiRun(name, byCase[name])
		agg.Quarantined = ShouldQuarantine(agg, cfg)
		if agg.Flaky {
			report.FlakyCount++
		}
		if agg.Quarantined {
			report.Quarantined++
		}
		report.Cases = append(report.Cases, agg)
	}
	return report
}
