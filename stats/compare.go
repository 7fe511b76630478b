package stats

import (
	"fmt"
	"math"

	"github.com/gauntlet-eval/gauntlet/types"
)

// ChangeStatus classifies a case's movement between two run groups.
type ChangeStatus string

const (
	StatusImproved  ChangeStatus = "improved"
	StatusRegressed ChangeStatus = "regressed"
	StatusUnchanged ChangeStatus = "unchanged"
	StatusNew       ChangeStatus = "new"
	StatusRemoved   ChangeStatus = "removed"
)

// CaseStats holds descriptive statistics for one case across a run group.
type CaseStats struct {
	CaseName string    `json:"case_name"`
	N        int       `json:"n"`
	Mean     float64   `json:"mean"`
	Stddev   float64   `json:"stddev"`
	Scores   []float64 `json:"scores"`
}

// CaseComparison is one row of a comparison report.
type CaseComparison struct {
	CaseName string       `json:"case_name"`
	Status   ChangeStatus `json:"status"`
	Base     *CaseStats   `json:"base,omitempty"`
	Target   *CaseStats   `json:"target,omitempty"`
	MeanDiff float64      `json:"mean_diff"`
	TStat    float64      `json:"t_stat"`
	PValue   float64      `json:"p_value"`
	CILower  float64      `json:"ci_lower"`
	CIUpper  float64      `json:"ci_upper"`

	// Tested is false when either group has fewer than two samples; such
	// rows are descriptive only and never significant.
	Tested      bool `json:"tested"`
	Significant bool `json:"significant"`
}

// ComparisonReport is the full output of comparing two run groups.
type ComparisonReport struct {
	BaseRunIDs   []string         `json:"base_run_ids"`
	TargetRunIDs []string         `json:"target_run_ids"`
	Cases        []CaseComparison `json:"cases"`
	Summary      map[string]int   `json:"summary"`
	Alpha        float64          `json:"alpha"`
	Threshold    float64          `json:"regression_threshold"`

	// Observational deltas (target minus base); reported, never tested.
	PassRateDelta   float64 `json:"pass_rate_delta"`
	CostDelta       float64 `json:"cost_delta_usd"`
	AvgLatencyDelta float64 `json:"avg_latency_delta_ms"`
}

// Regressions returns the rows flagged as regressed.
func (r *ComparisonReport) Regressions() []CaseComparison {
	var out []CaseComparison
	for _, c := range r.Cases {
		if c.Status == StatusRegressed {
			out = append(out, c)
		}
	}
	return out
}

// SummaryLine renders the improved/regressed/unchanged counts.
func (r *ComparisonReport) SummaryLine() string {
	return fmt.Sprintf("%d improved, %d regressed, %d unchanged",
		r.Summary[string(StatusImproved)],
		r.Summary[string(StatusRegressed)],
		r.Summary[string(StatusUnchanged)])
}

// ComputeStats summarizes a sample of scores, dropping non-finite values.
func ComputeStats(caseName string, scores []float64) *CaseStats {
	clean := make([]float64, 0, len(scores))
	for _, s := range scores {
		if !math.IsNaN(s) && !math.IsInf(s, 0) {
			clean = append(clean, s)
		}
	}

	cs := &CaseStats{CaseName: caseName, N: len(clean), Scores: clean}
	if cs.N == 0 {
		return cs
	}

	var sum float64
	for _, s := range clean {
		sum += s
	}
	cs.Mean = sum / float64(cs.N)

	if cs.N >= 2 {
		var sq float64
		for _, s := range clean {
			d := s - cs.Mean
			sq += d * d
		}
		cs.Stddev = math.Sqrt(sq / float64(cs.N-1))
	}
	return cs
}

// CompareRuns compares a baseline group of runs against a target group,
// case by case. Every case found in either group produces exactly one row.
// A regression requires statistical significance at alpha AND a mean score
// drop larger than threshold.
func CompareRuns(baseRuns, targetRuns []*types.Run, alpha, threshold float64) *ComparisonReport {
	baseScores, baseOrder := gatherCaseScores(baseRuns)
	targetScores, targetOrder := gatherCaseScores(targetRuns)

	// Base order first, then target-only cases, so rows follow suite order.
	order := baseOrder
	for _, name := range targetOrder {
		if _, ok := baseScores[name]; !ok {
			order = append(order, name)
		}
	}

	report := &ComparisonReport{
		Alpha:     alpha,
		Threshold: threshold,
		Summary: map[string]int{
			string(StatusImproved):  0,
			string(StatusRegressed): 0,
			string(StatusUnchanged): 0,
			string(StatusNew):       0,
			string(StatusRemoved):   0,
		},
	}
	for _, r := range baseRuns {
		report.BaseRunIDs = append(report.BaseRunIDs, r.ID)
	}
	for _, r := range targetRuns {
		report.TargetRunIDs = append(report.TargetRunIDs, r.ID)
	}

	for _, name := range order {
		b, hasBase := baseScores[name]
		t, hasTarget := targetScores[name]

		var row CaseComparison
		switch {
		case !hasBase:
			row = CaseComparison{
				CaseName: name,
				Status:   StatusNew,
				Target:   ComputeStats(name, t),
				PValue:   1,
			}
		case !hasTarget:
			row = CaseComparison{
				CaseName: name,
				Status:   StatusRemoved,
				Base:     ComputeStats(name, b),
				PValue:   1,
			}
		default:
			row = compareCase(name, b, t, alpha, threshold)
		}

		report.Summary[string(row.Status)]++
		report.Cases = append(report.Cases, row)
	}

	report.PassRateDelta = meanSummary(targetRuns, passRate) - meanSummary(baseRuns, passRate)
	report.CostDelta = meanSummary(targetRuns, totalCost) - meanSummary(baseRuns, totalCost)
	report.AvgLatencyDelta = meanSummary(targetRuns, avgLatency) - meanSummary(baseRuns, avgLatency)

	return report
}

func compareCase(name string, baseScores, targetScores []float64, alpha, threshold float64) CaseComparison {
	base := ComputeStats(name, baseScores)
	target := ComputeStats(name, targetScores)
	meanDiff := target.Mean - base.Mean

	row := CaseComparison{
		CaseName: name,
		Base:     base,
		Target:   target,
		MeanDiff: meanDiff,
		PValue:   1,
		CILower:  meanDiff,
		CIUpper:  meanDiff,
		Status:   StatusUnchanged,
	}

	if base.N < 2 || target.N < 2 {
		// Too few samples for a significance test: descriptive row only.
		return row
	}

	row.Tested = true
	row.TStat, row.PValue = Welch(target.Mean, target.Stddev, target.N, base.Mean, base.Stddev, base.N)
	row.CILower, row.CIUpper = ConfidenceInterval(target.Mean, target.Stddev, target.N, base.Mean, base.Stddev, base.N, alpha)
	row.Significant = row.PValue < alpha

	switch {
	case row.Significant && meanDiff < -threshold:
		row.Status = StatusRegressed
	case row.Significant && meanDiff > threshold:
		row.Status = StatusImproved
	}
	return row
}

// gatherCaseScores collects per-case score samples across a run group,
// remembering first-seen case order.
func gatherCaseScores(runs []*types.Run) (map[string][]float64, []string) {
	scores := make(map[string][]float64)
	var order []string
	for _, run := range runs {
		for _, res := range run.Results {
			if _, seen := scores[res.CaseName]; !seen {
				order = append(order, res.CaseName)
			}
			scores[res.CaseName] = append(scores[res.CaseName], res.Score)
		}
	}
	return scores, order
}

func meanSummary(runs []*types.Run, f func(*types.Run) float64) float64 {
	if len(runs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range runs {
		sum += f(r)
	}
	return sum / float64(len(runs))
}

func passRate(r *types.Run) float64   { return r.Summary.PassRate }
func totalCost(r *types.Run) float64  { return r.Summary.TotalCostUSD }
func avgLatency(r *types.Run) float64 { return r.Summary.AvgLatencyMS }
