package types

import (
	"time"

	"github.com/google/uuid"
)

// CaseStatus represents the terminal state of a single case execution.
type CaseStatus string

const (
	CaseStatusPass      CaseStatus = "pass"
	CaseStatusFail      CaseStatus = "fail"
	CaseStatusTimeout   CaseStatus = "timeout"
	CaseStatusCancelled CaseStatus = "cancelled"
	CaseStatusError     CaseStatus = "error"
)

// ToolCall records a single tool invocation made by the agent.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// AgentResult is what the agent under test returns for one input.
type AgentResult struct {
	Output    string         `json:"output"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	TokensIn  int            `json:"tokens_in"`
	TokensOut int            `json:"tokens_out"`
	CostUSD   *float64       `json:"cost_usd,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// GradeResult is the outcome of grading an agent's output for one case.
type GradeResult struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// CaseResult is the complete outcome of one case: the agent's response plus
// its grade. Failures of any kind (agent error, timeout, grader error) are
// encoded here rather than propagated, so a run always has one CaseResult
// per case.
type CaseResult struct {
	CaseName    string         `json:"case_name"`
	Status      CaseStatus     `json:"status"`
	Passed      bool           `json:"passed"`
	Score       float64        `json:"score"`
	Details     map[string]any `json:"details,omitempty"`
	AgentOutput string         `json:"agent_output"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	TokensIn    int            `json:"tokens_in"`
	TokensOut   int            `json:"tokens_out"`
	CostUSD     *float64       `json:"cost_usd,omitempty"`
	LatencyMS   int64          `json:"latency_ms"`
}

// RunSummary aggregates a run's results.
type RunSummary struct {
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	PassRate     float64 `json:"pass_rate"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	TokensIn     int     `json:"total_tokens_in"`
	TokensOut    int     `json:"total_tokens_out"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Run captures one complete execution of a suite. Results are ordered by the
// suite's declared case order, independent of completion order, with exactly
// one entry per case.
type Run struct {
	ID        string         `json:"id"`
	Suite     string         `json:"suite"`
	AgentRef  string         `json:"agent_ref"`
	Config    map[string]any `json:"config,omitempty"`
	Results   []CaseResult   `json:"results"`
	Summary   RunSummary     `json:"summary"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRunID returns a fresh unique run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Summarize computes the aggregate summary for a set of case results.
func Summarize(results []CaseResult) RunSummary {
	s := RunSummary{Total: len(results)}
	var totalLatency int64
	for _, r := range results {
		if r.Passed {
			s.Passed++
		}
		if r.CostUSD != nil {
			s.TotalCostUSD += *r.CostUSD
		}
		s.TokensIn += r.TokensIn
		s.TokensOut += r.TokensOut
		totalLatency += r.LatencyMS
	}
	s.Failed = s.Total - s.Passed
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
		s.AvgLatencyMS = float64(totalLatency) / float64(s.Total)
	}
	return s
}
