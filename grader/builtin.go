package grader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gauntlet-eval/gauntlet/types"
)

// exactGrader compares output to expected["output"] byte-for-byte, or
// case-insensitively when configured with ignore_case.
type exactGrader struct {
	ignoreCase bool
}

func newExact(cfg map[string]any) (Grader, error) {
	ignoreCase, _ := cfg["ignore_case"].(bool)
	return &exactGrader{ignoreCase: ignoreCase}, nil
}

func (g *exactGrader) Grade(c *types.Case, result *types.AgentResult) (types.GradeResult, error) {
	expected, _ := c.Expected["output"].(string)
	actual := result.Output

	matched := actual == expected
	if g.ignoreCase {
		matched = strings.EqualFold(actual, expected)
	}

	if matched {
		return types.GradeResult{Passed: true, Score: 1.0, Reason: "exact match"}, nil
	}
	return types.GradeResult{
		Score:  0.0,
		Reason: fmt.Sprintf("expected %q, got %q", expected, actual),
	}, nil
}

// containsGrader checks that every substring in expected["output_contains"]
// appears in the output. Score is the fraction of substrings found.
type containsGrader struct{}

func newContains(cfg map[string]any) (Grader, error) {
	return &containsGrader{}, nil
}

func (g *containsGrader) Grade(c *types.Case, result *types.AgentResult) (types.GradeResult, error) {
	substrings := toStringSlice(c.Expected["output_contains"])
	if len(substrings) == 0 {
		return types.GradeResult{Passed: true, Score: 1.0, Reason: "no substrings to check"}, nil
	}

	var missing []string
	found := 0
	for _, s := range substrings {
		if strings.Contains(result.Output, s) {
			found++
		} else {
			missing = append(missing, s)
		}
	}

	score := float64(found) / float64(len(substrings))
	if len(missing) == 0 {
		return types.GradeResult{Passed: true, Score: score, Reason: "all substrings found"}, nil
	}
	return types.GradeResult{
		Score:  score,
		Reason: fmt.Sprintf("missing: %v", missing),
	}, nil
}

// regexGrader matches the output against expected["pattern"]. An invalid
// pattern is a failed grade, not an error: a bad case definition should not
// abort the run.
type regexGrader struct{}

func newRegex(cfg map[string]any) (Grader, error) {
	return &regexGrader{}, nil
}

func (g *regexGrader) Grade(c *types.Case, result *types.AgentResult) (types.GradeResult, error) {
	pattern, _ := c.Expected["pattern"].(string)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return types.GradeResult{
			Score:  0.0,
			Reason: fmt.Sprintf("invalid regex: %v", err),
		}, nil
	}

	if re.MatchString(result.Output) {
		return types.GradeResult{Passed: true, Score: 1.0, Reason: "pattern matched"}, nil
	}
	return types.GradeResult{
		Score:  0.0,
		Reason: fmt.Sprintf("pattern %q not found in output", pattern),
	}, nil
}

// toolCheckGrader checks that every tool named in expected["tools_called"]
// was invoked, in any order. Score is the fraction of expected tools seen.
type toolCheckGrader struct{}

func newToolCheck(cfg map[string]any) (Grader, error) {
	return &toolCheckGrader{}, nil
}

func (g *toolCheckGrader) Grade(c *types.Case, result *types.AgentResult) (types.GradeResult, error) {
	expected := toStringSlice(c.Expected["tools_called"])
	if len(expected) == 0 {
		return types.GradeResult{Passed: true, Score: 1.0, Reason: "no tools to check"}, nil
	}

	called := make(map[string]bool, len(result.ToolCalls))
	for _, tc := range result.ToolCalls {
		called[tc.Name] = true
	}

	var missing []string
	found := 0
	for _, name := range expected {
		if called[name] {
			found++
		} else {
			missing = append(missing, name)
		}
	}

	score := float64(found) / float64(len(expected))
	if len(missing) == 0 {
		return types.GradeResult{Passed: true, Score: score, Reason: "all expected tools called"}, nil
	}
	return types.GradeResult{
		Score:  score,
		Reason: fmt.Sprintf("tools not called: %v", missing),
	}, nil
}

// toStringSlice coerces a decoded YAML/JSON list into strings, skipping
// non-string elements.
func toStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
