package grader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlet-eval/gauntlet/types"
)

func grade(t *testing.T, name string, cfg map[string]any, c *types.Case, res *types.AgentResult) types.GradeResult {
	t.Helper()
	g, err := DefaultRegistry().Resolve(name, cfg)
	require.NoError(t, err)
	out, err := g.Grade(c, res)
	require.NoError(t, err)
	return out
}

func TestExactGrader(t *testing.T) {
	c := &types.Case{Name: "x", Expected: map[string]any{"output": "Hello"}}

	out := grade(t, "exact", nil, c, &types.AgentResult{Output: "Hello"})
	assert.True(t, out.Passed)
	assert.Equal(t, 1.0, out.Score)

	out = grade(t, "exact", nil, c, &types.AgentResult{Output: "hello"})
	assert.False(t, out.Passed)
	assert.Equal(t, 0.0, out.Score)

	out = grade(t, "exact", map[string]any{"ignore_case": true}, c, &types.AgentResult{Output: "hello"})
	assert.True(t, out.Passed)
}

func TestContainsGrader(t *testing.T) {
	c := &types.Case{
		Name:     "x",
		Expected: map[string]any{"output_contains": []any{"foo", "bar", "baz"}},
	}

	out := grade(t, "contains", nil, c, &types.AgentResult{Output: "foo and bar only"})
	assert.False(t, out.Passed)
	assert.InDelta(t, 2.0/3.0, out.Score, 1e-9)
	assert.Contains(t, out.Reason, "baz")

	out = grade(t, "contains", nil, c, &types.AgentResult{Output: "foo bar baz"})
	assert.True(t, out.Passed)
	assert.Equal(t, 1.0, out.Score)

	// No substrings configured passes trivially.
	empty := &types.Case{Name: "y", Expected: map[string]any{}}
	out = grade(t, "contains", nil, empty, &types.AgentResult{Output: "anything"})
	assert.True(t, out.Passed)
}

func TestRegexGrader(t *testing.T) {
	c := &types.Case{Name: "x", Expected: map[string]any{"pattern": `\bhello\b`}}

	out := grade(t, "regex", nil, c, &types.AgentResult{Output: "well hello there"})
	assert.True(t, out.Passed)

	out = grade(t, "regex", nil, c, &types.AgentResult{Output: "hellothere"})
	assert.False(t, out.Passed)

	// Invalid pattern is a failed grade, not an error.
	bad := &types.Case{Name: "y", Expected: map[string]any{"pattern": "("}}
	out = grade(t, "regex", nil, bad, &types.AgentResult{Output: "x"})
	assert.False(t, out.Passed)
	assert.Contains(t, out.Reason, "invalid regex")
}

func TestToolCheckGrader(t *testing.T) {
	c := &types.Case{
		Name:     "x",
		Expected: map[string]any{"tools_called": []any{"search", "calculator"}},
	}
	res := &types.AgentResult{
		Output: "42",
		ToolCalls: []types.ToolCall{
			{Name: "calculator"},
			{Name: "search"},
			{Name: "scratchpad"},
		},
	}

	out := grade(t, "tool-check", nil, c, res)
	assert.True(t, out.Passed)
	assert.Equal(t, 1.0, out.Score)

	res.ToolCalls = res.ToolCalls[:1] // only calculator
	out = grade(t, "tool-check", nil, c, res)
	assert.False(t, out.Passed)
	assert.InDelta(t, 0.5, out.Score, 1e-9)
	assert.Contains(t, out.Reason, "search")
}

func TestRegistryUnknownGrader(t *testing.T) {
	_, err := DefaultRegistry().Resolve("llm-judge", nil)
	require.ErrorContains(t, err, `unknown grader "llm-judge"`)
}
