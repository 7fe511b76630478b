package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlet-eval/gauntlet/grader"
)

func writeSuiteFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newRegistry(t *testing.T, content string) (*Registry, error) {
	t.Helper()
	return NewRegistry(Config{
		SuiteFile:      writeSuiteFile(t, content),
		DefaultTimeout: 30 * time.Second,
		Graders:        grader.DefaultRegistry(),
	})
}

const validSuite = `
name: arithmetic
agent: echo
defaults:
  grader: exact
  timeout: 10s
cases:
  - name: add
    input: "2+2"
    expected:
      output: "4"
  - name: contains-check
    input: "describe the sky"
    grader: contains
    expected:
      output_contains: ["blue"]
    tags: [descriptive]
    timeout: 45s
  - name: pattern
    input: "give me a date"
    grader: regex
    expected:
      pattern: '\d{4}-\d{2}-\d{2}'
`

func TestLoadValidSuite(t *testing.T) {
	r, err := newRegistry(t, validSuite)
	require.NoError(t, err)

	suite := r.Suite()
	assert.Equal(t, "arithmetic", suite.Name)
	assert.Equal(t, "echo", suite.AgentRef)
	require.Len(t, suite.Cases, 3)

	// Defaults merged into cases that don't override them.
	assert.Equal(t, "exact", suite.Cases[0].Grader)
	assert.Equal(t, 10*time.Second, suite.Cases[0].Timeout)

	// Per-case overrides win.
	assert.Equal(t, "contains", suite.Cases[1].Grader)
	assert.Equal(t, 45*time.Second, suite.Cases[1].Timeout)
	assert.Equal(t, []string{"descriptive"}, suite.Cases[1].Tags)

	assert.Equal(t, "regex", suite.Cases[2].Grader)
}

func TestLoadAppliesConfigDefaultTimeout(t *testing.T) {
	r, err := newRegistry(t, `
name: no-defaults
agent: echo
cases:
  - name: only
    input: "x"
    grader: exact
`)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, r.Suite().Cases[0].Timeout)
}

func TestLoadRejectsUnknownGrader(t *testing.T) {
	_, err := newRegistry(t, `
name: bad
agent: echo
cases:
  - name: only
    input: "x"
    grader: llm-judge
`)
	require.ErrorContains(t, err, "unknown grader")
	require.ErrorContains(t, err, "llm-judge")
}

func TestLoadRejectsDuplicateCaseNames(t *testing.T) {
	_, err := newRegistry(t, `
name: dups
agent: echo
cases:
  - name: twin
    input: "a"
    grader: exact
  - name: twin
    input: "b"
    grader: exact
`)
	require.ErrorContains(t, err, "duplicate case name")
}

func TestLoadRejectsMissingInput(t *testing.T) {
	_, err := newRegistry(t, `
name: incomplete
agent: echo
cases:
  - name: no-input
    grader: exact
`)
	require.ErrorContains(t, err, "no input")
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	_, err := newRegistry(t, `
name: bad-timeout
agent: echo
cases:
  - name: only
    input: "x"
    grader: exact
    timeout: "ten seconds"
`)
	require.ErrorContains(t, err, "invalid timeout")
}

func TestLoadRejectsEmptySuite(t *testing.T) {
	_, err := newRegistry(t, `
name: empty
agent: echo
cases: []
`)
	require.ErrorContains(t, err, "no cases")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewRegistry(Config{
		SuiteFile: filepath.Join(t.TempDir(), "nope.yaml"),
		Graders:   grader.DefaultRegistry(),
	})
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	_, err := NewRegistry(Config{Graders: grader.DefaultRegistry()})
	require.ErrorContains(t, err, "suite file is required")

	_, err = NewRegistry(Config{SuiteFile: "whatever.yaml"})
	require.ErrorContains(t, err, "grader registry is required")
}
