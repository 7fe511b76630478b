package types

import (
	"fmt"
	"time"
)

// Case is a single evaluation case: one input sent to the agent under test,
// graded against an expectation.
type Case struct {
	Name         string         `json:"name" yaml:"name"`
	Input        string         `json:"input" yaml:"input"`
	Expected     map[string]any `json:"expected,omitempty" yaml:"expected,omitempty"`
	Grader       string         `json:"grader" yaml:"grader"`
	GraderConfig map[string]any `json:"grader_config,omitempty" yaml:"grader_config,omitempty"`
	Tags         []string       `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Timeout overrides the runner's per-case timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// HasTag reports whether the case carries the given tag.
func (c *Case) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the case carries at least one of the given tags.
// An empty filter matches every case.
func (c *Case) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if c.HasTag(t) {
			return true
		}
	}
	return false
}

// Suite is an ordered collection of cases run against one agent.
// Case order is significant: run results always follow the declared order.
type Suite struct {
	Name     string
	AgentRef string
	Defaults map[string]any
	Cases    []Case
}

// Case returns the case with the given name, or nil.
func (s *Suite) Case(name string) *Case {
	for i := range s.Cases {
		if s.Cases[i].Name == name {
			return &s.Cases[i]
		}
	}
	return nil
}

// Validate checks the structural invariants of a suite: a non-empty name,
// at least one case, and case names unique within the suite.
func (s *Suite) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("suite name is required")
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("suite %q has no cases", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("case %d in suite %q has no name", i, s.Name)
		}
		if c.Input == "" {
			return fmt.Errorf("case %q in suite %q has no input", c.Name, s.Name)
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("duplicate case name %q in suite %q", c.Name, s.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Filtered returns a copy of the suite containing only cases that carry at
// least one of the given tags, preserving declared order.
func (s *Suite) Filtered(tags []string) *Suite {
	if len(tags) == 0 {
		return s
	}
	out := &Suite{
		Name:     s.Name,
		AgentRef: s.AgentRef,
		Defaults: s.Defaults,
	}
	for _, c := range s.Cases {
		if c.HasAnyTag(tags) {
			out.Cases = append(out.Cases, c)
		}
	}
	return out
}
