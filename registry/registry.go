// Package registry loads evaluation suites from YAML definition files and
// validates them against the configured grader set before any case runs.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/gauntlet-eval/gauntlet/grader"
	"github.com/gauntlet-eval/gauntlet/types"
)

// Registry holds the suite loaded from a definition file.
type Registry struct {
	config Config
	suite  *types.Suite
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log       log.Logger
	SuiteFile string

	// DefaultTimeout applies to cases that set no timeout of their own,
	// directly or through the suite's defaults block.
	DefaultTimeout time.Duration

	// Graders validates grader names at load time, so a typo fails the
	// whole load instead of erroring mid-run.
	Graders *grader.Registry
}

// suiteFile is the YAML schema of a suite definition. Durations are written
// as strings ("30s", "2m"); defaults apply to every case that does not
// override them.
type suiteFile struct {
	Name     string       `yaml:"name"`
	Agent    string       `yaml:"agent"`
	Defaults caseDefaults `yaml:"defaults"`
	Cases    []caseEntry  `yaml:"cases"`
}

type caseDefaults struct {
	Grader       string         `yaml:"grader"`
	GraderConfig map[string]any `yaml:"grader_config"`
	Timeout      string         `yaml:"timeout"`
}

type caseEntry struct {
	Name         string         `yaml:"name"`
	Input        string         `yaml:"input"`
	Expected     map[string]any `yaml:"expected"`
	Grader       string         `yaml:"grader"`
	GraderConfig map[string]any `yaml:"grader_config"`
	Tags         []string       `yaml:"tags"`
	Timeout      string         `yaml:"timeout"`
}

// NewRegistry creates a new registry instance and loads the suite file.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuiteFile == "" {
		return nil, fmt.Errorf("suite file is required")
	}
	if cfg.Graders == nil {
		return nil, fmt.Errorf("grader registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	r := &Registry{config: cfg}
	if err := r.loadSuite(cfg.SuiteFile); err != nil {
		return nil, fmt.Errorf("failed to load suite: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "suite", r.suite.Name, "cases", len(r.suite.Cases))
	return r, nil
}

// Suite returns the loaded suite.
func (r *Registry) Suite() *types.Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suite
}

func (r *Registry) loadSuite(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var file suiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	suite, err := r.buildSuite(&file)
	if err != nil {
		return err
	}
	r.suite = suite
	return nil
}

// buildSuite merges the defaults block into each case, resolves durations,
// and validates the result.
func (r *Registry) buildSuite(file *suiteFile) (*types.Suite, error) {
	defaultTimeout, err := parseTimeout(file.Defaults.Timeout)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	if defaultTimeout == 0 {
		defaultTimeout = r.config.DefaultTimeout
	}

	suite := &types.Suite{
		Name:     file.Name,
		AgentRef: file.Agent,
	}
	for _, entry := range file.Cases {
		c := types.Case{
			Name:         entry.Name,
			Input:        entry.Input,
			Expected:     entry.Expected,
			Grader:       entry.Grader,
			GraderConfig: entry.GraderConfig,
			Tags:         entry.Tags,
		}
		if c.Grader == "" {
			c.Grader = file.Defaults.Grader
		}
		if c.GraderConfig == nil {
			c.GraderConfig = file.Defaults.GraderConfig
		}
		if c.Grader != "" && !r.config.Graders.Has(c.Grader) {
			return nil, fmt.Errorf("case %q: unknown grader %q, available: %v",
				c.Name, c.Grader, r.config.Graders.Names())
		}

		timeout, err := parseTimeout(entry.Timeout)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", c.Name, err)
		}
		if timeout == 0 {
			timeout = defaultTimeout
		}
		c.Timeout = timeout

		suite.Cases = append(suite.Cases, c)
	}

	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return suite, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must be positive", s)
	}
	return d, nil
}
