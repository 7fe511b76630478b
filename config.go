package gauntlet

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/gauntlet-eval/gauntlet/flags"
)

// Config holds the application configuration
type Config struct {
	SuiteFile   string // Path to the suite definition file
	AgentRef    string // Agent override; empty means use the suite's agent reference
	AgentConfig map[string]any
	Tags        []string      // Restrict the run to cases carrying one of these tags
	Concurrency int           // Cases run simultaneously in local mode
	Timeout     time.Duration // Default per-case timeout
	StorePath   string        // Run database location
	BrokerURL   string        // Redis URL; non-empty enables distributed mode
	WaitBudget  time.Duration // Coordinator patience before the local fallback
	MetricsAddr string        // Prometheus listen address; empty disables serving
	Log         log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRunRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	cfg := &Config{
		SuiteFile:   ctx.String(flags.SuiteFile.Name),
		AgentRef:    ctx.String(flags.Agent.Name),
		Tags:        ctx.StringSlice(flags.Tags.Name),
		Concurrency: ctx.Int(flags.Concurrency.Name),
		Timeout:     ctx.Duration(flags.Timeout.Name),
		StorePath:   ctx.String(flags.StorePath.Name),
		BrokerURL:   ctx.String(flags.BrokerURL.Name),
		WaitBudget:  ctx.Duration(flags.WaitBudget.Name),
		MetricsAddr: ctx.String(flags.MetricsAddr.Name),
		Log:         logger,
	}
	if url := ctx.String(flags.AgentURL.Name); url != "" {
		cfg.AgentConfig = map[string]any{"url": url}
	}
	return cfg, cfg.Check()
}

// Check validates the config.
func (c *Config) Check() error {
	if c.SuiteFile == "" {
		return errors.New("suite file is required")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency cannot be negative")
	}
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if c.Log == nil {
		c.Log = log.New()
	}
	return nil
}
