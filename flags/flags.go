// Package flags defines the CLI surface. Every flag can also be set through
// a GAUNTLET_-prefixed environment variable.
package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "GAUNTLET"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	SuiteFile = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: prefixEnvVar("SUITE"),
		Usage:   "Path to the suite definition file (eg. 'suite.yaml')",
	}
	Agent = &cli.StringFlag{
		Name:    "agent",
		Value:   "",
		EnvVars: prefixEnvVar("AGENT"),
		Usage:   "Agent to evaluate, overriding the suite's agent reference",
	}
	AgentURL = &cli.StringFlag{
		Name:    "agent-url",
		Value:   "",
		EnvVars: prefixEnvVar("AGENT_URL"),
		Usage:   "Endpoint for the 'http' agent",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   1,
		EnvVars: prefixEnvVar("CONCURRENCY"),
		Usage:   "Number of cases to run simultaneously",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "Default per-case timeout (e.g. '30s', '2m')",
	}
	Tags = &cli.StringSliceFlag{
		Name:    "tag",
		EnvVars: prefixEnvVar("TAGS"),
		Usage:   "Run only cases carrying at least one of these tags (repeatable)",
	}
	StorePath = &cli.StringFlag{
		Name:    "store",
		Value:   "gauntlet.db",
		EnvVars: prefixEnvVar("STORE"),
		Usage:   "Path to the run database",
	}
	BrokerURL = &cli.StringFlag{
		Name:    "broker",
		Value:   "",
		EnvVars: prefixEnvVar("BROKER"),
		Usage:   "Redis URL of the broker (eg. 'redis://localhost:6379/0'); enables distributed mode",
	}
	WaitBudget = &cli.DurationFlag{
		Name:    "wait-budget",
		Value:   5 * time.Minute,
		EnvVars: prefixEnvVar("WAIT_BUDGET"),
		Usage:   "How long the coordinator waits for remote results before finishing stragglers locally",
	}
	WorkerID = &cli.StringFlag{
		Name:    "worker-id",
		Value:   "",
		EnvVars: prefixEnvVar("WORKER_ID"),
		Usage:   "Stable worker identifier; generated when omitted",
	}
	FilterSuite = &cli.StringFlag{
		Name:    "filter-suite",
		Value:   "",
		EnvVars: prefixEnvVar("FILTER_SUITE"),
		Usage:   "Restrict listings to runs of this suite",
	}
	Limit = &cli.IntFlag{
		Name:    "limit",
		Value:   0,
		EnvVars: prefixEnvVar("LIMIT"),
		Usage:   "Maximum number of runs to list (0 = all)",
	}
	BaseRuns = &cli.StringSliceFlag{
		Name:    "base",
		EnvVars: prefixEnvVar("BASE"),
		Usage:   "Run ID in the base group (repeatable)",
	}
	TargetRuns = &cli.StringSliceFlag{
		Name:    "target",
		EnvVars: prefixEnvVar("TARGET"),
		Usage:   "Run ID in the target group (repeatable)",
	}
	Alpha = &cli.Float64Flag{
		Name:    "alpha",
		Value:   0.05,
		EnvVars: prefixEnvVar("ALPHA"),
		Usage:   "Significance level for the comparison t-test",
	}
	Threshold = &cli.Float64Flag{
		Name:    "threshold",
		Value:   0.0,
		EnvVars: prefixEnvVar("THRESHOLD"),
		Usage:   "Minimum mean-score drop to flag as a regression",
	}
	JSONOutput = &cli.BoolFlag{
		Name:    "json",
		Value:   false,
		EnvVars: prefixEnvVar("JSON"),
		Usage:   "Emit JSON instead of tables",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "",
		EnvVars: prefixEnvVar("METRICS_ADDR"),
		Usage:   "Address to serve Prometheus metrics on (eg. ':7300'); disabled when empty",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error",
	}
)

var requiredRunFlags = []cli.Flag{
	SuiteFile,
}

var optionalFlags = []cli.Flag{
	Agent,
	AgentURL,
	Concurrency,
	Timeout,
	Tags,
	StorePath,
	BrokerURL,
	WaitBudget,
	JSONOutput,
	MetricsAddr,
	LogLevel,
}

// RunFlags is the flag set of the run command.
var RunFlags []cli.Flag

// WorkerFlags is the flag set of the worker command.
var WorkerFlags = []cli.Flag{
	BrokerURL,
	WorkerID,
	AgentURL,
	Concurrency,
	Timeout,
	MetricsAddr,
	LogLevel,
}

// ListFlags is the flag set of the list command.
var ListFlags = []cli.Flag{
	StorePath,
	FilterSuite,
	Limit,
	JSONOutput,
	LogLevel,
}

// CompareFlags is the flag set of the compare command.
var CompareFlags = []cli.Flag{
	StorePath,
	BaseRuns,
	TargetRuns,
	Alpha,
	Threshold,
	JSONOutput,
	LogLevel,
}

func init() {
	RunFlags = append(RunFlags, requiredRunFlags...)
	RunFlags = append(RunFlags, optionalFlags...)
}

// CheckRunRequired validates required flags of the run command.
func CheckRunRequired(ctx *cli.Context) error {
	for _, f := range requiredRunFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
