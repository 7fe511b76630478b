// Package store persists completed runs. The SQLite backend keeps a row per
// run and a row per case result; result rows preserve the suite's declared
// case order.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	_ "modernc.org/sqlite"

	"github.com/gauntlet-eval/gauntlet/types"
)

// ErrNotFound is returned when no run exists with the requested ID.
var ErrNotFound = errors.New("store: run not found")

// ListFilter narrows a run listing. Zero values match everything.
type ListFilter struct {
	Suite string
	Limit int
}

// Store persists and retrieves runs.
type Store interface {
	// SaveRun persists a complete run atomically.
	SaveRun(ctx context.Context, run *types.Run) error

	// GetRun loads a run with its full result set, in declared order.
	GetRun(ctx context.Context, runID string) (*types.Run, error)

	// ListRuns returns run headers, newest first, without result sets.
	ListRuns(ctx context.Context, filter ListFilter) ([]*types.Run, error)

	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	suite      TEXT NOT NULL,
	agent_ref  TEXT NOT NULL,
	config     TEXT NOT NULL DEFAULT '{}',
	summary    TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	position     INTEGER NOT NULL,
	case_name    TEXT NOT NULL,
	status       TEXT NOT NULL,
	passed       INTEGER NOT NULL,
	score        REAL NOT NULL,
	details      TEXT NOT NULL DEFAULT '{}',
	agent_output TEXT NOT NULL DEFAULT '',
	tool_calls   TEXT NOT NULL DEFAULT '[]',
	tokens_in    INTEGER NOT NULL DEFAULT 0,
	tokens_out   INTEGER NOT NULL DEFAULT 0,
	cost_usd     REAL,
	latency_ms   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(suite, created_at);
`

// SQLiteStore implements Store on a SQLite database file. Pass ":memory:"
// for an ephemeral store.
type SQLiteStore struct {
	db  *sql.DB
	log log.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(path string, logger log.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = log.New()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db, log: logger.New("component", "store")}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	configJSON, err := marshalOr(run.Config, "{}")
	if err != nil {
		return fmt.Errorf("encoding run config: %w", err)
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encoding run summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, suite, agent_ref, config, summary, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Suite, run.AgentRef, configJSON, string(summaryJSON), run.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for i, res := range run.Results {
		detailsJSON, err := marshalOr(res.Details, "{}")
		if err != nil {
			return fmt.Errorf("encoding details for case %q: %w", res.CaseName, err)
		}
		toolCallsJSON, err := marshalOr(res.ToolCalls, "[]")
		if err != nil {
			return fmt.Errorf("encoding tool calls for case %q: %w", res.CaseName, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, position, case_name, status, passed, score, details,
				agent_output, tool_calls, tokens_in, tokens_out, cost_usd, latency_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, res.CaseName, string(res.Status), boolToInt(res.Passed), res.Score, detailsJSON,
			res.AgentOutput, toolCallsJSON, res.TokensIn, res.TokensOut, res.CostUSD, res.LatencyMS)
		if err != nil {
			return fmt.Errorf("inserting result for case %q: %w", res.CaseName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.ID, err)
	}
	s.log.Debug("Run saved", "run", run.ID, "suite", run.Suite, "results", len(run.Results))
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	run, err := s.scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, suite, agent_ref, config, summary, created_at FROM runs WHERE id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT case_name, status, passed, score, details, agent_output, tool_calls,
			tokens_in, tokens_out, cost_usd, latency_ms
		 FROM results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading results for run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res           types.CaseResult
			status        string
			passed        int
			detailsJSON   string
			toolCallsJSON string
			costUSD       sql.NullFloat64
		)
		if err := rows.Scan(&res.CaseName, &status, &passed, &res.Score, &detailsJSON,
			&res.AgentOutput, &toolCallsJSON, &res.TokensIn, &res.TokensOut, &costUSD, &res.LatencyMS); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		res.Status = types.CaseStatus(status)
		res.Passed = passed != 0
		if costUSD.Valid {
			v := costUSD.Float64
			res.CostUSD = &v
		}
		if err := json.Unmarshal([]byte(detailsJSON), &res.Details); err != nil {
			return nil, fmt.Errorf("decoding details for case %q: %w", res.CaseName, err)
		}
		if err := json.Unmarshal([]byte(toolCallsJSON), &res.ToolCalls); err != nil {
			return nil, fmt.Errorf("decoding tool calls for case %q: %w", res.CaseName, err)
		}
		run.Results = append(run.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading results for run %s: %w", runID, err)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter ListFilter) ([]*types.Run, error) {
	query := `SELECT id, suite, agent_ref, config, summary, created_at FROM runs`
	var args []any
	if filter.Suite != "" {
		query += ` WHERE suite = ?`
		args = append(args, filter.Suite)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRun(row rowScanner) (*types.Run, error) {
	var (
		run         types.Run
		configJSON  string
		summaryJSON string
		createdAt   string
	)
	if err := row.Scan(&run.ID, &run.Suite, &run.AgentRef, &configJSON, &summaryJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("decoding config for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &run.Summary); err != nil {
		return nil, fmt.Errorf("decoding summary for run %s: %w", run.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for run %s: %w", run.ID, err)
	}
	run.CreatedAt = ts
	return &run, nil
}

// marshalOr encodes v as JSON, substituting empty for nil so columns never
// hold SQL NULL JSON.
func marshalOr(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
