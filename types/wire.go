package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskMessage is the wire form of one case dispatched to a remote worker.
// Field names are part of the protocol: coordinators and workers built
// independently must agree on them.
type TaskMessage struct {
	RunID          string  `json:"run_id"`
	AgentRef       string  `json:"agent_ref"`
	Case           Case    `json:"case"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	Attempt        int     `json:"attempt"`
}

// Timeout returns the per-case timeout carried by the task, or zero when the
// worker's default should apply.
func (t *TaskMessage) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds * float64(time.Second))
}

// ResultMessage is the wire form of one completed case sent back to the
// coordinator.
type ResultMessage struct {
	RunID  string     `json:"run_id"`
	Result CaseResult `json:"result"`
}

// WorkerHeartbeat announces a live worker. It is stored under a TTL'd key;
// expiry is how a dead worker disappears.
type WorkerHeartbeat struct {
	WorkerID   string    `json:"worker_id"`
	LastSeen   time.Time `json:"last_seen"`
	TTLSeconds float64   `json:"ttl_seconds"`
}

// EncodeTask serializes a task message for the broker.
func EncodeTask(t *TaskMessage) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask parses a task message popped from the broker.
func DecodeTask(payload []byte) (*TaskMessage, error) {
	var t TaskMessage
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("malformed task message: %w", err)
	}
	if t.RunID == "" {
		return nil, fmt.Errorf("task message missing run_id")
	}
	if t.Case.Name == "" {
		return nil, fmt.Errorf("task message missing case name")
	}
	return &t, nil
}

// EncodeResult serializes a result message for the broker.
func EncodeResult(r *ResultMessage) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResult parses a result message popped from the broker.
func DecodeResult(payload []byte) (*ResultMessage, error) {
	var r ResultMessage
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("malformed result message: %w", err)
	}
	if r.Result.CaseName == "" {
		return nil, fmt.Errorf("result message missing case name")
	}
	return &r, nil
}
