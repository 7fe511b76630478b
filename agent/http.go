package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gauntlet-eval/gauntlet/types"
)

// HTTPAgent invokes a subject exposed as an HTTP endpoint. The request is a
// JSON object {"input": ...}; the response body must decode into an
// AgentResult.
type HTTPAgent struct {
	url    string
	client *http.Client
}

// NewHTTPAgent builds an HTTP agent from its registry configuration.
// Required config: "url".
func NewHTTPAgent(cfg map[string]any) (Agent, error) {
	url, _ := cfg["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http agent requires a \"url\" config value")
	}
	return &HTTPAgent{
		url:    url,
		client: &http.Client{},
	}, nil
}

type httpInvokeRequest struct {
	Input string `json:"input"`
}

// Invoke implements Agent.
func (a *HTTPAgent) Invoke(ctx context.Context, input string) (*types.AgentResult, error) {
	body, err := json.Marshal(httpInvokeRequest{Input: input})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, snippet)
	}

	var result types.AgentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("agent returned invalid response: %w", err)
	}
	return &result, nil
}
