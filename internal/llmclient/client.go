// Package llmclient is a minimal HTTP adapter for the external,
// black-box TextGenerator and Judge collaborators (SPEC_FULL.md §6). No
// example repo in the corpus wires an LLM SDK or HTTP client of its own,
// so this adapter is built directly on net/http rather than adapted from a
// teacher pattern — see DESIGN.md for that justification.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shiva/orbit/internal/core"
)

// Config points the client at the external generation/judging service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements both core.TextGenerator and core.Judge against a single
// HTTP endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates an llmclient.Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Text          string `json:"text"`
	StopSuggested bool   `json:"stop_suggested"`
}

// Generate implements core.TextGenerator.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, temperature, topP float64) (string, bool, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, MaxTokens: maxTokens, Temperature: temperature, TopP: topP})
	if err != nil {
		return "", false, fmt.Errorf("llmclient: encode generate request: %w", err)
	}

	var resp generateResponse
	if err := c.post(ctx, "/generate", body, &resp); err != nil {
		return "", false, err
	}
	return resp.Text, resp.StopSuggested, nil
}

type evaluateRequest struct {
	OwnerObjective string      `json:"owner_objective"`
	Transcript     []core.Turn `json:"transcript"`
}

type evaluateResponse struct {
	ShouldNotify bool `json:"should_notify"`
}

// Evaluate implements core.Judge.
func (c *Client) Evaluate(ctx context.Context, ownerObjective string, transcript []core.Turn) (bool, error) {
	body, err := json.Marshal(evaluateRequest{OwnerObjective: ownerObjective, Transcript: transcript})
	if err != nil {
		return false, fmt.Errorf("llmclient: encode evaluate request: %w", err)
	}

	var resp evaluateResponse
	if err := c.post(ctx, "/evaluate", body, &resp); err != nil {
		// Output parse / transport failures are treated as should_notify=false
		// by the caller; we still surface the error so it can log it.
		return false, err
	}
	return resp.ShouldNotify, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llmclient: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llmclient: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llmclient: %s returned %d: %s", path, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llmclient: decode %s response: %w", path, err)
	}
	return nil
}
