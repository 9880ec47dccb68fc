package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PipelineProgress is the normalization service's own progress report.
type PipelineProgress struct {
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	CurrentItem string `json:"currentItem"`
}

// Fraction maps the report into [0,1]. An unknown total reads as zero.
func (p PipelineProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Completed) / float64(p.Total)
	if f > 1 {
		f = 1
	}
	return f
}

// Normalizer is the external normalization service. Submit starts a run
// and returns a reference; Progress polls the run's progress endpoint;
// Await blocks until the run finishes and returns its output.
type Normalizer interface {
	Submit(ctx context.Context, caseID string, payload json.RawMessage) (string, error)
	Progress(ctx context.Context, ref string) (PipelineProgress, error)
	Await(ctx context.Context, ref string) (json.RawMessage, error)
}

// HTTPNormalizer is the production Normalizer client.
type HTTPNormalizer struct {
	baseURL string
	client  *http.Client
	// pollClient uses a short timeout so a slow progress endpoint cannot
	// stall the poll loop past its next tick.
	pollClient *http.Client
}

var _ Normalizer = (*HTTPNormalizer)(nil)

func NewHTTPNormalizer(baseURL string, awaitTimeout time.Duration) *HTTPNormalizer {
	return &HTTPNormalizer{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: awaitTimeout},
		pollClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNormalizer) Submit(ctx context.Context, caseID string, payload json.RawMessage) (string, error) {
	body, err := json.Marshal(map[string]any{
		"case_id": caseID,
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/runs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.pollClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit case %s: %w", caseID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit case %s: bad status %s", caseID, resp.Status)
	}

	var out struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return out.Ref, nil
}

func (n *HTTPNormalizer) Progress(ctx context.Context, ref string) (PipelineProgress, error) {
	var prog PipelineProgress

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/runs/"+url.PathEscape(ref)+"/progress", nil)
	if err != nil {
		return prog, fmt.Errorf("build progress request: %w", err)
	}

	resp, err := n.pollClient.Do(req)
	if err != nil {
		return prog, fmt.Errorf("poll progress %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return prog, fmt.Errorf("poll progress %s: bad status %s", ref, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&prog); err != nil {
		return prog, fmt.Errorf("decode progress response: %w", err)
	}
	return prog, nil
}

// Await long-polls the result endpoint. The service holds the request
// open until the run finishes or the client timeout fires.
func (n *HTTPNormalizer) Await(ctx context.Context, ref string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/runs/"+url.PathEscape(ref)+"/result", nil)
	if err != nil {
		return nil, fmt.Errorf("build result request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("await result %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("await result %s: bad status %s", ref, resp.Status)
	}

	var out json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
