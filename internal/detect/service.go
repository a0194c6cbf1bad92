package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AnalyzerClient wraps a managed PII-analysis service exposing a
// Presidio-compatible /analyze endpoint. Availability is probed once at
// construction; call sites consult Available() instead of re-probing.
type AnalyzerClient struct {
	baseURL   string
	client    *http.Client
	available bool
}

// AnalyzerResult is one service hit. Offsets are byte offsets into the
// analyzed text; Score is the service-reported confidence in [0,1].
type AnalyzerResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

type analyzeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// NewAnalyzerClient builds a client for baseURL and probes its health
// endpoint. An empty baseURL or a failed probe yields a client that
// reports unavailable; this is not an error, detection just proceeds
// without the service method.
func NewAnalyzerClient(baseURL string) *AnalyzerClient {
	c := &AnalyzerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	if c.baseURL == "" {
		return c
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return c
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Str("url", c.baseURL).Err(err).Msg("analyzer service unreachable, service detection disabled")
		return c
	}
	resp.Body.Close()
	c.available = resp.StatusCode < 500
	return c
}

// Available reports whether the construction-time probe succeeded.
func (c *AnalyzerClient) Available() bool { return c.available }

// Analyze sends text to the service and returns its findings.
func (c *AnalyzerClient) Analyze(ctx context.Context, text string) ([]AnalyzerResult, error) {
	body, err := json.Marshal(analyzeRequest{Text: text, Language: "en"})
	if err != nil {
		return nil, fmt.Errorf("encoding analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling analyzer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analyzer service returned %d", resp.StatusCode)
	}

	var results []AnalyzerResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding analyzer response: %w", err)
	}
	return results, nil
}
