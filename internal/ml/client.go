package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"inventory-risk-radar/backend/internal/scoring"
)

// Predictor produces one risk label per feature record. Implementations
// must preserve input order.
type Predictor interface {
	Enabled() bool
	Predict(ctx context.Context, records []scoring.FeatureRecord) ([]scoring.Level, error)
}

// Config holds the remote model endpoint parameters.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements the Predictor interface against the HTTP model service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var ErrDisabled = errors.New("remote model disabled")

// NewClient constructs a Client if the supplied configuration names an
// endpoint. An empty base URL yields ErrDisabled so callers can fall back
// to the rule engine without treating it as a failure.
func NewClient(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, ErrDisabled
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
	}
	return client, nil
}

// Enabled reports whether the client can make outbound calls.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type predictRequest struct {
	Records [][]float64 `json:"records"`
}

type predictResponse struct {
	Predictions []string `json:"predictions"`
}

// Predict posts the feature vectors to the model service and maps the
// returned labels onto the level set. Any transport, status, shape or
// label problem is returned as an error; callers decide whether to fall
// back.
func (c *Client) Predict(ctx context.Context, records []scoring.FeatureRecord) ([]scoring.Level, error) {
	if c == nil || !c.Enabled() {
		return nil, ErrDisabled
	}
	if len(records) == 0 {
		return []scoring.Level{}, nil
	}

	vectors := make([][]float64, 0, len(records))
	for _, record := range records {
		vectors = append(vectors, record.Vector())
	}
	body, err := json.Marshal(predictRequest{Records: vectors})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("model status %d: %v", resp.StatusCode, apiErr)
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Predictions) != len(records) {
		return nil, fmt.Errorf("model returned %d labels for %d records", len(decoded.Predictions), len(records))
	}

	labels := make([]scoring.Level, 0, len(records))
	for _, raw := range decoded.Predictions {
		level, ok := scoring.ParseLevel(raw)
		if !ok {
			return nil, fmt.Errorf("model returned unknown label %q", raw)
		}
		labels = append(labels, level)
	}
	return labels, nil
}
