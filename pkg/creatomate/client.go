// Package creatomate submits composition timelines for rendering and
// tracks renders to a terminal status.
package creatomate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/streamgank/videogen/pkg/models"
)

const defaultBaseURL = "https://api.creatomate.com/v1"

// Terminal render statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Client calls the Creatomate render API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithTransport sets the HTTP transport (request instrumentation).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates a Creatomate API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type renderInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

// Submit posts a composition source for rendering and returns the render
// ID. The response may be a single object or a one-element array.
func (c *Client) Submit(ctx context.Context, source map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"source":        source,
		"output_format": "mp4",
		"render_scale":  1,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/renders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrCompositionSubmissionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", models.ErrCompositionSubmissionFailed, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d: %s", models.ErrCompositionSubmissionFailed, resp.StatusCode, respBody)
	}

	renderID, err := parseRenderID(respBody)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrCompositionSubmissionFailed, err)
	}
	c.logger.Info("Render submitted", "render_id", renderID)
	return renderID, nil
}

func parseRenderID(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []renderInfo
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("decoding render list response: %w", err)
		}
		if len(list) == 0 || list[0].ID == "" {
			return "", fmt.Errorf("render response carried no render ID")
		}
		return list[0].ID, nil
	}
	var single renderInfo
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("decoding render response: %w", err)
	}
	if single.ID == "" {
		return "", fmt.Errorf("render response carried no render ID")
	}
	return single.ID, nil
}

// RenderState is one status observation.
type RenderState struct {
	Status   string
	URL      string
	Terminal bool
}

// Status fetches one render's state.
func (c *Client) Status(ctx context.Context, renderID string) (*RenderState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/renders/"+renderID, nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching render status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render status returned HTTP %d", resp.StatusCode)
	}

	var parsed renderInfo
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding render status: %w", err)
	}
	return &RenderState{
		Status:   parsed.Status,
		URL:      parsed.URL,
		Terminal: parsed.Status == StatusSucceeded || parsed.Status == StatusFailed,
	}, nil
}
