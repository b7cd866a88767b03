// Package heygen submits avatar-video template renders and polls them to
// completion.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.heygen.com"

// Terminal poll statuses.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusError     = "error"
)

// Client calls the HeyGen template-render API.
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

// NewClient creates a HeyGen API client.
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

type generateRequest struct {
	Caption   bool                `json:"caption"`
	Title     string              `json:"title"`
	Variables map[string]variable `json:"variables"`
}

type variable struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Properties variableProperties `json:"properties"`
}

type variableProperties struct {
	Content string `json:"content"`
}

type generateResponse struct {
	Data struct {
		VideoID string `json:"video_id"`
		TaskID  string `json:"task_id"`
	} `json:"data"`
}

type statusResponse struct {
	Data struct {
		Status   string `json:"status"`
		VideoURL string `json:"video_url"`
		Error    any    `json:"error"`
	} `json:"data"`
}

// Submit starts a template render for one script and returns the external
// video ID used for polling.
func (c *Client) Submit(ctx context.Context, templateID, title, script string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Caption: false,
		Title:   title,
		Variables: map[string]variable{
			"script": {
				Name:       "script",
				Type:       "text",
				Properties: variableProperties{Content: script},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/template/%s/generate", c.baseURL, templateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting template render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("template generate returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	id := parsed.Data.VideoID
	if id == "" {
		id = parsed.Data.TaskID
	}
	if id == "" {
		return "", fmt.Errorf("generate response carried no video_id or task_id")
	}
	return id, nil
}

// VideoStatus is one poll observation.
type VideoStatus struct {
	Status   string
	VideoURL string
	// Terminal is true for completed/failed/error.
	Terminal bool
	// Succeeded is true only for completed with a usable URL.
	Succeeded bool
}

// Status polls one render.
func (c *Client) Status(ctx context.Context, videoID string) (*VideoStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/video_status.get?%s", c.baseURL,
		url.Values{"video_id": {videoID}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling video status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video status returned HTTP %d", resp.StatusCode)
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}

	vs := &VideoStatus{Status: parsed.Data.Status, VideoURL: parsed.Data.VideoURL}
	switch parsed.Data.Status {
	case statusCompleted:
		vs.Terminal = true
		vs.Succeeded = parsed.Data.VideoURL != ""
	case statusFailed, statusError:
		vs.Terminal = true
	}
	return vs, nil
}

// EstimateDuration predicts render time from script length. Used to pace
// progress messages; the poll timeout adds a 5-minute buffer on top.
func EstimateDuration(scriptChars int) time.Duration {
	switch {
	case scriptChars <= 300:
		return 4 * time.Minute
	case scriptChars <= 800:
		return 6 * time.Minute
	default:
		mins := 3 + scriptChars/200
		if mins > 12 {
			mins = 12
		}
		return time.Duration(mins) * time.Minute
	}
}

// PollTimeout computes the per-render timeout: estimate plus a 5-minute
// buffer, clamped to [8, 25] minutes.
func PollTimeout(scriptChars int) time.Duration {
	t := EstimateDuration(scriptChars) + 5*time.Minute
	if t < 8*time.Minute {
		t = 8 * time.Minute
	}
	if t > 25*time.Minute {
		t = 25 * time.Minute
	}
	return t
}

// PollInterval returns the adaptive wait before the next poll given time
// elapsed since submission: 10 s for the first 2 minutes, then 15 s to
// 5 minutes, 20 s to 10 minutes, 30 s beyond.
func PollInterval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < 2*time.Minute:
		return 10 * time.Second
	case elapsed < 5*time.Minute:
		return 15 * time.Second
	case elapsed < 10*time.Minute:
		return 20 * time.Second
	default:
		return 30 * time.Second
	}
}
