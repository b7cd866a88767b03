// Package vizard submits trailers to the AI clip-extraction service and
// long-polls until a vertical highlight clip is ready.
package vizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://elb-api.vizard.ai/hvizard-server-front/open-api/v1"

// Extraction configuration (fixed by the pipeline):
// one clip, 9:16 ratio, 15-20 s preferred bucket, silence removal and
// keyword highlighting on.
const (
	maxClipNumber  = 1
	ratioVertical  = 1
	preferBucket15 = 1
	flagOn         = 1
)

// ErrNoClips is returned when a finished project contains no clips.
var ErrNoClips = errors.New("clip extraction produced no clips")

// Client calls the Vizard open API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger

	// pollInterval between project status checks; injectable for tests.
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithPollInterval overrides poll pacing (tests).
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithTransport sets the HTTP transport (request instrumentation).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates a Vizard API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		apiKey:       apiKey,
		logger:       slog.Default(),
		pollInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createRequest struct {
	VideoURL        string `json:"videoUrl"`
	VideoType       int    `json:"videoType"`
	Lang            string `json:"lang"`
	MaxClipNumber   int    `json:"maxClipNumber"`
	RatioOfClip     int    `json:"ratioOfClip"`
	PreferLength    []int  `json:"preferLength"`
	RemoveSilence   int    `json:"removeSilenceSwitch"`
	HighlightSwitch int    `json:"highlightSwitch"`
}

type createResponse struct {
	Code      int    `json:"code"`
	ProjectID int64  `json:"projectId"`
	ErrMsg    string `json:"errMsg"`
}

type projectResponse struct {
	Code   int    `json:"code"`
	ErrMsg string `json:"errMsg"`
	Videos []struct {
		VideoURL        string `json:"videoUrl"`
		VideoMsDuration int64  `json:"videoMsDuration"`
		Title           string `json:"title"`
	} `json:"videos"`
}

// Response codes: 2000 ready, 1000 processing.
const (
	codeReady      = 2000
	codeProcessing = 1000
)

// Submit creates a clipping project for a trailer URL and returns the
// project ID used for polling.
func (c *Client) Submit(ctx context.Context, trailerURL string) (int64, error) {
	body, err := json.Marshal(createRequest{
		VideoURL:        trailerURL,
		VideoType:       1, // remote URL
		Lang:            "auto",
		MaxClipNumber:   maxClipNumber,
		RatioOfClip:     ratioVertical,
		PreferLength:    []int{preferBucket15},
		RemoveSilence:   flagOn,
		HighlightSwitch: flagOn,
	})
	if err != nil {
		return 0, fmt.Errorf("marshaling clip request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/project/create", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building clip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("VIZARDAI_API_KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("submitting clip project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("clip project create returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var parsed createResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decoding clip create response: %w", err)
	}
	if parsed.Code != codeReady && parsed.Code != codeProcessing {
		return 0, fmt.Errorf("clip project create rejected (code %d): %s", parsed.Code, parsed.ErrMsg)
	}
	return parsed.ProjectID, nil
}

// Clip is one extracted highlight.
type Clip struct {
	VideoURL string
	Duration time.Duration
	Title    string
}

// query checks a project once. ready is false while processing.
func (c *Client) query(ctx context.Context, projectID int64) (clip *Clip, ready bool, err error) {
	url := fmt.Sprintf("%s/project/query/%d", c.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building project query: %w", err)
	}
	req.Header.Set("VIZARDAI_API_KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("querying clip project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("project query returned HTTP %d", resp.StatusCode)
	}

	var parsed projectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("decoding project response: %w", err)
	}

	switch parsed.Code {
	case codeProcessing:
		return nil, false, nil
	case codeReady:
		if len(parsed.Videos) == 0 {
			return nil, true, ErrNoClips
		}
		v := parsed.Videos[0]
		return &Clip{
			VideoURL: v.VideoURL,
			Duration: time.Duration(v.VideoMsDuration) * time.Millisecond,
			Title:    v.Title,
		}, true, nil
	default:
		return nil, true, fmt.Errorf("clip project failed (code %d): %s", parsed.Code, parsed.ErrMsg)
	}
}

// ExtractClip runs the full submit + long-poll cycle for one trailer.
// budget bounds the wait (20 minutes per movie in production).
func (c *Client) ExtractClip(ctx context.Context, trailerURL string, budget time.Duration) (*Clip, error) {
	projectID, err := c.Submit(ctx, trailerURL)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Clip extraction submitted", "project_id", projectID)

	deadline := time.Now().Add(budget)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("clip extraction exceeded %v budget for project %d", budget, projectID)
		}

		clip, ready, err := c.query(ctx, projectID)
		if err != nil {
			if ready {
				return nil, err // terminal project failure
			}
			c.logger.Warn("Clip poll failed, continuing", "project_id", projectID, "error", err)
			continue
		}
		if !ready {
			continue
		}
		c.logger.Info("Clip ready", "project_id", projectID, "duration", clip.Duration)
		return clip, nil
	}
}
