// Package llm provides the chat-completion client used for script
// generation. Transport failures retry with exponential backoff; content
// policy rejections surface as ErrContentRejected and are not retried.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Transport retry policy (backoff 1 s, 2 s, 4 s; 3 retries after the
// initial attempt).
const maxTransportRetries = 3

// ErrContentRejected marks a content-policy refusal; terminal for the
// prompt that triggered it.
var ErrContentRejected = errors.New("content policy rejection")

// Client calls the chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTransport sets the HTTP transport (request instrumentation).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates a chat-completion client.
func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request is a single-message completion request.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends one user message and returns the model's text.
// Recoverable transport errors (5xx, 429, network) retry with exponential
// backoff; 429 honors Retry-After when present.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= maxTransportRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if ra, ok := retryAfter(lastErr); ok {
				wait = ra
			}
			c.logger.Warn("Retrying LLM call", "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
		}

		text, err := c.completeOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		if !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("llm transport retries exhausted: %w", lastErr)
}

func (c *Client) completeOnce(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &transportError{err: fmt.Errorf("chat completion request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &transportError{err: fmt.Errorf("reading chat response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &transportError{
			err:        fmt.Errorf("rate limited (HTTP 429)"),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return "", &transportError{err: fmt.Errorf("LLM server error (HTTP %d)", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		var parsed chatResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			if isContentPolicy(parsed.Error.Code, parsed.Error.Message) {
				return "", fmt.Errorf("%w: %s", ErrContentRejected, parsed.Error.Message)
			}
			return "", fmt.Errorf("LLM error (HTTP %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("LLM error (HTTP %d)", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	if parsed.Choices[0].FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: response filtered", ErrContentRejected)
	}
	return parsed.Choices[0].Message.Content, nil
}

func isContentPolicy(code, message string) bool {
	return code == "content_policy_violation" ||
		strings.Contains(strings.ToLower(message), "content policy")
}

// transportError marks errors eligible for backoff retry.
type transportError struct {
	err        error
	retryAfter time.Duration
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

func retryAfter(err error) (time.Duration, bool) {
	var te *transportError
	if errors.As(err, &te) && te.retryAfter > 0 {
		return te.retryAfter, true
	}
	return 0, false
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
