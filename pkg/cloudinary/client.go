// Package cloudinary uploads media assets to the CDN and builds
// transformation parameters for delivery URLs.
package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Transformation presets for vertical 9:16 delivery.
const (
	// PresetVerticalPortraitFill crops to fill the full 1080x1920 frame.
	PresetVerticalPortraitFill = "vertical_portrait_fill"
	// PresetFit letterboxes on a black background.
	PresetFit = "fit"
	// PresetPad letterboxes on a blurred background.
	PresetPad = "pad"
	// PresetScale stretches and breaks aspect ratio. Avoid.
	PresetScale = "scale"
)

// presetParams maps a preset name to Cloudinary transformation parameters.
var presetParams = map[string]string{
	PresetVerticalPortraitFill: "w_1080,h_1920,c_fill,g_center,br_3000k",
	PresetFit:                  "w_1080,h_1920,c_fit,b_black",
	PresetPad:                  "w_1080,h_1920,c_pad,b_blurred:400:15",
	PresetScale:                "w_1080,h_1920,c_scale",
}

// TransformationFor returns the transformation parameter string for a
// preset, defaulting to the fill preset for unknown names.
func TransformationFor(preset string) string {
	if p, ok := presetParams[preset]; ok {
		return p
	}
	return presetParams[PresetVerticalPortraitFill]
}

// Client uploads to the Cloudinary upload API with signed requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cloudName  string
	apiKey     string
	apiSecret  string
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithTransport sets the HTTP transport (request instrumentation).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates an upload client.
// Uploads get a 60 s timeout (longer than the default request budget;
// clips can be tens of megabytes).
func NewClient(cloudName, apiKey, apiSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    "https://api.cloudinary.com/v1_1",
		cloudName:  cloudName,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadResult is the subset of the upload response the pipeline consumes.
type UploadResult struct {
	SecureURL string  `json:"secure_url"`
	PublicID  string  `json:"public_id"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Duration  float64 `json:"duration,omitempty"`
}

// UploadImage uploads a local image under a deterministic public ID and
// returns the HTTPS delivery URL.
func (c *Client) UploadImage(ctx context.Context, path, publicID string) (*UploadResult, error) {
	return c.upload(ctx, "image", path, publicID, "")
}

// UploadVideo uploads a local video under a deterministic public ID,
// applying the named transformation preset on upload.
func (c *Client) UploadVideo(ctx context.Context, path, publicID, preset string) (*UploadResult, error) {
	return c.upload(ctx, "video", path, publicID, TransformationFor(preset))
}

func (c *Client) upload(ctx context.Context, resourceType, path, publicID, transformation string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s for upload: %w", path, err)
	}
	defer f.Close()

	params := map[string]string{
		"public_id": publicID,
		"timestamp": fmt.Sprintf("%d", c.now().Unix()),
	}
	if transformation != "" {
		params["transformation"] = transformation
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.apiKey

	var body strings.Builder
	writer := multipart.NewWriter(&body)
	for k, v := range params {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing upload field %s: %w", k, err)
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("creating upload part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copying upload payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/upload", c.baseURL, c.cloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body.String()))
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upload of %s returned HTTP %d: %s", publicID, resp.StatusCode, respBody)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	if !strings.HasPrefix(result.SecureURL, "https://") {
		return nil, fmt.Errorf("upload of %s returned non-HTTPS URL %q", publicID, result.SecureURL)
	}

	c.logger.Info("Uploaded asset", "public_id", result.PublicID, "resource_type", resourceType)
	return &result, nil
}

// sign computes the upload signature: SHA-1 over the sorted query-encoded
// params followed by the API secret.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}

// SafePublicID builds a deterministic public ID from a title and numeric ID
// under a folder prefix, e.g. enhanced_posters/the_thing_42.
func SafePublicID(folder, title string, id int, suffix string) string {
	safe := strings.ToLower(title)
	safe = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '_'
		default:
			return -1
		}
	}, safe)
	safe = strings.Trim(safe, "_")
	for strings.Contains(safe, "__") {
		safe = strings.ReplaceAll(safe, "__", "_")
	}
	name := fmt.Sprintf("%s_%d", safe, id)
	if suffix != "" {
		name += "_" + suffix
	}
	return folder + "/" + name
}
