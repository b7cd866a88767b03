// Package media holds the local media utilities: URL verification,
// downloads into the per-job temp directory, duration probing, and the
// ffmpeg fallback segment extractor.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher downloads remote media files and verifies URLs via HEAD.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher with a 5-minute download timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: 5 * time.Minute}}
}

// NewFetcherWithClient creates a Fetcher around an existing client (tests).
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{httpClient: client}
}

// VerifyURL issues a HEAD request and requires a 2xx response.
func (f *Fetcher) VerifyURL(ctx context.Context, url string) error {
	resp, err := f.head(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HEAD %s returned HTTP %d", url, resp.StatusCode)
	}
	return nil
}

// VerifyVideoURL issues a HEAD request and requires a 2xx response with a
// video/* or application/octet-stream content type.
func (f *Fetcher) VerifyVideoURL(ctx context.Context, url string) error {
	resp, err := f.head(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HEAD %s returned HTTP %d", url, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return fmt.Errorf("HEAD %s returned non-video content type %q", url, contentType)
	}
	return nil
}

func (f *Fetcher) head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building HEAD request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD %s: %w", url, err)
	}
	return resp, nil
}

// Download fetches url into dest, creating parent directories as needed.
// dest should live under the per-job temp directory so the workflow's
// cleanup handle removes it.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: HTTP %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}
