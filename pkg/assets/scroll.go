package assets

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/models"
)

// Screencast parameters: a 6-second capture at mobile viewport size,
// scaled up to the composition's vertical frame by the compositor.
const (
	scrollSeconds        = 6
	scrollViewportWidth  = 390
	scrollViewportHeight = 844
	screencastTimeout    = 2 * time.Minute
)

// ScrollRecorder drives the browser-automation tool that captures the
// catalog page screencast. Best-effort: the workflow treats any failure
// here as a degraded composition, not a failed job.
type ScrollRecorder struct {
	binary   string
	uploader Uploader
	runner   func(ctx context.Context, name string, args ...string) error
	logger   *slog.Logger
}

// NewScrollRecorder creates a ScrollRecorder around the screencast
// binary.
func NewScrollRecorder(binary string, uploader Uploader, logger *slog.Logger) *ScrollRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrollRecorder{
		binary:   binary,
		uploader: uploader,
		runner:   runScreencast,
		logger:   logger,
	}
}

func runScreencast(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("screencast failed: %w", err)
		}
		return fmt.Errorf("screencast failed: %w: %s", err, msg)
	}
	return nil
}

// Record captures the catalog page for the filter and uploads the
// screencast. Returns the CDN URL, or an error wrapped as
// ScrollVideoUnavailable for the workflow to downgrade.
func (s *ScrollRecorder) Record(ctx context.Context, filter models.Filter, jobID, tempDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, screencastTimeout)
	defer cancel()

	pageURL := config.CatalogURL(filter)
	outPath := filepath.Join(tempDir, "scroll.mp4")

	args := screencastArgs(pageURL, outPath)
	if err := s.runner(ctx, s.binary, args...); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrScrollVideoUnavailable, err)
	}

	publicID := fmt.Sprintf("scroll_videos/%s_scroll", jobID)
	result, err := s.uploader.UploadVideo(ctx, outPath, publicID, "")
	if err != nil {
		return "", fmt.Errorf("%w: uploading screencast: %w", models.ErrScrollVideoUnavailable, err)
	}
	s.logger.Info("Scroll screencast ready", "url", result.SecureURL)
	return result.SecureURL, nil
}

func screencastArgs(pageURL, outPath string) []string {
	return []string{
		"--url", pageURL,
		"--out", outPath,
		"--duration", fmt.Sprintf("%d", scrollSeconds),
		"--viewport", fmt.Sprintf("%dx%d", scrollViewportWidth, scrollViewportHeight),
	}
}
