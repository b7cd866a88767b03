package assets

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/streamgank/videogen/pkg/cloudinary"
	"github.com/streamgank/videogen/pkg/models"
	"github.com/streamgank/videogen/pkg/vizard"
)

// ClipExtractor is the external highlight service. Satisfied by
// *vizard.Client.
type ClipExtractor interface {
	ExtractClip(ctx context.Context, trailerURL string, budget time.Duration) (*vizard.Clip, error)
}

// SegmentExtractor is the local ffmpeg fallback. Satisfied by
// *media.Extractor.
type SegmentExtractor interface {
	ExtractSegment(ctx context.Context, src, dest string) error
}

// ClipPreparer produces one vertical highlight clip per movie.
type ClipPreparer struct {
	extractor ClipExtractor
	fallback  SegmentExtractor
	fetcher   Downloader
	uploader  Uploader
	budget    time.Duration
	logger    *slog.Logger
}

// NewClipPreparer creates a ClipPreparer. fallback may be nil to disable
// the local extraction path.
func NewClipPreparer(extractor ClipExtractor, fallback SegmentExtractor, fetcher Downloader, uploader Uploader, budget time.Duration, logger *slog.Logger) *ClipPreparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClipPreparer{
		extractor: extractor,
		fallback:  fallback,
		fetcher:   fetcher,
		uploader:  uploader,
		budget:    budget,
		logger:    logger,
	}
}

// Prepare extracts and uploads the clip for one movie. A movie without a
// trailer URL fails: every slot needs a clip in the final composition.
func (c *ClipPreparer) Prepare(ctx context.Context, movie models.Movie, tempDir string) (string, error) {
	if movie.TrailerURL == "" {
		return "", fmt.Errorf("movie %d (%s) has no trailer URL", movie.ID, movie.Title)
	}

	localPath := filepath.Join(tempDir, fmt.Sprintf("clip_%d.mp4", movie.ID))

	clip, err := c.extractor.ExtractClip(ctx, movie.TrailerURL, c.budget)
	if err == nil {
		if dlErr := c.fetcher.Download(ctx, clip.VideoURL, localPath); dlErr != nil {
			return "", fmt.Errorf("downloading clip for movie %d: %w", movie.ID, dlErr)
		}
	} else {
		if c.fallback == nil {
			return "", fmt.Errorf("clip extraction for movie %d: %w", movie.ID, err)
		}
		c.logger.Warn("Clip extraction failed, trying local segment fallback",
			"movie_id", movie.ID, "error", err)
		if fbErr := c.extractLocally(ctx, movie, tempDir, localPath); fbErr != nil {
			return "", fmt.Errorf("clip extraction for movie %d: %w (fallback: %v)", movie.ID, err, fbErr)
		}
	}

	publicID := cloudinary.SafePublicID("movie_clips", movie.Title, movie.ID, "clip")
	result, err := c.uploader.UploadVideo(ctx, localPath, publicID, cloudinary.PresetVerticalPortraitFill)
	if err != nil {
		return "", fmt.Errorf("uploading clip for movie %d: %w", movie.ID, err)
	}
	return result.SecureURL, nil
}

func (c *ClipPreparer) extractLocally(ctx context.Context, movie models.Movie, tempDir, dest string) error {
	trailerPath := filepath.Join(tempDir, fmt.Sprintf("trailer_%d.mp4", movie.ID))
	if err := c.fetcher.Download(ctx, movie.TrailerURL, trailerPath); err != nil {
		return fmt.Errorf("downloading trailer: %w", err)
	}
	return c.fallback.ExtractSegment(ctx, trailerPath, dest)
}
