package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/streamgank/videogen/pkg/models"
)

const maxAssetWorkers = 8

// Verifier confirms an uploaded asset URL resolves. Satisfied by
// *media.Fetcher.
type Verifier interface {
	VerifyURL(ctx context.Context, url string) error
}

// Preparer runs the three asset sub-tasks of step 3 concurrently:
// enhanced posters, trailer clips, scroll screencast. Posters and clips
// are required; the screencast degrades to an empty URL.
type Preparer struct {
	posters  *PosterRenderer
	clips    *ClipPreparer
	scroll   *ScrollRecorder
	verifier Verifier
	logger   *slog.Logger
}

// NewPreparer creates a Preparer. scroll may be nil when no screencast
// binary is configured; verifier may be nil to skip the end-of-step URL
// checks.
func NewPreparer(posters *PosterRenderer, clips *ClipPreparer, scroll *ScrollRecorder, verifier Verifier, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{posters: posters, clips: clips, scroll: scroll, verifier: verifier, logger: logger}
}

// Prepare builds the AssetBundle. The three sub-tasks run in parallel
// and the step waits for all of them; poster or clip errors fail the
// step, screencast errors are returned separately so the workflow can
// record them as non-fatal.
func (p *Preparer) Prepare(ctx context.Context, movies []models.Movie, filter models.Filter, jobID, tempDir string) (*models.AssetBundle, error, error) {
	bundle := &models.AssetBundle{
		Posters: make(map[string]string, len(movies)),
		Clips:   make(map[string]string, len(movies)),
	}

	var wg sync.WaitGroup
	var posterErr, clipErr, scrollErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		posterErr = p.renderPosters(ctx, movies, tempDir, bundle)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		clipErr = p.prepareClips(ctx, movies, tempDir, bundle)
	}()

	if p.scroll != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, err := p.scroll.Record(ctx, filter, jobID, tempDir)
			if err != nil {
				scrollErr = err
				return
			}
			bundle.ScrollVideo = url
		}()
	} else {
		scrollErr = fmt.Errorf("%w: no screencast binary configured", models.ErrScrollVideoUnavailable)
	}

	wg.Wait()

	if err := errors.Join(posterErr, clipErr); err != nil {
		return nil, scrollErr, fmt.Errorf("%w: %w", models.ErrAssetGenerationFailed, err)
	}

	// Every bundle URL must be HTTPS and resolve before the step closes.
	if err := p.verifyBundle(ctx, bundle); err != nil {
		return nil, scrollErr, fmt.Errorf("%w: %w", models.ErrAssetGenerationFailed, err)
	}
	if bundle.ScrollVideo != "" {
		if err := p.verifyURL(ctx, "scroll video", bundle.ScrollVideo); err != nil {
			scrollErr = fmt.Errorf("%w: %w", models.ErrScrollVideoUnavailable, err)
			bundle.ScrollVideo = ""
		}
	}
	return bundle, scrollErr, nil
}

// verifyBundle HEAD-checks the required poster and clip URLs, slots in
// order so the joined error reads deterministically.
func (p *Preparer) verifyBundle(ctx context.Context, bundle *models.AssetBundle) error {
	var errs []error
	for _, group := range []struct {
		kind string
		urls map[string]string
	}{
		{"poster", bundle.Posters},
		{"clip", bundle.Clips},
	} {
		slots := make([]string, 0, len(group.urls))
		for slot := range group.urls {
			slots = append(slots, slot)
		}
		sort.Strings(slots)
		for _, slot := range slots {
			if err := p.verifyURL(ctx, group.kind+" for "+slot, group.urls[slot]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (p *Preparer) verifyURL(ctx context.Context, what, url string) error {
	if !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%s is not an HTTPS URL: %q", what, url)
	}
	if p.verifier == nil {
		return nil
	}
	if err := p.verifier.VerifyURL(ctx, url); err != nil {
		return fmt.Errorf("%s does not resolve: %w", what, err)
	}
	return nil
}

func (p *Preparer) renderPosters(ctx context.Context, movies []models.Movie, tempDir string, bundle *models.AssetBundle) error {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(assetWorkers(len(movies)))

	for i, movie := range movies {
		slot := models.Slot(i + 1)
		g.Go(func() error {
			url, err := p.posters.Render(ctx, movie, tempDir)
			if err != nil {
				return err
			}
			mu.Lock()
			bundle.Posters[slot] = url
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (p *Preparer) prepareClips(ctx context.Context, movies []models.Movie, tempDir string, bundle *models.AssetBundle) error {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(assetWorkers(len(movies)))

	for i, movie := range movies {
		slot := models.Slot(i + 1)
		g.Go(func() error {
			url, err := p.clips.Prepare(ctx, movie, tempDir)
			if err != nil {
				return err
			}
			mu.Lock()
			bundle.Clips[slot] = url
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func assetWorkers(n int) int {
	if n < maxAssetWorkers {
		return n
	}
	return maxAssetWorkers
}
