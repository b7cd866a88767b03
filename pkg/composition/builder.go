// Package composition assembles the Creatomate timeline document for the
// final vertical video.
package composition

import (
	"fmt"

	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/models"
)

// Output frame parameters.
const (
	frameWidth  = 1080
	frameHeight = 1920
	frameRate   = 30

	introSeconds  = 1.0
	outroSeconds  = 2.0
	posterSeconds = 3.0
	clipTrim      = 8.0
	fadeSeconds   = 0.3

	// Brand banner geometry, fractions of frame height.
	bannerY      = "6.25%"
	bannerHeight = "12.5%"
)

// Track layout: 1 is the sequential main track, overlays stack above.
const (
	mainTrack    = 1
	bannerTrack  = 2
	overlayTrack = 3
)

// Input carries everything the builder needs for one job.
type Input struct {
	NumMovies  int
	AvatarURLs map[string]string
	Assets     *models.AssetBundle
	// AvatarDurations (seconds per slot) drives poster placement for the
	// heygen_last3s strategy. Probed, or estimated from script length.
	AvatarDurations map[string]float64
	// ScrollVideoSeconds is the probed length of the scroll screencast.
	// Required by heygen_last3s when Assets.ScrollVideo is set, since the
	// screencast replaces the fixed-length intro image on the timeline.
	ScrollVideoSeconds float64
}

// Builder produces the compositor source document.
type Builder struct {
	strategy       config.PosterStrategy
	introImageURL  string
	outroImageURL  string
	brandBannerURL string
}

// NewBuilder creates a Builder for the configured poster strategy.
func NewBuilder(strategy config.PosterStrategy, introURL, outroURL, bannerURL string) *Builder {
	return &Builder{
		strategy:       strategy,
		introImageURL:  introURL,
		outroImageURL:  outroURL,
		brandBannerURL: bannerURL,
	}
}

// Build assembles the timeline. Every slot must have an avatar URL, a
// poster, and a clip; the scroll video is optional and upgrades the
// intro element from a static image to a screencast.
func (b *Builder) Build(in Input) (map[string]any, error) {
	if err := b.validate(in); err != nil {
		return nil, err
	}

	elements := []map[string]any{b.introElement(in)}

	switch b.strategy {
	case config.PosterBetweenClips:
		elements = append(elements, b.betweenClipsElements(in)...)
	default:
		elements = append(elements, b.overlayPosterElements(in)...)
	}

	elements = append(elements, map[string]any{
		"type":     "image",
		"track":    mainTrack,
		"source":   b.outroImageURL,
		"duration": outroSeconds,
	})
	elements = append(elements, map[string]any{
		"type":   "image",
		"track":  bannerTrack,
		"source": b.brandBannerURL,
		"time":   introSeconds,
		"y":      bannerY,
		"height": bannerHeight,
	})

	return map[string]any{
		"width":         frameWidth,
		"height":        frameHeight,
		"frame_rate":    frameRate,
		"output_format": "mp4",
		"timeline_type": "sequential",
		"elements":      elements,
	}, nil
}

func (b *Builder) validate(in Input) error {
	if in.NumMovies < 1 {
		return fmt.Errorf("composition needs at least one movie")
	}
	for k := 1; k <= in.NumMovies; k++ {
		slot := models.Slot(k)
		if in.AvatarURLs[slot] == "" {
			return fmt.Errorf("composition missing avatar URL for %s", slot)
		}
		if in.Assets == nil || in.Assets.Posters[slot] == "" {
			return fmt.Errorf("composition missing poster for %s", slot)
		}
		if in.Assets.Clips[slot] == "" {
			return fmt.Errorf("composition missing clip for %s", slot)
		}
		if b.strategy != config.PosterBetweenClips && in.AvatarDurations[slot] <= 0 {
			return fmt.Errorf("composition missing avatar duration for %s", slot)
		}
	}
	if b.strategy != config.PosterBetweenClips && in.Assets != nil &&
		in.Assets.ScrollVideo != "" && in.ScrollVideoSeconds <= 0 {
		return fmt.Errorf("composition missing scroll video duration")
	}
	return nil
}

// introElement is the scroll screencast when present, else the static
// intro image held for one second.
func (b *Builder) introElement(in Input) map[string]any {
	if in.Assets.ScrollVideo != "" {
		return map[string]any{
			"type":   "video",
			"track":  mainTrack,
			"source": in.Assets.ScrollVideo,
		}
	}
	return map[string]any{
		"type":     "image",
		"track":    mainTrack,
		"source":   b.introImageURL,
		"duration": introSeconds,
	}
}

// betweenClipsElements interleaves avatar, poster, and clip per slot on
// the sequential track.
func (b *Builder) betweenClipsElements(in Input) []map[string]any {
	var elements []map[string]any
	for k := 1; k <= in.NumMovies; k++ {
		slot := models.Slot(k)
		elements = append(elements,
			map[string]any{
				"type":   "video",
				"track":  mainTrack,
				"source": in.AvatarURLs[slot],
			},
			map[string]any{
				"type":       "image",
				"track":      mainTrack,
				"source":     in.Assets.Posters[slot],
				"duration":   posterSeconds,
				"animations": fadeAnimations(),
			},
			clipElement(in.Assets.Clips[slot]),
		)
	}
	return elements
}

// overlayPosterElements keeps avatars and clips sequential and floats
// each poster over the last 3 seconds of its avatar video, using the
// probed durations to position the overlays. The cursor starts after the
// first element: the probed scroll screencast length when one is present,
// else the fixed intro image duration.
func (b *Builder) overlayPosterElements(in Input) []map[string]any {
	var elements []map[string]any
	cursor := introSeconds
	if in.Assets.ScrollVideo != "" {
		cursor = in.ScrollVideoSeconds
	}
	for k := 1; k <= in.NumMovies; k++ {
		slot := models.Slot(k)
		avatarDur := in.AvatarDurations[slot]

		elements = append(elements,
			map[string]any{
				"type":   "video",
				"track":  mainTrack,
				"source": in.AvatarURLs[slot],
			},
			clipElement(in.Assets.Clips[slot]),
		)

		posterStart := cursor + avatarDur - posterSeconds
		if posterStart < cursor {
			posterStart = cursor
		}
		elements = append(elements, map[string]any{
			"type":       "image",
			"track":      overlayTrack,
			"source":     in.Assets.Posters[slot],
			"time":       posterStart,
			"duration":   posterSeconds,
			"animations": fadeAnimations(),
		})

		cursor += avatarDur + clipTrim
	}
	return elements
}

func clipElement(source string) map[string]any {
	return map[string]any{
		"type":          "video",
		"track":         mainTrack,
		"source":        source,
		"trim_duration": clipTrim,
	}
}

func fadeAnimations() []map[string]any {
	return []map[string]any{
		{"type": "fade", "time": "start", "duration": fadeSeconds},
		{"type": "fade", "time": "end", "duration": fadeSeconds, "reversed": true},
	}
}
