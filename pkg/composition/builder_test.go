package composition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/models"
)

func builderInput(n int, scroll string) Input {
	in := Input{
		NumMovies:  n,
		AvatarURLs: map[string]string{},
		Assets: &models.AssetBundle{
			Posters:     map[string]string{},
			Clips:       map[string]string{},
			ScrollVideo: scroll,
		},
		AvatarDurations: map[string]float64{},
	}
	for k := 1; k <= n; k++ {
		slot := models.Slot(k)
		in.AvatarURLs[slot] = "https://cdn.heygen.com/" + slot + ".mp4"
		in.Assets.Posters[slot] = "https://res.cloudinary.com/demo/" + slot + "_poster.png"
		in.Assets.Clips[slot] = "https://res.cloudinary.com/demo/" + slot + "_clip.mp4"
		in.AvatarDurations[slot] = 20.0
	}
	return in
}

func newTestBuilder(strategy config.PosterStrategy) *Builder {
	return NewBuilder(strategy,
		"https://res.cloudinary.com/demo/intro.png",
		"https://res.cloudinary.com/demo/outro.png",
		"https://res.cloudinary.com/demo/banner.png")
}

func elementsOf(t *testing.T, source map[string]any) []map[string]any {
	t.Helper()
	elements, ok := source["elements"].([]map[string]any)
	require.True(t, ok)
	return elements
}

func TestBuild_BetweenClips(t *testing.T) {
	b := newTestBuilder(config.PosterBetweenClips)
	source, err := b.Build(builderInput(3, ""))
	require.NoError(t, err)

	assert.Equal(t, 1080, source["width"])
	assert.Equal(t, 1920, source["height"])
	assert.Equal(t, 30, source["frame_rate"])
	assert.Equal(t, "mp4", source["output_format"])
	assert.Equal(t, "sequential", source["timeline_type"])

	elements := elementsOf(t, source)
	// intro + 3x(avatar, poster, clip) + outro + banner
	require.Len(t, elements, 12)

	assert.Equal(t, "image", elements[0]["type"])
	assert.Equal(t, 1.0, elements[0]["duration"])

	// per-slot triplets in order
	assert.Contains(t, elements[1]["source"], "movie1.mp4")
	assert.Contains(t, elements[2]["source"], "movie1_poster")
	assert.Equal(t, 3.0, elements[2]["duration"])
	assert.Contains(t, elements[3]["source"], "movie1_clip")
	assert.Equal(t, 8.0, elements[3]["trim_duration"])
	assert.Contains(t, elements[4]["source"], "movie2.mp4")

	outro := elements[10]
	assert.Contains(t, outro["source"], "outro.png")
	assert.Equal(t, 2.0, outro["duration"])

	banner := elements[11]
	assert.Contains(t, banner["source"], "banner.png")
	assert.Equal(t, 2, banner["track"])
	assert.Equal(t, 1.0, banner["time"])
	assert.Equal(t, "6.25%", banner["y"])
	assert.Equal(t, "12.5%", banner["height"])
}

func TestBuild_OverlayPosters(t *testing.T) {
	b := newTestBuilder(config.PosterHeygenLast3s)
	in := builderInput(2, "")
	in.AvatarDurations["movie1"] = 25.0
	in.AvatarDurations["movie2"] = 18.0

	source, err := b.Build(in)
	require.NoError(t, err)
	elements := elementsOf(t, source)
	// intro + 2x(avatar, clip, poster) + outro + banner
	require.Len(t, elements, 9)

	var posters []map[string]any
	for _, el := range elements {
		if el["track"] == 3 {
			posters = append(posters, el)
		}
	}
	require.Len(t, posters, 2)

	// poster 1 covers the last 3 s of a 25 s avatar starting after the 1 s intro
	assert.InDelta(t, 1.0+25.0-3.0, posters[0]["time"].(float64), 0.001)
	// poster 2 starts after intro + avatar1 + clip1, inside avatar2's tail
	assert.InDelta(t, 1.0+25.0+8.0+18.0-3.0, posters[1]["time"].(float64), 0.001)
	assert.NotEmpty(t, posters[0]["animations"])
}

func TestBuild_OverlayPostersAfterScrollVideo(t *testing.T) {
	b := newTestBuilder(config.PosterHeygenLast3s)
	in := builderInput(1, "https://res.cloudinary.com/demo/scroll.mp4")
	in.ScrollVideoSeconds = 6.0
	in.AvatarDurations["movie1"] = 20.0

	source, err := b.Build(in)
	require.NoError(t, err)

	var poster map[string]any
	for _, el := range elementsOf(t, source) {
		if el["track"] == 3 {
			poster = el
		}
	}
	require.NotNil(t, poster)
	// the ~6 s screencast, not the 1 s intro image, opens the timeline
	assert.InDelta(t, 6.0+20.0-3.0, poster["time"].(float64), 0.001)
}

func TestBuild_OverlayRequiresScrollDuration(t *testing.T) {
	b := newTestBuilder(config.PosterHeygenLast3s)
	in := builderInput(1, "https://res.cloudinary.com/demo/scroll.mp4")

	_, err := b.Build(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing scroll video duration")
}

func TestBuild_ScrollVideoReplacesIntroImage(t *testing.T) {
	b := newTestBuilder(config.PosterBetweenClips)
	source, err := b.Build(builderInput(1, "https://res.cloudinary.com/demo/scroll.mp4"))
	require.NoError(t, err)

	intro := elementsOf(t, source)[0]
	assert.Equal(t, "video", intro["type"])
	assert.Contains(t, intro["source"], "scroll.mp4")
}

func TestBuild_MissingAssets(t *testing.T) {
	b := newTestBuilder(config.PosterBetweenClips)

	in := builderInput(2, "")
	delete(in.Assets.Clips, "movie2")
	_, err := b.Build(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing clip for movie2")

	in = builderInput(2, "")
	in.AvatarURLs["movie1"] = ""
	_, err = b.Build(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing avatar URL for movie1")
}

func TestBuild_OverlayRequiresDurations(t *testing.T) {
	b := newTestBuilder(config.PosterHeygenLast3s)
	in := builderInput(1, "")
	in.AvatarDurations = map[string]float64{}
	_, err := b.Build(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing avatar duration")
}
