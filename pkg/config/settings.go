// Package config holds environment-driven settings and the static mapping
// tables (genres, platforms, content types, HeyGen templates, Cloudinary
// presets) that resolve a Filter into external-service parameters.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppEnv selects the job-result cache behavior.
// local: read+write cache, dev: write-only, prod: cache disabled.
type AppEnv string

const (
	EnvLocal AppEnv = "local"
	EnvDev   AppEnv = "dev"
	EnvProd  AppEnv = "prod"
)

// PosterStrategy selects how enhanced posters are placed on the timeline.
type PosterStrategy string

const (
	// PosterHeygenLast3s overlays each poster on the last 3 seconds of its
	// avatar video (default).
	PosterHeygenLast3s PosterStrategy = "heygen_last3s"
	// PosterBetweenClips gives each poster its own 3-second sequential slot.
	PosterBetweenClips PosterStrategy = "between_clips"
)

// Settings is the process configuration decoded from the environment.
type Settings struct {
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY" required:"true"`
	HeyGenAPIKey        string `envconfig:"HEYGEN_API_KEY" required:"true"`
	VizardAPIKey        string `envconfig:"VIZARD_API_KEY" required:"true"`
	CreatomateAPIKey    string `envconfig:"CREATOMATE_API_KEY" required:"true"`
	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME" required:"true"`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY" required:"true"`
	CloudinaryAPISecret string `envconfig:"CLOUDINARY_API_SECRET" required:"true"`

	WebhookBaseURL string `envconfig:"WEBHOOK_BASE_URL"`
	AppEnv         AppEnv `envconfig:"APP_ENV" default:"prod"`

	// OpenAIModel is the chat-completion model used for script generation.
	OpenAIModel string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	// PosterStrategy selects the composition poster placement.
	PosterStrategy PosterStrategy `envconfig:"POSTER_STRATEGY" default:"heygen_last3s"`

	// HeyGenTemplateOverride, when set, wins over the genre template table.
	HeyGenTemplateOverride string `envconfig:"HEYGEN_TEMPLATE_ID"`

	// ClipExtractionTimeout bounds the Vizard long-poll per movie.
	ClipExtractionTimeout time.Duration `envconfig:"CLIP_EXTRACTION_TIMEOUT" default:"20m"`

	// Local tool binaries. Empty values resolve on PATH.
	FFmpegBin     string `envconfig:"FFMPEG_BIN"`
	FFprobeBin    string `envconfig:"FFPROBE_BIN"`
	ScreencastBin string `envconfig:"SCREENCAST_BIN" default:"streamgank-screencast"`

	// CacheDir is the root of the dev-mode step-output cache.
	CacheDir string `envconfig:"CACHE_DIR" default:"cache"`

	// LogDir is where per-job workflow logs are written.
	LogDir string `envconfig:"LOG_DIR" default:"logs"`

	// OutroImageURL and BrandBannerURL are fixed composition assets.
	OutroImageURL  string `envconfig:"OUTRO_IMAGE_URL" default:"https://res.cloudinary.com/streamgank/image/upload/streamgank_outro.png"`
	IntroImageURL  string `envconfig:"INTRO_IMAGE_URL" default:"https://res.cloudinary.com/streamgank/image/upload/streamgank_intro.png"`
	BrandBannerURL string `envconfig:"BRAND_BANNER_URL" default:"https://res.cloudinary.com/streamgank/image/upload/streamgank_banner.png"`
}

// Load reads Settings from the environment and validates enum fields.
// Missing required keys surface as a single error before step 1 runs.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("loading settings from environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks enum-valued settings.
func (s *Settings) Validate() error {
	switch s.AppEnv {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("APP_ENV must be local, dev or prod, got %q", s.AppEnv)
	}
	switch s.PosterStrategy {
	case PosterHeygenLast3s, PosterBetweenClips:
	default:
		return fmt.Errorf("POSTER_STRATEGY must be heygen_last3s or between_clips, got %q", s.PosterStrategy)
	}
	return nil
}

// CacheReadEnabled reports whether cached step outputs may be read.
func (s *Settings) CacheReadEnabled() bool { return s.AppEnv == EnvLocal }

// CacheWriteEnabled reports whether step outputs are saved for reuse.
func (s *Settings) CacheWriteEnabled() bool {
	return s.AppEnv == EnvLocal || s.AppEnv == EnvDev
}
