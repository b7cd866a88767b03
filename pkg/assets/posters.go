// Package assets builds the AssetBundle for a job: enhanced poster cards,
// vertical trailer clips, and the best-effort scroll screencast.
package assets

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/streamgank/videogen/pkg/cloudinary"
	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/models"
)

// Canvas dimensions for the vertical card.
const (
	cardWidth  = 1080
	cardHeight = 1920

	posterMaxWidth  = 900
	posterMaxHeight = 1100
	panelHeight     = 420
	panelMargin     = 40
)

// Uploader pushes rendered assets to the media CDN. Satisfied by
// *cloudinary.Client.
type Uploader interface {
	UploadImage(ctx context.Context, path, publicID string) (*cloudinary.UploadResult, error)
	UploadVideo(ctx context.Context, path, publicID, preset string) (*cloudinary.UploadResult, error)
}

// Downloader fetches remote files into the per-job temp directory.
// Satisfied by *media.Fetcher.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// PosterRenderer produces one enhanced 1080x1920 poster card per movie.
type PosterRenderer struct {
	fetcher  Downloader
	uploader Uploader
	logger   *slog.Logger
}

// NewPosterRenderer creates a PosterRenderer.
func NewPosterRenderer(fetcher Downloader, uploader Uploader, logger *slog.Logger) *PosterRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PosterRenderer{fetcher: fetcher, uploader: uploader, logger: logger}
}

// Render downloads the movie's key art, composes the card, and uploads
// it under enhanced_posters/{safe_title}_{id}. A failed poster download
// degrades to a solid-color metadata card rather than failing the movie.
func (p *PosterRenderer) Render(ctx context.Context, movie models.Movie, tempDir string) (string, error) {
	var card image.Image

	posterPath := filepath.Join(tempDir, fmt.Sprintf("poster_%d_src", movie.ID))
	if err := p.fetcher.Download(ctx, movie.PosterURL, posterPath); err != nil {
		p.logger.Warn("Poster download failed, using fallback card",
			"movie_id", movie.ID, "error", err)
		card = p.fallbackCard(movie)
	} else {
		src, err := imaging.Open(posterPath)
		if err != nil {
			p.logger.Warn("Poster decode failed, using fallback card",
				"movie_id", movie.ID, "error", err)
			card = p.fallbackCard(movie)
		} else {
			card = p.composeCard(src, movie)
		}
	}

	outPath := filepath.Join(tempDir, fmt.Sprintf("poster_%d.png", movie.ID))
	if err := imaging.Save(card, outPath); err != nil {
		return "", fmt.Errorf("saving poster card: %w", err)
	}

	publicID := cloudinary.SafePublicID("enhanced_posters", movie.Title, movie.ID, "")
	result, err := p.uploader.UploadImage(ctx, outPath, publicID)
	if err != nil {
		return "", fmt.Errorf("uploading poster for movie %d: %w", movie.ID, err)
	}
	return result.SecureURL, nil
}

// composeCard layers the blurred poster background, the centered
// original, and the metadata panel.
func (p *PosterRenderer) composeCard(poster image.Image, movie models.Movie) image.Image {
	background := imaging.Fill(poster, cardWidth, cardHeight, imaging.Center, imaging.Lanczos)
	background = imaging.Blur(background, 18)
	background = imaging.AdjustSaturation(background, -25)
	background = imaging.AdjustBrightness(background, -20)

	foreground := imaging.Fit(poster, posterMaxWidth, posterMaxHeight, imaging.Lanczos)

	dc := gg.NewContext(cardWidth, cardHeight)
	dc.DrawImage(background, 0, 0)

	fgX := (cardWidth - foreground.Bounds().Dx()) / 2
	fgY := 180
	drawShadowedImage(dc, foreground, fgX, fgY)

	p.drawPanel(dc, movie)
	return dc.Image()
}

// fallbackCard renders the metadata-only card on a flat dark canvas.
func (p *PosterRenderer) fallbackCard(movie models.Movie) image.Image {
	dc := gg.NewContext(cardWidth, cardHeight)
	dc.SetColor(color.RGBA{R: 0x14, G: 0x18, B: 0x22, A: 0xff})
	dc.Clear()

	setFontFace(dc, 72)
	dc.SetColor(color.White)
	dc.DrawStringWrapped(movie.Title, cardWidth/2, 700, 0.5, 0.5, cardWidth-160, 1.3, gg.AlignCenter)

	p.drawPanel(dc, movie)
	return dc.Image()
}

// drawPanel paints the bottom metadata panel: title, year and runtime,
// score with formatted votes, platform badge, genre chips.
func (p *PosterRenderer) drawPanel(dc *gg.Context, movie models.Movie) {
	panelTop := float64(cardHeight - panelHeight)

	dc.SetRGBA(0, 0, 0, 0.62)
	dc.DrawRoundedRectangle(panelMargin, panelTop, cardWidth-2*panelMargin, panelHeight-panelMargin, 28)
	dc.Fill()

	textX := float64(panelMargin * 2)
	y := panelTop + 80

	setFontFace(dc, 56)
	drawShadowedString(dc, movie.Title, textX, y)
	y += 72

	setFontFace(dc, 36)
	meta := fmt.Sprintf("%d", movie.Year)
	if movie.RuntimeMinutes > 0 {
		meta = fmt.Sprintf("%s  ·  %d min", meta, movie.RuntimeMinutes)
	}
	drawShadowedString(dc, meta, textX, y)
	y += 58

	score := fmt.Sprintf("IMDb %.1f (%s votes)", movie.IMDBScore, config.FormatVotes(movie.IMDBVotes))
	drawShadowedString(dc, score, textX, y)
	y += 70

	badgeColor := platformBadgeColor(movie.Platform)
	badgeW := float64(len(movie.Platform))*22 + 48
	dc.SetColor(badgeColor)
	dc.DrawRoundedRectangle(textX, y-40, badgeW, 56, 12)
	dc.Fill()
	dc.SetColor(color.White)
	dc.DrawString(movie.Platform, textX+24, y)
	y += 80

	chipX := textX
	for _, genre := range movie.Genres {
		chipW := float64(len(genre))*18 + 36
		if chipX+chipW > cardWidth-2*panelMargin {
			break
		}
		dc.SetRGBA(1, 1, 1, 0.18)
		dc.DrawRoundedRectangle(chipX, y-34, chipW, 48, 24)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawString(genre, chipX+18, y)
		chipX += chipW + 18
	}
}

// drawShadowedImage draws img with a soft offset shadow underneath.
func drawShadowedImage(dc *gg.Context, img image.Image, x, y int) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dc.SetRGBA(0, 0, 0, 0.45)
	dc.DrawRoundedRectangle(float64(x+10), float64(y+14), float64(w), float64(h), 16)
	dc.Fill()
	dc.DrawImage(img, x, y)
}

// drawShadowedString draws text twice, offset dark copy first, for
// readability over varied backgrounds.
func drawShadowedString(dc *gg.Context, s string, x, y float64) {
	dc.SetRGBA(0, 0, 0, 0.8)
	dc.DrawString(s, x+2, y+3)
	dc.SetColor(color.White)
	dc.DrawString(s, x, y)
}

func platformBadgeColor(platform string) color.Color {
	if hex, ok := config.PlatformColors[platform]; ok {
		if c, err := parseHexColor(hex); err == nil {
			return c
		}
	}
	return color.RGBA{R: 0x44, G: 0x44, B: 0x55, A: 0xff}
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("bad hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, err
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// System sans-serif candidates; the bitmap face is the last resort so
// card rendering never fails on a fontless host.
var fontCandidates = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
}

func setFontFace(dc *gg.Context, size float64) {
	for _, path := range fontCandidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := dc.LoadFontFace(path, size); err == nil {
			return
		}
	}
	dc.SetFontFace(fallbackFace())
}

func fallbackFace() font.Face {
	return basicfont.Face7x13
}
