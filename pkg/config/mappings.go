package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/streamgank/videogen/pkg/models"
)

// canonical genre tokens used by the public catalog URL.
var canonicalGenres = []string{
	"Action & Adventure",
	"Animation",
	"Comedy",
	"Crime",
	"Documentary",
	"Drama",
	"Fantasy",
	"History",
	"Horror",
	"Kids & Family",
	"Made in Europe",
	"Music & Musical",
	"Mystery & Thriller",
	"Reality TV",
	"Romance",
	"Science-Fiction",
	"Sport",
	"War & Military",
	"Western",
}

// genreAliases maps common inputs onto canonical tokens (both directions:
// the canonical tokens themselves always resolve).
var genreAliases = map[string]string{
	"action":          "Action & Adventure",
	"adventure":       "Action & Adventure",
	"family":          "Kids & Family",
	"kids":            "Kids & Family",
	"music":           "Music & Musical",
	"musical":         "Music & Musical",
	"mystery":         "Mystery & Thriller",
	"thriller":        "Mystery & Thriller",
	"sci-fi":          "Science-Fiction",
	"science fiction": "Science-Fiction",
	"scifi":           "Science-Fiction",
	"war":             "War & Military",
	"military":        "War & Military",
	"reality":         "Reality TV",
}

// platformTokens maps display platform names to catalog URL tokens.
var platformTokens = map[string]string{
	"Netflix":     "netflix",
	"Disney+":     "disney",
	"Prime Video": "amazon",
	"HBO Max":     "hbo",
	"Apple TV+":   "apple",
	"Hulu":        "hulu",
	"Paramount+":  "paramount",
}

// PlatformColors provides the badge color for enhanced poster rendering.
var PlatformColors = map[string]string{
	"Netflix":     "#E50914",
	"Disney+":     "#113CCF",
	"Prime Video": "#00A8E1",
	"HBO Max":     "#741DE3",
	"Apple TV+":   "#000000",
	"Hulu":        "#1CE783",
	"Paramount+":  "#0064FF",
}

// contentTypeTokens normalizes content-type inputs (French and English
// aliases included, matching the public catalog).
var contentTypeTokens = map[string]string{
	"film":    "Film",
	"movie":   "Film",
	"série":   "Serie",
	"serie":   "Serie",
	"series":  "Serie",
	"tv show": "Serie",
}

// HeyGen template IDs by genre; unknown genres use DefaultHeyGenTemplate.
var heygenTemplates = map[string]string{
	"Horror": "e2ad0e5c7e71483991536f5c93594e42",
	"Comedy": "15d9eadcb46a45dbbca1834aa0a23ede",
	"Action & Adventure": "e44b139a1b94446a997a7f2ac5ac4178",
}

// DefaultHeyGenTemplate is used when no genre-specific template exists.
const DefaultHeyGenTemplate = "cc6718c5363e42b282a123f99b94b335"

// NormalizeGenre resolves a genre input to its canonical catalog token.
func NormalizeGenre(genre string) (string, error) {
	for _, g := range canonicalGenres {
		if strings.EqualFold(g, genre) {
			return g, nil
		}
	}
	if g, ok := genreAliases[strings.ToLower(strings.TrimSpace(genre))]; ok {
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown genre %q", models.ErrConfigInvalid, genre)
}

// NormalizePlatform resolves a platform display name, case-insensitively.
func NormalizePlatform(platform string) (string, error) {
	for name := range platformTokens {
		if strings.EqualFold(name, platform) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown platform %q", models.ErrConfigInvalid, platform)
}

// NormalizeContentType resolves a content-type input to Film or Serie.
func NormalizeContentType(contentType string) (string, error) {
	if t, ok := contentTypeTokens[strings.ToLower(strings.TrimSpace(contentType))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown content type %q", models.ErrConfigInvalid, contentType)
}

// ValidateFilter normalizes all four string fields of a filter in place.
// Jobs with unresolvable fields fail fast before step 1.
func ValidateFilter(f *models.Filter) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}
	genre, err := NormalizeGenre(f.Genre)
	if err != nil {
		return err
	}
	platform, err := NormalizePlatform(f.Platform)
	if err != nil {
		return err
	}
	contentType, err := NormalizeContentType(f.ContentType)
	if err != nil {
		return err
	}
	f.Genre = genre
	f.Platform = platform
	f.ContentType = contentType
	f.Country = strings.ToUpper(f.Country)
	return nil
}

// CatalogURL builds the public catalog page URL for a validated filter.
// Used by the scroll-screencast capture.
func CatalogURL(f models.Filter) string {
	q := url.Values{}
	q.Set("country", f.Country)
	q.Set("genres", f.Genre)
	q.Set("platforms", platformTokens[f.Platform])
	q.Set("type", f.ContentType)
	return "https://streamgank.com/?" + q.Encode()
}

// HeyGenTemplate returns the template ID for a genre, honoring an override.
func HeyGenTemplate(genre, override string) string {
	if override != "" {
		return override
	}
	if id, ok := heygenTemplates[genre]; ok {
		return id
	}
	return DefaultHeyGenTemplate
}

// FormatVotes renders an IMDB vote count for poster metadata panels
// (e.g. 2300000 -> "2.3M", 15400 -> "15.4K").
func FormatVotes(votes int) string {
	switch {
	case votes >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(votes)/1_000_000)) + "M"
	case votes >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", float64(votes)/1_000)) + "K"
	default:
		return fmt.Sprintf("%d", votes)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
