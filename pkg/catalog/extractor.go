// Package catalog implements step 1: selecting the top-ranked titles
// matching a job's filter from the relational catalog store.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/streamgank/videogen/pkg/models"
)

// movieQuery joins the localization and genre tables onto movies and
// ranks by popularity. One row per movie: genres are aggregated so the
// LIMIT applies to distinct titles.
const movieQuery = `
SELECT m.id,
       l.title,
       m.release_year,
       array_agg(DISTINCT g.genre) AS genres,
       l.platform_name,
       m.imdb_score,
       m.imdb_votes,
       COALESCE(l.poster_url, ''),
       COALESCE(m.trailer_url, ''),
       COALESCE(m.runtime_minutes, 0)
FROM movies m
JOIN movie_localizations l ON l.movie_id = m.id
JOIN movie_genres g ON g.movie_id = m.id
WHERE l.country_code = $1
  AND l.platform_name = $2
  AND m.content_type = $3
  AND m.id IN (SELECT movie_id FROM movie_genres WHERE genre = $4)
GROUP BY m.id, l.title, m.release_year, l.platform_name,
         m.imdb_score, m.imdb_votes, l.poster_url, m.trailer_url, m.runtime_minutes
ORDER BY m.imdb_score DESC, m.imdb_votes DESC, m.id ASC
LIMIT $5`

// Extractor queries the catalog store.
type Extractor struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExtractor creates an Extractor over an open database handle.
func NewExtractor(db *sql.DB, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{db: db, logger: logger}
}

// Extract returns exactly filter.NumMovies titles ranked by IMDb score
// then votes. Fewer matches than requested is ErrCatalogEmpty; transport
// failures are ErrCatalogUnavailable. The ordering includes the movie ID
// as a tiebreaker, so re-running the same filter returns the same IDs in
// the same order.
func (e *Extractor) Extract(ctx context.Context, filter models.Filter) ([]models.Movie, error) {
	rows, err := e.db.QueryContext(ctx, movieQuery,
		filter.Country, filter.Platform, filter.ContentType, filter.Genre, filter.NumMovies)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	var movies []models.Movie
	for rows.Next() {
		var m models.Movie
		var genres sqlStringArray
		if err := rows.Scan(
			&m.ID, &m.Title, &m.Year, &genres, &m.Platform,
			&m.IMDBScore, &m.IMDBVotes, &m.PosterURL, &m.TrailerURL, &m.RuntimeMinutes,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning movie row: %w", models.ErrCatalogUnavailable, err)
		}
		m.Genres = genres
		if m.Title == "" {
			return nil, fmt.Errorf("%w: movie %d has an empty title", models.ErrCatalogEmpty, m.ID)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrCatalogUnavailable, err)
	}

	if len(movies) < filter.NumMovies {
		return nil, fmt.Errorf("%w: need %d titles for %s/%s/%s/%s, found %d",
			models.ErrCatalogEmpty, filter.NumMovies,
			filter.Country, filter.Platform, filter.Genre, filter.ContentType, len(movies))
	}

	e.logger.Info("Catalog extraction complete",
		"count", len(movies), "top_title", movies[0].Title, "top_score", movies[0].IMDBScore)
	return movies, nil
}
