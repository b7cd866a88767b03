package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateCatalogIndexes creates the ranking index used by the catalog
// extractor. Kept outside the migration files because the catalog tables
// may be provisioned externally (Supabase) with the same schema.
func CreateCatalogIndexes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_movies_imdb_ranking
		ON movies (imdb_score DESC, imdb_votes DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create imdb ranking index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_video_jobs_claimable
		ON video_jobs (status, created_at)
		WHERE status = 'pending'`)
	if err != nil {
		return fmt.Errorf("failed to create claimable jobs index: %w", err)
	}

	return nil
}
