package api

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/streamgank/videogen/pkg/database"
	"github.com/streamgank/videogen/pkg/models"
	"github.com/streamgank/videogen/pkg/queue"
)

// newTestServer builds a Server over a migrated database. In CI (when
// CI_DATABASE_URL is set) it connects to the external PostgreSQL service
// container; locally it spins up a testcontainer.
func newTestServer(t *testing.T) (*Server, *queue.Store) {
	if testing.Short() {
		t.Skip("skipping API integration test in short mode")
	}
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `DELETE FROM video_jobs`)
	require.NoError(t, err)

	store := queue.NewStore(db)
	client := database.NewClientFromDB(db)
	return NewServer(store, nil, client, nil, nil), store
}

func TestCreateJob_EnqueuesNormalizedFilter(t *testing.T) {
	server, store := newTestServer(t)
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/jobs", map[string]any{
		"country": "us", "platform": "netflix",
		"genre": "horror", "content_type": "film",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Regexp(t, `^wf_\d+_[0-9a-f]{6}$`, resp.WorkflowID)
	assert.Equal(t, "queued", resp.Status)
	// Mapping tables canonicalize the filter before it is stored.
	assert.Equal(t, "US", resp.Filter.Country)
	assert.Equal(t, "Netflix", resp.Filter.Platform)
	assert.Equal(t, "Horror", resp.Filter.Genre)
	assert.Equal(t, 3, resp.Filter.NumMovies)

	state, err := store.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, state.Status)
	assert.Equal(t, resp.WorkflowID, state.WorkflowID)
}

func TestGetJob(t *testing.T) {
	server, store := newTestServer(t)
	router := server.Router()

	filter := models.Filter{
		Country: "FR", Platform: "Netflix", Genre: "Horror",
		ContentType: "Film", NumMovies: 2,
	}
	jobID := "a1f4c3a0-0000-4000-8000-0000000000a0"
	require.NoError(t, store.Enqueue(context.Background(), jobID, "wf_api_get", filter))

	rec := doJSON(t, router, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var state queue.JobState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, models.JobStatusPending, state.Status)
	assert.Equal(t, "FR", state.Filter.Country)

	rec = doJSON(t, router, http.MethodGet, "/api/jobs/a1f4c3a0-0000-4000-8000-0000000000ff", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob_Pending(t *testing.T) {
	server, store := newTestServer(t)
	router := server.Router()

	jobID := "a1f4c3a0-0000-4000-8000-0000000000b0"
	require.NoError(t, store.Enqueue(context.Background(), jobID, "wf_api_cancel", models.Filter{
		Country: "US", Platform: "Netflix", Genre: "Horror",
		ContentType: "Film", NumMovies: 3,
	}))

	rec := doJSON(t, router, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	state, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, state.Status)

	// Terminal jobs cannot be cancelled again.
	rec = doJSON(t, router, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelJob_NotFound(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost,
		"/api/jobs/a1f4c3a0-0000-4000-8000-0000000000ee/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth_WithDatabase(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	require.NotNil(t, resp.Database)
	assert.Equal(t, "healthy", resp.Database.Status)
}
