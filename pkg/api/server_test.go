package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/videogen/pkg/metrics"
	"github.com/streamgank/videogen/pkg/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil)
	router := server.Router()

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing fields", body: map[string]any{"country": "US"}},
		{
			name: "bad country code",
			body: map[string]any{
				"country": "USA", "platform": "Netflix",
				"genre": "Horror", "content_type": "Film", "num_movies": 3,
			},
		},
		{
			name: "unknown genre",
			body: map[string]any{
				"country": "US", "platform": "Netflix",
				"genre": "Slapstick", "content_type": "Film", "num_movies": 3,
			},
		},
		{
			name: "negative num_movies",
			body: map[string]any{
				"country": "US", "platform": "Netflix",
				"genre": "Horror", "content_type": "Film", "num_movies": -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStepUpdateWebhook_ReordersBySequence(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil)
	router := server.Router()

	// Deliver out of order, as the fire-and-forget emitter may.
	for _, seq := range []int64{3, 1, 2} {
		event := models.ProgressEvent{
			JobID:      "job-seq",
			StepNumber: int(seq),
			StepName:   "catalog_extraction",
			Status:     models.ProgressStarted,
			Sequence:   seq,
		}
		rec := doJSON(t, router, http.MethodPost, "/api/webhooks/step-update", event)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/jobs/job-seq/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		JobID  string                 `json:"job_id"`
		Events []models.ProgressEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 3)
	assert.Equal(t, int64(1), resp.Events[0].Sequence)
	assert.Equal(t, int64(2), resp.Events[1].Sequence)
	assert.Equal(t, int64(3), resp.Events[2].Sequence)
}

func TestStepUpdateWebhook_RequiresJobID(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil)
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/webhooks/step-update",
		models.ProgressEvent{StepName: "composition"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth_NoDatabaseConfigured(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil)
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Contains(t, resp.Version, "videogen/")
}

func TestSecurityHeaders(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil)
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.CountJob("completed")
	server := NewServer(nil, nil, nil, m, nil)
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "videogen_jobs_total")
}
