package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/videogen/pkg/models"
)

func sampleRecord() *models.JobRecord {
	return &models.JobRecord{
		JobID:      "job-1",
		WorkflowID: "wf_1723800000_a1b2c3",
		Filter: models.Filter{
			Country: "US", Platform: "Netflix", Genre: "Horror",
			ContentType: "Film", NumMovies: 2,
		},
		Movies: []models.Movie{
			{ID: 11, Title: "First", Year: 2020, Genres: []string{"Horror"}, Platform: "Netflix", IMDBScore: 8.1, IMDBVotes: 120000},
			{ID: 12, Title: "Second", Year: 2019, Genres: []string{"Horror", "Thriller"}, Platform: "Netflix", IMDBScore: 7.4, IMDBVotes: 98000},
		},
		Scripts: &models.ScriptBundle{
			Intro:      "Get ready for the best Horror hits on Netflix.",
			Hooks:      []string{"Hook one.", "Hook two."},
			Individual: map[string]string{"movie1": "Get ready... Hook one.", "movie2": "Hook two."},
		},
		Assets: &models.AssetBundle{
			Posters: map[string]string{"movie1": "https://cdn/p1.png", "movie2": "https://cdn/p2.png"},
			Clips:   map[string]string{"movie1": "https://cdn/c1.mp4", "movie2": "https://cdn/c2.mp4"},
		},
		AvatarJobs: []models.AvatarJob{
			{Slot: "movie1", ExternalID: "hg-1", Status: models.AvatarCompleted, ResultURL: "https://cdn/a1.mp4", ScriptLengthChars: 120},
		},
		CompositionID: "render-9",
		StepTimings:   map[string]time.Duration{"catalog": 2 * time.Second},
		StartedAt:     time.Date(2026, 8, 16, 10, 0, 0, 0, time.UTC),
		Status:        models.JobStatusCompleted,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir(), true, true, nil)
	original := sampleRecord()

	s.Save(original)
	loaded, ok, err := s.Load(original.WorkflowID)
	require.NoError(t, err)
	require.True(t, ok)

	// equivalent modulo StartedAt
	loaded.StartedAt = original.StartedAt
	assert.Equal(t, original, loaded)
}

func TestLoad_Missing(t *testing.T) {
	s := NewStore(t.TempDir(), true, true, nil)
	_, ok, err := s.Load("wf_absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteOnlyMode(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, false, true, nil)
	record := sampleRecord()
	s.Save(record)

	// file exists but reads are disabled
	_, err := os.Stat(filepath.Join(dir, record.WorkflowID+".json"))
	require.NoError(t, err)

	_, ok, err := s.Load(record.WorkflowID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisabledStore(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, false, false, nil)
	s.Save(sampleRecord())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf_bad.json"), []byte("{truncated"), 0o644))

	s := NewStore(dir, true, true, nil)
	_, _, err := s.Load("wf_bad")
	require.Error(t, err)
}
