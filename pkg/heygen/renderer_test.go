package heygen

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/videogen/pkg/models"
)

// fakeHeyGen simulates the template-generate and status endpoints.
// Each submitted script maps to a scripted sequence of poll statuses.
type fakeHeyGen struct {
	mu       sync.Mutex
	statuses map[string][]string // video_id -> successive poll statuses
	urls     map[string]string
	submits  int
	polls    map[string]int
}

func newFakeHeyGen() *fakeHeyGen {
	return &fakeHeyGen{
		statuses: make(map[string][]string),
		urls:     make(map[string]string),
		polls:    make(map[string]int),
	}
}

func (f *fakeHeyGen) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/template/"):
			f.submits++
			id := fmt.Sprintf("vid-%d", f.submits)
			fmt.Fprintf(w, `{"data":{"video_id":"%s"}}`, id)
		case r.URL.Path == "/v1/video_status.get":
			id := r.URL.Query().Get("video_id")
			seq := f.statuses[id]
			idx := f.polls[id]
			if idx >= len(seq) {
				idx = len(seq) - 1
			}
			f.polls[id]++
			status := seq[idx]
			if status == "completed" {
				fmt.Fprintf(w, `{"data":{"status":"completed","video_url":"%s"}}`, f.urls[id])
			} else {
				fmt.Fprintf(w, `{"data":{"status":"%s"}}`, status)
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
}

func fastRenderer(c *Client) *Renderer {
	r := NewRenderer(c, nil)
	r.pollInterval = func(time.Duration) time.Duration { return time.Millisecond }
	r.pollTimeout = func(int) time.Duration { return 500 * time.Millisecond }
	return r
}

func TestRenderAll_AllComplete(t *testing.T) {
	fake := newFakeHeyGen()
	fake.statuses["vid-1"] = []string{"processing", "completed"}
	fake.statuses["vid-2"] = []string{"completed"}
	fake.statuses["vid-3"] = []string{"processing", "processing", "completed"}
	fake.urls["vid-1"] = "https://cdn.heygen.com/1.mp4"
	fake.urls["vid-2"] = "https://cdn.heygen.com/2.mp4"
	fake.urls["vid-3"] = "https://cdn.heygen.com/3.mp4"

	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	r := fastRenderer(NewClient("k", WithBaseURL(srv.URL)))
	jobs, err := r.RenderAll(context.Background(), "tmpl", map[string]string{
		"movie1": "script one", "movie2": "script two", "movie3": "script three",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	urls := make(map[string]bool)
	for _, job := range jobs {
		assert.Equal(t, models.AvatarCompleted, job.Status)
		assert.NotEmpty(t, job.ResultURL)
		urls[job.ResultURL] = true
	}
	assert.Len(t, urls, 3, "every slot gets a distinct result URL")
	// Sorted by slot.
	assert.Equal(t, "movie1", jobs[0].Slot)
	assert.Equal(t, "movie3", jobs[2].Slot)
}

func TestRenderAll_OneSlotFails(t *testing.T) {
	fake := newFakeHeyGen()
	fake.statuses["vid-1"] = []string{"completed"}
	fake.statuses["vid-2"] = []string{"processing"} // never terminal -> timeout
	fake.statuses["vid-3"] = []string{"completed"}
	fake.urls["vid-1"] = "https://cdn.heygen.com/1.mp4"
	fake.urls["vid-3"] = "https://cdn.heygen.com/3.mp4"

	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	r := fastRenderer(NewClient("k", WithBaseURL(srv.URL)))
	jobs, err := r.RenderAll(context.Background(), "tmpl", map[string]string{
		"movie1": "a", "movie2": "b", "movie3": "c",
	})
	require.ErrorIs(t, err, models.ErrAvatarRenderFailed)
	require.Len(t, jobs, 3)

	byStatus := map[models.AvatarJobStatus]int{}
	for _, job := range jobs {
		byStatus[job.Status]++
	}
	// Peers are not cancelled: the two healthy slots still completed and
	// their result URLs are recorded.
	assert.Equal(t, 2, byStatus[models.AvatarCompleted])
	assert.Equal(t, 1, byStatus[models.AvatarFailed])
}

func TestRenderAll_RemoteFailure(t *testing.T) {
	fake := newFakeHeyGen()
	fake.statuses["vid-1"] = []string{"processing", "failed"}

	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	r := fastRenderer(NewClient("k", WithBaseURL(srv.URL)))
	jobs, err := r.RenderAll(context.Background(), "tmpl", map[string]string{"movie1": "a"})
	require.ErrorIs(t, err, models.ErrAvatarRenderFailed)
	assert.Equal(t, models.AvatarFailed, jobs[0].Status)
}

func TestRenderAll_Cancellation(t *testing.T) {
	fake := newFakeHeyGen()
	fake.statuses["vid-1"] = []string{"processing"}

	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := fastRenderer(NewClient("k", WithBaseURL(srv.URL)))
	r.pollTimeout = func(int) time.Duration { return time.Hour }

	done := make(chan struct{})
	go func() {
		_, err := r.RenderAll(ctx, "tmpl", map[string]string{"movie1": "a"})
		assert.ErrorIs(t, err, models.ErrAvatarRenderFailed)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RenderAll did not return after cancellation")
	}
}

func TestRenderAll_RecordsScriptLength(t *testing.T) {
	fake := newFakeHeyGen()
	fake.statuses["vid-1"] = []string{"completed"}
	fake.urls["vid-1"] = "https://cdn.heygen.com/1.mp4"

	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	script := strings.Repeat("x", 450)
	r := fastRenderer(NewClient("k", WithBaseURL(srv.URL)))
	jobs, err := r.RenderAll(context.Background(), "tmpl", map[string]string{"movie1": script})
	require.NoError(t, err)
	assert.Equal(t, 450, jobs[0].ScriptLengthChars)
}
