package vizard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/project/create", r.URL.Path)
		require.Equal(t, "vz-key", r.Header.Get("VIZARDAI_API_KEY"))

		var req createRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://trailers.example.com/t.mp4", req.VideoURL)
		assert.Equal(t, 1, req.MaxClipNumber)
		assert.Equal(t, 1, req.RatioOfClip)
		assert.Equal(t, []int{1}, req.PreferLength)
		assert.Equal(t, 1, req.RemoveSilence)
		assert.Equal(t, 1, req.HighlightSwitch)
		assert.Equal(t, "auto", req.Lang)

		fmt.Fprint(w, `{"code":1000,"projectId":777}`)
	}))
	defer srv.Close()

	c := NewClient("vz-key", WithBaseURL(srv.URL))
	id, err := c.Submit(context.Background(), "https://trailers.example.com/t.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(777), id)
}

func TestExtractClip_PollsUntilReady(t *testing.T) {
	var queries atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/create":
			fmt.Fprint(w, `{"code":1000,"projectId":5}`)
		case "/project/query/5":
			if queries.Add(1) < 3 {
				fmt.Fprint(w, `{"code":1000}`)
				return
			}
			fmt.Fprint(w, `{"code":2000,"videos":[{"videoUrl":"https://cdn.vizard.ai/clip.mp4","videoMsDuration":17500,"title":"Highlight"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithPollInterval(time.Millisecond))
	clip, err := c.ExtractClip(context.Background(), "https://t.example/t.mp4", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.vizard.ai/clip.mp4", clip.VideoURL)
	assert.Equal(t, 17500*time.Millisecond, clip.Duration)
	assert.GreaterOrEqual(t, queries.Load(), int32(3))
}

func TestExtractClip_BudgetExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/create":
			fmt.Fprint(w, `{"code":1000,"projectId":5}`)
		default:
			fmt.Fprint(w, `{"code":1000}`)
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithPollInterval(time.Millisecond))
	_, err := c.ExtractClip(context.Background(), "https://t.example/t.mp4", 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
}

func TestExtractClip_TerminalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/create":
			fmt.Fprint(w, `{"code":1000,"projectId":5}`)
		default:
			fmt.Fprint(w, `{"code":4001,"errMsg":"unsupported source"}`)
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithPollInterval(time.Millisecond))
	_, err := c.ExtractClip(context.Background(), "https://t.example/t.mp4", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 4001")
}

func TestExtractClip_ReadyButEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/create":
			fmt.Fprint(w, `{"code":2000,"projectId":5}`)
		default:
			fmt.Fprint(w, `{"code":2000,"videos":[]}`)
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithPollInterval(time.Millisecond))
	_, err := c.ExtractClip(context.Background(), "https://t.example/t.mp4", time.Second)
	require.ErrorIs(t, err, ErrNoClips)
}

func TestSubmit_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code":4000,"errMsg":"invalid api key"}`)
	}))
	defer srv.Close()

	c := NewClient("bad", WithBaseURL(srv.URL))
	_, err := c.Submit(context.Background(), "https://t.example/t.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}
