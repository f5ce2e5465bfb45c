package music

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scenesound/internal/apperror"
	"scenesound/internal/config"
	"scenesound/internal/logger"
	"scenesound/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSuno replays a fixed sequence of clip states; the last one repeats.
type fakeSuno struct {
	mu       sync.Mutex
	states   []clip
	delay    time.Duration
	polls    int
	submits  int32
	lastAuth string
	lastBody generateRequest
}

func (f *fakeSuno) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.submits, 1)
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(clip{ID: "clip-1", Status: models.TrackSubmitted})
	})
	mux.HandleFunc("/clips", func(w http.ResponseWriter, r *http.Request) {
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		var out []clip
		if len(f.states) > 0 {
			i := f.polls
			if i >= len(f.states) {
				i = len(f.states) - 1
			}
			f.polls++
			for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
				if id == f.states[i].ID {
					out = append(out, f.states[i])
				}
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	return mux
}

func (f *fakeSuno) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func newTestClient(t *testing.T, f *fakeSuno) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", srv.Client(), logger.NewNop())
}

func TestSubmit_SendsRequest(t *testing.T) {
	f := &fakeSuno{}
	c := newTestClient(t, f)

	track, err := c.Submit(context.Background(), "lo-fi, chill", "a quiet cafe", true)
	require.NoError(t, err)

	assert.Equal(t, "clip-1", track.ID)
	assert.Equal(t, models.TrackSubmitted, track.Status)
	assert.Equal(t, "Bearer test-key", f.lastAuth)
	assert.Equal(t, generateRequest{Topic: "a quiet cafe", Tags: "lo-fi, chill", MakeInstrumental: true}, f.lastBody)
}

func TestSubmit_ValidatesBeforeNetwork(t *testing.T) {
	f := &fakeSuno{}
	c := newTestClient(t, f)

	_, err := c.Submit(context.Background(), "jazz", strings.Repeat("x", MaxTopicLength+1), false)
	var vErr *apperror.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "topic", vErr.Field)

	_, err = c.Submit(context.Background(), strings.Repeat("t", MaxTagsLength+1), "", false)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "tags", vErr.Field)

	_, err = c.Submit(context.Background(), " ", "", false)
	require.ErrorAs(t, err, &vErr)

	assert.Zero(t, atomic.LoadInt32(&f.submits))
}

func TestSubmit_LimitsCountCharacters(t *testing.T) {
	// 100 multi-byte runes is within the limit even though it is well over 100 bytes.
	assert.NoError(t, ValidateRequest(strings.Repeat("é", MaxTagsLength), ""))
	assert.Error(t, ValidateRequest(strings.Repeat("é", MaxTagsLength+1), ""))
}

func TestSubmit_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k", srv.Client(), logger.NewNop())

	_, err := c.Submit(context.Background(), "jazz", "", false)
	var httpErr *apperror.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "quota exceeded")
}

func TestFetchStatus(t *testing.T) {
	f := &fakeSuno{states: []clip{{ID: "clip-1", Status: models.TrackGenerating, AudioURL: "https://cdn/a.mp3"}}}
	c := newTestClient(t, f)

	tracks, err := c.FetchStatus(context.Background(), []string{"clip-1"})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "https://cdn/a.mp3", tracks[0].AudioURL)

	_, err = c.FetchStatus(context.Background(), []string{"missing"})
	var nf *apperror.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestAwaitCompletion_ReturnsCompletedTrack(t *testing.T) {
	f := &fakeSuno{states: []clip{
		{ID: "clip-1", Status: models.TrackQueued},
		{ID: "clip-1", Status: models.TrackGenerating, AudioURL: "https://cdn/a.mp3"},
		{ID: "clip-1", Status: models.TrackComplete, AudioURL: "https://cdn/a.mp3", Title: "Rainy Window"},
	}}
	c := newTestClient(t, f)

	track, err := c.AwaitCompletion(context.Background(), "clip-1", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.TrackComplete, track.Status)
	assert.Equal(t, "Rainy Window", track.Title)
	assert.Equal(t, 3, f.pollCount())
}

func TestAwaitCompletion_RemoteFailure(t *testing.T) {
	f := &fakeSuno{states: []clip{
		{ID: "clip-1", Status: models.TrackQueued},
		{ID: "clip-1", Status: models.TrackError, ErrorMessage: "content policy"},
	}}
	c := newTestClient(t, f)

	_, err := c.AwaitCompletion(context.Background(), "clip-1", time.Second, time.Millisecond)
	var genErr *apperror.GenerationFailedError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "clip-1", genErr.ClipID)
	assert.Equal(t, "content policy", genErr.Message)
}

func TestAwaitCompletion_TimesOut(t *testing.T) {
	f := &fakeSuno{states: []clip{{ID: "clip-1", Status: models.TrackGenerating}}}
	c := newTestClient(t, f)

	start := time.Now()
	_, err := c.AwaitCompletion(context.Background(), "clip-1", 50*time.Millisecond, 10*time.Millisecond)
	elapsed := time.Since(start)

	var timeoutErr *apperror.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.GreaterOrEqual(t, timeoutErr.Elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.GreaterOrEqual(t, f.pollCount(), 2)
}

func TestAwaitAudioURL_SlowStatusCallHonoursTimeout(t *testing.T) {
	f := &fakeSuno{
		states: []clip{{ID: "clip-1", Status: models.TrackGenerating, AudioURL: "https://cdn/a.mp3"}},
		delay:  1500 * time.Millisecond,
	}
	c := newTestClient(t, f)

	start := time.Now()
	_, err := c.AwaitAudioURL(context.Background(), "clip-1", 100*time.Millisecond, 10*time.Millisecond)
	elapsed := time.Since(start)

	var timeoutErr *apperror.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "await audio url", timeoutErr.Operation)
	assert.Less(t, elapsed, time.Second)
}

func TestAwaitAudioURL_LogsUnknownStatus(t *testing.T) {
	dir := t.TempDir()
	log, err := logger.NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)

	f := &fakeSuno{states: []clip{
		{ID: "clip-1", Status: "streaming"},
		{ID: "clip-1", Status: "streaming"},
		{ID: "clip-1", Status: models.TrackGenerating, AudioURL: "https://cdn/a.mp3"},
	}}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "k", srv.Client(), log)

	track, err := c.AwaitAudioURL(context.Background(), "clip-1", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.mp3", track.AudioURL)

	log.Sync()
	warnings, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(warnings), `unknown status "streaming"`))
}

func TestAwaitAudioURL_ReturnsWhileStillGenerating(t *testing.T) {
	f := &fakeSuno{states: []clip{
		{ID: "clip-1", Status: models.TrackSubmitted},
		{ID: "clip-1", Status: models.TrackGenerating, AudioURL: "https://cdn/a.mp3"},
		{ID: "clip-1", Status: models.TrackComplete, AudioURL: "https://cdn/a.mp3"},
	}}
	c := newTestClient(t, f)

	track, err := c.AwaitAudioURL(context.Background(), "clip-1", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.TrackGenerating, track.Status)
	assert.Equal(t, "https://cdn/a.mp3", track.AudioURL)
	assert.Equal(t, 2, f.pollCount())
}

func TestAwaitAudioURL_CompleteWithoutAudio(t *testing.T) {
	f := &fakeSuno{states: []clip{{ID: "clip-1", Status: models.TrackComplete}}}
	c := newTestClient(t, f)

	_, err := c.AwaitAudioURL(context.Background(), "clip-1", time.Second, time.Millisecond)
	var genErr *apperror.GenerationFailedError
	assert.ErrorAs(t, err, &genErr)
}

func TestAwait_ContextCancelled(t *testing.T) {
	f := &fakeSuno{states: []clip{{ID: "clip-1", Status: models.TrackQueued}}}
	c := newTestClient(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.AwaitCompletion(ctx, "clip-1", time.Minute, 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
