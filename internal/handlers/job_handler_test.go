package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/backends"
	"github.com/ternarybob/chomp/internal/encoders"
	"github.com/ternarybob/chomp/internal/feeder"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
	"github.com/ternarybob/chomp/internal/queue"
	"github.com/ternarybob/chomp/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type submitFixture struct {
	handler *JobHandler
	store   *memory.JobStore
	newJobs *queue.MemoryQueue
	cache   *feeder.Cache
}

func newSubmitFixture(t *testing.T) *submitFixture {
	t.Helper()

	store := memory.NewJobStore()
	newJobs := queue.NewMemoryQueue()
	clock := fixedClock{now: time.Now().UTC().Truncate(time.Microsecond)}
	writer := jobs.NewWriter(store, newJobs, queue.NewMemoryQueue(), clock, arbor.NewLogger())
	cache := feeder.NewCache()

	encoderReg := encoders.NewRegistry()
	encoderReg.Register("ffmpeg", func() encoders.Encoder { return encoders.NewFFmpegEncoder("ffmpeg", arbor.NewLogger()) })

	backendReg := backends.NewRegistry()
	backendReg.Register("mem", backends.NewMemBackend())

	collector := metrics.NewCollector(prometheus.NewRegistry())
	handler := NewJobHandler(writer, cache, encoderReg, backendReg, arbor.NewLogger(), collector)

	return &submitFixture{handler: handler, store: store, newJobs: newJobs, cache: cache}
}

func (f *submitFixture) submit(t *testing.T, body string) (*httptest.ResponseRecorder, models.SubmitResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/job/submit", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	f.handler.Submit(rec, req)

	var resp models.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func validBody() string {
	return `{
		"source_path": "mem://in/clip.avi",
		"dest_path": "mem://out/clip.mp4",
		"notify_url": "http://example.com/hook",
		"job_options": {
			"nommer": "ffmpeg",
			"options": [{"outfile_options": [["vcodec","libx264"]]}]
		}
	}`
}

func TestSubmitSuccess(t *testing.T) {
	f := newSubmitFixture(t)

	rec, resp := f.submit(t, validBody())
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.JobID)

	// The record is persisted PENDING and the id is queued for workers.
	stored, err := f.store.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePending, stored.State)
	assert.Equal(t, "mem://in/clip.avi", stored.SourcePath)
	assert.Equal(t, "http://example.com/hook", stored.NotifyURL)

	ids, err := f.newJobs.Pop(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{resp.JobID}, ids)

	// The controller cache learns about the job immediately.
	assert.NotNil(t, f.cache.Get(resp.JobID))
}

func TestSubmitRequiredKeyMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing source_path",
			body: `{"dest_path": "mem://out/c.mp4", "job_options": {"nommer": "ffmpeg", "options": [{}]}}`,
			want: "Missing/invalid required key+val: ['source_path']",
		},
		{
			name: "missing dest_path",
			body: `{"source_path": "mem://in/c.avi", "job_options": {"nommer": "ffmpeg", "options": [{}]}}`,
			want: "Missing/invalid required key+val: ['dest_path']",
		},
		{
			name: "missing job_options",
			body: `{"source_path": "mem://in/c.avi", "dest_path": "mem://out/c.mp4"}`,
			want: "Missing/invalid required key+val: ['job_options']",
		},
		{
			name: "missing nommer",
			body: `{"source_path": "mem://in/c.avi", "dest_path": "mem://out/c.mp4", "job_options": {"options": [{}]}}`,
			want: "Missing/invalid required key+val: ['job_options'][nommer]",
		},
		{
			name: "missing options",
			body: `{"source_path": "mem://in/c.avi", "dest_path": "mem://out/c.mp4", "job_options": {"nommer": "ffmpeg"}}`,
			want: "Missing/invalid required key+val: ['job_options'][options]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSubmitFixture(t)
			rec, resp := f.submit(t, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.want, resp.Message)
		})
	}
}

func TestSubmitRejectsUnknownEncoder(t *testing.T) {
	f := newSubmitFixture(t)
	body := `{
		"source_path": "mem://in/c.avi",
		"dest_path": "mem://out/c.mp4",
		"job_options": {"nommer": "wavpack", "options": [{}]}
	}`

	rec, resp := f.submit(t, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "unknown encoder kind")
}

func TestSubmitRejectsUnknownScheme(t *testing.T) {
	f := newSubmitFixture(t)
	body := `{
		"source_path": "gopher://in/c.avi",
		"dest_path": "mem://out/c.mp4",
		"job_options": {"nommer": "ffmpeg", "options": [{}]}
	}`

	rec, resp := f.submit(t, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "invalid source_path")
}

func TestSubmitRejectsBadJSON(t *testing.T) {
	f := newSubmitFixture(t)

	rec, resp := f.submit(t, `{"source_path": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestSubmitRejectsGet(t *testing.T) {
	f := newSubmitFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/job/submit", nil)
	rec := httptest.NewRecorder()
	f.handler.Submit(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitRejectionHasNoSideEffects(t *testing.T) {
	f := newSubmitFixture(t)

	f.submit(t, `{"source_path": "mem://in/c.avi"}`)

	active, err := f.store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	n, err := f.newJobs.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
