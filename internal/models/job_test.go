package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(TimestampLayout, value)
	require.NoError(t, err)
	return parsed
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobState
		to   JobState
		want bool
	}{
		{"pending to downloading", JobStatePending, JobStateDownloading, true},
		{"downloading to encoding", JobStateDownloading, JobStateEncoding, true},
		{"encoding to uploading", JobStateEncoding, JobStateUploading, true},
		{"uploading to finished", JobStateUploading, JobStateFinished, true},
		{"pending to error", JobStatePending, JobStateError, true},
		{"encoding to error", JobStateEncoding, JobStateError, true},
		{"uploading to abandoned", JobStateUploading, JobStateAbandoned, true},
		{"pending to encoding skips a stage", JobStatePending, JobStateEncoding, false},
		{"downloading to finished skips stages", JobStateDownloading, JobStateFinished, false},
		{"encoding back to downloading", JobStateEncoding, JobStateDownloading, false},
		{"finished to error", JobStateFinished, JobStateError, false},
		{"error to pending", JobStateError, JobStatePending, false},
		{"abandoned to downloading", JobStateAbandoned, JobStateDownloading, false},
		{"unknown state", JobState("BOGUS"), JobStateError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestJobStateClassification(t *testing.T) {
	for _, s := range []JobState{JobStateFinished, JobStateError, JobStateAbandoned} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
		assert.False(t, s.IsActive(), "%s should not be active", s)
	}
	for _, s := range []JobState{JobStatePending, JobStateDownloading, JobStateEncoding, JobStateUploading} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
		assert.True(t, s.IsActive(), "%s should be active", s)
	}
	assert.False(t, JobState("BOGUS").IsActive())
}

func TestTransitionUpdatesRecord(t *testing.T) {
	created := mustTime(t, "2026-01-10 09:00:00.000000")
	moved := mustTime(t, "2026-01-10 09:05:30.123456")

	job := NewJob("file:///in.avi", "file:///out.mp4", "ffmpeg", json.RawMessage(`[{}]`), "")
	job.ID = "abc123"
	job.State = JobStatePending
	job.CreatedAt = created
	job.UpdatedAt = created

	require.NoError(t, job.Transition(JobStateDownloading, "", moved))
	assert.Equal(t, JobStateDownloading, job.State)
	assert.Equal(t, moved, job.UpdatedAt)
	assert.Equal(t, created, job.CreatedAt)
}

func TestTransitionRejectsTerminalWrites(t *testing.T) {
	now := mustTime(t, "2026-01-10 09:00:00.000000")

	for _, terminal := range []JobState{JobStateFinished, JobStateError, JobStateAbandoned} {
		job := &Job{ID: "j1", State: terminal, UpdatedAt: now}
		for _, to := range []JobState{JobStatePending, JobStateDownloading, JobStateError, JobStateAbandoned} {
			err := job.Transition(to, "late write", now.Add(time.Minute))
			assert.Error(t, err, "%s -> %s should be rejected", terminal, to)
			assert.Equal(t, terminal, job.State, "terminal state must not change")
			assert.Equal(t, now, job.UpdatedAt, "rejected write must not bump the timestamp")
		}
	}
}

func TestTransitionTruncatesDetail(t *testing.T) {
	job := &Job{ID: "j1", State: JobStateEncoding}
	long := strings.Repeat("x", 2000) + "TAIL"

	require.NoError(t, job.Transition(JobStateError, long, time.Now()))
	assert.Len(t, job.StateDetail, MaxStateDetailLen)
	assert.True(t, strings.HasSuffix(job.StateDetail, "TAIL"), "truncation must keep the tail")
}

func TestTruncateDetail(t *testing.T) {
	assert.Equal(t, "short", TruncateDetail("short"))
	assert.Equal(t, strings.Repeat("a", MaxStateDetailLen), TruncateDetail(strings.Repeat("a", MaxStateDetailLen)))

	over := strings.Repeat("b", MaxStateDetailLen+1)
	assert.Equal(t, over[1:], TruncateDetail(over))
}

func TestAttributesRoundTrip(t *testing.T) {
	job := &Job{
		ID:          "abc123",
		SourcePath:  "mem://in/video.avi",
		DestPath:    "mem://out/video.mp4",
		Nommer:      "ffmpeg",
		Options:     json.RawMessage(`[{"outfile_options":[["vcodec","libx264"]]}]`),
		State:       JobStateEncoding,
		StateDetail: "pass 1 of 2",
		NotifyURL:   "http://example.com/hook",
		CreatedAt:   mustTime(t, "2026-01-10 09:00:00.000001"),
		UpdatedAt:   mustTime(t, "2026-01-10 09:02:15.654321"),
	}

	attrs := job.Attributes()
	assert.Equal(t, "2026-01-10 09:00:00.000001", attrs[AttrCreationDtime])
	assert.Equal(t, "2026-01-10 09:02:15.654321", attrs[AttrLastModifiedDtime])
	assert.Equal(t, "ENCODING", attrs[AttrJobState])

	got, err := JobFromAttributes(attrs)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestAttributesEmptyOptionsBecomeEmptyDocument(t *testing.T) {
	job := &Job{ID: "j1", State: JobStatePending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	assert.Equal(t, "{}", job.Attributes()[AttrJobOptions])
}

func TestJobFromAttributesRejectsMalformedRows(t *testing.T) {
	good := (&Job{
		ID:        "j1",
		State:     JobStatePending,
		CreatedAt: mustTime(t, "2026-01-10 09:00:00.000000"),
		UpdatedAt: mustTime(t, "2026-01-10 09:00:00.000000"),
	}).Attributes()

	tests := []struct {
		name  string
		attr  string
		value string
	}{
		{"missing id", AttrUniqueID, ""},
		{"unknown state", AttrJobState, "EXPLODED"},
		{"malformed options", AttrJobOptions, "{not json"},
		{"malformed creation time", AttrCreationDtime, "yesterday"},
		{"malformed modification time", AttrLastModifiedDtime, "2026-01-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := make(map[string]string, len(good))
			for k, v := range good {
				attrs[k] = v
			}
			attrs[tt.attr] = tt.value

			_, err := JobFromAttributes(attrs)
			assert.Error(t, err)
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	job := &Job{ID: "j1", State: JobStatePending, Options: json.RawMessage(`[1]`)}
	clone := job.Clone()

	clone.State = JobStateError
	clone.Options[1] = '9'

	assert.Equal(t, JobStatePending, job.State)
	assert.Equal(t, json.RawMessage(`[1]`), job.Options)
}
