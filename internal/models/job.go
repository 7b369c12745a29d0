package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---- Job States ----

// JobState is the lifecycle state of an encoding job.
type JobState string

const (
	JobStatePending     JobState = "PENDING"
	JobStateDownloading JobState = "DOWNLOADING"
	JobStateEncoding    JobState = "ENCODING"
	JobStateUploading   JobState = "UPLOADING"
	JobStateFinished    JobState = "FINISHED"
	JobStateError       JobState = "ERROR"
	JobStateAbandoned   JobState = "ABANDONED"
)

// TimestampLayout is the attribute-store serialization format for all job
// timestamps, with microsecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// MaxStateDetailLen is the attribute-store value limit for the state
// detail field. Longer details keep the tail, where the interesting part
// of an error trace lives.
const MaxStateDetailLen = 1023

// transitions encodes the permitted forward edges of the state machine.
// ERROR is reachable from every active state; ABANDONED likewise, but
// only the controller sweeper writes it.
var transitions = map[JobState][]JobState{
	JobStatePending:     {JobStateDownloading, JobStateError, JobStateAbandoned},
	JobStateDownloading: {JobStateEncoding, JobStateError, JobStateAbandoned},
	JobStateEncoding:    {JobStateUploading, JobStateError, JobStateAbandoned},
	JobStateUploading:   {JobStateFinished, JobStateError, JobStateAbandoned},
	JobStateFinished:    {},
	JobStateError:       {},
	JobStateAbandoned:   {},
}

// IsTerminal reports whether the state is final.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateFinished, JobStateError, JobStateAbandoned:
		return true
	}
	return false
}

// IsActive reports whether the state is non-terminal.
func (s JobState) IsActive() bool {
	_, known := transitions[s]
	return known && !s.IsTerminal()
}

// CanTransition reports whether moving from one state to another is a
// valid edge of the state machine.
func CanTransition(from, to JobState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ---- Job ----

// Job is the durable record for a single transcoding request. The
// attribute store is the source of truth; everything else (queues,
// caches) holds job ids only.
type Job struct {
	ID          string
	SourcePath  string
	DestPath    string
	Nommer      string
	Options     json.RawMessage
	State       JobState
	StateDetail string
	NotifyURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewJob builds an unsaved job record. The id and PENDING state are set
// on first save by the job writer.
func NewJob(sourcePath, destPath, nommer string, options json.RawMessage, notifyURL string) *Job {
	return &Job{
		SourcePath: sourcePath,
		DestPath:   destPath,
		Nommer:     nommer,
		Options:    options,
		NotifyURL:  notifyURL,
	}
}

// Transition moves the job to the given state, recording the detail and
// bumping UpdatedAt. Invalid edges (including any write to a terminal
// job) are rejected.
func (j *Job) Transition(to JobState, detail string, now time.Time) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("invalid job state transition %s -> %s for job %s", j.State, to, j.ID)
	}
	j.State = to
	j.StateDetail = TruncateDetail(detail)
	j.UpdatedAt = now
	return nil
}

// Clone returns a copy of the job record.
func (j *Job) Clone() *Job {
	c := *j
	if j.Options != nil {
		c.Options = append(json.RawMessage(nil), j.Options...)
	}
	return &c
}

// TruncateDetail caps a state detail string to the attribute-store
// limit, keeping the last MaxStateDetailLen characters.
func TruncateDetail(detail string) string {
	if len(detail) <= MaxStateDetailLen {
		return detail
	}
	return detail[len(detail)-MaxStateDetailLen:]
}

// ---- Attribute serialization ----

// Attribute names match the authoritative store schema. Every value
// round-trips as a string; options are stored as a JSON document.
const (
	AttrUniqueID          = "unique_id"
	AttrSourcePath        = "source_path"
	AttrDestPath          = "dest_path"
	AttrNommer            = "nommer"
	AttrJobOptions        = "job_options"
	AttrJobState          = "job_state"
	AttrJobStateDetails   = "job_state_details"
	AttrNotifyURL         = "notify_url"
	AttrLastModifiedDtime = "last_modified_dtime"
	AttrCreationDtime     = "creation_dtime"
)

// Attributes serializes the job to the attribute-store schema.
func (j *Job) Attributes() map[string]string {
	options := string(j.Options)
	if options == "" {
		options = "{}"
	}
	return map[string]string{
		AttrUniqueID:          j.ID,
		AttrSourcePath:        j.SourcePath,
		AttrDestPath:          j.DestPath,
		AttrNommer:            j.Nommer,
		AttrJobOptions:        options,
		AttrJobState:          string(j.State),
		AttrJobStateDetails:   j.StateDetail,
		AttrNotifyURL:         j.NotifyURL,
		AttrLastModifiedDtime: j.UpdatedAt.Format(TimestampLayout),
		AttrCreationDtime:     j.CreatedAt.Format(TimestampLayout),
	}
}

// JobFromAttributes deserializes a job from attribute-store values.
// Malformed rows return an error so store scans can skip them.
func JobFromAttributes(attrs map[string]string) (*Job, error) {
	id := attrs[AttrUniqueID]
	if id == "" {
		return nil, fmt.Errorf("job record missing %s", AttrUniqueID)
	}

	state := JobState(attrs[AttrJobState])
	if _, known := transitions[state]; !known {
		return nil, fmt.Errorf("job %s has unknown state %q", id, attrs[AttrJobState])
	}

	options := json.RawMessage(attrs[AttrJobOptions])
	if len(options) > 0 && !json.Valid(options) {
		return nil, fmt.Errorf("job %s has malformed options", id)
	}

	createdAt, err := time.Parse(TimestampLayout, attrs[AttrCreationDtime])
	if err != nil {
		return nil, fmt.Errorf("job %s has malformed creation time %q: %w", id, attrs[AttrCreationDtime], err)
	}
	updatedAt, err := time.Parse(TimestampLayout, attrs[AttrLastModifiedDtime])
	if err != nil {
		return nil, fmt.Errorf("job %s has malformed modification time %q: %w", id, attrs[AttrLastModifiedDtime], err)
	}

	return &Job{
		ID:          id,
		SourcePath:  attrs[AttrSourcePath],
		DestPath:    attrs[AttrDestPath],
		Nommer:      attrs[AttrNommer],
		Options:     options,
		State:       state,
		StateDetail: attrs[AttrJobStateDetails],
		NotifyURL:   attrs[AttrNotifyURL],
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
