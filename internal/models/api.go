package models

import "encoding/json"

// SubmitRequest is the POST /job/submit payload.
type SubmitRequest struct {
	SourcePath string            `json:"source_path" validate:"required"`
	DestPath   string            `json:"dest_path" validate:"required"`
	NotifyURL  string            `json:"notify_url" validate:"omitempty,url"`
	JobOptions *SubmitJobOptions `json:"job_options" validate:"required"`
}

// SubmitJobOptions selects the encoder and carries its options verbatim.
type SubmitJobOptions struct {
	Nommer  string          `json:"nommer" validate:"required"`
	Options json.RawMessage `json:"options" validate:"required"`
}

// SubmitResponse is returned for both success and failure; Message is
// populated only on failure, JobID only on success.
type SubmitResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
}
