// Package handlers implements the controller's JSON API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/backends"
	"github.com/ternarybob/chomp/internal/encoders"
	"github.com/ternarybob/chomp/internal/feeder"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
)

// JobHandler serves POST /job/submit. Validation happens entirely here;
// a rejected request has no side effects.
type JobHandler struct {
	writer   *jobs.Writer
	cache    *feeder.Cache
	encoders *encoders.Registry
	backends *backends.Registry
	validate *validator.Validate
	logger   arbor.ILogger
	metrics  *metrics.Collector
}

func NewJobHandler(writer *jobs.Writer, cache *feeder.Cache, encoderReg *encoders.Registry, backendReg *backends.Registry, logger arbor.ILogger, collector *metrics.Collector) *JobHandler {
	return &JobHandler{
		writer:   writer,
		cache:    cache,
		encoders: encoderReg,
		backends: backendReg,
		validate: validator.New(),
		logger:   logger,
		metrics:  collector,
	}
}

// Submit handles POST /job/submit
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "method not allowed, use POST")
		return
	}

	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	// Required-key checks mirror the documented API contract, in order,
	// before deeper validation.
	if req.SourcePath == "" {
		h.respondError(w, http.StatusBadRequest, "Missing/invalid required key+val: ['source_path']")
		return
	}
	if req.DestPath == "" {
		h.respondError(w, http.StatusBadRequest, "Missing/invalid required key+val: ['dest_path']")
		return
	}
	if req.JobOptions == nil {
		h.respondError(w, http.StatusBadRequest, "Missing/invalid required key+val: ['job_options']")
		return
	}
	if req.JobOptions.Nommer == "" {
		h.respondError(w, http.StatusBadRequest, "Missing/invalid required key+val: ['job_options'][nommer]")
		return
	}
	if len(req.JobOptions.Options) == 0 || string(req.JobOptions.Options) == "null" {
		h.respondError(w, http.StatusBadRequest, "Missing/invalid required key+val: ['job_options'][options]")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	// Unknown encoder kinds and storage schemes fail at submit time,
	// not on a worker.
	if !h.encoders.Known(req.JobOptions.Nommer) {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown encoder kind: %s", req.JobOptions.Nommer))
		return
	}
	if _, err := h.backends.ForURI(req.SourcePath); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid source_path: %v", err))
		return
	}
	if _, err := h.backends.ForURI(req.DestPath); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid dest_path: %v", err))
		return
	}

	job := models.NewJob(req.SourcePath, req.DestPath, req.JobOptions.Nommer, req.JobOptions.Options, req.NotifyURL)
	jobID, err := h.writer.Create(r.Context(), job)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create job")
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	// The controller cache learns about the job immediately rather than
	// waiting for the first state-change tick.
	h.cache.Update(job)
	h.metrics.RecordSubmitted()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.SubmitResponse{
		Success: true,
		JobID:   jobID,
	})
}

func (h *JobHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.logger.Warn().Str("message", message).Msg("Job submission rejected")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.SubmitResponse{
		Success: false,
		Message: message,
	})
}
