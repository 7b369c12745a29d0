// Package pipeline drives a single job through download, encode and
// upload on a worker, writing job state at each stage boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/backends"
	"github.com/ternarybob/chomp/internal/encoders"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/models"
)

// Runner executes the encoding pipeline for one job at a time. One
// runner is shared across encoder tasks; per-job state lives in the
// scratch directory and the job record.
type Runner struct {
	writer   *jobs.Writer
	backends *backends.Registry
	encoders *encoders.Registry
	workRoot string
	logger   arbor.ILogger

	// onStateWrite is called after every successful state write; the
	// worker uses it for idle accounting. May be nil.
	onStateWrite func()
}

func NewRunner(writer *jobs.Writer, backendReg *backends.Registry, encoderReg *encoders.Registry, workRoot string, logger arbor.ILogger) *Runner {
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	return &Runner{
		writer:   writer,
		backends: backendReg,
		encoders: encoderReg,
		workRoot: workRoot,
		logger:   logger,
	}
}

// OnStateWrite registers the activity hook
func (r *Runner) OnStateWrite(fn func()) {
	r.onStateWrite = fn
}

// Run takes a job from PENDING to a terminal state. All failures mark
// the job ERROR; infrastructure errors while marking are logged and the
// sweeper picks the job up later. The scratch directory is removed on
// every exit path, panics included.
func (r *Runner) Run(ctx context.Context, job *models.Job) {
	workDir, err := os.MkdirTemp(r.workRoot, "chomp-job-"+job.ID[:12]+"-")
	if err != nil {
		r.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to create job work directory")
		r.setState(ctx, job, models.JobStateError, fmt.Sprintf("failed to create work directory: %v", err))
		return
	}
	defer os.RemoveAll(workDir)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", rec)).
				Msg("Encoder task panicked")
			r.setState(ctx, job, models.JobStateError, fmt.Sprintf("encoder task panicked: %v", rec))
		}
	}()

	r.logger.Info().
		Str("job_id", job.ID).
		Str("nommer", job.Nommer).
		Msg("Starting encoding pipeline")

	// Download
	if !r.setState(ctx, job, models.JobStateDownloading, "") {
		return
	}
	inputPath := filepath.Join(workDir, "source"+filepath.Ext(job.SourcePath))
	if err := r.download(ctx, job.SourcePath, inputPath); err != nil {
		detail := err.Error()
		if errors.Is(err, backends.ErrSourceNotFound) {
			r.logger.Warn().Str("job_id", job.ID).Str("source", job.SourcePath).Msg("Source object not found")
		}
		r.setState(ctx, job, models.JobStateError, detail)
		return
	}

	// Encode
	if !r.setState(ctx, job, models.JobStateEncoding, "") {
		return
	}
	outputPath := filepath.Join(workDir, "output"+filepath.Ext(job.DestPath))
	if err := r.encode(ctx, job, inputPath, outputPath, workDir); err != nil {
		var failure *encoders.Failure
		if errors.As(err, &failure) {
			r.setState(ctx, job, models.JobStateError, failure.Stderr)
		} else {
			r.setState(ctx, job, models.JobStateError, err.Error())
		}
		return
	}

	// Upload
	if !r.setState(ctx, job, models.JobStateUploading, "") {
		return
	}
	if err := r.upload(ctx, job.DestPath, outputPath); err != nil {
		r.setState(ctx, job, models.JobStateError, err.Error())
		return
	}

	r.setState(ctx, job, models.JobStateFinished, "")
	r.logger.Info().Str("job_id", job.ID).Msg("Job encoded successfully")
}

func (r *Runner) download(ctx context.Context, sourceURI, destPath string) error {
	backend, err := r.backends.ForURI(sourceURI)
	if err != nil {
		return err
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create download target: %w", err)
	}
	defer f.Close()

	if err := backend.Download(ctx, sourceURI, f); err != nil {
		return err
	}
	return f.Sync()
}

func (r *Runner) encode(ctx context.Context, job *models.Job, inputPath, outputPath, workDir string) error {
	encoder, err := r.encoders.New(job.Nommer)
	if err != nil {
		return err
	}

	passCount := 0
	return encoder.Encode(ctx, encoders.Request{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Options:    job.Options,
		ScratchDir: func() (string, error) {
			passCount++
			dir := filepath.Join(workDir, fmt.Sprintf("pass-%d", passCount))
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", err
			}
			return dir, nil
		},
	})
}

func (r *Runner) upload(ctx context.Context, destURI, outputPath string) error {
	backend, err := r.backends.ForURI(destURI)
	if err != nil {
		return err
	}

	f, err := os.Open(outputPath)
	if err != nil {
		return fmt.Errorf("failed to open encoded output: %w", err)
	}
	defer f.Close()

	return backend.Upload(ctx, destURI, f)
}

// setState writes a state transition, reporting success. An invalid
// transition or store failure ends the pipeline; the record keeps its
// last persisted state for the sweeper.
func (r *Runner) setState(ctx context.Context, job *models.Job, to models.JobState, detail string) bool {
	if err := r.writer.SetState(ctx, job, to, detail); err != nil {
		r.logger.Error().
			Str("job_id", job.ID).
			Str("job_state", string(to)).
			Err(err).
			Msg("Failed to write job state")
		return false
	}
	if r.onStateWrite != nil {
		r.onStateWrite()
	}
	return true
}
