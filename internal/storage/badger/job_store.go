package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// jobRecord is the persisted row. Every attribute is a string, matching
// the attribute-store schema; parsing happens on load so a corrupt row
// surfaces as a skippable error rather than a poisoned scan.
type jobRecord struct {
	UniqueID          string `badgerhold:"key"`
	SourcePath        string
	DestPath          string
	Nommer            string
	JobOptions        string
	JobState          string
	JobStateDetails   string
	NotifyURL         string
	LastModifiedDtime string
	CreationDtime     string
}

func recordFromJob(job *models.Job) *jobRecord {
	attrs := job.Attributes()
	return &jobRecord{
		UniqueID:          attrs[models.AttrUniqueID],
		SourcePath:        attrs[models.AttrSourcePath],
		DestPath:          attrs[models.AttrDestPath],
		Nommer:            attrs[models.AttrNommer],
		JobOptions:        attrs[models.AttrJobOptions],
		JobState:          attrs[models.AttrJobState],
		JobStateDetails:   attrs[models.AttrJobStateDetails],
		NotifyURL:         attrs[models.AttrNotifyURL],
		LastModifiedDtime: attrs[models.AttrLastModifiedDtime],
		CreationDtime:     attrs[models.AttrCreationDtime],
	}
}

func (r *jobRecord) toJob() (*models.Job, error) {
	return models.JobFromAttributes(map[string]string{
		models.AttrUniqueID:          r.UniqueID,
		models.AttrSourcePath:        r.SourcePath,
		models.AttrDestPath:          r.DestPath,
		models.AttrNommer:            r.Nommer,
		models.AttrJobOptions:        r.JobOptions,
		models.AttrJobState:          r.JobState,
		models.AttrJobStateDetails:   r.JobStateDetails,
		models.AttrNotifyURL:         r.NotifyURL,
		models.AttrLastModifiedDtime: r.LastModifiedDtime,
		models.AttrCreationDtime:     r.CreationDtime,
	})
}

// JobStore is the badgerhold-backed implementation of the job attribute
// store.
type JobStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStore creates a job store on the given connection
func NewJobStore(db *BadgerDB, logger arbor.ILogger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// Put creates or replaces the record for job.ID
func (s *JobStore) Put(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("cannot store job without id")
	}

	record := recordFromJob(job)
	if err := s.db.Store().Upsert(record.UniqueID, record); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("job_state", string(job.State)).
		Msg("Job record stored")

	return nil
}

// Get returns the record for the id, or interfaces.ErrJobNotFound
func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var record jobRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	job, err := record.toJob()
	if err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", id, err)
	}

	return job, nil
}

// ListActive returns every non-terminal job. Rows that fail to parse are
// logged and skipped so one corrupt record cannot stall the controller.
func (s *JobStore) ListActive(ctx context.Context) ([]*models.Job, error) {
	var records []jobRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to scan job records: %w", err)
	}

	jobs := make([]*models.Job, 0, len(records))
	for i := range records {
		job, err := records[i].toJob()
		if err != nil {
			s.logger.Warn().
				Str("job_id", records[i].UniqueID).
				Err(err).
				Msg("Skipping malformed job record")
			continue
		}
		if job.State.IsTerminal() {
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// Wipe drops every job record. Idempotent by construction: deleting
// nothing is success.
func (s *JobStore) Wipe(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&jobRecord{}, nil); err != nil {
		return fmt.Errorf("failed to wipe job records: %w", err)
	}
	s.logger.Info().Msg("Job store wiped")
	return nil
}
