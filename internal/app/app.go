// Package app wires configuration, storage, queues and services into a
// running process. feederd builds the controller app (optionally with an
// embedded worker for single-process deployments); nommerd builds the
// worker app.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/backends"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/compute"
	"github.com/ternarybob/chomp/internal/encoders"
	"github.com/ternarybob/chomp/internal/feeder"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/pipeline"
	"github.com/ternarybob/chomp/internal/queue"
	storagebadger "github.com/ternarybob/chomp/internal/storage/badger"
	"github.com/ternarybob/chomp/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB           *storagebadger.BadgerDB
	JobStore     interfaces.JobStore
	NodeStore    interfaces.NodeStore
	NewJobs      interfaces.Queue
	StateChanges interfaces.Queue
	Compute      interfaces.Compute
	Clock        interfaces.Clock

	Backends *backends.Registry
	Encoders *encoders.Registry

	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	Feeder *feeder.Service
	Worker *worker.Service // nil when this process runs no worker
}

// NewFeeder builds the controller application. When worker.enabled is
// set, an embedded worker shares the process, the database and the
// queues; that is the single-binary local deployment.
func NewFeeder(config *common.Config, logger arbor.ILogger) (*App, error) {
	a, err := newBase(config, logger)
	if err != nil {
		return nil, err
	}

	notifyTimeout := common.Duration(config.Notify.Timeout, 30*time.Second)
	notifier := feeder.NewHTTPNotifier(notifyTimeout, config.Notify.RatePerSecond, config.Notify.Burst, logger, a.Metrics)

	a.Feeder = feeder.NewService(
		config,
		a.JobStore,
		a.NewJobs,
		a.StateChanges,
		a.Compute,
		a.Clock,
		notifier,
		a.Metrics,
		logger,
	)

	if config.Worker.Enabled {
		w, err := a.newWorker()
		if err != nil {
			return nil, err
		}
		a.Worker = w
		logger.Info().Msg("Embedded worker enabled")
	}

	return a, nil
}

// NewWorker builds the standalone worker application for nommerd.
func NewWorker(config *common.Config, logger arbor.ILogger) (*App, error) {
	a, err := newBase(config, logger)
	if err != nil {
		return nil, err
	}

	w, err := a.newWorker()
	if err != nil {
		return nil, err
	}
	a.Worker = w

	return a, nil
}

// newBase wires the pieces both roles share
func newBase(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := storagebadger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	visibility := common.Duration(config.Queue.VisibilityTimeout, time.Hour)

	newJobs, err := queue.NewBadgerQueue(db.Store().Badger(), config.Queue.NewJobQueue, visibility)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create new-job queue: %w", err)
	}
	stateChanges, err := queue.NewBadgerQueue(db.Store().Badger(), config.Queue.StateChangeQueue, visibility)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state-change queue: %w", err)
	}

	registry := prometheus.NewRegistry()

	a := &App{
		Config:       config,
		Logger:       logger,
		DB:           db,
		JobStore:     storagebadger.NewJobStore(db, logger),
		NodeStore:    storagebadger.NewNodeStore(db, logger),
		NewJobs:      newJobs,
		StateChanges: stateChanges,
		Compute:      compute.NewLocalCompute(logger),
		Clock:        common.SystemClock{},
		Registry:     registry,
		Metrics:      metrics.NewCollector(registry),
	}

	a.Backends = buildBackendRegistry()
	a.Encoders = buildEncoderRegistry(config, logger)

	return a, nil
}

func (a *App) newWorker() (*worker.Service, error) {
	writer := jobs.NewWriter(a.JobStore, a.NewJobs, a.StateChanges, a.Clock, a.Logger)
	runner := pipeline.NewRunner(writer, a.Backends, a.Encoders, a.Config.Worker.WorkDir, a.Logger)

	return worker.NewService(
		a.Config,
		a.NewJobs,
		a.JobStore,
		a.NodeStore,
		a.Compute,
		runner,
		a.Clock,
		a.Metrics,
		a.Logger,
	)
}

// buildBackendRegistry wires the storage-scheme table
func buildBackendRegistry() *backends.Registry {
	registry := backends.NewRegistry()

	registry.Register("file", backends.NewFileBackend())

	httpBackend := backends.NewHTTPBackend(&http.Client{Timeout: 5 * time.Minute})
	registry.Register("http", httpBackend)
	registry.Register("https", httpBackend)

	registry.Register("mem", backends.NewMemBackend())

	return registry
}

// buildEncoderRegistry wires the encoder-kind table
func buildEncoderRegistry(config *common.Config, logger arbor.ILogger) *encoders.Registry {
	registry := encoders.NewRegistry()
	registry.Register("ffmpeg", func() encoders.Encoder {
		return encoders.NewFFmpegEncoder(config.Encoding.FFmpegPath, logger)
	})
	registry.Register("noop", func() encoders.Encoder {
		return encoders.NewNoopEncoder()
	})
	return registry
}

// Start launches the configured services
func (a *App) Start(ctx context.Context) error {
	if a.Feeder != nil {
		if err := a.Feeder.Start(ctx); err != nil {
			return err
		}
	}
	if a.Worker != nil {
		if err := a.Worker.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Close stops services and releases storage
func (a *App) Close() error {
	if a.Feeder != nil {
		a.Feeder.Stop()
	}
	if a.Worker != nil {
		a.Worker.Stop()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
