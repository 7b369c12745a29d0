// Package metrics collects Prometheus metrics for the control plane.
// Counters cover job and callback outcomes, gauges cover live load, and
// a histogram tracks end-to-end encode latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the metric instruments. Construct one per process and
// register it on the registry the /metrics endpoint serves.
type Collector struct {
	jobsSubmitted  prometheus.Counter
	jobsFinished   prometheus.Counter
	jobsErrored    prometheus.Counter
	jobsAbandoned  prometheus.Counter
	callbacksSent  prometheus.Counter
	callbacksError prometheus.Counter
	nodesLaunched  prometheus.Counter

	jobsActive      prometheus.Gauge
	nodesActive     prometheus.Gauge
	encodesInFlight prometheus.Gauge

	encodeDuration prometheus.Histogram
}

// NewCollector creates and registers the collector's instruments
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chomp_jobs_submitted_total",
			Help: "Total number of jobs accepted by the submit API",
		}),
		jobsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chomp_jobs_finished_total",
			Help: "Total number of jobs that reached FINISHED",
		}),
		jobsErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chomp_jobs_errored_total",
			Help: "Total number of jobs that reached ERROR",
		}),
		jobsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chomp_jobs_abandoned_total",
			Help: "Total number of jobs abandoned by the sweeper",
		}),
		callbacksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chomp_callbacks_sent_total",
			Help: "Total number of state-change callbacks delivered",
		}),
		callbacksError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chomp_callbacks_failed_total",
			Help: "Total number of state-change callbacks that failed",
		}),
		nodesLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chomp_nodes_launched_total",
			Help: "Total number of worker nodes launched by the autoscaler",
		}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chomp_jobs_active",
			Help: "Current number of non-terminal jobs in the controller cache",
		}),
		nodesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chomp_nodes_active",
			Help: "Worker nodes counted active by the last autoscaler tick",
		}),
		encodesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chomp_encodes_in_flight",
			Help: "Encoder tasks currently running on this worker",
		}),
		encodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chomp_encode_duration_seconds",
			Help:    "Wall time from pipeline start to terminal state",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.jobsSubmitted,
			c.jobsFinished,
			c.jobsErrored,
			c.jobsAbandoned,
			c.callbacksSent,
			c.callbacksError,
			c.nodesLaunched,
			c.jobsActive,
			c.nodesActive,
			c.encodesInFlight,
			c.encodeDuration,
		)
	}

	return c
}

func (c *Collector) RecordSubmitted()          { c.jobsSubmitted.Inc() }
func (c *Collector) RecordFinished()           { c.jobsFinished.Inc() }
func (c *Collector) RecordErrored()            { c.jobsErrored.Inc() }
func (c *Collector) RecordAbandoned()          { c.jobsAbandoned.Inc() }
func (c *Collector) RecordCallbackSent()       { c.callbacksSent.Inc() }
func (c *Collector) RecordCallbackFailed()     { c.callbacksError.Inc() }
func (c *Collector) RecordNodesLaunched(n int) { c.nodesLaunched.Add(float64(n)) }
func (c *Collector) SetJobsActive(n int)       { c.jobsActive.Set(float64(n)) }
func (c *Collector) SetNodesActive(n int)      { c.nodesActive.Set(float64(n)) }
func (c *Collector) EncodeStarted()            { c.encodesInFlight.Inc() }

func (c *Collector) EncodeDone(seconds float64) {
	c.encodesInFlight.Dec()
	c.encodeDuration.Observe(seconds)
}
