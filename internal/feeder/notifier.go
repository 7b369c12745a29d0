package feeder

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
	"golang.org/x/time/rate"
)

// Notifier delivers state-change callbacks. The contract is best effort:
// one attempt, status logged, never retried. Callers that need
// reliability re-poll the API.
type Notifier interface {
	Notify(ctx context.Context, job *models.Job)
}

// HTTPNotifier POSTs a form-encoded body to the job's notify URL, paced
// by a token bucket so a burst of finished jobs cannot hammer a caller.
type HTTPNotifier struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
	metrics *metrics.Collector
}

func NewHTTPNotifier(timeout time.Duration, perSecond float64, burst int, logger arbor.ILogger, collector *metrics.Collector) *HTTPNotifier {
	if timeout <= 0 || timeout > 30*time.Second {
		timeout = 30 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &HTTPNotifier{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger,
		metrics: collector,
	}
}

// Notify posts {unique_id, job_state, job_state_details} to the job's
// notify URL. The response body is discarded.
func (n *HTTPNotifier) Notify(ctx context.Context, job *models.Job) {
	if job.NotifyURL == "" {
		return
	}

	if err := n.limiter.Wait(ctx); err != nil {
		n.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Callback cancelled while rate limited")
		return
	}

	form := url.Values{
		"unique_id":         {job.ID},
		"job_state":         {string(job.State)},
		"job_state_details": {job.StateDetail},
	}

	resp, err := n.client.PostForm(job.NotifyURL, form)
	if err != nil {
		n.metrics.RecordCallbackFailed()
		n.logger.Warn().
			Str("job_id", job.ID).
			Str("notify_url", job.NotifyURL).
			Err(err).
			Msg("State-change callback failed")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		n.metrics.RecordCallbackFailed()
		n.logger.Warn().
			Str("job_id", job.ID).
			Str("notify_url", job.NotifyURL).
			Int("status", resp.StatusCode).
			Msg("State-change callback rejected")
		return
	}

	n.metrics.RecordCallbackSent()
	n.logger.Info().
		Str("job_id", job.ID).
		Str("job_state", string(job.State)).
		Int("status", resp.StatusCode).
		Msg("State-change callback delivered")
}
