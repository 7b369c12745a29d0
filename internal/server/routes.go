package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/chomp/internal/handlers"
)

// setupRoutes builds the API surface: job submission, health and
// metrics.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	jobHandler := handlers.NewJobHandler(
		s.app.Feeder.Writer,
		s.app.Feeder.Cache,
		s.app.Encoders,
		s.app.Backends,
		s.app.Logger,
		s.app.Metrics,
	)
	statusHandler := handlers.NewStatusHandler(s.app.Feeder.Cache)

	mux.HandleFunc("/job/submit", jobHandler.Submit)
	mux.HandleFunc("/health", statusHandler.Health)
	mux.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{}))

	return mux
}
