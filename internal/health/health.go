// Package observability provides health checks and metrics for the
// crawler.
//
// The Server exposes:
//   - /healthz: Liveness probe (always returns OK)
//   - /readyz: Readiness probe (checks database connectivity)
//   - /metrics: Prometheus metrics endpoint
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Pinger is satisfied by the bulk-campaign database connection pool;
// readiness fails when it cannot be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes liveness, readiness and metrics endpoints.
type Server struct {
	pinger Pinger
	port   int
	logger *zerolog.Logger
}

// NewServer builds a Server. pinger may be nil when no database-backed
// bulk coordinator is configured, in which case /readyz always succeeds.
func NewServer(pinger Pinger, port int, logger *zerolog.Logger) *Server {
	return &Server{pinger: pinger, port: port, logger: logger}
}

// Handler builds the mux serving /healthz, /readyz and /metrics, shared
// by Start and by tests that want to exercise it without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.pinger != nil {
			if err := s.pinger.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, "DB error: %v", err)

				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("health check server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
