// Package ops exposes the read-only operational surface: health,
// pipeline status, bankroll snapshot, and Prometheus metrics. Nothing
// here can mutate pipeline state.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tablerun/tablerun/internal/bankroll"
	"github.com/tablerun/tablerun/internal/stats"
)

// StatusProvider supplies the snapshot served at /status.
type StatusProvider interface {
	Status() Status
}

// Status is the reporting snapshot: session state plus cumulative
// counts.
type Status struct {
	State            string                     `json:"state"`
	HaltReason       string                     `json:"halt_reason,omitempty"`
	HandsProcessed   uint64                     `json:"hands_processed"`
	HandsSkipped     uint64                     `json:"hands_skipped"`
	SignalsByTier    map[string]uint64          `json:"signals_by_tier"`
	Suppressed       uint64                     `json:"suppressed"`
	ModelsDiscarded  uint64                     `json:"models_discarded"`
	Bankroll         bankroll.State             `json:"bankroll"`
	Performance      bankroll.PerformanceReport `json:"performance"`
	Bias             stats.BiasReport           `json:"bias"`
	SessionStartedAt time.Time                  `json:"session_started_at"`
}

// Server is the ops HTTP server.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer wires the ops routes. metricsHandler serves /metrics.
func NewServer(addr string, provider StatusProvider, metricsHandler http.Handler, log zerolog.Logger) *Server {
	r := mux.NewRouter()
	l := log.With().Str("component", "ops").Logger()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Status()); err != nil {
			l.Error().Err(err).Msg("encoding status")
		}
	}).Methods(http.MethodGet)

	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: l,
	}
}

// Start serves until Shutdown. It returns http.ErrServerClosed on
// graceful exit.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("ops server listening")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
