package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/domain"
	"cuebook/internal/logging"

	"github.com/rs/zerolog"
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPServer exposes the booking engine over JSON/HTTP.
type HTTPServer struct {
	cfg     config.APIConfig
	service domain.BookingService
	checks  []ReadinessCheck
	server  *http.Server
	auth    *HTTPAuth
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc domain.BookingService, logger *zerolog.Logger, checks ...ReadinessCheck) *HTTPServer {
	srv := &HTTPServer{
		cfg:     *cfg,
		service: svc,
		checks:  checks,
		auth:    NewHTTPAuth(*cfg),
		logger:  logging.Component(logger, "http"),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/tables/{id}/availability", routed(srv.handleAvailability))
	api.HandleFunc("GET /api/v1/tables/{id}/reservations", routed(srv.handleTableReservations))
	api.HandleFunc("POST /api/v1/reservations", routed(srv.handleCreateReservation))
	api.HandleFunc("GET /api/v1/reservations/{id}", routed(srv.handleGetReservation))
	api.HandleFunc("POST /api/v1/reservations/{id}/payment", routed(srv.handleProcessPayment))
	api.HandleFunc("POST /api/v1/reservations/{id}/cancel", routed(srv.handleCancelReservation))
	api.HandleFunc("POST /api/v1/reservations/{id}/complete", routed(srv.handleCompleteReservation))
	api.HandleFunc("GET /api/v1/customers/me/reservations", routed(srv.handleMyReservations))

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", routed(srv.handleHealthz))
	root.HandleFunc("GET /readyz", routed(srv.handleReadyz))
	root.Handle("/api/v1/", srv.auth.Wrap(api))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(srv.logger, requestIDMiddleware(root)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("check", c.Name).Msg("readiness check failed")
			result[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[c.Name] = "ok"
	}

	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": result})
}
