// Package httpapi exposes the alarm controller over a JSON HTTP API. The
// daemon serves it locally; the companion CLI and the coordination endpoint's
// peers speak it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/engine"
	"rouse/internal/logger"
)

// ErrMissingDeviceID means a sync request arrived without the X-Device-ID header.
var ErrMissingDeviceID = errors.New("missing X-Device-ID header")

const (
	// deviceIDHeader identifies the calling device on sync endpoints.
	deviceIDHeader = "X-Device-ID"
	// shutdownTimeout bounds the graceful HTTP shutdown.
	shutdownTimeout = 5 * time.Second
	// readHeaderTimeout guards against slow-header clients.
	readHeaderTimeout = 5 * time.Second
)

// AlarmService is the engine surface the API exposes.
type AlarmService interface {
	CreateSchedule(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error)
	DeleteSchedule(ctx context.Context, id uint64) error
	Schedules(ctx context.Context) ([]*domain.Schedule, error)
	Snooze(ctx context.Context) error
	Dismiss(ctx context.Context) error
	Status(ctx context.Context) (*domain.Status, error)
	Envelope(ctx context.Context) (*domain.SyncEnvelope, error)
	ApplyEnvelope(ctx context.Context, remote *domain.SyncEnvelope) (*domain.SyncEnvelope, domain.RevisionOrder, error)
}

// Server is the HTTP front of the alarm engine.
type Server struct {
	// service is the engine behind the API.
	service AlarmService
	// mux routes requests.
	mux *http.ServeMux
}

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
}

// NewServer builds the API over the given engine surface.
func NewServer(service AlarmService) *Server {
	s := &Server{
		service: service,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /v1/schedules", s.handleListSchedules)
	s.mux.HandleFunc("POST /v1/schedules", s.handleCreateSchedule)
	s.mux.HandleFunc("PUT /v1/schedules/{id}", s.handleUpdateSchedule)
	s.mux.HandleFunc("DELETE /v1/schedules/{id}", s.handleDeleteSchedule)
	s.mux.HandleFunc("POST /v1/snooze", s.handleSnooze)
	s.mux.HandleFunc("POST /v1/dismiss", s.handleDismiss)
	s.mux.HandleFunc("GET /v1/sync", s.handlePullSync)
	s.mux.HandleFunc("POST /v1/sync", s.handlePushSync)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves the API on the given address until the context is canceled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, address string) error {
	ctx = logger.WithName(ctx, "http")

	server := &http.Server{
		Addr:              address,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.InfoKV(ctx, "HTTP API listening", "address", address)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}

		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP API: %w", err)
		}

		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.service.Schedules(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, schedules)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var schedule domain.Schedule
	if !s.readJSON(w, r, &schedule) {
		return
	}

	created, err := s.service.CreateSchedule(r.Context(), &schedule)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusCreated, created)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var schedule domain.Schedule
	if !s.readJSON(w, r, &schedule) {
		return
	}

	// The path is authoritative for the ID.
	schedule.ID = id

	updated, err := s.service.UpdateSchedule(r.Context(), &schedule)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, updated)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.service.DeleteSchedule(r.Context(), id); err != nil {
		s.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Snooze(r.Context()); err != nil {
		s.writeError(w, r, err)

		return
	}

	status, err := s.service.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Dismiss(r.Context()); err != nil {
		s.writeError(w, r, err)

		return
	}

	status, err := s.service.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handlePullSync(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(deviceIDHeader) == "" {
		s.writeError(w, r, ErrMissingDeviceID)

		return
	}

	envelope, err := s.service.Envelope(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, envelope)
}

func (s *Server) handlePushSync(w http.ResponseWriter, r *http.Request) {
	deviceID := r.Header.Get(deviceIDHeader)
	if deviceID == "" {
		s.writeError(w, r, ErrMissingDeviceID)

		return
	}

	var remote domain.SyncEnvelope
	if !s.readJSON(w, r, &remote) {
		return
	}

	winner, order, err := s.service.ApplyEnvelope(r.Context(), &remote)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	logger.DebugKV(r.Context(), "Reconciled pushed envelope",
		"peer_device_id", deviceID, "order", order.String(), "revision", winner.Revision)

	s.writeJSON(w, r, http.StatusOK, winner)
}

// pathID parses the {id} path segment.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed schedule id", domain.ErrValidation))

		return 0, false
	}

	return id, true
}

// readJSON decodes the request body, answering 400 on malformed input.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", domain.ErrValidation, err))

		return false
	}

	return true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WarnKV(r.Context(), "Failed to write HTTP response", "error", err)
	}
}

// writeError maps service errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, ErrMissingDeviceID):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrScheduleNotFound):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrScheduleExists), errors.Is(err, engine.ErrNoActiveRing):
		code = http.StatusConflict
	}

	if code == http.StatusInternalServerError {
		logger.ErrorKV(r.Context(), "HTTP handler failed", "path", r.URL.Path, "error", err)
	}

	s.writeJSON(w, r, code, errorResponse{Error: err.Error()})
}
