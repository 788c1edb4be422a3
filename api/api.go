// Package api exposes job submission, status, cancellation, cron
// administration and execution history over HTTP.
//
// Routes:
//
//	POST   /v1/jobs                       submit
//	GET    /v1/jobs                       list (status, type, store_id, cron_id, limit, offset)
//	GET    /v1/jobs/counts                counts per status (store_id)
//	GET    /v1/jobs/{jobId}               status view
//	POST   /v1/jobs/{jobId}/cancel        cancel
//	POST   /v1/jobs/{jobId}/retry         retry a failed job
//	GET    /v1/crons                      list definitions
//	POST   /v1/crons                      create
//	GET    /v1/crons/{cronId}             get
//	PUT    /v1/crons/{cronId}             update
//	DELETE /v1/crons/{cronId}             delete
//	POST   /v1/crons/{cronId}/{action}    pause, resume, activate, deactivate
//	GET    /v1/executions                 history (cron_id, job_id, status, from, to, limit, offset)
//	GET    /healthz                       store ping
//
// Errors are returned as {"error": "..."}.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/engine"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	maxBodyBytes = 1 << 20
)

// API serves the dispatch HTTP routes on top of an Engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for request and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API from a dispatch Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return a.logRequests(mux)
}

// RegisterRoutes registers all dispatch routes on mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/jobs", a.submitJob)
	mux.HandleFunc("GET /v1/jobs", a.listJobs)
	mux.HandleFunc("GET /v1/jobs/counts", a.jobCounts)
	mux.HandleFunc("GET /v1/jobs/{jobId}", a.getJob)
	mux.HandleFunc("POST /v1/jobs/{jobId}/cancel", a.cancelJob)
	mux.HandleFunc("POST /v1/jobs/{jobId}/retry", a.retryJob)

	mux.HandleFunc("GET /v1/crons", a.listCrons)
	mux.HandleFunc("POST /v1/crons", a.createCron)
	mux.HandleFunc("GET /v1/crons/{cronId}", a.getCron)
	mux.HandleFunc("PUT /v1/crons/{cronId}", a.updateCron)
	mux.HandleFunc("DELETE /v1/crons/{cronId}", a.deleteCron)
	mux.HandleFunc("POST /v1/crons/{cronId}/{action}", a.cronAction)

	mux.HandleFunc("GET /v1/executions", a.listExecutions)

	mux.HandleFunc("GET /healthz", a.healthz)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Ping(r.Context()); err != nil {
		a.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// badRequest marks a client input error.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps dispatch sentinel errors onto HTTP status codes.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var br *badRequest
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &br),
		errors.Is(err, dispatch.ErrInvalidSchedule),
		errors.Is(err, dispatch.ErrInvalidPriority),
		errors.Is(err, dispatch.ErrEmptyJobType),
		errors.Is(err, dispatch.ErrEmptyCronName):
		status = http.StatusBadRequest
	case errors.Is(err, dispatch.ErrJobNotFound),
		errors.Is(err, dispatch.ErrCronNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrDuplicateCron),
		errors.Is(err, dispatch.ErrCronConflict),
		errors.Is(err, dispatch.ErrJobAlreadyExists),
		errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, dispatch.ErrJobNotPending):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("api request failed", slog.String("error", msg))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("invalid request body: " + err.Error())
	}
	return nil
}

// pagination reads limit and offset, applying the default and cap.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultLimit
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, invalid("limit must be a positive integer")
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, invalid("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func parseTime(r *http.Request, key string) (time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, invalid(key + " must be an RFC3339 timestamp")
	}
	return t, nil
}
