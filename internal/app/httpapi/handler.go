package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobtrackhq/jobtrack/internal/app"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/job"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/metrics"
	"github.com/jobtrackhq/jobtrack/internal/app/services/jobs"
	"github.com/jobtrackhq/jobtrack/internal/app/services/users"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
	"github.com/jobtrackhq/jobtrack/internal/middleware"
	"github.com/jobtrackhq/jobtrack/internal/realtime"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// handler bundles the HTTP endpoints of the application.
type handler struct {
	app   *app.Application
	log   *logger.Logger
	audit *auditLog
}

// Options tunes the outer HTTP surface.
type Options struct {
	AllowedOrigins    []string
	RequestsPerSecond int
	Burst             int
	AuditLogPath      string
}

// NewHandler returns the routed HTTP surface: auth, job CRUD, the realtime
// handshake, and the operational endpoints.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 100
	}

	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		log.WithError(err).Warn("audit log file unavailable, keeping entries in memory only")
	}
	h := &handler{app: application, log: log, audit: newAuditLog(200, sink)}

	cors := middleware.NewCORS(opts.AllowedOrigins)
	guard := middleware.NewAuth(application.Verifier, log)
	limiter := middleware.NewRateLimiter(opts.RequestsPerSecond, opts.Burst, log)

	wsHandler := realtime.NewHandler(application.Registry, func(r *http.Request) bool {
		return cors.IsOriginAllowed(r.Header.Get("Origin"))
	}, log)

	r := mux.NewRouter()
	r.Use(instrument)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", wsHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(guard.Handler, limiter.Handler, h.audit.middleware)
	authed.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)

	// The admin listing must be registered ahead of the parameterised job
	// routes so "admin" is never captured as a record id.
	admin := authed.PathPrefix("/jobs/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/all", h.listAllJobs).Methods(http.MethodGet)

	authed.HandleFunc("/jobs", h.createJob).Methods(http.MethodPost)
	authed.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
	authed.HandleFunc("/jobs/{id}", h.getJob).Methods(http.MethodGet)
	authed.HandleFunc("/jobs/{id}", h.updateJob).Methods(http.MethodPut)
	authed.HandleFunc("/jobs/{id}", h.deleteJob).Methods(http.MethodDelete)

	adminOps := authed.PathPrefix("/admin").Subrouter()
	adminOps.Use(middleware.RequireAdmin)
	adminOps.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	adminOps.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	// CORS wraps the router so preflight requests are answered even when no
	// route matches their method.
	return cors.Handler(r)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "jobtrack",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Auth -------------------------------------------------------------------

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Self-service registration always yields an applicant; admins are
	// provisioned out of band (cmd/seed).
	created, err := h.app.Users.Register(r.Context(), payload.Name, payload.Email, payload.Password, user.RoleApplicant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	_, token, err := h.app.Users.Authenticate(r.Context(), created.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  created.Public(),
		"token": token,
	})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, token, err := h.app.Users.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  u.Public(),
		"token": token,
	})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication error"))
		return
	}
	writeJSON(w, http.StatusOK, u.Public())
}

// --- Jobs -------------------------------------------------------------------

func (h *handler) createJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication error"))
		return
	}

	var payload struct {
		Company     string `json:"company"`
		Role        string `json:"role"`
		Status      string `json:"status"`
		AppliedDate string `json:"appliedDate"`
		Notes       string `json:"notes"`
		Location    string `json:"location"`
		Salary      string `json:"salary"`
		JobURL      string `json:"jobUrl"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	input := jobs.CreateInput{
		Company:  payload.Company,
		Role:     payload.Role,
		Status:   job.Status(payload.Status),
		Notes:    payload.Notes,
		Location: payload.Location,
		Salary:   payload.Salary,
		JobURL:   payload.JobURL,
	}
	if strings.TrimSpace(payload.AppliedDate) != "" {
		parsed, err := parseDate(payload.AppliedDate)
		if err != nil {
			writeValidation(w, []string{"appliedDate"})
			return
		}
		input.AppliedDate = parsed
	}

	created, err := h.app.Jobs.Create(r.Context(), actor, input)
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication error"))
		return
	}

	list, err := h.app.Jobs.List(r.Context(), actor, listOptions(r))
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) listAllJobs(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication error"))
		return
	}

	list, err := h.app.Jobs.ListAll(r.Context(), actor, listOptions(r))
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication error"))
		return
	}

	record, err := h.app.Jobs.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *handler) updateJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication error"))
		return
	}

	// The update payload is an open field set; the service validates it
	// against the whitelist and rejects the request as a whole on any
	// unknown field.
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	defer r.Body.Close()

	updated, err := h.app.Jobs.Update(r.Context(), actor, mux.Vars(r)["id"], fields)
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication error"))
		return
	}

	if err := h.app.Jobs.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.respondJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job application deleted successfully"})
}

// --- Admin ------------------------------------------------------------------

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]user.Public, 0, len(list))
	for _, u := range list {
		out = append(out, u.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) listAudit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.audit.recent())
}

// --- Helpers ----------------------------------------------------------------

func (h *handler) respondJobError(w http.ResponseWriter, err error) {
	var verr *jobs.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr.Fields)
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Job application not found"})
	case errors.Is(err, jobs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "admin access required"})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func listOptions(r *http.Request) jobs.ListOptions {
	q := r.URL.Query()
	sortBy := normalizeSortField(q.Get("sortBy"))
	return jobs.ListOptions{
		Status:   job.Status(q.Get("status")),
		SortBy:   sortBy,
		SortDesc: q.Get("sortOrder") != "asc",
	}
}

// normalizeSortField accepts the client-facing camelCase names alongside the
// storage column names.
func normalizeSortField(field string) string {
	switch field {
	case "", "appliedDate":
		return "applied_date"
	case "createdAt":
		return "created_at"
	default:
		return field
	}
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func writeValidation(w http.ResponseWriter, fields []string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message": "Invalid updates",
		"fields":  fields,
	})
}

// instrument records request metrics using the route template so label
// cardinality stays bounded.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := metrics.RequestStarted()
		defer done()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		metrics.ObserveRequest(r.Method, path, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.written {
		r.status = status
		r.written = true
	}
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer to http.ResponseController users.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes through so the websocket upgrade works behind the metrics
// wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Flush passes through for streaming responses.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
