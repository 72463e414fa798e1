// Package httpapi is the HTTP Surface (component F): campaign CRUD,
// results download and token issuance, guarded by signed bearer tokens.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hotosm/mapcampaign/internal/apperr"
	corehealth "github.com/hotosm/mapcampaign/internal/core/health"
	mymiddleware "github.com/hotosm/mapcampaign/internal/core/middleware"
	"github.com/hotosm/mapcampaign/internal/core/observability"
	"github.com/hotosm/mapcampaign/internal/health"
	"github.com/hotosm/mapcampaign/internal/model"
	"github.com/hotosm/mapcampaign/internal/store"
)

// Store is the subset of *store.Store the HTTP surface depends on.
type Store interface {
	Save(c model.Campaign) (string, error)
	Load(uuid string) (model.Campaign, error)
	Update(old, next model.Campaign) (model.Campaign, error)
	Delete(uuid string) error
	IsRunning(uuid string) (bool, error)
	List() ([]store.ListItem, error)
	OutputPath(uuid string) string
}

var _ Store = (*store.Store)(nil)

// Runner is the subset of *supervisor.Supervisor the HTTP surface depends
// on: fire a run message after a campaign is persisted.
type Runner interface {
	Enqueue(uuid string) error
}

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(u model.User) (string, error)
	Verify(tok string) (model.User, error)
}

// Server wires the campaign store, run supervisor and token service into
// a chi router.
type Server struct {
	store  Store
	runner Runner
	tokens Tokens
	log    *slog.Logger
	ready  corehealth.ReadinessReporter
}

// New constructs the HTTP surface.
func New(st Store, runner Runner, tokens Tokens, ready corehealth.ReadinessReporter, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: st, runner: runner, tokens: tokens, log: log, ready: ready}
}

// Router builds the chi mux with the full middleware chain and route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(mymiddleware.Recover())
	r.Use(mymiddleware.Logging(s.log))
	r.Use(mymiddleware.CORS())
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", corehealth.Readiness(s.ready))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Post("/token", s.handleIssueToken)
	r.Post("/campaign", s.handleCreateCampaign)
	r.Get("/campaign/{uuid}", s.handleGetCampaign)
	r.Patch("/campaign/{uuid}", s.handlePatchCampaign)
	r.Delete("/campaign/{uuid}", s.handleDeleteCampaign)
	r.Get("/campaigns", s.handleListCampaigns)
	r.Get("/results/{uuid}", s.handleResults)

	return r
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		observability.ObserveHTTP(r.Method, routePattern(r), sw.code, time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrBadRequest, "decode token request"))
		return
	}
	tok, err := s.tokens.Issue(model.User{ID: req.ID, Name: req.Name})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var c model.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrBadRequest, "decode campaign"))
		return
	}
	if err := c.Geom.Validate(); err != nil {
		writeError(w, apperr.Wrapf(apperr.ErrBadRequest, "geom: %v", err))
		return
	}
	if err := c.Tags.Validate(); err != nil {
		writeError(w, apperr.Wrapf(apperr.ErrBadRequest, "tags: %v", err))
		return
	}
	for _, g := range c.GeometryTypes {
		if !g.Valid() {
			writeError(w, apperr.Wrapf(apperr.ErrBadRequest, "unknown geometry type %q", g))
			return
		}
	}

	now := time.Now().UTC()
	c.UUID = strings.ReplaceAll(uuid.New().String(), "-", "")
	c.User = u
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Status = model.StatusCreated

	if _, err := s.store.Save(c); err != nil {
		writeError(w, err)
		return
	}
	if err := s.runner.Enqueue(c.UUID); err != nil {
		s.log.Error("enqueue run", "uuid", c.UUID, "err", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"uuid": c.UUID})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	uuidParam := chi.URLParam(r, "uuid")
	c, err := s.store.Load(uuidParam)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handlePatchCampaign(w http.ResponseWriter, r *http.Request) {
	uuidParam := chi.URLParam(r, "uuid")
	u, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	old, err := s.store.Load(uuidParam)
	if err != nil {
		writeError(w, err)
		return
	}
	if old.User != u {
		writeError(w, apperr.Wrap(apperr.ErrForbidden, "only the creator may modify this campaign"))
		return
	}
	running, err := s.store.IsRunning(uuidParam)
	if err != nil {
		writeError(w, err)
		return
	}
	if running {
		writeError(w, apperr.Wrap(apperr.ErrConflict, "campaign is running"))
		return
	}

	var next model.Campaign
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrBadRequest, "decode campaign"))
		return
	}
	if err := next.Geom.Validate(); err != nil {
		writeError(w, apperr.Wrapf(apperr.ErrBadRequest, "geom: %v", err))
		return
	}

	updated, err := s.store.Update(old, next)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	uuidParam := chi.URLParam(r, "uuid")
	u, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.Load(uuidParam)
	if err != nil {
		writeError(w, err)
		return
	}
	if c.User != u {
		writeError(w, apperr.Wrap(apperr.ErrForbidden, "only the creator may delete this campaign"))
		return
	}
	running, err := s.store.IsRunning(uuidParam)
	if err != nil {
		writeError(w, err)
		return
	}
	if running {
		writeError(w, apperr.Wrap(apperr.ErrConflict, "campaign is running"))
		return
	}
	if err := s.store.Delete(uuidParam); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	uuidParam := chi.URLParam(r, "uuid")
	running, err := s.store.IsRunning(uuidParam)
	if err != nil {
		writeError(w, err)
		return
	}
	if running {
		writeError(w, apperr.Wrap(apperr.ErrConflict, "campaign is still running"))
		return
	}
	f, err := os.Open(s.store.OutputPath(uuidParam))
	if err != nil {
		writeError(w, apperr.Wrapf(apperr.ErrNotFound, "results for %s", uuidParam))
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = io.Copy(w, f)
}

const bearerPrefix = "Bearer "

func (s *Server) authenticate(r *http.Request) (model.User, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return model.User{}, apperr.Wrap(apperr.ErrForbidden, "missing Authorization header")
	}
	auth = strings.TrimPrefix(auth, bearerPrefix)
	return s.tokens.Verify(auth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
