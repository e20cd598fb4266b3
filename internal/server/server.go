// Package server exposes the HTTP surface of the shortener: the JSON
// management API under /api/v1/urls, the public redirect route, and
// the operational endpoints (banner, health, Prometheus metrics).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
	"github.com/shortr-io/shortr/internal/metrics"
	"github.com/shortr-io/shortr/internal/service"
)

// serviceName is reported by the root banner endpoint.
const serviceName = "shortr"

// Server routes HTTP traffic to the URL service.
type Server struct {
	svc      *service.URLService
	metrics  *metrics.Metrics
	logger   core.Logger
	validate *validator.Validate

	baseURL        string
	environment    string
	requestTimeout time.Duration

	httpServer *http.Server
}

// New builds the server from the runtime configuration. The service is
// required; nil metrics or logger fall back to working defaults.
func New(cfg *config.Config, svc *service.URLService, m *metrics.Metrics, logger core.Logger) (*Server, error) {
	if cfg == nil || svc == nil {
		return nil, &core.ServiceError{
			Op:      "server.New",
			Kind:    "config",
			Message: "config and service are required",
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &Server{
		svc:            svc,
		metrics:        m,
		logger:         logger,
		validate:       validator.New(),
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		environment:    cfg.Environment,
		requestTimeout: cfg.HTTP.RequestTimeout,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
	}, nil
}

// Handler returns the configured router. Exposed separately so tests
// can drive it through httptest without opening a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1/urls", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/{code}", s.handleGet)
		r.Get("/{code}/stats", s.handleStats)
		r.Delete("/{code}", s.handleDelete)
	})

	// The catch-all redirect goes last; chi still prefers the static
	// routes above over the wildcard.
	r.Get("/{code}", s.handleRedirect)

	return r
}

// Start serves HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.httpServer.Handler = s.Handler()

	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr":        s.httpServer.Addr,
		"environment": s.environment,
		"base_url":    s.baseURL,
	})

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)
	return s.httpServer.Shutdown(ctx)
}

// createRequest is the body of POST /api/v1/urls/.
type createRequest struct {
	LongURL string `json:"long_url" validate:"required,http_url"`
}

// urlResponse is a URL record plus the rendered short link.
type urlResponse struct {
	core.URLRecord
	ShortURL string `json:"short_url"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"version": core.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"environment": s.environment,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "long_url must be an absolute http(s) URL")
		return
	}

	rec, err := s.svc.Create(r.Context(), req.LongURL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, s.renderURL(rec))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.renderURL(rec))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	longURL, err := s.svc.Resolve(r.Context(), code)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Record the hit before the redirect is written. Queue trouble is
	// absorbed by the service and never delays the client.
	s.svc.PublishHit(r.Context(), code, service.HitMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	})

	http.Redirect(w, r, longURL, http.StatusFound)
}

func (s *Server) renderURL(rec *core.URLRecord) urlResponse {
	return urlResponse{
		URLRecord: *rec,
		ShortURL:  s.baseURL + "/" + rec.ShortCode,
	}
}

// writeServiceError translates service errors into the API's status
// codes and a stable {"error": "..."} body.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var msg string

	switch {
	case core.IsInvalidInput(err):
		status, msg = http.StatusUnprocessableEntity, "invalid input"
	case core.IsNotFound(err):
		status, msg = http.StatusNotFound, "short url not found"
	case errors.Is(err, core.ErrExhausted):
		status, msg = http.StatusServiceUnavailable, "could not allocate a short code, retry the request"
	case errors.Is(err, core.ErrStorageUnavailable):
		status, msg = http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, core.ErrCapacityExceeded):
		status, msg = http.StatusInternalServerError, "short code capacity exceeded"
	default:
		status, msg = http.StatusInternalServerError, "internal server error"
	}

	// Validation failures carry wording worth passing through.
	if status == http.StatusUnprocessableEntity {
		var svcErr *core.ServiceError
		if errors.As(err, &svcErr) && svcErr.Message != "" {
			msg = svcErr.Message
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", map[string]interface{}{
			"error":      err.Error(),
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		})
	}

	s.respondError(w, status, msg)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
			"remote":     r.RemoteAddr,
		})
	})
}

// clientIP strips the port RemoteAddr usually carries. RealIP already
// replaced the address when a proxy header was present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
