package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/insight-crawler/internal/config"
	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/metrics"
	"github.com/JakeFAU/insight-crawler/internal/orchestrator"
)

const (
	defaultPendingLimit = 50
	defaultLogLimit     = 20
	maxListLimit        = 500
)

// Service is the pipeline surface the server exposes. *orchestrator.Orchestrator satisfies it.
type Service interface {
	InitializeOrganizations(ctx context.Context) ([]crawler.Organization, error)
	CrawlOrganization(ctx context.Context, slug string) (orchestrator.Result, error)
	CrawlAll(ctx context.Context) ([]orchestrator.Result, error)
	ProcessDocument(ctx context.Context, documentID string) (int, error)
	ProcessPending(ctx context.Context, limit int) (orchestrator.BatchResult, error)
	GetCrawlStats(ctx context.Context) (crawler.Stats, error)
	ListCrawlLogs(ctx context.Context, slug string, limit int) ([]crawler.CrawlLog, error)
}

// Server wires HTTP handlers to the orchestrator.
type Server struct {
	router  chi.Router
	service Service
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service Service, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		if cfg.API.RequestsPerSecond > 0 {
			r.Use(throttleMiddleware(rate.NewLimiter(rate.Limit(cfg.API.RequestsPerSecond), cfg.API.Burst)))
		}
		r.Get("/stats", s.stats)
		r.Post("/crawl", s.crawlAll)
		r.Route("/organizations", func(r chi.Router) {
			r.Post("/init", s.initOrganizations)
			r.Post("/{slug}/crawl", s.crawlOrganization)
			r.Get("/{slug}/crawl-logs", s.listCrawlLogs)
		})
		r.Route("/documents", func(r chi.Router) {
			r.Post("/process-pending", s.processPending)
			r.Post("/{id}/process", s.processDocument)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetCrawlStats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) initOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.service.InitializeOrganizations(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (s *Server) crawlOrganization(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.CrawlOrganization(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) crawlAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.CrawlAll(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) processDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunks, err := s.service.ProcessDocument(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "chunks": chunks})
}

func (s *Server) processPending(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultPendingLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.service.ProcessPending(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) listCrawlLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultLogLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := s.service.ListCrawlLogs(r.Context(), chi.URLParam(r, "slug"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []crawler.CrawlLog{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"crawl_logs": logs})
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxListLimit {
		return 0, errors.New("limit must be an integer between 1 and " + strconv.Itoa(maxListLimit))
	}
	return limit, nil
}

// writeServiceError maps pipeline errors onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var (
		fetchErr      *crawler.FetchError
		complianceErr *crawler.ComplianceError
	)
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, crawler.ErrInactive):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, crawler.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &complianceErr):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &fetchErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// throttleMiddleware rejects requests once the shared token bucket is empty.
func throttleMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := writeJSON(w, status, payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
