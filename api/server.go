// Package api provides the HTTP REST API server for futurenews.
//
// It exposes endpoints for reading the cached news, triggering a refresh,
// listing categories and sources, and generating future news in batch,
// chunked-stream and WebSocket modes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/internal/generate"
	"github.com/seenimoa/futurenews/internal/llm"
	"github.com/seenimoa/futurenews/internal/news"
	"github.com/seenimoa/futurenews/pkg/logger"
	"github.com/seenimoa/futurenews/pkg/models"
)

// Query parameter bounds for GET /api/news.
const (
	defaultNewsLimit = 10
	maxNewsLimit     = 100
	refreshPageSize  = 20
)

// NewsService is the cache the read endpoints are served from.
type NewsService interface {
	Query(ctx context.Context, f news.Filter) []models.Article
	Refresh(ctx context.Context) news.RefreshResult
	Snapshot() []models.Article
	Categories() []string
	Sources() []string
	AvailableCategories() []string
	Len() int
	LastRefresh() time.Time
}

// GenerationService runs future news generation.
type GenerationService interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error)
	Stream(ctx context.Context, req models.GenerationRequest) (<-chan llm.Fragment, error)
	Models(ctx context.Context) []string
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	news    NewsService
	gen     GenerationService
	log     *zap.Logger
	version string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = logger.OrNop(l) }
}

// WithVersion sets the version reported by / and /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, ns NewsService, gs GenerationService, opts ...Option) *Server {
	srv := &Server{
		cfg:     cfg,
		news:    ns,
		gen:     gs,
		log:     zap.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, letting in-flight requests finish for up to 15 seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// Streaming handlers clear their own write deadline.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if s.cfg != nil && len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Long-lived streams are not bounded by the request timeout.
	r.Post("/api/generation/stream", s.handleGenerateStream)
	r.Get("/api/generation/ws", s.handleGenerationWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(120 * time.Second))

		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)

		// News
		r.Get("/api/news", s.handleNews)
		r.Get("/api/news/categories", s.handleCategories)
		r.Get("/api/news/sources", s.handleSources)
		r.Get("/api/news/available-categories", s.handleAvailableCategories)
		r.Get("/api/news/refresh", s.handleRefresh)
		r.Post("/api/news/refresh", s.handleRefresh)

		// Generation
		r.Post("/api/generation", s.handleGenerate)
		r.Get("/api/generation/models", s.handleModels)

		// Configuration
		r.Get("/api/config", s.handleGetConfig)
		r.Get("/api/config/keys", s.handleGetConfigKeys)
	})

	return r
}

// requestLogger logs one line per request with its status and latency.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServiceInfo is returned by GET /.
type ServiceInfo struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// HealthStatus is returned by GET /health.
type HealthStatus struct {
	Status      string     `json:"status"`
	Version     string     `json:"version"`
	Articles    int        `json:"articles"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ServiceInfo{
			Name:    "futurenews",
			Version: s.version,
			Endpoints: []string{
				"GET /health",
				"GET /api/news",
				"GET /api/news/categories",
				"GET /api/news/sources",
				"GET /api/news/available-categories",
				"POST /api/news/refresh",
				"POST /api/generation",
				"POST /api/generation/stream",
				"GET /api/generation/ws",
				"GET /api/generation/models",
			},
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:   "ok",
		Version:  s.version,
		Articles: s.news.Len(),
	}
	if t := s.news.LastRefresh(); !t.IsZero() {
		status.LastRefresh = &t
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: status})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), defaultNewsLimit)
	if err != nil || limit < 1 || limit > maxNewsLimit {
		writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
		return
	}
	skip, err := intParam(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}

	articles := s.news.Query(r.Context(), news.Filter{
		Category: q.Get("category"),
		Source:   q.Get("source"),
		Limit:    limit,
		Skip:     skip,
	})
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    models.NewsResponse{Count: len(articles), News: articles},
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.news.Categories()})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.news.Sources()})
}

func (s *Server) handleAvailableCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.news.AvailableCategories()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res := s.news.Refresh(r.Context())
	switch {
	case res.Err != nil:
		s.log.Warn("refresh abandoned by client", zap.Error(res.Err))
	case len(res.Errors) > 0:
		s.log.Warn("refresh completed with partition failures",
			zap.Int("failed", len(res.Errors)), zap.Int("articles", res.Articles))
	}
	// Select reads the snapshot as is; Query would refresh an empty one again.
	articles := news.Select(s.news.Snapshot(), news.Filter{Limit: refreshPageSize})
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    models.NewsResponse{Count: len(articles), News: articles},
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerationRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.gen.Generate(r.Context(), req)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

// handleGenerateStream writes model text fragments as a chunked text/plain
// body, flushing after each one. A client disconnect cancels the model call.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerationRequest(w, r)
	if !ok {
		return
	}

	fragments, err := s.gen.Stream(r.Context(), req)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	for frag := range fragments {
		if frag.Err != nil {
			// Headers are already sent; the truncated body is the signal.
			s.log.Warn("generation stream ended with error", zap.Error(frag.Err))
			return
		}
		if _, err := w.Write([]byte(frag.Text)); err != nil {
			s.log.Debug("stream client went away", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.gen.Models(r.Context())})
}

// ============================================================
// Helpers
// ============================================================

func decodeGenerationRequest(w http.ResponseWriter, r *http.Request) (models.GenerationRequest, bool) {
	var req models.GenerationRequest
	// An empty body selects every default.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	return req, true
}

// generationStatus maps a generation error to its HTTP status.
func generationStatus(err error) int {
	switch {
	case errors.Is(err, generate.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, generate.ErrNoContext):
		return http.StatusNotFound
	case llm.IsTransportError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	status := generationStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("generation failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
