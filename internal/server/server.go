package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/voyagen/tvvault/api"
	"github.com/voyagen/tvvault/internal/cache"
	"github.com/voyagen/tvvault/internal/config"
	"github.com/voyagen/tvvault/internal/fetcher"
	"github.com/voyagen/tvvault/internal/models"
	"github.com/voyagen/tvvault/internal/service"
	"github.com/voyagen/tvvault/internal/store"
	"github.com/voyagen/tvvault/internal/xtream"
)

// refreshLockTTL bounds how long a crashed instance can hold the
// distributed refresh lock.
const refreshLockTTL = 15 * time.Minute

var errRefreshInFlight = errors.New("a refresh is already in progress")

// Server holds dependencies for the HTTP API.
type Server struct {
	store      store.Store
	cfg        *config.Config
	xtream     *xtream.Client
	httpClient *http.Client
	rds        *cache.Redis // nil when REDIS_URL is not set
	mux        *http.ServeMux
	refreshing atomic.Bool
}

// APIError is the JSON error envelope returned by every handler.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// New creates a Server and registers routes. rds may be nil when Redis is
// not configured; async refresh is then unavailable.
func New(s store.Store, cfg *config.Config, xc *xtream.Client, rds *cache.Redis) *Server {
	srv := &Server{
		store:      s,
		cfg:        cfg,
		xtream:     xc,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		rds:        rds,
		mux:        http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Session / account
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("GET /api/account", s.handleAccount)

	// Catalog
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/categories", s.handleListCategories)
	s.mux.HandleFunc("GET /api/categories/{id}", s.handleGetCategory)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if creds.Username == "" || creds.Password == "" || creds.Server == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("username, password and server are required"))
		return
	}

	release, err := s.acquireRefreshSlot(r.Context())
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	defer release()

	final, err := s.runRefresh(r.Context(), creds)
	if err != nil {
		writeJSON(w, refreshErrStatus(err), final)
		return
	}
	writeJSON(w, http.StatusOK, final)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.GetAccount(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no stored account; log in first"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if s.rds == nil {
			writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("async refresh requires Redis (REDIS_URL not set)"))
			return
		}
		job := cache.RefreshJob{RequestedAt: time.Now().UTC(), Reason: "api"}
		if err := cache.Enqueue(r.Context(), s.rds, cache.RefreshQueue, job); err != nil {
			writeErr(w, http.StatusInternalServerError, fmt.Errorf("enqueue refresh: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}

	release, err := s.acquireRefreshSlot(r.Context())
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	defer release()

	final, err := s.runRefresh(r.Context(), *creds)
	if err != nil {
		writeJSON(w, refreshErrStatus(err), final)
		return
	}
	writeJSON(w, http.StatusOK, final)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.GetAccount(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logged_in": true,
		"username":  creds.Username,
		"server":    creds.Server,
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.GetAccount(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no stored account; log in first"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	info, err := s.xtream.AccountInfo(r.Context(), *creds)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("kind")
	if kindParam == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("kind parameter is required"))
		return
	}
	kind, ok := models.ParseKind(kindParam)
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid kind: %s (use live, series, movie or unknown)", kindParam))
		return
	}

	categories, err := s.store.ListCategoriesByKind(r.Context(), kind)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"kind":       kind,
	})
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	cat, err := s.store.GetCategoryWithItems(r.Context(), categoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("category %d not found", categoryID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

// --- refresh plumbing ---

// acquireRefreshSlot serializes refresh pipelines: an in-process flag for a
// single instance, plus the distributed lock when Redis is available.
func (s *Server) acquireRefreshSlot(ctx context.Context) (func(), error) {
	if !s.refreshing.CompareAndSwap(false, true) {
		return nil, errRefreshInFlight
	}
	release := func() { s.refreshing.Store(false) }

	if s.rds != nil {
		unlock, err := cache.TryLock(ctx, s.rds, cache.RefreshLockKey, refreshLockTTL)
		if err != nil {
			release()
			if errors.Is(err, cache.ErrLocked) {
				return nil, errRefreshInFlight
			}
			return nil, err
		}
		inner := release
		release = func() {
			unlock()
			inner()
		}
	}
	return release, nil
}

// runRefresh drives the pipeline and returns the final status it emitted.
func (s *Server) runRefresh(ctx context.Context, creds models.Credentials) (service.Status, error) {
	var last service.Status
	err := service.Refresh(ctx, s.store, s.xtream, s.httpClient, s.cfg.UserAgent, creds, func(st service.Status) {
		last = st
		log.Printf("refresh: %s", st.Message)
	})
	return last, err
}

// refreshErrStatus maps a pipeline failure to an HTTP status code.
func refreshErrStatus(err error) int {
	var authErr *xtream.AuthError
	var dlErr *fetcher.DownloadError
	var parseErr *fetcher.ParseError
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &dlErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// --- middleware ---

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// --- helpers ---

func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		log.Printf("ERROR %d: %v", status, err)
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

// --- docs handlers ---

func handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.OpenAPISpec)
}

func handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, swaggerUIHTML)
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>TVVault API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box;overflow-y:scroll}*,*:before,*:after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/docs/openapi.yaml",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
    });
  </script>
</body>
</html>`
