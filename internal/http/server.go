// Package http exposes the JSON API: authentication, the expense ledger,
// categories, budgets, recurring templates, challenges, and the AI insight
// endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const (
	sessionCookie        = "session"
	forecastCacheTTL     = 5 * time.Minute
	forecastCacheSize    = 256
	cacheCleanupInterval = time.Minute
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// Server is the HTTP front end. It owns the listener, the middleware chain,
// and a small per-owner cache for forecast responses.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	logger     *log.Logger

	store      *storage.SQLiteRepository
	expenses   *services.ExpenseService
	roller     *services.RecurringProcessor
	forecasts  *services.ForecastEngine
	challenges *services.ChallengeService
	advisor    *services.Advisor

	rateLimiter   *ratelimit.Limiter
	forecastCache *cache.LRUCache[[]core.BudgetForecast]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires the route table and middleware chain. Any of the service
// dependencies may carry a nil completion client; the degraded behavior lives
// in the services, not here.
func NewServer(
	cfg *config.Config,
	logger *log.Logger,
	store *storage.SQLiteRepository,
	expenses *services.ExpenseService,
	roller *services.RecurringProcessor,
	forecasts *services.ForecastEngine,
	challenges *services.ChallengeService,
	advisor *services.Advisor,
) *Server {
	s := &Server{
		cfg:           cfg,
		logger:        logger.WithComponent(log.ComponentHTTP),
		store:         store,
		expenses:      expenses,
		roller:        roller,
		forecasts:     forecasts,
		challenges:    challenges,
		advisor:       advisor,
		rateLimiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		forecastCache: cache.NewLRUCache[[]core.BudgetForecast](forecastCacheSize, forecastCacheTTL),
		cacheManager:  cache.NewManager(),
	}
	s.cacheManager.Register(s.forecastCache)
	s.cacheManager.StartCleanup(cacheCleanupInterval)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.Handle("GET /api/categories", s.auth(s.handleListCategories))
	mux.Handle("POST /api/categories", s.auth(s.handleCreateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.auth(s.handleDeleteCategory))

	mux.Handle("GET /api/dashboard", s.auth(s.handleDashboard))

	mux.Handle("GET /api/expenses", s.auth(s.handleListExpenses))
	mux.Handle("POST /api/expenses", s.auth(s.handleCreateExpense))
	mux.Handle("GET /api/expenses/{id}", s.auth(s.handleGetExpense))
	mux.Handle("PUT /api/expenses/{id}", s.auth(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", s.auth(s.handleDeleteExpense))

	mux.Handle("GET /api/budgets", s.auth(s.handleListBudgets))
	mux.Handle("POST /api/budgets", s.auth(s.handleUpsertBudget))
	mux.Handle("DELETE /api/budgets/{id}", s.auth(s.handleDeleteBudget))

	mux.Handle("GET /api/recurring", s.auth(s.handleListTemplates))
	mux.Handle("POST /api/recurring", s.auth(s.handleCreateTemplate))
	mux.Handle("POST /api/recurring/process", s.auth(s.handleProcessRecurring))
	mux.Handle("PATCH /api/recurring/{id}", s.auth(s.handlePatchTemplate))
	mux.Handle("DELETE /api/recurring/{id}", s.auth(s.handleDeleteTemplate))

	mux.Handle("GET /api/challenges", s.auth(s.handleListChallenges))
	mux.Handle("POST /api/challenges/generate", s.auth(s.handleGenerateChallenges))
	mux.Handle("POST /api/challenges/{id}/accept", s.auth(s.handleAcceptChallenge))
	mux.Handle("GET /api/challenges/progress", s.auth(s.handleChallengeProgress))

	mux.Handle("POST /api/ai/advice", s.auth(s.handleAdvice))
	mux.Handle("POST /api/ai/parse-expense", s.auth(s.handleParseExpense))
	mux.Handle("GET /api/ai/forecast", s.auth(s.handleForecast))
	mux.Handle("GET /api/ai/budget-suggestions", s.auth(s.handleBudgetSuggestions))
	mux.Handle("POST /api/ai/auto-categorize", s.auth(s.handleAutoCategorize))
	mux.Handle("POST /api/ai/detect-recurring", s.auth(s.handleDetectRecurring))
	mux.Handle("POST /api/ai/query", s.auth(s.handleQuery))
	mux.Handle("POST /api/ai/audit", s.auth(s.handleAudit))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(clientIP)
	limited := s.rateLimiter.Middleware(clientIP, s.onRateLimited)

	handler := headers.Middleware(log.Middleware(s.logger)(tracer.Middleware(limited(mux))))

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the background loops. Safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", clientIP(r), "path", r.URL.Path)
}

// auth resolves the session token from the cookie or the Authorization
// header and stores the owner id in the request context.
func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ownerID, err := s.store.GetSessionUser(r.Context(), token, time.Now())
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "session expired or invalid")
				return
			}
			s.logger.ErrorContext(r.Context(), "Session lookup failed", log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID)))
	})
}

func ownerFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(ownerIDKey).(int64)
	return id
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// invalidateForecast drops the cached forecast for an owner after any write
// that changes what the projection would report.
func (s *Server) invalidateForecast(ownerID int64) {
	s.forecastCache.Delete(strconv.FormatInt(ownerID, 10))
}
