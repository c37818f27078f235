package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/liamcoop/derive/formula"
	"github.com/liamcoop/derive/internal/config"
	"github.com/liamcoop/derive/internal/logger"
	"github.com/liamcoop/derive/transform"
	"github.com/liamcoop/derive/workspace"
)

const slowRequestThreshold = 2 * time.Second

type Server struct {
	db      *sql.DB // nil when running in-memory
	cfg     config.Config
	manager *workspace.Manager
	router  *chi.Mux
}

// NewServer connects to the configured database, or runs in-memory when no
// DATABASE_URL is set
func NewServer(cfg config.Config) (*Server, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, workspaces and rules are kept in memory only")
		return NewServerWithDB(nil, cfg)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewServerWithDB(db, cfg)
}

// NewServerWithDB builds a server on an existing connection. db may be nil.
func NewServerWithDB(db *sql.DB, cfg config.Config) (*Server, error) {
	engine, err := transform.NewEngine(formula.WithCostLimit(cfg.EvalCostLimit))
	if err != nil {
		return nil, err
	}

	manager := workspace.NewManager(db, engine)
	if err := manager.LoadAll(); err != nil {
		return nil, fmt.Errorf("failed to load workspaces: %w", err)
	}

	s := &Server{
		db:      db,
		cfg:     cfg,
		manager: manager,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	r.Route("/api/v1/workspaces", func(r chi.Router) {
		r.Get("/", s.handleListWorkspaces)
		r.Post("/", s.handleCreateWorkspace)

		r.Route("/{workspaceId}", func(r chi.Router) {
			r.Get("/", s.handleGetWorkspace)
			r.Delete("/", s.handleDeleteWorkspace)

			r.Put("/records", s.handleSetRecords)

			// Rule management
			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules/export", s.handleExportRules)
			r.Post("/rules/import", s.handleImportRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Put("/rules/{ruleId}", s.handleUpdateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)
			r.Post("/rules/{ruleId}/move", s.handleMoveRule)
			r.Put("/rules/{ruleId}/enabled", s.handleSetEnabled)

			// Transformation
			r.Post("/apply", s.handleApply)
			r.Get("/summary", s.handleSummary)
			r.Post("/preview", s.handlePreview)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request through the structured logger
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		if elapsed > slowRequestThreshold {
			logger.WarnSlowRequest()
		}
		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", elapsed.String(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	_ = logger.Shutdown(ctx)

	logger.Info("server stopped")
}
