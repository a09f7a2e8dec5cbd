package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lox/spend-advisor/internal/extractor"
	"github.com/lox/spend-advisor/internal/types"
)

// Insights is the model-backed half of the API
type Insights interface {
	AnalyzeSpending(ctx context.Context, filePath string) (*types.StructuredInsights, error)
	PrimeConversationContext(ctx context.Context, sessionID, filePath string) error
	ClassifyTransaction(ctx context.Context, sessionID string, tx types.NewTransaction) (*types.Judgment, error)
	ResetSession(ctx context.Context, sessionID string) error
}

type Config struct {
	Listen         string
	TempDir        string
	MaxUploadBytes int64
	RequestTimeout time.Duration
	Top            int
}

func DefaultConfig() Config {
	return Config{
		Listen:         ":5000",
		TempDir:        os.TempDir(),
		MaxUploadBytes: 10 << 20,
		RequestTimeout: 3 * time.Minute,
		Top:            extractor.DefaultLimit,
	}
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.TempDir == "" {
		return fmt.Errorf("temp dir is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	return nil
}

// Server exposes the extractor and insights over HTTP
type Server struct {
	extractor *extractor.Extractor
	insights  Insights
	logger    *log.Logger
	config    Config
	router    chi.Router
}

// New creates a server and builds its routes
func New(ex *extractor.Extractor, insights Insights, logger *log.Logger, config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(config.TempDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	s := &Server{
		extractor: ex,
		insights:  insights,
		logger:    logger,
		config:    config,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Post("/analyze_spending", s.handleAnalyzeSpending)
	r.Post("/new_transaction", s.handleNewTransaction)
	r.Delete("/sessions/{id}", s.handleResetSession)

	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", s.config.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}
