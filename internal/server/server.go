package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/config"
	"github.com/raaihank/mail-sentinel/internal/logger"
	"github.com/raaihank/mail-sentinel/internal/scoring"
	"github.com/raaihank/mail-sentinel/internal/web"
	"github.com/raaihank/mail-sentinel/internal/websocket"
)

// Version is reported by /info
const Version = "0.1.0"

// Server exposes the cleaning pipeline and the scorer over HTTP
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	scorer    *scoring.Scorer
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiter   *RateLimiter
	startedAt time.Time
}

// New creates a new server instance around a ready scorer
func New(cfg *config.Config, log *logger.Logger, scorer *scoring.Scorer) (*Server, error) {
	if scorer == nil {
		return nil, fmt.Errorf("server needs a scorer")
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		scorer:    scorer,
		router:    mux.NewRouter(),
		wsHub:     websocket.NewHub(cfg.WebSocket, log.WithComponent("websocket").Logger),
		limiter:   NewRateLimiter(cfg.RateLimit),
		startedAt: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

	// the upgrade needs the raw ResponseWriter, so /ws stays outside the middleware
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.NewRoute().Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	if s.config.Scoring.Enabled {
		api.HandleFunc("/", s.handleClassify).Methods(http.MethodPost)
	}
	api.HandleFunc("/clean", s.handleClean).Methods(http.MethodPost)
	api.HandleFunc("/thread", s.handleThread).Methods(http.MethodPost)
}

// Handler returns the routed handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub and serves until Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting mail-sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.Float64("threshold", s.scorer.Threshold()),
		zap.Bool("reference_loaded", s.scorer.HasReference()),
		zap.Bool("websocket_enabled", s.config.WebSocket.Enabled))

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanup(ctx)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping mail-sentinel server")
	return s.server.Shutdown(ctx)
}

// Scorer returns the scorer, so config reloads can update its threshold
func (s *Server) Scorer() *scoring.Scorer {
	return s.scorer
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
