package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/audit"
	"github.com/raaihank/text-anonymizer/internal/cache"
	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
	"github.com/raaihank/text-anonymizer/internal/web"
	"github.com/raaihank/text-anonymizer/internal/websocket"
)

const (
	statusInterval   = 30 * time.Second
	limiterIdleAfter = 10 * time.Minute
)

// PatternDetector is the pattern detector as seen by the server
type PatternDetector interface {
	anonymizer.PatternDetector
	EnabledRules() []string
}

// AuditStore persists and reads back anonymization records
type AuditStore interface {
	Insert(ctx context.Context, rec *audit.Record) error
	Recent(ctx context.Context, limit int) ([]*audit.Record, error)
	GetStats(ctx context.Context) (*audit.Stats, error)
}

// CacheStats reports detection cache statistics
type CacheStats interface {
	GetStats(ctx context.Context) (*cache.Stats, error)
}

// Server exposes the anonymization engine over HTTP
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	patterns PatternDetector
	semantic anonymizer.SemanticDetector
	audit    AuditStore
	cache    CacheStats
	hub      *websocket.Hub
	limiter  *RateLimiter
	router   *mux.Router
	server   *http.Server

	startedAt     time.Time
	totalRequests atomic.Int64
	totalEntities atomic.Int64
	cancel        context.CancelFunc
}

// Option configures a Server
type Option func(*Server)

// WithAuditStore records every anonymization in store
func WithAuditStore(store AuditStore) Option {
	return func(s *Server) {
		s.audit = store
	}
}

// WithCacheStats exposes detection cache statistics on /stats
func WithCacheStats(c CacheStats) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// New creates a new server instance. Detectors are shared across
// requests; every request gets its own Engine.
func New(cfg *config.Config, log *logger.Logger, patterns PatternDetector, semantic anonymizer.SemanticDetector, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		patterns:  patterns,
		semantic:  semantic,
		limiter:   NewRateLimiter(cfg.RateLimit),
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.WebSocket.Enabled {
		s.hub = websocket.NewHub(cfg.WebSocket, log)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/audit/recent", s.handleRecentAudit).Methods(http.MethodGet)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

	// The websocket route stays outside the logging middleware, whose
	// response writer cannot be hijacked.
	if s.hub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
	}

	anonymize := s.loggingMiddleware(s.rateLimitMiddleware(http.HandlerFunc(s.handleAnonymize)))
	s.router.Handle("/anonymize", anonymize).Methods(http.MethodPost)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs background workers and serves HTTP until Stop is called
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.logger.Info("Starting anonymization server",
		zap.Int("port", s.config.Server.Port),
		zap.String("default_strategy", s.config.Anonymizer.DefaultStrategy),
		zap.String("default_language", s.config.Anonymizer.DefaultLanguage),
		zap.Strings("semantic_languages", s.semantic.Languages()),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("websocket", s.hub != nil),
	)

	if s.hub != nil {
		go s.hub.Run(ctx)
	}
	go s.maintenance(ctx)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping anonymization server")
	if s.cancel != nil {
		s.cancel()
	}
	return s.server.Shutdown(ctx)
}

// maintenance periodically publishes system status and evicts idle rate limit buckets
func (s *Server) maintenance(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.limiter.Cleanup(limiterIdleAfter); removed > 0 {
				s.logger.Debug("Evicted idle rate limit clients", zap.Int("removed", removed))
			}
			if s.hub != nil {
				s.hub.BroadcastEvent(websocket.Event{
					Type:      websocket.EventTypeSystemStatus,
					Timestamp: time.Now(),
					Data:      s.systemStatus(),
				})
			}
		}
	}
}

func (s *Server) systemStatus() websocket.SystemStatusEvent {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	return websocket.SystemStatusEvent{
		Status:              "healthy",
		Uptime:              time.Since(s.startedAt).Round(time.Second).String(),
		TotalRequests:       s.totalRequests.Load(),
		TotalEntities:       s.totalEntities.Load(),
		ConnectedClients:    clients,
		SemanticLanguages:   s.semantic.Languages(),
		EnabledPatternRules: s.patterns.EnabledRules(),
	}
}
