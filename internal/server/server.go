package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/config"
	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/metrics"
	"github.com/kapu/cirak-widget-go/internal/service/conflict"
	"github.com/kapu/cirak-widget-go/internal/service/matcher"
	"github.com/kapu/cirak-widget-go/internal/util"
)

type ChatHandler interface {
	Handle(ctx context.Context, req domain.ChatRequest) domain.ChatResponse
	Mode() string
}

type SnapshotController interface {
	Current() *domain.Snapshot
	Previous() *domain.Snapshot
	Reload(ctx context.Context) (bool, error)
	Rollback() (*domain.Snapshot, error)
	LastError() error
}

// IntentStore is the writable intent store. The YAML directory source has none.
type IntentStore interface {
	AddKeyword(ctx context.Context, intentID string, kw domain.Keyword) (domain.Keyword, error)
	DeleteKeyword(ctx context.Context, id int64) error
	SetIntentState(ctx context.Context, id string, active *bool, priority *int) error
	SnapshotHistory(ctx context.Context, limit int) ([]domain.SnapshotMetadata, error)
}

type AnalyticsReader interface {
	FallbackReport(ctx context.Context, days int, activeIntents []string) (domain.FallbackReport, error)
	IntentPerformance(ctx context.Context, days int) ([]domain.IntentPerformance, error)
}

// LiveCounters reads today's per-intent hit counters from Redis.
type LiveCounters interface {
	IntentHits(ctx context.Context, day string) (map[string]int64, error)
}

// Invalidator tells other instances to rebuild their snapshot.
type Invalidator interface {
	PublishInvalidation(ctx context.Context, reason string) error
}

type CircuitController interface {
	CircuitStatus() util.CircuitBreakerStatus
	ResetCircuit()
}

// Dependencies wires the server. Chat and Snapshots are required; every other
// collaborator is optional and its routes answer 503 when it is missing.
type Dependencies struct {
	Chat        ChatHandler
	Snapshots   SnapshotController
	Matcher     *matcher.Matcher
	Detector    *conflict.Detector
	Store       IntentStore
	Analytics   AnalyticsReader
	Live        LiveCounters
	Invalidator Invalidator
	LLM         CircuitController
	Metrics     *metrics.Metrics
}

type Server struct {
	cfg        config.ServerConfig
	deps       Dependencies
	auth       *Authenticator
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func New(cfg config.ServerConfig, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("chat handler is required")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("snapshot controller is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.NewMatcher(logger)
	}
	if deps.Detector == nil {
		deps.Detector = conflict.NewDetector(logger)
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		auth: NewAuthenticator(AuthConfig{
			AdminToken:   cfg.AdminToken,
			PasswordHash: cfg.AdminPasswordHash,
			Secret:       cfg.JWTSecret,
			TTL:          cfg.SessionTTL,
		}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originAllowed(cfg.AllowedOrigins),
		},
		logger: logger,
	}

	s.engine = gin.New()
	s.engine.Use(requestID(), requestLogger(logger), s.recovery(), corsMiddleware(cfg.AllowedOrigins))
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: constants.AdminLimits.ReadHeaderTimeout,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	r := s.engine

	r.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	r.POST("/api/cirak/message", s.handleMessage)
	r.GET("/ws/chat", s.handleWebSocket)

	r.POST("/api/admin/login", s.handleLogin)

	admin := r.Group("/api/admin", s.auth.Middleware())
	{
		admin.GET("/conflicts", s.handleConflicts)
		admin.GET("/tools/intent-analysis", s.handleIntentAnalysis)
		admin.GET("/tools/intent-quality/:id", s.handleIntentQuality)
		admin.GET("/tools/normalization", s.handleNormalization)

		admin.POST("/test/intent", s.handleTestIntent)
		admin.POST("/test/batch", s.handleTestBatch)
		admin.POST("/test/determinism", s.handleDeterminism)

		admin.POST("/keys/validate", s.handleValidateKey)
		admin.POST("/intents/:id/keywords", s.handleAddKeyword)
		admin.PATCH("/intents/:id", s.handleUpdateIntent)
		admin.DELETE("/keywords/:id", s.handleDeleteKeyword)

		admin.GET("/snapshot", s.handleSnapshot)
		admin.GET("/snapshot/history", s.handleSnapshotHistory)
		admin.GET("/snapshot/diff", s.handleSnapshotDiff)
		admin.POST("/snapshot/rebuild", s.handleRebuild)
		admin.POST("/snapshot/rollback", s.handleRollback)

		admin.GET("/analytics/fallbacks", s.handleFallbackReport)
		admin.GET("/analytics/intent-performance", s.handleIntentPerformance)
		admin.GET("/analytics/live", s.handleLiveCounters)

		admin.GET("/llm/circuit", s.handleCircuitStatus)
		admin.POST("/llm/circuit/reset", s.handleCircuitReset)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening",
		zap.String("addr", s.httpServer.Addr),
		zap.String("chat_mode", s.deps.Chat.Mode()),
		zap.Bool("admin_enabled", s.auth.Enabled()),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, constants.AdminLimits.ShutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.deps.Snapshots.Current()
	body := gin.H{
		"status":   "ok",
		"chatMode": s.deps.Chat.Mode(),
		"snapshot": snap.Metadata(),
		"time":     time.Now().UTC(),
	}
	if err := s.deps.Snapshots.LastError(); err != nil {
		body["lastBuildError"] = err.Error()
	}
	if snap == nil {
		body["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
