package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/agentlens/agentlens/internal/api/http"
	"github.com/agentlens/agentlens/internal/api/middleware"
	"github.com/agentlens/agentlens/internal/api/ws"
	"github.com/agentlens/agentlens/internal/infrastructure/config"
	"github.com/agentlens/agentlens/internal/infrastructure/logging"
	"github.com/agentlens/agentlens/internal/infrastructure/monitoring"
	"github.com/agentlens/agentlens/internal/query"
	"github.com/agentlens/agentlens/internal/storage"
	"github.com/agentlens/agentlens/internal/trace"
)

// flushTimeout bounds the shutdown drain of queued traces.
const flushTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	tracer  *trace.Tracer
	writer  *storage.Writer
	hub     *ws.Hub
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	logger.Info("Initializing AgentLens Server",
		zap.String("port", cfg.Server.Port),
		zap.String("trace_dir", cfg.Storage.BaseDir),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Initialize trace storage
	backend, err := storage.NewFileBackend(storage.FileConfig{
		BaseDir:         cfg.Storage.BaseDir,
		Compress:        cfg.Storage.Compress,
		MaxIndexEntries: cfg.Storage.IndexLimit,
	}, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace storage: %w", err)
	}
	logger.Info("Trace storage ready", zap.String("dir", cfg.Storage.BaseDir))

	// Stream hub broadcasts saved traces to dashboard clients
	hub := ws.NewHub(logger, metrics)

	// Async writer decouples persistence from the capture hot path
	writer := storage.NewWriter(backend, storage.WriterConfig{
		QueueSize:  cfg.Storage.QueueSize,
		MaxRetries: cfg.Storage.SaveMaxRetries,
	},
		storage.WithWriterLogger(logger),
		storage.WithWriterMetrics(metrics),
		storage.WithOnSaved(hub.Broadcast),
	)

	// Capture engine for in-process instrumentation
	tracer := trace.New(
		trace.WithLogger(logger.Logger),
		trace.WithSink(writer),
		trace.WithMetrics(metrics),
		trace.WithAgentID(cfg.Capture.AgentID),
		trace.WithFramework(cfg.Capture.Framework),
	)
	trace.Init(tracer)

	queries := query.NewService(backend, logger)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Create handlers
	handlers := apihttp.NewHandlers(queries, writer, logger)
	wsHandler := ws.NewHandler(hub)

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Trace query and ingest
	router.GET("/api/traces", handlers.ListTraces)
	router.GET("/api/trace/:id", handlers.GetTrace)
	router.POST("/api/traces/:id", handlers.IngestTrace)

	// WebSocket
	router.GET("/stream", wsHandler.HandleConnection)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		tracer:  tracer,
		writer:  writer,
		hub:     hub,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down the server: open captures are
// force-closed, queued traces drained, stream clients disconnected.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.tracer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.writer.Flush(ctx); err != nil {
		s.logger.Warn("Trace queue not fully drained", zap.Error(err))
	}
	if err := s.writer.Close(); err != nil {
		s.logger.Error("Failed to close trace writer", zap.Error(err))
		return fmt.Errorf("failed to close trace writer: %w", err)
	}

	s.hub.Close()

	// Sync logger before exit
	s.logger.Sync()

	return nil
}
