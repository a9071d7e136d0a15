// Package server exposes the AI service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
	"github.com/tonyzinh/system-hospital-backend/pkg/index"
	"github.com/tonyzinh/system-hospital-backend/pkg/ingest"
	"github.com/tonyzinh/system-hospital-backend/pkg/metrics"
	"github.com/tonyzinh/system-hospital-backend/pkg/orchestrator"
	"github.com/tonyzinh/system-hospital-backend/pkg/rag"
)

type Config struct {
	Addr  string
	Debug bool
	// SlowRequest is the duration past which a request is logged as slow.
	SlowRequest time.Duration
}

// Service bundles the components the handlers delegate to. The handlers
// hold no state of their own.
type Service struct {
	Index        *index.Manager
	Synthesizer  *rag.Synthesizer
	Orchestrator *orchestrator.Orchestrator
	Ingest       *ingest.Pipeline
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

type Server struct {
	config Config
	svc    Service
	engine *gin.Engine
	server *http.Server
	logger *slog.Logger
}

func New(config Config, svc Service) *Server {
	if config.Addr == "" {
		config.Addr = ":8000"
	}
	if config.SlowRequest <= 0 {
		config.SlowRequest = 60 * time.Second
	}
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}

	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		svc:    svc,
		engine: gin.New(),
		logger: svc.Logger,
	}
	s.registerMiddlewares()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddlewares() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestID())
	s.engine.Use(s.loggingMiddleware())
}

func (s *Server) registerRoutes() {
	ai := s.engine.Group("/ai")
	{
		ai.POST("/answer", s.handleAnswer)
		ai.POST("/answer-advanced", s.handleAnswerAdvanced)
		ai.POST("/chat", s.handleChat)
		ai.POST("/search", s.handleSearch)
		ai.POST("/ingest-url", s.handleIngestURL)
		ai.POST("/rebuild", s.handleRebuild)
		ai.GET("/health", s.handleHealth)
		ai.GET("/cache/stats", s.handleCacheStats)
		ai.POST("/cache/cleanup", s.handleCacheCleanup)
		ai.GET("/ws", s.handleWebSocket)
	}

	if s.svc.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.svc.Metrics.Handler()))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", "addr", s.config.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// abortWithError renders err as {"detail": ...} with the status its kind
// maps to.
func (s *Server) abortWithError(c *gin.Context, err error, upstreamStatus int) {
	s.abort(c, statusFor(err, upstreamStatus), err)
}

func (s *Server) abort(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"path", c.Request.URL.Path,
			"status", status,
			"request_id", c.GetString(requestIDKey),
			"error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail(err)})
}

func statusFor(err error, upstreamStatus int) int {
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	}
	if _, ok := apperr.AsUpstream(err); ok {
		return upstreamStatus
	}
	return http.StatusInternalServerError
}

func detail(err error) string {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
