// Package server exposes fact-check sessions over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/pipeline"
	"github.com/ppiankov/factloop/internal/refine"
	"github.com/ppiankov/factloop/internal/store"
)

// History is the read side of the session archive
type History interface {
	Get(ctx context.Context, id string) (*model.Result, error)
	List(ctx context.Context, limit int) ([]store.Entry, error)
}

// liveSession serializes every operation on one session
type liveSession struct {
	mu      sync.Mutex
	session *refine.Session
}

// Server serves the REST API, the WebSocket chat and metrics
type Server struct {
	pipeline *pipeline.Pipeline
	history  History
	sessions *expirable.LRU[string, *liveSession]
	engine   *gin.Engine
	upgrader websocket.Upgrader
	metrics  http.Handler
	logger   *zap.Logger
	cfg      model.ServerConfig
	started  time.Time
}

// Option configures a Server
type Option func(*Server)

// WithHistory serves archived sessions
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsHandler replaces the default Prometheus handler
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a server for p
func New(p *pipeline.Pipeline, cfg model.ServerConfig, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		metrics:  promhttp.Handler(),
		logger:   zap.NewNop(),
		cfg:      cfg,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	ttl := time.Duration(cfg.SessionTTL) * time.Second
	s.sessions = expirable.NewLRU[string, *liveSession](cfg.MaxSessions, nil, ttl)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.allowOrigin,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		if slices.Contains(cfg.CORSOrigins, "*") {
			corsConfig.AllowAllOrigins = true
		} else {
			corsConfig.AllowOrigins = cfg.CORSOrigins
		}
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		corsConfig.AllowWebSockets = true
		s.engine.Use(cors.New(corsConfig))
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.metrics))
	s.engine.GET("/ws", s.handleWebSocket)

	api := s.engine.Group("/api")
	sessions := api.Group("/sessions")
	{
		sessions.POST("", s.handleCreate)
		sessions.GET("/:id", s.handleGet)
		sessions.POST("/:id/decision", s.handleDecision)
		sessions.DELETE("/:id", s.handleDelete)
	}
	api.GET("/history", s.handleHistory)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on cfg.Addr until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

type createRequest struct {
	Claim  string `json:"claim"`
	Source string `json:"source"`
	Auto   bool   `json:"auto"` // Run to completion without decisions
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	session, err := s.pipeline.Prepare(ctx, model.Claim{Text: req.Claim, Source: req.Source})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	live := &liveSession{session: session}
	live.mu.Lock()
	defer live.mu.Unlock()
	s.sessions.Add(session.ID, live)

	controller := s.pipeline.Controller()
	if req.Auto {
		_, err = controller.Run(ctx, session, refine.AutoDecider{})
	} else {
		err = controller.Start(ctx, session)
	}
	s.archiveIfFinished(ctx, session)

	view := newView(session, controller.Policy())
	if err != nil {
		c.JSON(statusFor(err), view)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGet(c *gin.Context) {
	id := c.Param("id")
	if live, ok := s.sessions.Get(id); ok {
		live.mu.Lock()
		view := newView(live.session, s.pipeline.Controller().Policy())
		live.mu.Unlock()
		c.JSON(http.StatusOK, view)
		return
	}

	if s.history != nil {
		result, err := s.history.Get(c.Request.Context(), id)
		if err == nil {
			c.JSON(http.StatusOK, viewFromResult(result))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("archive lookup failed", zap.String("session", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
}

func (s *Server) handleDecision(c *gin.Context) {
	var d refine.Decision
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	action, err := refine.ParseAction(string(d.Action))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d.Action = action

	live, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	ctx := c.Request.Context()
	controller := s.pipeline.Controller()
	err = controller.Apply(ctx, live.session, d)
	s.archiveIfFinished(ctx, live.session)

	view := newView(live.session, controller.Policy())
	if err != nil {
		if live.session.State() != refine.StateFailed {
			view.Error = err.Error()
		}
		c.JSON(statusFor(err), view)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleDelete(c *gin.Context) {
	if !s.sessions.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": entries})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) archiveIfFinished(ctx context.Context, session *refine.Session) {
	switch session.State() {
	case refine.StateDone, refine.StateFailed:
		s.pipeline.Save(context.WithoutCancel(ctx), session.Result())
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.CORSOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.CORSOrigins, "*") || slices.Contains(s.cfg.CORSOrigins, origin)
}

// statusFor maps session errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyClaim):
		return http.StatusBadRequest
	case errors.Is(err, refine.ErrEmptyQuestion), errors.Is(err, factcheck.ErrDuplicateQuestion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, refine.ErrInvalidState), errors.Is(err, refine.ErrRoundLimit):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
