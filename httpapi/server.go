// Package httpapi exposes the Controller's single streaming ingress and its
// companion interrupt/status/workspace endpoints over HTTP (spec.md §6).
// This layer is intentionally thin — it exists only to make the core
// runtime reachable over the wire, grounded on the None9527-NGOClaw pack
// repo's gin-based SSE handler since the teacher itself ships no HTTP
// server.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentrt/core/config"
	"github.com/agentrt/core/controller"
	"github.com/agentrt/core/interrupt"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/telemetry"
	"github.com/agentrt/core/toolerrors"
	"github.com/agentrt/core/tools"
)

// Server wires the Controller into a gin.Engine.
type Server struct {
	httpServer *http.Server
	logger     telemetry.Logger

	ctrl      *controller.Controller
	interrupt *interrupt.Registry
	registry  *tools.Registry
	cfg       *config.Config

	mu       sync.Mutex
	sessions map[string]*session.Context
}

// New constructs a Server. cfg supplies the listen address, the shutdown
// timeout and the workspace directory; it does not fill in request fields.
func New(cfg *config.Config, ctrl *controller.Controller, interrupts *interrupt.Registry, registry *tools.Registry, logger telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		logger:    logger,
		ctrl:      ctrl,
		interrupt: interrupts,
		registry:  registry,
		cfg:       cfg,
		sessions:  make(map[string]*session.Context),
	}
	s.routes(router)
	s.httpServer = &http.Server{Addr: cfg.Server.ListenAddr, Handler: router}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/", s.handleRun)
	r.POST("/sessions/:id/interrupt", s.handleInterrupt)
	r.GET("/sessions/:id/tasks", s.handleTasks)
	r.GET("/sessions/:id/workspace", s.handleWorkspaceList)
	r.GET("/sessions/:id/workspace/*path", s.handleWorkspaceDownload)
}

// Start launches the HTTP server in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info(ctx, "starting http server", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, "http server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down, respecting cfg's configured
// shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) track(sc *session.Context) {
	s.mu.Lock()
	s.sessions[sc.SessionID] = sc
	s.mu.Unlock()
}

func (s *Server) untrack(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Server) lookup(sessionID string) (*session.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.sessions[sessionID]
	return sc, ok
}

func (s *Server) handleInterrupt(c *gin.Context) {
	sessionID := c.Param("id")
	if err := s.interrupt.Interrupt(sessionID); err != nil {
		if toolerrors.Is(err, toolerrors.NoSuchSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "interrupted"})
}
