// Package api is the HTTP surface over the session admission layer:
// session CRUD, report download, SSE event streaming, WebSocket
// streaming, and an unauthenticated health check.
package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepresearch-labs/agent/pkg/apikeys"
	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/events"
	"github.com/deepresearch-labs/agent/pkg/notify"
	"github.com/deepresearch-labs/agent/pkg/session"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	sessions *session.Manager
	bus      *events.Bus
	keys     *apikeys.Store
	notifier *notify.Service // nil if Slack notifications are unconfigured
	cfg      config.APIConfig
}

// NewServer builds a Server with all routes registered. notifier may be
// nil.
func NewServer(sessions *session.Manager, bus *events.Bus, keys *apikeys.Store, notifier *notify.Service, cfg config.APIConfig) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		sessions: sessions,
		bus:      bus,
		keys:     keys,
		notifier: notifier,
		cfg:      cfg,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	s.engine.Use(securityHeaders())

	s.engine.GET("/health", s.handleHealth)

	rateLimit, err := rateLimitMiddleware(s.cfg.RateLimitPerMin)
	if err != nil {
		return err
	}

	v1 := s.engine.Group("/api/sessions")
	v1.Use(requireAPIKey(s.keys), rateLimit)
	v1.POST("", s.handleCreateSession)
	v1.GET("", s.handleListSessions)
	v1.GET("/:id", s.handleGetSession)
	v1.GET("/:id/report", s.handleGetReport)
	v1.GET("/:id/events", s.handleSessionEvents)
	v1.DELETE("/:id", s.handleCancelSession)

	ws := s.engine.Group("/ws/sessions")
	ws.Use(requireAPIKey(s.keys), rateLimit)
	ws.GET("/:id", s.handleWebSocket)

	return nil
}

// Start starts the HTTP server on addr (blocking). An empty addr falls
// back to the server's configured listen address.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = listenAddr(s.cfg)
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener —
// used by tests to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts the HTTP server down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying gin engine, e.g. to mount alongside the
// MCP HTTP handler on a shared listener.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func listenAddr(cfg config.APIConfig) string {
	if cfg.ListenAddr == "" {
		return ":8080"
	}
	return cfg.ListenAddr
}
