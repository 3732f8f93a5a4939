// Package api is the HTTP control surface: session start/stop/fetch,
// the WebSocket event stream, health, and metrics.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/session"
)

// Server holds the handler dependencies and the echo router.
type Server struct {
	cfg      *config.Config
	sessions *session.Manager
	connMgr  *events.ConnectionManager
	gatherer prometheus.Gatherer

	echo *echo.Echo
	http *http.Server
}

// NewServer wires the routes. gatherer may be nil to disable /metrics.
func NewServer(cfg *config.Config, sessions *session.Manager, connMgr *events.ConnectionManager, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		connMgr:  connMgr,
		gatherer: gatherer,
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(requestLogger())

	e.POST("/api/start", s.startHandler)
	e.POST("/api/start-sync", s.startSyncHandler)
	e.GET("/api/sessions", s.listSessionsHandler)
	e.GET("/api/sessions/:id", s.getSessionHandler)
	e.GET("/api/sessions/:id/result", s.sessionResultHandler)
	e.POST("/api/sessions/:id/stop", s.stopSessionHandler)
	e.GET("/ws/:id", s.wsHandler)
	e.GET("/health", s.healthHandler)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.echo = e
	return s
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves HTTP on addr and blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
