// Package api exposes the Lifecycle Service over HTTP. The HTTP
// surface itself is out-of-core per spec.md §1 — this package exists
// only to exercise the core's operations end to end, grounded on the
// teacher's internal/api.Server/NewServer echo wiring (global
// middleware, API-key-guarded route group, /health) stripped of the
// dashboard SPA, PTY, git-repo and template-marketplace concerns that
// fall outside this spec.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memstack/sandboxcore/internal/lifecycle"
	"github.com/memstack/sandboxcore/internal/metrics"
	"github.com/memstack/sandboxcore/internal/orphan"
	"github.com/memstack/sandboxcore/internal/startupsync"
)

// Prober performs the health_check operation's probe step against a
// live sandbox (spec.md §4.6 health_check); the caller wires this to
// the Health Monitor's Checker at BASIC level so the API surface has
// no direct dependency on the Container Runtime or Registry.
type Prober func(ctx context.Context, sandboxID string) bool

// Server holds the API server dependencies.
type Server struct {
	echo    *echo.Echo
	svc     *lifecycle.Service
	cleaner *orphan.Cleaner
	gate    *startupsync.Gate
	prober  Prober
	apiKey  string
}

// NewServer creates a new API server with all routes configured.
func NewServer(svc *lifecycle.Service, cleaner *orphan.Cleaner, gate *startupsync.Gate, prober Prober, apiKey string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, svc: svc, cleaner: cleaner, gate: gate, prober: prober, apiKey: apiKey}

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())
	e.Use(s.startupGateMiddleware)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	grp := e.Group("/api/v1")
	grp.Use(s.apiKeyMiddleware)

	grp.POST("/projects/:projectID/sandbox", s.getOrCreate)
	grp.DELETE("/projects/:projectID/sandbox", s.terminate)
	grp.POST("/projects/:projectID/sandbox/tools/:tool", s.executeTool)
	grp.POST("/projects/:projectID/sandbox/health", s.healthCheck)
	grp.POST("/projects/:projectID/sandbox/sync", s.syncStatus)
	grp.GET("/tenants/:tenantID/sandboxes", s.listByTenant)
	grp.POST("/admin/cleanup-stale", s.cleanupStale)
	grp.POST("/admin/orphan-sweep", s.orphanSweep)

	return s
}

// apiKeyMiddleware rejects requests without a matching bearer token,
// grounded on the teacher's auth.PGAPIKeyMiddleware shape but backed
// by a single static key instead of a database-resolved one — the
// core has no tenant/API-key table of its own (spec.md §1 Non-goals).
func (s *Server) apiKeyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.apiKey == "" {
			return next(c)
		}
		got := c.Request().Header.Get("Authorization")
		if got != "Bearer "+s.apiKey {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
		}
		return next(c)
	}
}

// startupGateMiddleware makes every /api/v1 request wait for startup
// sync to finish (spec.md §4.7) before touching the Lifecycle Service.
func (s *Server) startupGateMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.gate == nil {
			return next(c)
		}
		if err := s.gate.Wait(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "startup sync in progress"})
		}
		return next(c)
	}
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.echo.Close()
}

// Echo returns the underlying echo instance for reuse/testing.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
