package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/memstack/sandboxcore/internal/lifecycle"
	"github.com/memstack/sandboxcore/internal/types"
)

type getOrCreateRequest struct {
	TenantID       string            `json:"tenant_id"`
	Profile        types.Profile     `json:"profile"`
	MemoryLimit    *string           `json:"memory_limit,omitempty"`
	CPULimit       *float64          `json:"cpu_limit,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	DesktopEnabled *bool             `json:"desktop_enabled,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
}

func (s *Server) getOrCreate(c echo.Context) error {
	projectID := c.Param("projectID")
	var req getOrCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Profile == "" {
		req.Profile = types.ProfileStandard
	}

	overrides := lifecycle.Overrides{
		MemoryLimit:    req.MemoryLimit,
		CPULimit:       req.CPULimit,
		TimeoutSeconds: req.TimeoutSeconds,
		DesktopEnabled: req.DesktopEnabled,
		Environment:    req.Environment,
	}

	info, err := s.svc.GetOrCreate(c.Request().Context(), projectID, req.TenantID, req.Profile, overrides)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) terminate(c echo.Context) error {
	projectID := c.Param("projectID")
	purge := c.QueryParam("purge") == "true"

	ok, err := s.svc.Terminate(c.Request().Context(), projectID, purge)
	if err != nil {
		return httpError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no sandbox for project"})
	}
	return c.NoContent(http.StatusNoContent)
}

type executeToolRequest struct {
	Args           map[string]any `json:"args"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

func (s *Server) executeTool(c echo.Context) error {
	projectID := c.Param("projectID")
	tool := c.Param("tool")

	var req executeToolRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 30
	}

	result, err := s.svc.ExecuteTool(c.Request().Context(), projectID, tool, req.Args, req.TimeoutSeconds)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": result})
}

func (s *Server) healthCheck(c echo.Context) error {
	projectID := c.Param("projectID")

	probe := s.prober
	if probe == nil {
		probe = func(ctx context.Context, sandboxID string) bool { return true }
	}

	healthy, err := s.svc.HealthCheck(c.Request().Context(), projectID, probe)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"healthy": healthy})
}

func (s *Server) syncStatus(c echo.Context) error {
	projectID := c.Param("projectID")

	info, err := s.svc.SyncStatus(c.Request().Context(), projectID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) listByTenant(c echo.Context) error {
	tenantID := c.Param("tenantID")
	status := types.AssociationStatus(c.QueryParam("status"))

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	infos, err := s.svc.ListByTenant(c.Request().Context(), tenantID, status, limit, offset)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, infos)
}

type cleanupStaleRequest struct {
	MaxIdleSeconds int  `json:"max_idle_seconds"`
	DryRun         bool `json:"dry_run"`
}

func (s *Server) cleanupStale(c echo.Context) error {
	var req cleanupStaleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.MaxIdleSeconds <= 0 {
		req.MaxIdleSeconds = 3600
	}

	ids, err := s.svc.CleanupStale(c.Request().Context(), req.MaxIdleSeconds, req.DryRun)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"sandbox_ids": ids, "dry_run": req.DryRun})
}

func (s *Server) orphanSweep(c echo.Context) error {
	if s.cleaner == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "orphan cleaner not configured"})
	}
	stats := s.cleaner.Sweep(c.Request().Context())
	return c.JSON(http.StatusOK, stats)
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
