package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceChecker reports reachability of one upstream dependency.
type ServiceChecker func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	version  string
	checkers map[string]ServiceChecker
}

// NewHealthHandler creates a new health handler. checkers maps a dependency
// name to its reachability probe; nil entries are reported as "unknown".
func NewHealthHandler(version string, checkers map[string]ServiceChecker) *HealthHandler {
	return &HealthHandler{
		version:  version,
		checkers: checkers,
	}
}

// Health returns the health status of the service and its dependencies
func (h *HealthHandler) Health(c *gin.Context) {
	services := make(map[string]string, len(h.checkers))
	for name, check := range h.checkers {
		if check == nil {
			services[name] = "unknown"
			continue
		}
		if err := check(c.Request.Context()); err != nil {
			services[name] = "unreachable"
		} else {
			services[name] = "ok"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  h.version,
		"services": services,
	})
}
