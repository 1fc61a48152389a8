package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness checks.
type HealthHandler struct {
	serviceName string
	version     string
	deps        map[string]Pinger
	notConfig   error
}

// NewHealthHandler returns a new handler instance. Dependencies whose Ping returns notConfigured
// are reported as disabled and do not fail readiness.
func NewHealthHandler(serviceName, version string, deps map[string]Pinger, notConfigured error) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, deps: deps, notConfig: notConfigured}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	for name, dep := range h.deps {
		err := dep.Ping(ctx)
		switch {
		case err == nil:
			depStatus[name] = "ok"
		case h.notConfig != nil && errors.Is(err, h.notConfig):
			depStatus[name] = "disabled"
		default:
			depStatus[name] = err.Error()
			ready = false
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error":   "one or more dependencies unavailable",
		"code":    "DEPENDENCY_UNAVAILABLE",
		"details": depStatus,
	})
}
