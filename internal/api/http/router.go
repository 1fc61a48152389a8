package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pwd-registry/support-desk/internal/api/http/handlers"
	"github.com/pwd-registry/support-desk/internal/auth"
	"github.com/pwd-registry/support-desk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Messages       *handlers.MessagesHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Post("/auth/login", cfg.Auth.Login)

	ticketRoles := auth.RequireRoles(domain.RoleAdmin, domain.RolePWDMember)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Get("/", ticketRoles, cfg.Tickets.ListTickets)
	tickets.Post("/", auth.RequireRoles(domain.RolePWDMember), cfg.Tickets.CreateTicket)
	tickets.Get("/:id", ticketRoles, cfg.Tickets.GetTicket)
	tickets.Put("/:id", ticketRoles, cfg.Tickets.UpdateTicket)
	tickets.Patch("/:id", ticketRoles, cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", auth.RequireRoles(domain.RoleAdmin), cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/messages", ticketRoles, cfg.Tickets.AddMessage)

	messages := app.Group("/messages", cfg.AuthMiddleware.Handle, ticketRoles)
	messages.Get("/:id/download", cfg.Messages.Preview)
	messages.Get("/:id/force-download", cfg.Messages.Download)
}
