// Package quotes provides the quotation lifecycle module.
package quotes

import (
	apphttp "crm_portal_backend/internal/http"
	"crm_portal_backend/internal/quotes/handler"
	"crm_portal_backend/internal/quotes/repository"
	"crm_portal_backend/internal/quotes/service"
	"crm_portal_backend/platform/config"
	"crm_portal_backend/platform/events"
	"crm_portal_backend/platform/logger"
	"crm_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the quotes domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new quotes module with all dependencies wired
func NewModule(pool *pgxpool.Pool, hasher service.PasswordHasher, eventBus events.Bus, cfg config.ProvisioningConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, hasher, eventBus, cfg, log)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "quotes"
}

// Service returns the service layer for external use
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/quotes"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
