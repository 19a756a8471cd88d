package activities

import (
	"dealpulse_backend/internal/crm"
	"dealpulse_backend/internal/events"
	apphttp "dealpulse_backend/internal/http"
	"dealpulse_backend/platform/logger"
	"dealpulse_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the activities domain module: the intake surface that turns an
// incoming interaction into a durable queue entry.
type Module struct {
	handler *Handler
	Service *Service
}

func NewModule(pool *pgxpool.Pool, contacts *crm.ContactService, q Enqueuer, waker Waker, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	svc := NewService(repo, crm.NewRepository(pool), contacts, q, waker, bus, log)

	return &Module{
		handler: NewHandler(svc, val),
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "activities"
}

// RegisterRoutes registers the module's routes under /api/v1/activities
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	activities := ctx.Protected.Group("/activities")
	m.handler.RegisterRoutes(activities)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
