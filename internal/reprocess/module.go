package reprocess

import (
	apphttp "dealpulse_backend/internal/http"
	"dealpulse_backend/internal/queue"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the reprocessing status surface mounted in the API process. It
// shares no memory with the worker; everything it reports comes from the
// persisted queue.
type Module struct {
	handler *Handler
}

func NewModule(pool *pgxpool.Pool) *Module {
	repo := queue.NewRepository(pool)
	return &Module{
		handler: NewHandler(NewStatusReader(repo), repo),
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "reprocess"
}

// RegisterRoutes registers the module's routes under /api/v1/opportunities
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	opportunities := ctx.Protected.Group("/opportunities")
	m.handler.RegisterRoutes(opportunities)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
