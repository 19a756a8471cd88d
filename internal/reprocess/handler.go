package reprocess

import (
	"context"
	"net/http"

	"dealpulse_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request"

// Canceler removes a pending reprocessing entry. In the API process this is
// the queue repository directly; the worker's controller satisfies it too.
type Canceler interface {
	CancelReprocessing(ctx context.Context, opportunityID uuid.UUID) error
}

// Handler exposes the cross-process processing status and the cancel surface.
type Handler struct {
	status   *StatusReader
	canceler Canceler
}

func NewHandler(status *StatusReader, canceler Canceler) *Handler {
	return &Handler{status: status, canceler: canceler}
}

// RegisterRoutes registers the reprocessing routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/processing-status", h.GetProcessingStatus)
	rg.DELETE("/:id/reprocessing", h.CancelReprocessing)
}

// GetProcessingStatus handles GET /api/v1/opportunities/:id/processing-status
func (h *Handler) GetProcessingStatus(c *gin.Context) {
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	status, err := h.status.GetProcessingStatus(c.Request.Context(), opportunityID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, status)
}

// CancelReprocessing handles DELETE /api/v1/opportunities/:id/reprocessing.
// Only a pending entry is removed; a running sweep completes.
func (h *Handler) CancelReprocessing(c *gin.Context) {
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.canceler.CancelReprocessing(c.Request.Context(), opportunityID); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
