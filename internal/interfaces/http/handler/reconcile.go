package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	partnerapp "github.com/supplychain/backend/internal/application/partner"
)

// Sweeper runs one reconciliation pass over the relationship table
type Sweeper interface {
	Sweep(ctx context.Context) (*partnerapp.SweepReport, error)
}

// ReconcileHandler exposes on-demand reconciliation
type ReconcileHandler struct {
	BaseHandler
	sweeper Sweeper
}

// NewReconcileHandler creates a new ReconcileHandler
func NewReconcileHandler(sweeper Sweeper) *ReconcileHandler {
	return &ReconcileHandler{sweeper: sweeper}
}

// Sweep godoc
// @ID           sweepPartnerRelationships
// @Summary      Run a reconciliation sweep now
// @Description  Settles status mismatches by last write and applies the configured orphan policy.
// @Tags         partner-reconcile
// @Produce      json
// @Success      200 {object} APIResponse[partnerapp.SweepReport]
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partner/reconcile/sweep [post]
func (h *ReconcileHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
