package router

import (
	"github.com/gin-gonic/gin"
	"github.com/supplychain/backend/internal/interfaces/http/handler"
)

// PartnerRoutes builds the /partner domain group. rec may be nil when
// reconciliation is disabled.
func PartnerRoutes(rel *handler.RelationshipHandler, rec *handler.ReconcileHandler) *DomainGroup {
	partner := NewDomainGroup("partner", "/partner")

	relationships := partner.Group("relationships", "/relationships")
	relationships.GET("", rel.List)
	relationships.POST("", rel.Create)
	relationships.GET("/:id", rel.Get)
	relationships.PATCH("/:id", rel.Update)
	relationships.PUT("/:id", rel.Update)
	relationships.DELETE("/:id", rel.Delete)

	if rec != nil {
		partner.Group("reconcile", "/reconcile").POST("/sweep", rec.Sweep)
	}
	return partner
}

// RegisterHealthRoutes mounts the probes on the engine, outside API
// versioning and authentication.
func RegisterHealthRoutes(engine *gin.Engine, h *handler.HealthHandler) {
	engine.GET("/health", h.Liveness)
	engine.GET("/ready", h.Readiness)
}
