package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/governance/service"
)

// SystemHandler exposes status and the audit trail.
type SystemHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(svc *service.Service, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{svc: svc, logger: logger}
}

// Register mounts the read-only system routes.
func (h *SystemHandler) Register(read *gin.RouterGroup) {
	read.GET("/status", h.Status)
	read.GET("/audit/events", h.Events)
	read.GET("/audit/verify", h.Verify)
}

// Status handles GET /status.
func (h *SystemHandler) Status(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build status"})
		return
	}
	if degraded, ok := status["persistence_degraded"].(bool); ok {
		SetPersistenceDegraded(degraded)
	}
	if n, ok := status["actors_total"].(int); ok {
		SetActorsGauge("total", float64(n))
	}
	if n, ok := status["actors_active"].(int); ok {
		SetActorsGauge("active", float64(n))
	}
	c.JSON(http.StatusOK, status)
}

// Events handles GET /audit/events with optional kind and since filters.
// since is compared lexicographically against the fixed-width timestamps.
func (h *SystemHandler) Events(c *gin.Context) {
	kind := audit.Kind(c.Query("kind"))
	since := c.Query("since")

	events, err := h.svc.Events(c.Request.Context(), kind, since)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

// Verify handles GET /audit/verify by recomputing every stored hash.
func (h *SystemHandler) Verify(c *gin.Context) {
	if err := h.svc.VerifyLog(c.Request.Context()); err != nil {
		h.logger.Error("audit verification failed", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}
