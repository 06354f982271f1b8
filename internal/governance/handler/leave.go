package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/governance/service"
)

// LeaveHandler exposes the protected-leave endpoints.
type LeaveHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewLeaveHandler creates a LeaveHandler.
func NewLeaveHandler(svc *service.Service, logger *zap.Logger) *LeaveHandler {
	return &LeaveHandler{svc: svc, logger: logger}
}

// Register mounts read routes on read and mutating routes on write.
func (h *LeaveHandler) Register(read, write *gin.RouterGroup) {
	read.GET("/leave", h.List)
	read.GET("/leave/:id", h.Get)

	write.POST("/leave", h.Request)
	write.POST("/leave/:id/adjudicate", h.Adjudicate)
	write.POST("/leave/:id/return", h.Return)
	write.POST("/leave/check-expiries", h.CheckExpiries)
}

// List handles GET /leave.
func (h *LeaveHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"leaves": h.svc.Leaves()})
}

// Get handles GET /leave/:id.
func (h *LeaveHandler) Get(c *gin.Context) {
	lv, ok := h.svc.Leave(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "leave record not found"})
		return
	}
	c.JSON(http.StatusOK, lv)
}

type leaveRequest struct {
	ActorID      string `json:"actor_id" binding:"required"`
	Category     string `json:"category" binding:"required"`
	Reason       string `json:"reason"`
	PetitionerID string `json:"petitioner_id"`
}

// Request handles POST /leave.
func (h *LeaveHandler) Request(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.RequestLeave(c.Request.Context(), req.ActorID, req.Category, req.Reason, req.PetitionerID))
}

type adjudicateRequest struct {
	AdjudicatorID string `json:"adjudicator_id" binding:"required"`
	Verdict       string `json:"verdict" binding:"required"`
	Notes         string `json:"notes"`
}

// Adjudicate handles POST /leave/:id/adjudicate.
func (h *LeaveHandler) Adjudicate(c *gin.Context) {
	var req adjudicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.AdjudicateLeave(c.Request.Context(), c.Param("id"), req.AdjudicatorID, req.Verdict, req.Notes))
}

// Return handles POST /leave/:id/return.
func (h *LeaveHandler) Return(c *gin.Context) {
	writeResult(c, h.svc.ReturnFromLeave(c.Request.Context(), c.Param("id")))
}

// CheckExpiries handles POST /leave/check-expiries.
func (h *LeaveHandler) CheckExpiries(c *gin.Context) {
	writeResult(c, h.svc.CheckLeaveExpiries(c.Request.Context()))
}
