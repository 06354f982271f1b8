package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/governance/service"
)

// MissionHandler exposes the mission lifecycle endpoints.
type MissionHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewMissionHandler creates a MissionHandler.
func NewMissionHandler(svc *service.Service, logger *zap.Logger) *MissionHandler {
	return &MissionHandler{svc: svc, logger: logger}
}

// Register mounts read routes on read and mutating routes on write.
func (h *MissionHandler) Register(read, write *gin.RouterGroup) {
	read.GET("/missions", h.List)
	read.GET("/missions/:id", h.Get)

	write.POST("/missions", h.Create)
	write.POST("/missions/:id/submit", h.Submit)
	write.POST("/missions/:id/cancel", h.Cancel)
	write.POST("/missions/:id/assign", h.Assign)
	write.POST("/missions/:id/reviews", h.SubmitReview)
	write.POST("/missions/:id/evidence", h.AddEvidence)
	write.POST("/missions/:id/complete", h.Complete)
	write.POST("/missions/:id/human-gate", h.HumanGate)
}

// List handles GET /missions.
func (h *MissionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"missions": h.svc.Missions()})
}

// Get handles GET /missions/:id.
func (h *MissionHandler) Get(c *gin.Context) {
	m, ok := h.svc.Mission(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "mission not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// Create handles POST /missions.
func (h *MissionHandler) Create(c *gin.Context) {
	var in service.CreateMissionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.CreateMission(c.Request.Context(), in))
}

type missionActorRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

// Submit handles POST /missions/:id/submit.
func (h *MissionHandler) Submit(c *gin.Context) {
	var req missionActorRequest
	_ = c.ShouldBindJSON(&req)
	writeResult(c, h.svc.SubmitMission(c.Request.Context(), c.Param("id"), req.ActorID))
}

// Cancel handles POST /missions/:id/cancel.
func (h *MissionHandler) Cancel(c *gin.Context) {
	var req missionActorRequest
	_ = c.ShouldBindJSON(&req)
	writeResult(c, h.svc.CancelMission(c.Request.Context(), c.Param("id"), req.ActorID, req.Reason))
}

type assignRequest struct {
	Seed string `json:"seed"`
}

// Assign handles POST /missions/:id/assign.
func (h *MissionHandler) Assign(c *gin.Context) {
	var req assignRequest
	_ = c.ShouldBindJSON(&req)
	writeResult(c, h.svc.AssignReviewers(c.Request.Context(), c.Param("id"), req.Seed))
}

type reviewRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Verdict    string `json:"verdict" binding:"required"`
	Notes      string `json:"notes"`
}

// SubmitReview handles POST /missions/:id/reviews.
func (h *MissionHandler) SubmitReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.SubmitReview(c.Request.Context(), c.Param("id"), req.ReviewerID, req.Verdict, req.Notes))
}

type evidenceRequest struct {
	ActorID      string `json:"actor_id" binding:"required"`
	ArtifactHash string `json:"artifact_hash" binding:"required"`
	Signature    string `json:"signature" binding:"required"`
}

// AddEvidence handles POST /missions/:id/evidence.
func (h *MissionHandler) AddEvidence(c *gin.Context) {
	var req evidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.AddEvidence(c.Request.Context(), c.Param("id"), req.ActorID, req.ArtifactHash, req.Signature))
}

// Complete handles POST /missions/:id/complete.
func (h *MissionHandler) Complete(c *gin.Context) {
	writeResult(c, h.svc.CompleteReview(c.Request.Context(), c.Param("id")))
}

type humanGateRequest struct {
	HumanID  string `json:"human_id" binding:"required"`
	Decision string `json:"decision" binding:"required"`
}

// HumanGate handles POST /missions/:id/human-gate.
func (h *MissionHandler) HumanGate(c *gin.Context) {
	var req humanGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Decision {
	case "approve":
		writeResult(c, h.svc.HumanGateApprove(c.Request.Context(), c.Param("id"), req.HumanID))
	case "reject":
		writeResult(c, h.svc.HumanGateReject(c.Request.Context(), c.Param("id"), req.HumanID))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be approve or reject"})
	}
}
