package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/governance/service"
)

// EpochHandler exposes epoch control and the commitment chain.
type EpochHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewEpochHandler creates an EpochHandler.
func NewEpochHandler(svc *service.Service, logger *zap.Logger) *EpochHandler {
	return &EpochHandler{svc: svc, logger: logger}
}

// Register mounts read routes on read and mutating routes on write.
func (h *EpochHandler) Register(read, write *gin.RouterGroup) {
	read.GET("/epochs/commitments", h.Commitments)

	write.POST("/epochs/open", h.Open)
	write.POST("/epochs/close", h.Close)
	write.POST("/epochs/:id/anchor", h.Anchor)
}

// Commitments handles GET /epochs/commitments.
func (h *EpochHandler) Commitments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"commitments":   h.svc.Commitments(),
		"previous_hash": h.svc.Ledger().PreviousHash(),
	})
}

type openEpochRequest struct {
	EpochID string `json:"epoch_id"`
	ActorID string `json:"actor_id"`
}

// Open handles POST /epochs/open.
func (h *EpochHandler) Open(c *gin.Context) {
	var req openEpochRequest
	_ = c.ShouldBindJSON(&req)
	writeResult(c, h.svc.OpenEpoch(c.Request.Context(), req.EpochID, operatorOr(c, req.ActorID)))
}

type closeEpochRequest struct {
	BeaconRound  uint64 `json:"beacon_round"`
	ChamberNonce string `json:"chamber_nonce"`
	ActorID      string `json:"actor_id"`
}

// Close handles POST /epochs/close.
func (h *EpochHandler) Close(c *gin.Context) {
	var req closeEpochRequest
	_ = c.ShouldBindJSON(&req)
	res := h.svc.CloseEpoch(c.Request.Context(), req.BeaconRound, req.ChamberNonce, operatorOr(c, req.ActorID))
	if res.Success {
		RecordEpochCommitted()
	}
	writeResult(c, res)
}

type anchorRequest struct {
	Receipt string `json:"receipt" binding:"required"`
	ActorID string `json:"actor_id"`
}

// Anchor handles POST /epochs/:id/anchor.
func (h *EpochHandler) Anchor(c *gin.Context) {
	var req anchorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.AnchorCommitment(c.Request.Context(), c.Param("id"), req.Receipt, operatorOr(c, req.ActorID)))
}

// operatorOr prefers the explicit actor id, falling back to the
// authenticated operator from the token.
func operatorOr(c *gin.Context, actorID string) string {
	if actorID != "" {
		return actorID
	}
	if op, ok := c.Get(operatorKey); ok {
		if s, ok := op.(string); ok {
			return s
		}
	}
	return "operator"
}
