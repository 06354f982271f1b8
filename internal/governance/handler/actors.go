package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/governance/model"
	"github.com/genesis-gov/genesis/internal/governance/service"
)

// ActorHandler exposes roster and trust endpoints.
type ActorHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewActorHandler creates an ActorHandler.
func NewActorHandler(svc *service.Service, logger *zap.Logger) *ActorHandler {
	return &ActorHandler{svc: svc, logger: logger}
}

// Register mounts read routes on read and mutating routes on write.
func (h *ActorHandler) Register(read, write *gin.RouterGroup) {
	read.GET("/actors", h.List)
	read.GET("/actors/:id", h.Get)
	read.GET("/actors/:id/trust", h.Trust)

	write.POST("/actors", h.Create)
	write.POST("/actors/:id/quarantine", h.Quarantine)
	write.POST("/actors/:id/reinstate", h.Reinstate)
	write.POST("/actors/:id/trust", h.UpdateTrust)
}

// List handles GET /actors.
func (h *ActorHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actors": h.svc.Actors()})
}

// Get handles GET /actors/:id.
func (h *ActorHandler) Get(c *gin.Context) {
	e, ok := h.svc.Actor(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "actor not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

// Trust handles GET /actors/:id/trust.
func (h *ActorHandler) Trust(c *gin.Context) {
	tr, ok := h.svc.TrustRecord(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "trust record not found"})
		return
	}
	c.JSON(http.StatusOK, tr)
}

type createActorRequest struct {
	ActorID      string   `json:"actor_id" binding:"required"`
	Kind         string   `json:"actor_kind" binding:"required"`
	TrustScore   float64  `json:"trust_score"`
	Region       string   `json:"region"`
	Organization string   `json:"organization"`
	ModelFamily  string   `json:"model_family"`
	MethodType   string   `json:"method_type"`
	Domains      []string `json:"domains"`
}

// Create handles POST /actors.
func (h *ActorHandler) Create(c *gin.Context) {
	var req createActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.svc.RegisterActor(c.Request.Context(), model.RosterEntry{
		ActorID:      req.ActorID,
		Kind:         model.ActorKind(req.Kind),
		TrustScore:   req.TrustScore,
		Region:       req.Region,
		Organization: req.Organization,
		ModelFamily:  req.ModelFamily,
		MethodType:   req.MethodType,
		Domains:      req.Domains,
	})
	writeResult(c, res)
}

type statusChangeRequest struct {
	Reason string `json:"reason"`
}

// Quarantine handles POST /actors/:id/quarantine.
func (h *ActorHandler) Quarantine(c *gin.Context) {
	var req statusChangeRequest
	_ = c.ShouldBindJSON(&req)
	writeResult(c, h.svc.QuarantineActor(c.Request.Context(), c.Param("id"), req.Reason))
}

// Reinstate handles POST /actors/:id/reinstate.
func (h *ActorHandler) Reinstate(c *gin.Context) {
	var req statusChangeRequest
	_ = c.ShouldBindJSON(&req)
	writeResult(c, h.svc.ReinstateActor(c.Request.Context(), c.Param("id"), req.Reason))
}

// UpdateTrust handles POST /actors/:id/trust.
func (h *ActorHandler) UpdateTrust(c *gin.Context) {
	var in service.TrustInputs
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.UpdateTrust(c.Request.Context(), c.Param("id"), in))
}
