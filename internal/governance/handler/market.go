package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/governance/service"
)

// MarketHandler exposes the labour-market endpoints.
type MarketHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *service.Service, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logger}
}

// Register mounts read routes on read and mutating routes on write.
func (h *MarketHandler) Register(read, write *gin.RouterGroup) {
	read.GET("/listings", h.List)
	read.GET("/listings/:id/bids", h.Bids)

	write.POST("/listings", h.Create)
	write.POST("/listings/:id/open", h.Open)
	write.POST("/listings/:id/accept-bids", h.AcceptBids)
	write.POST("/listings/:id/withdraw", h.Withdraw)
	write.POST("/listings/:id/bids", h.SubmitBid)
	write.POST("/listings/:id/bids/:bid/withdraw", h.WithdrawBid)
	write.POST("/listings/:id/allocate", h.Allocate)
}

// List handles GET /listings.
func (h *MarketHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"listings": h.svc.Listings()})
}

// Bids handles GET /listings/:id/bids.
func (h *MarketHandler) Bids(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bids": h.svc.Bids(c.Param("id"))})
}

// Create handles POST /listings.
func (h *MarketHandler) Create(c *gin.Context) {
	var in service.CreateListingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.CreateListing(c.Request.Context(), in))
}

// Open handles POST /listings/:id/open.
func (h *MarketHandler) Open(c *gin.Context) {
	writeResult(c, h.svc.OpenListing(c.Request.Context(), c.Param("id")))
}

// AcceptBids handles POST /listings/:id/accept-bids.
func (h *MarketHandler) AcceptBids(c *gin.Context) {
	writeResult(c, h.svc.StartAcceptingBids(c.Request.Context(), c.Param("id")))
}

// WithdrawBid handles POST /listings/:id/bids/:bid/withdraw.
func (h *MarketHandler) WithdrawBid(c *gin.Context) {
	writeResult(c, h.svc.WithdrawBid(c.Request.Context(), c.Param("id"), c.Param("bid")))
}

// Withdraw handles POST /listings/:id/withdraw.
func (h *MarketHandler) Withdraw(c *gin.Context) {
	writeResult(c, h.svc.WithdrawListing(c.Request.Context(), c.Param("id")))
}

type bidRequest struct {
	BidderID string `json:"bidder_id" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Pitch    string `json:"pitch"`
}

// SubmitBid handles POST /listings/:id/bids.
func (h *MarketHandler) SubmitBid(c *gin.Context) {
	var req bidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.svc.SubmitBid(c.Request.Context(), c.Param("id"), req.BidderID, req.Amount, req.Pitch))
}

// Allocate handles POST /listings/:id/allocate.
func (h *MarketHandler) Allocate(c *gin.Context) {
	writeResult(c, h.svc.AllocateListing(c.Request.Context(), c.Param("id")))
}
