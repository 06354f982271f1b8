// Package handler exposes the governance engine over HTTP with Gin.
// Read-only routes are open; mutating routes require an operator token.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/identity"
)

// AuthHandler exchanges the admin secret for short-lived operator tokens.
type AuthHandler struct {
	issuer      *identity.TokenIssuer
	adminSecret string
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler. An empty adminSecret disables
// token issuance entirely.
func NewAuthHandler(issuer *identity.TokenIssuer, adminSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{issuer: issuer, adminSecret: adminSecret, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

type tokenRequest struct {
	AdminSecret string `json:"admin_secret" binding:"required"`
	Operator    string `json:"operator" binding:"required"`
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin_secret and operator are required"})
		return
	}
	if h.adminSecret == "" || req.AdminSecret != h.adminSecret {
		h.logger.Warn("operator token refused", zap.String("operator", req.Operator))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
		return
	}

	token, err := h.issuer.Issue(req.Operator)
	if err != nil {
		h.logger.Error("issue operator token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

const operatorKey = "operator"

// RequireOperator returns a middleware that rejects requests without a
// valid bearer operator token.
func RequireOperator(issuer *identity.TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		claims, err := issuer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logger.Warn("operator token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(operatorKey, claims.Operator)
		c.Next()
	}
}
