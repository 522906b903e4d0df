package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/provenance/internal/identity"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"github.com/jmerrifield20/provenance/internal/provenance/service"
	"go.uber.org/zap"
)

// AdminHandler exposes the admin-only endpoints. Authorization is decided by
// the ledger, so denials are audited like any other.
type AdminHandler struct {
	ledger *service.Ledger
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger *service.Ledger, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{ledger: ledger, logger: logger}
}

// Register mounts the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/products/:id/verify", h.VerifyChain)
	rg.POST("/accounts/:id/verify", h.VerifyAccount)
	rg.GET("/accounts/pending", h.ListPending)
	rg.GET("/audit-logs", h.ListAuditLog)
	rg.GET("/suspicious-activities", h.ListSuspiciousActivity)
}

// VerifyChain handles GET /products/:id/verify. The report
// stays 200 for an invalid chain.
func (h *AdminHandler) VerifyChain(c *gin.Context) {
	actor := identity.ActorFromCtx(c)
	id, ok := parseProductID(c)
	if !ok {
		return
	}
	res, err := h.ledger.VerifyProductChain(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, actor, err)
		return
	}
	resp := gin.H{"product_id": id, "valid": res.Valid}
	if !res.Valid {
		resp["first_invalid_index"] = res.FirstInvalidIndex
		resp["reason"] = res.Reason
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyAccount handles POST /accounts/:id/verify.
func (h *AdminHandler) VerifyAccount(c *gin.Context) {
	actor := identity.ActorFromCtx(c)
	accountID := c.Param("id")
	if err := h.ledger.VerifyAccount(c.Request.Context(), actor, accountID); err != nil {
		writeError(c, h.logger, actor, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "verified": true})
}

// ListPending handles GET /accounts/pending.
func (h *AdminHandler) ListPending(c *gin.Context) {
	actor := identity.ActorFromCtx(c)
	accounts, err := h.ledger.ListPendingVerifications(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.logger, actor, err)
		return
	}
	if accounts == nil {
		accounts = []*model.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
}

// ListAuditLog handles GET /audit-logs?limit=.
func (h *AdminHandler) ListAuditLog(c *gin.Context) {
	actor := identity.ActorFromCtx(c)
	entries, err := h.ledger.ListAuditLog(c.Request.Context(), actor, limitParam(c))
	if err != nil {
		writeError(c, h.logger, actor, err)
		return
	}
	if entries == nil {
		entries = []*model.AuditLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ListSuspiciousActivity handles GET /suspicious-activities?limit=.
func (h *AdminHandler) ListSuspiciousActivity(c *gin.Context) {
	actor := identity.ActorFromCtx(c)
	recs, err := h.ledger.ListSuspiciousActivity(c.Request.Context(), actor, limitParam(c))
	if err != nil {
		writeError(c, h.logger, actor, err)
		return
	}
	if recs == nil {
		recs = []*model.SuspiciousActivityRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"activities": recs, "count": len(recs)})
}

func limitParam(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return limit
}
