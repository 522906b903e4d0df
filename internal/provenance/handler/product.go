package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/provenance/internal/identity"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"github.com/jmerrifield20/provenance/internal/provenance/service"
	"go.uber.org/zap"
)

// ProductHandler exposes product and checkpoint endpoints.
type ProductHandler struct {
	ledger *service.Ledger
	logger *zap.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(ledger *service.Ledger, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{ledger: ledger, logger: logger}
}

// Register mounts the product routes on the given router group. The group
// must already run identity.ResolveActor.
func (h *ProductHandler) Register(rg *gin.RouterGroup) {
	products := rg.Group("/products")
	{
		products.POST("", h.CreateProduct)
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
		products.POST("/:id/checkpoints", h.AppendCheckpoint)
	}
}

// CreateProduct handles POST /products.
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	actor := identity.ActorFromCtx(c)

	var in service.CreateProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.logger, actor, h.ledger.RejectMalformedCreate(c.Request.Context(), actor, err))
		return
	}

	p, err := h.ledger.CreateProduct(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, h.logger, actor, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": p})
}

// ListProducts handles GET /products. Summaries, newest first.
func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.ledger.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, identity.ActorFromCtx(c), err)
		return
	}
	if products == nil {
		products = []*model.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// GetProduct handles GET /products/:id with the verified chain.
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseProductID(c)
	if !ok {
		return
	}
	p, err := h.ledger.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, identity.ActorFromCtx(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

// AppendCheckpoint handles POST /products/:id/checkpoints.
func (h *ProductHandler) AppendCheckpoint(c *gin.Context) {
	actor := identity.ActorFromCtx(c)
	id, ok := parseProductID(c)
	if !ok {
		return
	}

	var in service.AppendCheckpointInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.logger, actor, h.ledger.RejectMalformedCheckpoint(c.Request.Context(), actor, id, err))
		return
	}

	b, err := h.ledger.AppendCheckpoint(c.Request.Context(), actor, id, in)
	if err != nil {
		writeError(c, h.logger, actor, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"block": b})
}

func parseProductID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": service.KindValidation, "error": "invalid product ID"})
		return uuid.Nil, false
	}
	return id, true
}
