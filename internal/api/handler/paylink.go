package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/StorefrontProvenance/internal/paylink"
)

// PayLinkHandler mints and decodes storefront payment links.
type PayLinkHandler struct {
	gen    *paylink.Generator
	maxAge time.Duration
	logger *zap.Logger
}

// NewPayLinkHandler creates a PayLinkHandler. A zero maxAge accepts links of
// any age.
func NewPayLinkHandler(gen *paylink.Generator, maxAge time.Duration, logger *zap.Logger) *PayLinkHandler {
	return &PayLinkHandler{gen: gen, maxAge: maxAge, logger: logger}
}

// Register mounts the payment link routes on the given router group.
func (h *PayLinkHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/paylinks", h.Create)
	rg.GET("/paylinks/:token", h.Decode)
}

type createPayLinkRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Price     float64 `json:"price" binding:"required"`
	Title     string  `json:"title"`
}

// Create handles POST /paylinks.
func (h *PayLinkHandler) Create(c *gin.Context) {
	var req createPayLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	link, token, err := h.gen.Generate(req.ProductID, req.Price, req.Title)
	recordPayLink("create", err == nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": link, "token": token})
}

// Decode handles GET /paylinks/:token.
func (h *PayLinkHandler) Decode(c *gin.Context) {
	var opts []paylink.DecodeOption
	if h.maxAge > 0 {
		opts = append(opts, paylink.WithMaxAge(h.maxAge))
	}

	params, err := paylink.Decode(c.Param("token"), opts...)
	recordPayLink("decode", err == nil)
	switch {
	case errors.Is(err, paylink.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Debug("payment link rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, params)
	}
}
