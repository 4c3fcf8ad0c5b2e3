package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/StorefrontProvenance/internal/identity"
	"github.com/jmerrifield20/StorefrontProvenance/internal/ratings"
)

// RatingsHandler exposes product and store ratings.
type RatingsHandler struct {
	svc        *ratings.Service
	tokens     *identity.ActorTokenIssuer
	writeLimit gin.HandlerFunc
	logger     *zap.Logger
}

// NewRatingsHandler creates a RatingsHandler. When tokens is set, a rating's
// reviewer is the token's actor; otherwise reviewer_id is read from the body.
func NewRatingsHandler(svc *ratings.Service, tokens *identity.ActorTokenIssuer, logger *zap.Logger) *RatingsHandler {
	return &RatingsHandler{svc: svc, tokens: tokens, logger: logger}
}

// SetWriteLimit installs a limiter run on rating writes after the actor
// token is checked. Call before Register.
func (h *RatingsHandler) SetWriteLimit(mw gin.HandlerFunc) {
	h.writeLimit = mw
}

// Register mounts the ratings routes on the given router group.
func (h *RatingsHandler) Register(rg *gin.RouterGroup) {
	var auth gin.HandlerFunc
	if h.tokens != nil {
		auth = identity.RequireActorToken(h.tokens)
	}
	r := rg.Group("/ratings/:kind/:subject")
	{
		r.GET("", h.List)
		r.PUT("", writeChain(auth, h.writeLimit, h.Rate)...)
	}
}

type rateRequest struct {
	Score      int    `json:"score" binding:"required"`
	Comment    string `json:"comment"`
	ReviewerID string `json:"reviewer_id"`
}

// Rate handles PUT /ratings/:kind/:subject.
func (h *RatingsHandler) Rate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	reviewer := req.ReviewerID
	if claims := identity.ActorFromContext(c); claims != nil {
		reviewer = claims.Actor
	}

	kind := ratings.Kind(c.Param("kind"))
	r, err := h.svc.Rate(c.Request.Context(), kind, c.Param("subject"), reviewer, req.Score, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	recordRating(string(kind))
	c.JSON(http.StatusOK, r)
}

// List handles GET /ratings/:kind/:subject?limit=&offset=.
func (h *RatingsHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	list, sum, err := h.svc.List(c.Request.Context(), ratings.Kind(c.Param("kind")), c.Param("subject"), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []*ratings.Rating{}
	}
	c.JSON(http.StatusOK, gin.H{"ratings": list, "summary": sum})
}

func (h *RatingsHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ratings.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ratings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("ratings request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
