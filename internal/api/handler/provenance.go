package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/StorefrontProvenance/internal/identity"
	"github.com/jmerrifield20/StorefrontProvenance/internal/provenance"
)

// retryAfterSeconds is advertised when product history cannot be read.
const retryAfterSeconds = "5"

// ProvenanceHandler exposes product provenance history, verification and
// event recording over HTTP.
type ProvenanceHandler struct {
	tracker    *provenance.Tracker
	tokens     *identity.ActorTokenIssuer
	writeLimit gin.HandlerFunc
	logger     *zap.Logger
}

// NewProvenanceHandler creates a ProvenanceHandler. When tokens is nil, event
// recording is open and the actor is taken from the request body.
func NewProvenanceHandler(tracker *provenance.Tracker, tokens *identity.ActorTokenIssuer, logger *zap.Logger) *ProvenanceHandler {
	return &ProvenanceHandler{tracker: tracker, tokens: tokens, logger: logger}
}

// SetWriteLimit installs a limiter run on event recording after the actor
// token is checked. Call before Register.
func (h *ProvenanceHandler) SetWriteLimit(mw gin.HandlerFunc) {
	h.writeLimit = mw
}

// Register mounts the provenance routes on the given router group.
func (h *ProvenanceHandler) Register(rg *gin.RouterGroup) {
	var auth gin.HandlerFunc
	if h.tokens != nil {
		auth = identity.RequireActorToken(h.tokens)
	}
	p := rg.Group("/products/:id/provenance")
	{
		p.GET("", h.History)
		p.GET("/verify", h.Verify)
		p.POST("", writeChain(auth, h.writeLimit, h.Record)...)
	}
	rg.POST("/provenance/verify", h.VerifyChain)
}

// History handles GET /products/:id/provenance and returns the chain with
// its verification badge.
func (h *ProvenanceHandler) History(c *gin.Context) {
	report, ok := h.verify(c)
	if !ok {
		return
	}
	if len(report.Events) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no provenance recorded for product"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Verify handles GET /products/:id/provenance/verify.
func (h *ProvenanceHandler) Verify(c *gin.Context) {
	report, ok := h.verify(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": report.ProductID,
		"verified":   report.Verified,
		"badge":      report.Badge,
		"events":     len(report.Events),
		"tip":        report.Tip,
	})
}

func (h *ProvenanceHandler) verify(c *gin.Context) (*provenance.Report, bool) {
	report, err := h.tracker.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	if report.Events == nil {
		report.Events = []provenance.Event{}
	}
	return report, true
}

type recordRequest struct {
	Status   provenance.Status `json:"status"`
	Actor    string            `json:"actor"`
	Metadata json.RawMessage   `json:"metadata"`
}

// Record handles POST /products/:id/provenance. It appends the next
// lifecycle event to the product's chain.
func (h *ProvenanceHandler) Record(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of created, purchased, delivered"})
		return
	}

	actor := req.Actor
	if h.tokens != nil {
		claims := identity.ActorFromContext(c)
		if !identity.CanRecord(claims, req.Status) {
			want, _ := identity.RoleFor(req.Status)
			c.JSON(http.StatusForbidden, gin.H{"error": "role " + string(want) + " required to record " + string(req.Status)})
			return
		}
		if actor != "" && actor != claims.Actor {
			c.JSON(http.StatusForbidden, gin.H{"error": "actor does not match token"})
			return
		}
		actor = claims.Actor
	}
	if actor == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}

	var meta any
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		meta = req.Metadata
	}

	sub, err := h.tracker.Record(c.Request.Context(), c.Param("id"), actor, req.Status, meta)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// VerifyChain handles POST /provenance/verify. The body is a JSON array of
// events for a single product, e.g. a chain exported by another storefront.
func (h *ProvenanceHandler) VerifyChain(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}
	events, err := provenance.DecodeChain(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var productID string
	if len(events) > 0 {
		productID = events[0].ProductID
	}
	report := h.tracker.VerifyEvents(productID, events)
	c.JSON(http.StatusOK, gin.H{
		"product_id": report.ProductID,
		"verified":   report.Verified,
		"badge":      report.Badge,
		"events":     len(events),
		"tip":        report.Tip,
	})
}

// writeError maps provenance errors onto HTTP statuses.
func (h *ProvenanceHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, provenance.ErrHistoryUnavailable):
		h.logger.Error("provenance history unavailable",
			zap.String("product_id", c.Param("id")),
			zap.Error(err),
		)
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provenance history temporarily unavailable"})
	case errors.Is(err, provenance.ErrCorruptHistory):
		h.logger.Error("stored provenance history corrupt",
			zap.String("product_id", c.Param("id")),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored provenance history is corrupt"})
	case errors.Is(err, provenance.ErrMalformedInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provenance.ErrInvalidTransition), errors.Is(err, provenance.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("provenance request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
