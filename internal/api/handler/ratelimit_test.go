package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/StorefrontProvenance/internal/api/handler"
	"github.com/jmerrifield20/StorefrontProvenance/internal/identity"
	"github.com/jmerrifield20/StorefrontProvenance/internal/provenance"
)

func TestRateLimiter_allowsBurstThenLimits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := handler.NewRateLimiter(ctx, 1, 2)

	if !l.Allow("ip:1.2.3.4") || !l.Allow("ip:1.2.3.4") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("ip:1.2.3.4") {
		t.Error("third request should be limited")
	}
	if !l.Allow("ip:5.6.7.8") {
		t.Error("another caller should have its own bucket")
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 tracked callers, got %d", l.Len())
	}
}

func TestRateKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.9:5555"

	if got := handler.RateKey(c); got != "ip:10.0.0.9" {
		t.Errorf("anonymous key: got %q", got)
	}
}

// Writes are limited per actor: a second actor from the same address keeps
// its own budget once the first is exhausted.
func TestProvenance_writeLimitPerActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := newTokens(t)
	store := provenance.NewMemoryStore()
	tracker := provenance.NewTracker(store, store, nil, provenance.Config{}, zap.NewNop())
	h := handler.NewProvenanceHandler(tracker, tokens, zap.NewNop())
	h.SetWriteLimit(handler.NewRateLimiter(ctx, 1, 1).Middleware())
	r := gin.New()
	h.Register(r.Group("/api/v1"))

	alice, _ := tokens.Issue("creatorA", identity.RoleCreator)
	bob, _ := tokens.Issue("creatorB", identity.RoleCreator)

	if w := doJSON(t, r, http.MethodPost, "/api/v1/products/p1/provenance", map[string]any{"status": "created"}, alice); w.Code != http.StatusCreated {
		t.Fatalf("first write: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/products/p2/provenance", map[string]any{"status": "created"}, alice)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second write by same actor: expected 429, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/products/p3/provenance", map[string]any{"status": "created"}, bob); w.Code != http.StatusCreated {
		t.Errorf("other actor: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/products/p4/provenance", map[string]any{"status": "created"}, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token must be rejected before limiting, got %d", w.Code)
	}
}

func TestPrometheusMiddleware_unmatchedPathLabel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.PrometheusMiddleware())
	r.GET("/metrics", handler.MetricsHandler())

	for _, p := range []string{"/wp-admin/a", "/wp-admin/b", "/.env"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	if strings.Contains(body, "wp-admin") || strings.Contains(body, `path="/.env"`) {
		t.Error("raw unmatched paths leaked into metric labels")
	}
	if !strings.Contains(body, `path="unmatched"`) {
		t.Error(`expected path="unmatched" label`)
	}
}
