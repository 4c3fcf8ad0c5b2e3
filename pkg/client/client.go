package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is matched by errors returned for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is matched by errors returned for 503 responses. The
	// server could not read product history; retry after APIError.RetryAfter.
	ErrUnavailable = errors.New("service unavailable")

	// ErrConflict is matched by errors returned for 409 responses: an invalid
	// transition or a concurrent append to the same chain.
	ErrConflict = errors.New("conflict")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// IsRetryable reports whether err is a transient failure rather than a verdict.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Event is one lifecycle record of a product's provenance chain.
type Event struct {
	ProductID    string `json:"id"`
	Timestamp    int64  `json:"timestamp"`
	Status       string `json:"status"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previousHash"`
}

// Report is a product's full history and its verification badge.
type Report struct {
	ProductID string  `json:"product_id"`
	Events    []Event `json:"events"`
	Verified  bool    `json:"verified"`
	Badge     string  `json:"badge"`
	Tip       string  `json:"tip,omitempty"`
}

// Verdict is the outcome of a verification call.
type Verdict struct {
	ProductID string `json:"product_id"`
	Verified  bool   `json:"verified"`
	Badge     string `json:"badge"`
	Events    int    `json:"events"`
	Tip       string `json:"tip,omitempty"`
}

// RecordRequest is the payload for Record. Actor is ignored by servers that
// take it from the bearer token.
type RecordRequest struct {
	Status   string          `json:"status"`
	Actor    string          `json:"actor,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Submission is the persisted event returned by Record.
type Submission struct {
	Event          Event           `json:"event"`
	Actor          string          `json:"actor"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	MetadataDigest string          `json:"metadata_digest"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// PayLink is a minted payment link.
type PayLink struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// PayLinkParams are the parameters carried by a payment link.
type PayLinkParams struct {
	ProductID string  `json:"productId"`
	Price     float64 `json:"price"`
	Title     string  `json:"title"`
	Timestamp int64   `json:"timestamp"`
}

// RateRequest is the payload for Rate.
type RateRequest struct {
	Score      int    `json:"score"`
	Comment    string `json:"comment,omitempty"`
	ReviewerID string `json:"reviewer_id,omitempty"`
}

// Rating is one reviewer's rating of a product or store.
type Rating struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	SubjectID  string    `json:"subject_id"`
	ReviewerID string    `json:"reviewer_id"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RatingsPage is a page of ratings plus the subject's summary.
type RatingsPage struct {
	Ratings []Rating `json:"ratings"`
	Summary struct {
		Count   int     `json:"count"`
		Average float64 `json:"average"`
	} `json:"summary"`
}

// Client is the SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
	cache       *verdictCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an actor token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithCacheTTL caches Verify results for ttl. Recording an event through the
// same client drops that product's cached verdict.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("cache TTL must be positive")
		}
		c.cache = newVerdictCache(ttl)
		return nil
	}
}

// New creates a Client for the service at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// History returns the stored chain of productID and its badge.
func (c *Client) History(ctx context.Context, productID string) (*Report, error) {
	var out Report
	if err := c.call(ctx, http.MethodGet, c.productPath(productID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify returns the verification verdict of productID's stored chain.
func (c *Client) Verify(ctx context.Context, productID string) (*Verdict, error) {
	if c.cache != nil {
		if v, ok := c.cache.get(productID); ok {
			return v, nil
		}
	}
	var out Verdict
	if err := c.call(ctx, http.MethodGet, c.productPath(productID)+"/verify", nil, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(productID, &out)
	}
	return &out, nil
}

// Record appends the next lifecycle event to productID's chain.
func (c *Client) Record(ctx context.Context, productID string, req RecordRequest) (*Submission, error) {
	var out Submission
	if err := c.call(ctx, http.MethodPost, c.productPath(productID), req, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.drop(productID)
	}
	return &out, nil
}

// VerifyChain verifies a chain supplied by the caller without storing it.
func (c *Client) VerifyChain(ctx context.Context, events []Event) (*Verdict, error) {
	if events == nil {
		events = []Event{}
	}
	var out Verdict
	if err := c.call(ctx, http.MethodPost, "/api/v1/provenance/verify", events, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePayLink mints a payment link for a product.
func (c *Client) CreatePayLink(ctx context.Context, productID string, price float64, title string) (*PayLink, error) {
	body := map[string]any{"product_id": productID, "price": price, "title": title}
	var out PayLink
	if err := c.call(ctx, http.MethodPost, "/api/v1/paylinks", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodePayLink returns the parameters of a payment link token.
func (c *Client) DecodePayLink(ctx context.Context, token string) (*PayLinkParams, error) {
	var out PayLinkParams
	if err := c.call(ctx, http.MethodGet, "/api/v1/paylinks/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rate records a rating of a product or store ("product" or "store").
func (c *Client) Rate(ctx context.Context, kind, subjectID string, req RateRequest) (*Rating, error) {
	var out Rating
	if err := c.call(ctx, http.MethodPut, ratingsPath(kind, subjectID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ratings lists the ratings of a product or store with its summary.
func (c *Client) Ratings(ctx context.Context, kind, subjectID string) (*RatingsPage, error) {
	var out RatingsPage
	if err := c.call(ctx, http.MethodGet, ratingsPath(kind, subjectID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) productPath(productID string) string {
	return "/api/v1/products/" + url.PathEscape(productID) + "/provenance"
}

func ratingsPath(kind, subjectID string) string {
	return "/api/v1/ratings/" + url.PathEscape(kind) + "/" + url.PathEscape(subjectID)
}

// call encodes in as JSON, performs the request and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching the Bearer token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(s) * time.Second
		}
		return nil, apiErr
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// --- simple in-memory verdict cache ---

type cacheEntry struct {
	verdict   *Verdict
	expiresAt time.Time
}

type verdictCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newVerdictCache(ttl time.Duration) *verdictCache {
	return &verdictCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (vc *verdictCache) get(key string) (*Verdict, bool) {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	e, ok := vc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.verdict, true
}

func (vc *verdictCache) set(key string, v *Verdict) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.entries[key] = &cacheEntry{verdict: v, expiresAt: time.Now().Add(vc.ttl)}
}

func (vc *verdictCache) drop(key string) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	delete(vc.entries, key)
}
