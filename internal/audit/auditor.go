// Package audit periodically re-verifies every recorded provenance chain so
// that tampering with stored history is noticed without a buyer asking.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jmerrifield20/StorefrontProvenance/internal/provenance"
)

// Config holds audit configuration.
type Config struct {
	Interval time.Duration
	// Schedule is an optional cron expression ("0 3 * * *", "@every 1h").
	// When set it replaces Interval.
	Schedule    string
	Concurrency int
}

// ValidSchedule reports whether spec parses as a standard cron expression.
func ValidSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

// ProductLister returns the IDs of every product with recorded history.
type ProductLister interface {
	Products(ctx context.Context) ([]string, error)
}

// Verifier verifies one product's stored history.
// *provenance.Tracker satisfies this interface.
type Verifier interface {
	Verify(ctx context.Context, productID string) (*provenance.Report, error)
}

// MetricsRecordFunc is an optional callback receiving the totals of each pass.
type MetricsRecordFunc func(verified, unverified int)

// Result summarises one audit pass.
type Result struct {
	Checked     int
	Verified    int
	Unverified  []string
	Unavailable int
}

// Auditor runs periodic provenance audits.
type Auditor struct {
	lister    ProductLister
	verifier  Verifier
	cfg       Config
	mu        sync.Mutex
	last      map[string]bool
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Auditor.
func New(lister ProductLister, verifier Verifier, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Auditor{
		lister:   lister,
		verifier: verifier,
		cfg:      cfg,
		last:     make(map[string]bool),
		logger:   logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start runs an audit immediately and then on every interval, or on the cron
// schedule when one is configured, until ctx is done.
func (a *Auditor) Start(ctx context.Context) {
	if a.cfg.Schedule != "" {
		a.startScheduled(ctx)
		return
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		a.RunOnce(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (a *Auditor) startScheduled(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(a.cfg.Schedule, func() { a.RunOnce(ctx) }); err != nil {
		a.logger.Error("audit: invalid schedule", zap.String("schedule", a.cfg.Schedule), zap.Error(err))
		return
	}

	a.RunOnce(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// RunOnce verifies every product with bounded concurrency.
func (a *Auditor) RunOnce(ctx context.Context) Result {
	var res Result
	products, err := a.lister.Products(ctx)
	if err != nil {
		a.logger.Error("audit: list products", zap.Error(err))
		return res
	}

	sem := make(chan struct{}, a.cfg.Concurrency)
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, id := range products {
		wg.Add(1)
		go func(productID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			report, err := a.verifier.Verify(ctx, productID)

			rmu.Lock()
			defer rmu.Unlock()
			res.Checked++
			switch {
			case errors.Is(err, provenance.ErrHistoryUnavailable):
				res.Unavailable++
				a.logger.Warn("audit: history unavailable", zap.String("product_id", productID), zap.Error(err))
				return
			case err != nil:
				res.Unavailable++
				a.logger.Error("audit: verify", zap.String("product_id", productID), zap.Error(err))
				return
			case report.Verified:
				res.Verified++
			default:
				res.Unverified = append(res.Unverified, productID)
			}
			a.track(productID, report.Verified)
		}(id)
	}
	wg.Wait()

	if a.onMetrics != nil {
		a.onMetrics(res.Verified, len(res.Unverified))
	}
	a.logger.Info("audit: pass complete",
		zap.Int("checked", res.Checked),
		zap.Int("verified", res.Verified),
		zap.Int("unverified", len(res.Unverified)),
		zap.Int("unavailable", res.Unavailable),
	)
	return res
}

// track logs verdict changes between passes.
func (a *Auditor) track(productID string, verified bool) {
	a.mu.Lock()
	prev, seen := a.last[productID]
	a.last[productID] = verified
	a.mu.Unlock()

	switch {
	case !verified && (!seen || prev):
		a.logger.Warn("audit: chain unverified", zap.String("product_id", productID))
	case verified && seen && !prev:
		a.logger.Info("audit: chain verified again", zap.String("product_id", productID))
	}
}

// Unverified reports whether the last pass found productID unverified.
func (a *Auditor) Unverified(productID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.last[productID]
	return ok && !v
}
