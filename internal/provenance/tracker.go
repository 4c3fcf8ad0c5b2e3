package provenance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Badge values rendered by consumers of a verification Report.
const (
	BadgeVerified   = "Verified"
	BadgeUnverified = "Unverified"
)

// Config holds Tracker configuration.
type Config struct {
	// VerifyGenesis also checks the first event's own hash and empty
	// predecessor during Verify. Chains written before this check existed
	// may fail it, so it is off by default.
	VerifyGenesis bool
}

// Report is the outcome of verifying a product's full history.
type Report struct {
	ProductID string  `json:"product_id"`
	Events    []Event `json:"events"`
	Verified  bool    `json:"verified"`
	Badge     string  `json:"badge"`
	Tip       string  `json:"tip,omitempty"`
}

// MetricsRecorder is an optional set of callbacks for recording outcomes.
type MetricsRecorder struct {
	OnRecord func(status Status)
	OnVerify func(verified bool)
}

// Tracker records lifecycle events against a Store and verifies product
// histories read from it.
type Tracker struct {
	reader   HistoryReader
	sink     SubmissionSink
	recorder *Recorder
	cfg      Config
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewTracker creates a Tracker. recorder may be nil to use the wall clock.
func NewTracker(reader HistoryReader, sink SubmissionSink, recorder *Recorder, cfg Config, logger *zap.Logger) *Tracker {
	if recorder == nil {
		recorder = NewRecorder()
	}
	return &Tracker{
		reader:   reader,
		sink:     sink,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetMetricsRecorder configures the metrics callbacks.
func (t *Tracker) SetMetricsRecorder(m MetricsRecorder) {
	t.metrics = m
}

// Create records and submits the created event for a product with no history.
// The returned Submission carries the persisted event.
func (t *Tracker) Create(ctx context.Context, productID, owner string, metadata any) (*Submission, error) {
	history, err := t.history(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		return nil, fmt.Errorf("%w: product %q already has %d event(s)", ErrConflict, productID, len(history))
	}

	_, sub, err := t.recorder.RecordCreation(productID, owner, metadata)
	if err != nil {
		return nil, err
	}
	return t.submit(ctx, sub)
}

// Advance records and submits the transition of productID to status to. The
// predecessor status and hash come from the stored history, and the new
// event's timestamp is kept strictly after the current tip.
func (t *Tracker) Advance(ctx context.Context, productID, actor string, to Status, metadata any) (*Submission, error) {
	if to == StatusCreated {
		return t.Create(ctx, productID, actor, metadata)
	}

	history, err := t.history(ctx, productID)
	if err != nil {
		return nil, err
	}
	tip := Tip(history)
	if tip == nil {
		return nil, fmt.Errorf("%w: product %q has no history; cannot move to %s", ErrInvalidTransition, productID, to)
	}

	_, sub, err := t.recorder.transition(productID, actor, tip.Status, to, tip.Hash, metadata, tip.Timestamp)
	if err != nil {
		return nil, err
	}
	return t.submit(ctx, sub)
}

// Record dispatches to Create or Advance depending on status.
func (t *Tracker) Record(ctx context.Context, productID, actor string, status Status, metadata any) (*Submission, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedInput, status)
	}
	return t.Advance(ctx, productID, actor, status, metadata)
}

// History returns the stored chain for productID after boundary validation.
func (t *Tracker) History(ctx context.Context, productID string) ([]Event, error) {
	return t.history(ctx, productID)
}

// Verify reads the full history of productID and verifies it. The returned
// error is non-nil only when the history could not be read; a tampered chain
// yields a Report with Verified=false.
func (t *Tracker) Verify(ctx context.Context, productID string) (*Report, error) {
	history, err := t.read(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := ValidateChain(history); err != nil {
		t.logger.Warn("provenance history rejected at boundary",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return t.report(productID, history, false), nil
	}
	return t.VerifyEvents(productID, history), nil
}

// VerifyEvents verifies a caller-supplied chain.
func (t *Tracker) VerifyEvents(productID string, events []Event) *Report {
	var opts []CheckOption
	if t.cfg.VerifyGenesis {
		opts = append(opts, WithGenesisCheck())
	}

	err := CheckChain(events, opts...)
	if err != nil {
		var ce *ChainError
		if errors.As(err, &ce) {
			t.logger.Warn("provenance chain unverified",
				zap.String("product_id", productID),
				zap.String("reason", string(ce.Reason)),
				zap.Int("index", ce.Index),
			)
		}
	}
	return t.report(productID, events, err == nil)
}

func (t *Tracker) report(productID string, events []Event, verified bool) *Report {
	report := &Report{ProductID: productID, Events: events, Verified: verified, Badge: BadgeUnverified}
	if verified {
		report.Badge = BadgeVerified
	}
	if tip := Tip(events); tip != nil {
		report.Tip = tip.Hash
	}
	if t.metrics.OnVerify != nil {
		t.metrics.OnVerify(verified)
	}
	return report
}

// read fetches history without validating it.
func (t *Tracker) read(ctx context.Context, productID string) ([]Event, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrMalformedInput)
	}
	events, err := t.reader.History(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	return events, nil
}

func (t *Tracker) history(ctx context.Context, productID string) ([]Event, error) {
	events, err := t.read(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := ValidateChain(events); err != nil {
		t.logger.Error("stored provenance history rejected at boundary",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: product %q: %v", ErrCorruptHistory, productID, err)
	}
	return events, nil
}

func (t *Tracker) submit(ctx context.Context, sub *Submission) (*Submission, error) {
	if err := t.sink.Submit(ctx, sub); err != nil {
		return nil, fmt.Errorf("submit %s event for %q: %w", sub.Event.Status, sub.Event.ProductID, err)
	}
	if t.metrics.OnRecord != nil {
		t.metrics.OnRecord(sub.Event.Status)
	}
	t.logger.Info("provenance event recorded",
		zap.String("product_id", sub.Event.ProductID),
		zap.String("status", string(sub.Event.Status)),
		zap.String("actor", sub.Actor),
		zap.String("hash", sub.Event.Hash),
	)
	return sub, nil
}
