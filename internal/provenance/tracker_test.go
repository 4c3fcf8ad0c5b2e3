package provenance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/StorefrontProvenance/internal/provenance"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubReader struct {
	events []provenance.Event
	err    error
}

func (s *stubReader) History(_ context.Context, _ string) ([]provenance.Event, error) {
	return s.events, s.err
}

type rejectSink struct{}

func (rejectSink) Submit(_ context.Context, _ *provenance.Submission) error {
	return errors.New("sink must not be called")
}

// ── Tests ────────────────────────────────────────────────────────────────

func newTracker(store provenance.Store) *provenance.Tracker {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 100)))
	return provenance.NewTracker(store, store, r, provenance.Config{}, zap.NewNop())
}

func TestTracker_fullLifecycle(t *testing.T) {
	store := provenance.NewMemoryStore()
	tr := newTracker(store)

	var recorded []provenance.Status
	var verdicts []bool
	tr.SetMetricsRecorder(provenance.MetricsRecorder{
		OnRecord: func(s provenance.Status) { recorded = append(recorded, s) },
		OnVerify: func(ok bool) { verdicts = append(verdicts, ok) },
	})

	if _, err := tr.Create(ctx, "p1", "creatorA", map[string]string{"title": "LUT pack"}); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Advance(ctx, "p1", "buyerB", provenance.StatusPurchased, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Advance(ctx, "p1", "fulfillerC", provenance.StatusDelivered, nil); err != nil {
		t.Fatal(err)
	}

	report, err := tr.Verify(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Verified || report.Badge != provenance.BadgeVerified {
		t.Errorf("expected Verified report, got %+v", report)
	}
	if len(report.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(report.Events))
	}
	if report.Tip != report.Events[2].Hash {
		t.Errorf("tip: got %q, want last hash", report.Tip)
	}
	if len(recorded) != 3 || recorded[2] != provenance.StatusDelivered {
		t.Errorf("metrics OnRecord: got %v", recorded)
	}
	if len(verdicts) != 1 || !verdicts[0] {
		t.Errorf("metrics OnVerify: got %v", verdicts)
	}
}

func TestTracker_skipRejectedWithoutEvent(t *testing.T) {
	store := provenance.NewMemoryStore()
	tr := newTracker(store)

	if _, err := tr.Create(ctx, "p1", "creatorA", nil); err != nil {
		t.Fatal(err)
	}
	_, err := tr.Advance(ctx, "p1", "fulfillerC", provenance.StatusDelivered, nil)
	if !errors.Is(err, provenance.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	events, _ := store.History(ctx, "p1")
	if len(events) != 1 {
		t.Errorf("rejected transition persisted an event: %d events", len(events))
	}
}

func TestTracker_createTwiceConflicts(t *testing.T) {
	tr := newTracker(provenance.NewMemoryStore())
	_, _ = tr.Create(ctx, "p1", "creatorA", nil)
	if _, err := tr.Create(ctx, "p1", "creatorA", nil); !errors.Is(err, provenance.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestTracker_advanceWithoutHistory(t *testing.T) {
	tr := newTracker(provenance.NewMemoryStore())
	if _, err := tr.Advance(ctx, "p1", "buyerB", provenance.StatusPurchased, nil); !errors.Is(err, provenance.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTracker_recordDispatchesCreated(t *testing.T) {
	tr := newTracker(provenance.NewMemoryStore())
	e, err := tr.Record(ctx, "p1", "creatorA", provenance.StatusCreated, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Event.Status != provenance.StatusCreated {
		t.Errorf("status: got %q", e.Event.Status)
	}
	if _, err := tr.Record(ctx, "p1", "x", "refunded", nil); !errors.Is(err, provenance.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestTracker_timestampsStayMonotonic(t *testing.T) {
	store := provenance.NewMemoryStore()
	// Clock frozen in time: every reading is identical.
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 0)))
	tr := provenance.NewTracker(store, store, r, provenance.Config{}, zap.NewNop())

	_, _ = tr.Create(ctx, "p1", "creatorA", nil)
	_, _ = tr.Advance(ctx, "p1", "buyerB", provenance.StatusPurchased, nil)
	_, _ = tr.Advance(ctx, "p1", "fulfillerC", provenance.StatusDelivered, nil)

	events, _ := store.History(ctx, "p1")
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp <= events[i-1].Timestamp {
			t.Errorf("event %d timestamp %d not after %d", i, events[i].Timestamp, events[i-1].Timestamp)
		}
	}
	if !provenance.VerifyChain(events) {
		t.Error("chain with adjusted timestamps should verify")
	}
}

func TestTracker_verifyHistoryFailureIsNotAVerdict(t *testing.T) {
	reader := &stubReader{err: errors.New("connection reset")}
	tr := provenance.NewTracker(reader, rejectSink{}, nil, provenance.Config{}, zap.NewNop())

	report, err := tr.Verify(ctx, "p1")
	if !errors.Is(err, provenance.ErrHistoryUnavailable) {
		t.Fatalf("expected ErrHistoryUnavailable, got %v", err)
	}
	if report != nil {
		t.Error("expected no report on I/O failure")
	}
}

func TestTracker_verifyTamperedHistory(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 1000)))
	chain := buildChain(t, r, "p1")
	chain[1].Timestamp++

	tr := provenance.NewTracker(&stubReader{events: chain}, rejectSink{}, nil, provenance.Config{}, zap.NewNop())
	report, err := tr.Verify(ctx, "p1")
	if err != nil {
		t.Fatalf("tampering must not surface as an error: %v", err)
	}
	if report.Verified || report.Badge != provenance.BadgeUnverified {
		t.Errorf("expected Unverified, got %+v", report)
	}
}

func TestTracker_verifyMalformedHistoryIsUnverified(t *testing.T) {
	bad := []provenance.Event{{ProductID: "p1", Timestamp: -5, Status: provenance.StatusCreated, Hash: "zz"}}
	tr := provenance.NewTracker(&stubReader{events: bad}, rejectSink{}, nil, provenance.Config{}, zap.NewNop())

	report, err := tr.Verify(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Verified {
		t.Error("malformed history must not verify")
	}
}

func TestTracker_verifyGenesisConfig(t *testing.T) {
	forged := []provenance.Event{{
		ProductID: "p1",
		Timestamp: 1700000000000,
		Status:    provenance.StatusCreated,
		Hash:      provenance.ComputeHash("p1", 1, provenance.StatusCreated, ""),
	}}

	lenient := provenance.NewTracker(&stubReader{events: forged}, rejectSink{}, nil, provenance.Config{}, zap.NewNop())
	if rep, _ := lenient.Verify(ctx, "p1"); !rep.Verified {
		t.Error("default config should not check the first event")
	}

	strict := provenance.NewTracker(&stubReader{events: forged}, rejectSink{}, nil,
		provenance.Config{VerifyGenesis: true}, zap.NewNop())
	if rep, _ := strict.Verify(ctx, "p1"); rep.Verified {
		t.Error("VerifyGenesis should reject a forged first event")
	}
}

func TestTracker_advanceHistoryFailure(t *testing.T) {
	reader := &stubReader{err: errors.New("timeout")}
	tr := provenance.NewTracker(reader, rejectSink{}, nil, provenance.Config{}, zap.NewNop())
	if _, err := tr.Advance(ctx, "p1", "buyerB", provenance.StatusPurchased, nil); !errors.Is(err, provenance.ErrHistoryUnavailable) {
		t.Errorf("expected ErrHistoryUnavailable, got %v", err)
	}
}

func TestTracker_advanceOverCorruptHistory(t *testing.T) {
	bad := []provenance.Event{{ProductID: "p1", Timestamp: -5, Status: provenance.StatusCreated, Hash: "zz"}}
	tr := provenance.NewTracker(&stubReader{events: bad}, rejectSink{}, nil, provenance.Config{}, zap.NewNop())

	_, err := tr.Advance(ctx, "p1", "buyerB", provenance.StatusPurchased, nil)
	if !errors.Is(err, provenance.ErrCorruptHistory) {
		t.Fatalf("expected ErrCorruptHistory, got %v", err)
	}
	if errors.Is(err, provenance.ErrMalformedInput) {
		t.Error("corrupt stored history must not read as caller input error")
	}
}
