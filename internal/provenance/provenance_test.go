package provenance_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmerrifield20/StorefrontProvenance/internal/provenance"
)

// steppingClock returns a clock that starts at startMs and advances by stepMs
// on every call.
func steppingClock(startMs, stepMs int64) func() time.Time {
	next := startMs
	return func() time.Time {
		t := time.UnixMilli(next)
		next += stepMs
		return t
	}
}

// buildChain records created → purchased → delivered for productID.
func buildChain(t *testing.T, r *provenance.Recorder, productID string) []provenance.Event {
	t.Helper()
	e0, _, err := r.RecordCreation(productID, "creatorA", map[string]string{})
	if err != nil {
		t.Fatalf("RecordCreation: %v", err)
	}
	e1, _, err := r.RecordTransition(productID, "buyerB", provenance.StatusCreated, provenance.StatusPurchased, e0.Hash)
	if err != nil {
		t.Fatalf("RecordTransition(purchased): %v", err)
	}
	e2, _, err := r.RecordTransition(productID, "fulfillerC", provenance.StatusPurchased, provenance.StatusDelivered, e1.Hash)
	if err != nil {
		t.Fatalf("RecordTransition(delivered): %v", err)
	}
	return []provenance.Event{*e0, *e1, *e2}
}

func TestComputeHash_knownVector(t *testing.T) {
	const want0 = "3cf0ec55ae8621dd68b1ee04283f2a76ff31272b7c369aac87cfc0a8ce16fea6"
	got0 := provenance.ComputeHash("p1", 1700000000000, provenance.StatusCreated, "")
	if got0 != want0 {
		t.Fatalf("created hash: got %s, want %s", got0, want0)
	}

	const want1 = "d9e508aab2fc92931d8f945a712bc57cd924c3700ddd6ab1ef756fec289cacd1"
	got1 := provenance.ComputeHash("p1", 1700000000500, provenance.StatusPurchased, got0)
	if got1 != want1 {
		t.Errorf("purchased hash: got %s, want %s", got1, want1)
	}
}

func TestRecordCreation_fields(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 0)))

	e, sub, err := r.RecordCreation("p1", "creatorA", map[string]string{"title": "Preset pack"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != provenance.StatusCreated {
		t.Errorf("status: got %q, want created", e.Status)
	}
	if e.PreviousHash != "" {
		t.Errorf("previousHash: got %q, want empty", e.PreviousHash)
	}
	if e.Timestamp != 1700000000000 {
		t.Errorf("timestamp: got %d", e.Timestamp)
	}
	if e.Hash != "3cf0ec55ae8621dd68b1ee04283f2a76ff31272b7c369aac87cfc0a8ce16fea6" {
		t.Errorf("hash: got %s", e.Hash)
	}
	if sub.Event != *e {
		t.Error("submission event differs from returned event")
	}
	if sub.Actor != "creatorA" {
		t.Errorf("actor: got %q", sub.Actor)
	}
	if string(sub.Metadata) != `{"title":"Preset pack"}` {
		t.Errorf("metadata: got %s", sub.Metadata)
	}
	if len(sub.MetadataDigest) != 64 {
		t.Errorf("metadata digest: got %q", sub.MetadataDigest)
	}
}

func TestRecordCreation_metadataNotHashed(t *testing.T) {
	clock := steppingClock(1700000000000, 0)
	r := provenance.NewRecorder(provenance.WithClock(clock))

	a, _, _ := r.RecordCreation("p1", "creatorA", map[string]string{"v": "1"})
	b, _, _ := r.RecordCreation("p1", "creatorA", map[string]string{"v": "2"})
	if a.Hash != b.Hash {
		t.Error("metadata changed the event hash")
	}
}

func TestRecordCreation_malformed(t *testing.T) {
	cases := []struct {
		name, productID, owner string
		meta                   any
	}{
		{"empty product", "", "creatorA", nil},
		{"empty owner", "p1", "", nil},
		{"bad raw metadata", "p1", "creatorA", json.RawMessage(`{bad`)},
		{"unencodable metadata", "p1", "creatorA", map[string]any{"f": func() {}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, sub, err := provenance.RecordCreation(tc.productID, tc.owner, tc.meta)
			if !errors.Is(err, provenance.ErrMalformedInput) {
				t.Fatalf("expected ErrMalformedInput, got %v", err)
			}
			if e != nil || sub != nil {
				t.Error("expected no event on error")
			}
		})
	}
}

func TestRecordCreation_nonPositiveClock(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(func() time.Time { return time.UnixMilli(0) }))
	if _, _, err := r.RecordCreation("p1", "creatorA", nil); !errors.Is(err, provenance.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestRecordTransition_rejectsIllegalMoves(t *testing.T) {
	const prev = "3cf0ec55ae8621dd68b1ee04283f2a76ff31272b7c369aac87cfc0a8ce16fea6"
	cases := []struct {
		name     string
		from, to provenance.Status
	}{
		{"skip purchased", provenance.StatusCreated, provenance.StatusDelivered},
		{"back to created", provenance.StatusPurchased, provenance.StatusCreated},
		{"repeat purchased", provenance.StatusPurchased, provenance.StatusPurchased},
		{"beyond delivered", provenance.StatusDelivered, provenance.StatusPurchased},
		{"no prior state", "", provenance.StatusPurchased},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, sub, err := provenance.RecordTransition("p1", "actor", tc.from, tc.to, prev)
			if !errors.Is(err, provenance.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if e != nil || sub != nil {
				t.Error("expected no event on error")
			}
		})
	}
}

func TestRecordTransition_malformed(t *testing.T) {
	const prev = "3cf0ec55ae8621dd68b1ee04283f2a76ff31272b7c369aac87cfc0a8ce16fea6"
	cases := []struct {
		name, productID, actor string
		to                     provenance.Status
		prev                   string
	}{
		{"empty previous hash", "p1", "buyerB", provenance.StatusPurchased, ""},
		{"empty product", "", "buyerB", provenance.StatusPurchased, prev},
		{"empty actor", "p1", "", provenance.StatusPurchased, prev},
		{"unknown status", "p1", "buyerB", "refunded", prev},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := provenance.RecordTransition(tc.productID, tc.actor, provenance.StatusCreated, tc.to, tc.prev)
			if !errors.Is(err, provenance.ErrMalformedInput) {
				t.Fatalf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestVerifyChain_recordedChainIsValid(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 250)))
	chain := buildChain(t, r, "p1")

	for n := 0; n <= len(chain); n++ {
		if !provenance.VerifyChain(chain[:n]) {
			t.Errorf("VerifyChain(prefix %d) = false on recorded chain", n)
		}
	}
	if err := provenance.CheckChain(chain, provenance.WithGenesisCheck()); err != nil {
		t.Errorf("CheckChain with genesis check: %v", err)
	}
}

func TestVerifyChain_scenario(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 1000)))
	chain := buildChain(t, r, "p1")

	if chain[1].PreviousHash != chain[0].Hash || chain[2].PreviousHash != chain[1].Hash {
		t.Fatal("recorded events are not linked")
	}
	if !provenance.VerifyChain(chain) {
		t.Fatal("expected untampered chain to verify")
	}

	tampered := append([]provenance.Event(nil), chain...)
	tampered[1].Timestamp += 1

	if provenance.VerifyChain(tampered) {
		t.Fatal("expected tampered chain to fail verification")
	}
	var ce *provenance.ChainError
	if err := provenance.CheckChain(tampered); !errors.As(err, &ce) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
	if ce.Index != 1 || ce.Reason != provenance.ReasonHashMismatch {
		t.Errorf("got %s at %d, want hash_mismatch at 1", ce.Reason, ce.Index)
	}
}

func TestVerifyChain_singleFieldMutations(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 1000)))
	chain := buildChain(t, r, "p1")

	mutations := map[string]func(e *provenance.Event){
		"timestamp": func(e *provenance.Event) { e.Timestamp-- },
		"status": func(e *provenance.Event) {
			if e.Status == provenance.StatusDelivered {
				e.Status = provenance.StatusPurchased
			} else {
				e.Status = provenance.StatusDelivered
			}
		},
		"hash":         func(e *provenance.Event) { e.Hash = provenance.ComputeHash("other", 1, e.Status, "") },
		"previousHash": func(e *provenance.Event) {
			e.PreviousHash = provenance.ComputeHash("elsewhere", 1, provenance.StatusCreated, "")
		},
	}

	for i := 1; i < len(chain); i++ {
		for name, mutate := range mutations {
			tampered := append([]provenance.Event(nil), chain...)
			mutate(&tampered[i])
			if provenance.VerifyChain(tampered) {
				t.Errorf("mutating %s of event %d went undetected", name, i)
			}
		}
	}
}

func TestVerifyChain_brokenLink(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 1000)))
	chain := buildChain(t, r, "p1")

	// Re-hash event 2 over a wrong predecessor so only the link is broken.
	tampered := append([]provenance.Event(nil), chain...)
	tampered[2].PreviousHash = chain[0].Hash
	tampered[2].Hash = provenance.ComputeHash("p1", tampered[2].Timestamp, tampered[2].Status, chain[0].Hash)

	var ce *provenance.ChainError
	if err := provenance.CheckChain(tampered); !errors.As(err, &ce) || ce.Reason != provenance.ReasonBrokenLink {
		t.Fatalf("expected broken_link, got %v", err)
	}
	if ce.Index != 2 {
		t.Errorf("index: got %d, want 2", ce.Index)
	}
}

func TestVerifyChain_brokenLinkAtFirstTransition(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 1000)))
	chain := buildChain(t, r, "p1")

	// Event 1 rehashed over a valid digest that is not event 0's hash.
	other := provenance.ComputeHash("elsewhere", 1, provenance.StatusCreated, "")
	tampered := append([]provenance.Event(nil), chain...)
	tampered[1].PreviousHash = other
	tampered[1].Hash = provenance.ComputeHash("p1", tampered[1].Timestamp, tampered[1].Status, other)

	if err := provenance.ValidateEvent(&tampered[1]); err != nil {
		t.Fatalf("tampered event should still be well formed: %v", err)
	}
	var ce *provenance.ChainError
	if err := provenance.CheckChain(tampered); !errors.As(err, &ce) || ce.Reason != provenance.ReasonBrokenLink {
		t.Fatalf("expected broken_link, got %v", err)
	}
	if ce.Index != 1 {
		t.Errorf("expected index 1, got %d", ce.Index)
	}
	if provenance.VerifyChain(tampered) {
		t.Error("VerifyChain accepted a relinked first transition")
	}
}

func TestVerifyChain_idempotent(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 1000)))
	chain := buildChain(t, r, "p1")
	snapshot := append([]provenance.Event(nil), chain...)

	first := provenance.VerifyChain(chain)
	second := provenance.VerifyChain(chain)
	if first != second {
		t.Errorf("VerifyChain not idempotent: %v then %v", first, second)
	}
	for i := range chain {
		if chain[i] != snapshot[i] {
			t.Errorf("VerifyChain mutated event %d", i)
		}
	}
}

func TestVerifyChain_firstEventUncheckedByDefault(t *testing.T) {
	forged := []provenance.Event{{
		ProductID: "p1",
		Timestamp: 1700000000000,
		Status:    provenance.StatusCreated,
		Hash:      "3cf0ec55ae8621dd68b1ee04283f2a76ff31272b7c369aac87cfc0a8ce16fea7",
	}}
	if !provenance.VerifyChain(forged) {
		t.Error("single-element chain should be trivially valid")
	}

	var ce *provenance.ChainError
	err := provenance.CheckChain(forged, provenance.WithGenesisCheck())
	if !errors.As(err, &ce) || ce.Reason != provenance.ReasonGenesisHash {
		t.Errorf("expected genesis_hash with genesis check, got %v", err)
	}

	forged[0].PreviousHash = forged[0].Hash
	err = provenance.CheckChain(forged, provenance.WithGenesisCheck())
	if !errors.As(err, &ce) || ce.Reason != provenance.ReasonGenesisLink {
		t.Errorf("expected genesis_link with genesis check, got %v", err)
	}
}

func TestDecodeChain(t *testing.T) {
	r := provenance.NewRecorder(provenance.WithClock(steppingClock(1700000000000, 1000)))
	chain := buildChain(t, r, "p1")

	// Shuffle order on the wire; DecodeChain sorts by timestamp.
	wire, _ := json.Marshal([]provenance.Event{chain[2], chain[0], chain[1]})
	decoded, err := provenance.DecodeChain(wire)
	if err != nil {
		t.Fatal(err)
	}
	for i := range chain {
		if decoded[i] != chain[i] {
			t.Errorf("event %d out of order after decode", i)
		}
	}
	if !provenance.VerifyChain(decoded) {
		t.Error("decoded chain should verify")
	}
}

func TestDecodeChain_wireFieldNames(t *testing.T) {
	raw := []byte(`[{"id":"p1","timestamp":1700000000000,"status":"created",
		"hash":"3cf0ec55ae8621dd68b1ee04283f2a76ff31272b7c369aac87cfc0a8ce16fea6","previousHash":""}]`)
	events, err := provenance.DecodeChain(raw)
	if err != nil {
		t.Fatal(err)
	}
	if events[0].ProductID != "p1" || events[0].Status != provenance.StatusCreated {
		t.Errorf("unexpected decode: %+v", events[0])
	}
}

func TestDecodeChain_rejectsMalformed(t *testing.T) {
	const h = "3cf0ec55ae8621dd68b1ee04283f2a76ff31272b7c369aac87cfc0a8ce16fea6"
	cases := map[string]string{
		"not json":          `{`,
		"zero timestamp":    `[{"id":"p1","timestamp":0,"status":"created","hash":"` + h + `"}]`,
		"unknown status":    `[{"id":"p1","timestamp":1,"status":"refunded","hash":"` + h + `"}]`,
		"short hash":        `[{"id":"p1","timestamp":1,"status":"created","hash":"abc"}]`,
		"missing prev hash": `[{"id":"p1","timestamp":1,"status":"purchased","hash":"` + h + `"}]`,
		"empty product":     `[{"id":"","timestamp":1,"status":"created","hash":"` + h + `"}]`,
		"mixed products": `[{"id":"p1","timestamp":1,"status":"created","hash":"` + h + `"},
			{"id":"p2","timestamp":2,"status":"purchased","hash":"` + h + `","previousHash":"` + h + `"}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := provenance.DecodeChain([]byte(raw)); !errors.Is(err, provenance.ErrMalformedInput) {
				t.Errorf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestStatusNext(t *testing.T) {
	if n, ok := provenance.StatusCreated.Next(); !ok || n != provenance.StatusPurchased {
		t.Errorf("created.Next() = %q, %v", n, ok)
	}
	if n, ok := provenance.StatusPurchased.Next(); !ok || n != provenance.StatusDelivered {
		t.Errorf("purchased.Next() = %q, %v", n, ok)
	}
	if _, ok := provenance.StatusDelivered.Next(); ok {
		t.Error("delivered should be terminal")
	}
}
