package provenance

import (
	"encoding/json"
	"fmt"
	"time"
)

// Recorder shapes lifecycle events and computes their hashes. It performs no
// I/O; handing the resulting Submission to a sink is the caller's job.
type Recorder struct {
	now func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the wall clock used to timestamp events.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder using time.Now unless overridden.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

var defaultRecorder = NewRecorder()

// RecordCreation records the initial event for productID using the wall clock.
func RecordCreation(productID, owner string, metadata any) (*Event, *Submission, error) {
	return defaultRecorder.RecordCreation(productID, owner, metadata)
}

// RecordTransition records a purchased or delivered event using the wall clock.
func RecordTransition(productID, actor string, from, to Status, previousHash string) (*Event, *Submission, error) {
	return defaultRecorder.RecordTransition(productID, actor, from, to, previousHash)
}

// RecordCreation builds the first event of a chain: status created with an
// empty previous hash. metadata is carried in the Submission only.
func (r *Recorder) RecordCreation(productID, owner string, metadata any) (*Event, *Submission, error) {
	if productID == "" {
		return nil, nil, fmt.Errorf("%w: product id is required", ErrMalformedInput)
	}
	if owner == "" {
		return nil, nil, fmt.Errorf("%w: owner is required", ErrMalformedInput)
	}
	return r.build(productID, owner, StatusCreated, "", metadata, 0)
}

// RecordTransition builds the event moving a chain from status from to status
// to. from is the chain's current terminal status and previousHash the hash of
// its last event; both are supplied by the caller.
func (r *Recorder) RecordTransition(productID, actor string, from, to Status, previousHash string) (*Event, *Submission, error) {
	return r.transition(productID, actor, from, to, previousHash, nil, 0)
}

// transition is RecordTransition with metadata and a lower bound: the event
// timestamp is forced strictly above notAfter when the clock lags behind it.
func (r *Recorder) transition(productID, actor string, from, to Status, previousHash string, meta any, notAfter int64) (*Event, *Submission, error) {
	if productID == "" {
		return nil, nil, fmt.Errorf("%w: product id is required", ErrMalformedInput)
	}
	if actor == "" {
		return nil, nil, fmt.Errorf("%w: actor is required", ErrMalformedInput)
	}
	if !to.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown status %q", ErrMalformedInput, to)
	}
	next, ok := from.Next()
	if !ok || next != to {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if previousHash == "" {
		return nil, nil, fmt.Errorf("%w: previous hash is required for %s", ErrMalformedInput, to)
	}
	return r.build(productID, actor, to, previousHash, meta, notAfter)
}

func (r *Recorder) build(productID, actor string, status Status, previousHash string, meta any, notAfter int64) (*Event, *Submission, error) {
	now := r.now().UTC()
	ts := now.UnixMilli()
	if ts <= 0 {
		return nil, nil, fmt.Errorf("%w: clock returned non-positive timestamp %d", ErrMalformedInput, ts)
	}
	if ts <= notAfter {
		ts = notAfter + 1
	}

	raw, err := encodeMetadata(meta)
	if err != nil {
		return nil, nil, err
	}

	event := &Event{
		ProductID:    productID,
		Timestamp:    ts,
		Status:       status,
		PreviousHash: previousHash,
	}
	event.Hash = hashEvent(event)

	sub := &Submission{
		Event:      *event,
		Actor:      actor,
		Metadata:   raw,
		RecordedAt: now,
	}
	if len(raw) > 0 {
		sub.MetadataDigest = sha256Sum(raw)
	}
	return event, sub, nil
}

func encodeMetadata(meta any) (json.RawMessage, error) {
	switch m := meta.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(m) == 0 {
			return nil, nil
		}
		if !json.Valid(m) {
			return nil, fmt.Errorf("%w: metadata is not valid JSON", ErrMalformedInput)
		}
		return m, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal metadata: %v", ErrMalformedInput, err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}
