package provenance

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Reason classifies why a chain failed verification. It is for diagnostics
// only; callers render every failure as "Unverified".
type Reason string

const (
	ReasonBrokenLink   Reason = "broken_link"
	ReasonHashMismatch Reason = "hash_mismatch"
	ReasonGenesisLink  Reason = "genesis_link"
	ReasonGenesisHash  Reason = "genesis_hash"
)

// ChainError reports the first position at which a chain failed verification.
type ChainError struct {
	Index  int
	Reason Reason
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("provenance chain %s at index %d", e.Reason, e.Index)
}

type checkConfig struct {
	genesis bool
}

// CheckOption configures CheckChain.
type CheckOption func(*checkConfig)

// WithGenesisCheck also verifies the first event: its previous hash must be
// empty and its own hash must recompute. Off by default.
func WithGenesisCheck() CheckOption {
	return func(c *checkConfig) {
		c.genesis = true
	}
}

// VerifyChain reports whether every adjacent pair of events links correctly
// and every non-first event's hash recomputes. Chains of zero or one event are
// trivially valid. It is a pure function of its input.
func VerifyChain(events []Event) bool {
	return CheckChain(events) == nil
}

// CheckChain walks events in order and returns a *ChainError describing the
// first failure, or nil if the chain is intact.
func CheckChain(events []Event, opts ...CheckOption) error {
	var cfg checkConfig
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.genesis && len(events) > 0 {
		first := &events[0]
		if first.PreviousHash != "" {
			return &ChainError{Index: 0, Reason: ReasonGenesisLink}
		}
		if first.Hash != hashEvent(first) {
			return &ChainError{Index: 0, Reason: ReasonGenesisHash}
		}
	}

	for i := 1; i < len(events); i++ {
		prev, curr := &events[i-1], &events[i]
		if curr.PreviousHash != prev.Hash {
			return &ChainError{Index: i, Reason: ReasonBrokenLink}
		}
		if curr.Hash != hashEvent(curr) {
			return &ChainError{Index: i, Reason: ReasonHashMismatch}
		}
	}
	return nil
}

// ValidateEvent checks a record obtained from outside the process before it is
// allowed near VerifyChain.
func ValidateEvent(e *Event) error {
	switch {
	case e.ProductID == "":
		return fmt.Errorf("%w: product id is required", ErrMalformedInput)
	case e.Timestamp <= 0:
		return fmt.Errorf("%w: timestamp must be positive, got %d", ErrMalformedInput, e.Timestamp)
	case !e.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrMalformedInput, e.Status)
	case !isDigest(e.Hash):
		return fmt.Errorf("%w: hash must be 64 hex characters", ErrMalformedInput)
	case e.PreviousHash != "" && !isDigest(e.PreviousHash):
		return fmt.Errorf("%w: previous hash must be 64 hex characters", ErrMalformedInput)
	case e.Status != StatusCreated && e.PreviousHash == "":
		return fmt.Errorf("%w: %s event has no previous hash", ErrMalformedInput, e.Status)
	}
	return nil
}

// DecodeChain parses a JSON array of events for a single product, validates
// every record and returns them in ascending timestamp order.
func DecodeChain(raw []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: decode chain: %v", ErrMalformedInput, err)
	}
	if err := ValidateChain(events); err != nil {
		return nil, err
	}
	SortChain(events)
	return events, nil
}

// ValidateChain runs ValidateEvent over events and rejects chains that mix
// product IDs.
func ValidateChain(events []Event) error {
	for i := range events {
		if err := ValidateEvent(&events[i]); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if events[i].ProductID != events[0].ProductID {
			return fmt.Errorf("%w: event %d belongs to product %q, chain is %q",
				ErrMalformedInput, i, events[i].ProductID, events[0].ProductID)
		}
	}
	return nil
}

// SortChain orders events by ascending timestamp, keeping the input order of
// equal timestamps.
func SortChain(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}

// Tip returns the last event of a chain, or nil for an empty chain.
func Tip(events []Event) *Event {
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

func isDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
