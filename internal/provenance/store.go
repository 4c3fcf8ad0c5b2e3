package provenance

import (
	"context"
	"fmt"
)

// HistoryReader returns the recorded events for a product in ascending
// timestamp order. An unknown product yields an empty slice and no error.
type HistoryReader interface {
	History(ctx context.Context, productID string) ([]Event, error)
}

// SubmissionSink durably records a Submission. Implementations must reject,
// with ErrConflict, any submission that does not extend the current tip of its
// product's chain.
type SubmissionSink interface {
	Submit(ctx context.Context, sub *Submission) error
}

// Store is a HistoryReader and SubmissionSink over the same backing data.
// Both MemoryStore and PostgresStore implement this interface.
type Store interface {
	HistoryReader
	SubmissionSink
}

// checkExtends reports ErrConflict unless sub is the next event after tip.
func checkExtends(tip *Event, sub *Submission) error {
	ev := &sub.Event
	if tip == nil {
		if ev.Status != StatusCreated || ev.PreviousHash != "" {
			return fmt.Errorf("%w: product %q has no history; first event must be %s",
				ErrConflict, ev.ProductID, StatusCreated)
		}
		return nil
	}
	if ev.PreviousHash != tip.Hash {
		return fmt.Errorf("%w: product %q tip is %s, submission extends %s",
			ErrConflict, ev.ProductID, short(tip.Hash), short(ev.PreviousHash))
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	if hash == "" {
		return `""`
	}
	return hash
}
