package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Status is the lifecycle state recorded by an Event.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPurchased Status = "purchased"
	StatusDelivered Status = "delivered"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPurchased, StatusDelivered:
		return true
	}
	return false
}

// Next returns the only status that may follow s. delivered is terminal and
// returns ok=false.
func (s Status) Next() (next Status, ok bool) {
	switch s {
	case StatusCreated:
		return StatusPurchased, true
	case StatusPurchased:
		return StatusDelivered, true
	}
	return "", false
}

// Event is a single lifecycle record in a product's provenance chain.
// The JSON shape matches the records published by the storefront frontend.
type Event struct {
	ProductID    string `json:"id"`
	Timestamp    int64  `json:"timestamp"` // ms since epoch, producer assigned
	Status       Status `json:"status"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previousHash"`
}

// Time returns the event timestamp as a UTC time.Time.
func (e *Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Submission is the unit of work handed to a SubmissionSink after an event has
// been recorded. Metadata travels with the event but is not part of its hash.
type Submission struct {
	Event          Event           `json:"event"`
	Actor          string          `json:"actor"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	MetadataDigest string          `json:"metadata_digest"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// ComputeHash returns hex(SHA-256(productID || timestamp || status || previousHash)).
// Fields are concatenated without separators so chains written by the
// storefront frontend verify unchanged.
func ComputeHash(productID string, timestamp int64, status Status, previousHash string) string {
	h := sha256.New()
	h.Write([]byte(productID))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte(status))
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// hashEvent recomputes the hash an event should carry.
func hashEvent(e *Event) string {
	return ComputeHash(e.ProductID, e.Timestamp, e.Status, e.PreviousHash)
}

// sha256Sum returns the hex-encoded SHA-256 digest of data.
func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
