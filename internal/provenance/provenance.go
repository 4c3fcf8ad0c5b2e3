// Package provenance implements the hash-chained custody ledger for storefront
// products.
//
// Every product accumulates at most three lifecycle events: created, purchased
// and delivered. Each event's Hash covers its product ID, timestamp, status and
// the Hash of the event before it, so a retroactive edit to any event breaks
// the chain from that point on.
//
// Recording (RecordCreation, RecordTransition) is where lifecycle rules are
// enforced. Verification (VerifyChain, CheckChain) is purely structural and
// never returns an error for a tampered chain; it reports "unverified".
//
// Two Store implementations persist chains:
//   - MemoryStore: in-process, for testing and single-node deployments.
//   - PostgresStore: durable, single writer per product.
package provenance
