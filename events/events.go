// Package events publishes the two lifecycle notifications the indexing
// engine emits for downstream consumers (spec §9 supplemented feature:
// external systems waiting on ingest progress should not have to poll
// progress.txt). Publication is best-effort: a bus failure is logged and
// never fails the ingest cycle that triggered it. The Kafka and Redis
// publishers wait up to their write timeout before giving up.
package events

import "time"

// BatchCommitted is published once a batch's write operations and
// progress counters have been committed (spec §4.4 step 13).
type BatchCommitted struct {
	FromBlock        uint64    `json:"from_block"`
	ToBlock          uint64    `json:"to_block"`
	AddressesTouched int       `json:"addresses_touched"`
	CommittedAt      time.Time `json:"committed_at"`
}

// BalancePhaseResolved is published once a balance-phase run has drained
// the address spill file (spec §4.5).
type BalancePhaseResolved struct {
	Height      uint64    `json:"height"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Publisher is the sink the Indexer notifies after each cycle. Local,
// Redis, and Kafka implementations share this interface so the outer loop
// never depends on a specific transport (spec §6 "EventBus configuration").
type Publisher interface {
	PublishBatchCommitted(BatchCommitted) error
	PublishBalancePhaseResolved(BalancePhaseResolved) error
	Close() error
}
