// Package constants centralizes default values and magic numbers used across
// the indexer so that tuning the system means editing one file.
package constants

import "time"

// Sync defaults (spec §6 "Process configuration").
const (
	// DefaultConfirmations is the number of blocks below head treated as final.
	DefaultConfirmations = 12

	// DefaultBulkSize is the half-open window width processed per batch.
	DefaultBulkSize = 10000

	// MinBulkSize is the floor the adaptive optimizer will not shrink below.
	MinBulkSize = 100

	// MaxBulkSize is the ceiling the adaptive optimizer will not grow past.
	MaxBulkSize = 50000

	// DefaultRefreshInterval is how long the outer loop sleeps when caught up
	// with head, and the delay before retrying a failed batch.
	DefaultRefreshInterval = 15 * time.Second

	// DefaultRPCWorkerConcurrency bounds the balance/trace RPC worker pool.
	DefaultRPCWorkerConcurrency = 16

	// SpillDedupEveryNBatches triggers an external sort-unique pass on the
	// address spill file every N committed batches (spec §4.4 step 12).
	SpillDedupEveryNBatches = 5

	// FellBehindThreshold is how many blocks head may advance past the
	// balance-phase start height before the outer loop treats it as "fell
	// behind" and starts a fresh sync iteration (spec §4.4).
	FellBehindThreshold = 3
)

// Store facade retry policy (spec §4.2).
const (
	// StoreRetryAttempts bounds retries of a Get/prefix-scan against a
	// transient missing-file error surfaced by the underlying engine.
	StoreRetryAttempts = 5

	// StoreRetryBackoff is the fixed delay between retry attempts.
	StoreRetryBackoff = 25 * time.Millisecond
)

// RPC client defaults.
const (
	// DefaultRPCTimeout bounds a single JSON-RPC round trip.
	DefaultRPCTimeout = 30 * time.Second

	// DefaultBalanceBatchSize is the chunk size used when resolving balances
	// via batched eth_getBalance calls.
	DefaultBalanceBatchSize = 500

	// DefaultTraceBatchSize bounds a debug_traceBlockByNumber batch, kept
	// small to avoid node-side timeouts (spec §6).
	DefaultTraceBatchSize = 50

	// DefaultRPCRateLimit is the default steady-state rate (requests/sec)
	// applied to the RPC worker pool.
	DefaultRPCRateLimit = 50.0

	// DefaultRPCRateBurst is the default burst size for the RPC rate limiter.
	DefaultRPCRateBurst = 100
)

// Pebble storage defaults.
const (
	// DefaultCacheMB is the default block cache size in megabytes.
	DefaultCacheMB = 128

	// DefaultMaxOpenFiles bounds the number of open SSTable files.
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBufferMB is the default memtable size in megabytes.
	DefaultWriteBufferMB = 64
)
