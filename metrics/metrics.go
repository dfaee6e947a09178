// Package metrics holds the Prometheus instrumentation for the indexer's
// write path (Indexer, Balance Gatherer) and read path (Query Gatherer).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the indexer records.
type Metrics struct {
	// Gauges
	AddressesPendingBalance prometheus.Gauge
	SyncHeight              prometheus.Gauge
	SafeHeight              prometheus.Gauge

	// Counters
	BatchesCommittedTotal prometheus.Counter
	BlocksIndexedTotal    prometheus.Counter
	RPCErrorsTotal        *prometheus.CounterVec
	StoreRetriesTotal     *prometheus.CounterVec
	QueriesTotal          *prometheus.CounterVec

	// Histograms
	BatchDuration       prometheus.Histogram
	BatchSize           prometheus.Histogram
	BalancePhaseDuration prometheus.Histogram
	QueryDuration       *prometheus.HistogramVec
}

// New creates and registers the indexer's metrics under the given
// namespace/subsystem, defaulting to "indexer"/"ingest".
func New(namespace, subsystem string) *Metrics {
	if namespace == "" {
		namespace = "indexer"
	}
	if subsystem == "" {
		subsystem = "ingest"
	}

	return &Metrics{
		AddressesPendingBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "addresses_pending_balance",
			Help:      "Number of addresses recorded since the last balance phase but not yet resolved",
		}),
		SyncHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sync_height",
			Help:      "Exclusive end of the committed block range (highest committed block number plus one)",
		}),
		SafeHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "safe_height",
			Help:      "Highest block number considered safe from reorg (chain head minus confirmations)",
		}),

		BatchesCommittedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_committed_total",
			Help:      "Total number of extraction windows committed to the store",
		}),
		BlocksIndexedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_indexed_total",
			Help:      "Total number of blocks committed to the store",
		}),
		RPCErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rpc_errors_total",
			Help:      "Total number of node RPC call failures",
		}, []string{"method"}),
		StoreRetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_retries_total",
			Help:      "Total number of store write retries",
		}, []string{"op"}),
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of Query Gatherer requests",
		}, []string{"method", "outcome"}),

		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Time to extract, process, and commit one window of blocks",
			Buckets:   prometheus.DefBuckets,
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_size_blocks",
			Help:      "Number of blocks committed per window",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		BalancePhaseDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "balance_phase_duration_seconds",
			Help:      "Time to resolve balances for all addresses recorded since the previous phase",
			Buckets:   prometheus.DefBuckets,
		}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "request_duration_seconds",
			Help:      "Query Gatherer request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// ObserveBatch records a committed window's duration and size.
func (m *Metrics) ObserveBatch(duration time.Duration, blocks int) {
	m.BatchDuration.Observe(duration.Seconds())
	m.BatchSize.Observe(float64(blocks))
	m.BatchesCommittedTotal.Inc()
	m.BlocksIndexedTotal.Add(float64(blocks))
}

// ObserveBalancePhase records a completed balance-resolution phase.
func (m *Metrics) ObserveBalancePhase(duration time.Duration) {
	m.BalancePhaseDuration.Observe(duration.Seconds())
}

// RecordRPCError increments the RPC error counter for method.
func (m *Metrics) RecordRPCError(method string) {
	m.RPCErrorsTotal.WithLabelValues(method).Inc()
}

// RecordStoreRetry increments the store retry counter for op.
func (m *Metrics) RecordStoreRetry(op string) {
	m.StoreRetriesTotal.WithLabelValues(op).Inc()
}

// SetSyncHeight updates the sync height gauge.
func (m *Metrics) SetSyncHeight(height uint64) {
	m.SyncHeight.Set(float64(height))
}

// SetSafeHeight updates the safe height gauge.
func (m *Metrics) SetSafeHeight(height uint64) {
	m.SafeHeight.Set(float64(height))
}

// SetAddressesPendingBalance updates the pending-balance backlog gauge.
func (m *Metrics) SetAddressesPendingBalance(count int) {
	m.AddressesPendingBalance.Set(float64(count))
}

// ObserveQuery records a Query Gatherer call's duration and outcome.
func (m *Metrics) ObserveQuery(method string, duration time.Duration, err error) {
	m.QueryDuration.WithLabelValues(method).Observe(duration.Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.QueriesTotal.WithLabelValues(method, outcome).Inc()
}
