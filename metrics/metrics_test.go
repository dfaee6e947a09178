package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveBatchUpdatesCountersAndHistograms(t *testing.T) {
	m := New("indexer_test_batch", "ingest")

	m.ObserveBatch(50*time.Millisecond, 10)
	m.ObserveBatch(25*time.Millisecond, 5)

	require.Equal(t, float64(2), testutil.ToFloat64(m.BatchesCommittedTotal))
	require.Equal(t, float64(15), testutil.ToFloat64(m.BlocksIndexedTotal))
}

func TestRecordRPCErrorIncrementsByMethod(t *testing.T) {
	m := New("indexer_test_rpc", "ingest")

	m.RecordRPCError("eth_getBalance")
	m.RecordRPCError("eth_getBalance")
	m.RecordRPCError("debug_traceBlockByNumber")

	require.Equal(t, float64(2), testutil.ToFloat64(m.RPCErrorsTotal.WithLabelValues("eth_getBalance")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.RPCErrorsTotal.WithLabelValues("debug_traceBlockByNumber")))
}

func TestSetGauges(t *testing.T) {
	m := New("indexer_test_gauges", "ingest")

	m.SetSyncHeight(100)
	m.SetSafeHeight(88)
	m.SetAddressesPendingBalance(7)

	require.Equal(t, float64(100), testutil.ToFloat64(m.SyncHeight))
	require.Equal(t, float64(88), testutil.ToFloat64(m.SafeHeight))
	require.Equal(t, float64(7), testutil.ToFloat64(m.AddressesPendingBalance))
}

func TestObserveQueryRecordsOutcome(t *testing.T) {
	m := New("indexer_test_query", "ingest")

	m.ObserveQuery("GetAddress", time.Millisecond, nil)
	m.ObserveQuery("GetAddress", time.Millisecond, errors.New("not found"))

	require.Equal(t, float64(1), testutil.ToFloat64(m.QueriesTotal.WithLabelValues("GetAddress", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.QueriesTotal.WithLabelValues("GetAddress", "error")))
}
