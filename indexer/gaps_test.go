package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/evmindexer/storage"
)

func TestDetectGapsFindsMissingBlock(t *testing.T) {
	idx, facade, _ := newTestIndexer(t, "0x2", "0x0")

	behind := 0
	require.NoError(t, idx.tick(context.Background(), &behind))

	require.NoError(t, facade.Delete(storage.BlockKey("1")))

	gaps, err := idx.DetectGaps(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []GapRange{{Start: 1, End: 2}}, gaps)
}

func TestDetectGapsReturnsEmptyWhenNothingMissing(t *testing.T) {
	idx, _, _ := newTestIndexer(t, "0x2", "0x0")

	behind := 0
	require.NoError(t, idx.tick(context.Background(), &behind))

	gaps, err := idx.DetectGaps(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, gaps)
}

func TestFillGapRestoresMissingBlock(t *testing.T) {
	idx, facade, tracker := newTestIndexer(t, "0x2", "0x0")

	behind := 0
	require.NoError(t, idx.tick(context.Background(), &behind))
	require.NoError(t, facade.Delete(storage.BlockKey("1")))

	require.NoError(t, idx.FillGap(context.Background(), GapRange{Start: 1, End: 2}))

	_, err := facade.Get(storage.BlockKey("1"))
	require.NoError(t, err)

	counters, err := tracker.Read()
	require.NoError(t, err)
	require.Equal(t, uint64(2), counters.HighestBlock)
}
