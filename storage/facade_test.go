package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	backend, err := NewMemoryBackend(nil, nil)
	require.NoError(t, err)
	return NewFacade(backend, nil)
}

func TestFacadeGetPutRoundTrip(t *testing.T) {
	f := newTestFacade(t)

	_, err := f.Get([]byte("block-1"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.Put([]byte("block-1"), []byte("payload")))

	v, err := f.Get([]byte("block-1"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), v)
}

func TestFacadePrefixScanOrderedAndBounded(t *testing.T) {
	f := newTestFacade(t)

	require.NoError(t, f.Put(AssociatedDataKey("0xaddr", "i", 1), []byte("one")))
	require.NoError(t, f.Put(AssociatedDataKey("0xaddr", "i", 2), []byte("two")))
	require.NoError(t, f.Put(AssociatedDataKey("0xaddr", "i", 3), []byte("three")))
	require.NoError(t, f.Put(AssociatedDataKey("0xaddr", "o", 1), []byte("other")))

	values, err := f.PrefixScan(AssociatedDataPrefix("0xaddr", "i"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("one"), []byte("two"), []byte("three")}, values)
}

func TestFacadePrefixScanEmptyIsValid(t *testing.T) {
	f := newTestFacade(t)
	values, err := f.PrefixScan([]byte("address-nothing-here-"))
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestFacadeCommitBatchAtomic(t *testing.T) {
	f := newTestFacade(t)

	ops := []WriteOp{
		{Key: BlockKey("5"), Value: []byte("block-payload")},
		{Key: HashBlockKey("0xabc"), Value: []byte("5")},
	}
	require.NoError(t, f.CommitBatch(ops))

	v, err := f.Get(BlockKey("5"))
	require.NoError(t, err)
	require.Equal(t, []byte("block-payload"), v)

	v, err = f.Get(HashBlockKey("0xabc"))
	require.NoError(t, err)
	require.Equal(t, []byte("5"), v)
}

func TestFacadeReadOnlyRejectsWrites(t *testing.T) {
	f := newTestFacade(t)
	require.NoError(t, f.Put([]byte("block-1"), []byte("payload")))

	ro := f.OpenReadOnly()
	_, err := ro.Get([]byte("block-1"))
	require.NoError(t, err)

	err = ro.Put([]byte("block-2"), []byte("payload"))
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestFacadeDeleteRemovesKey(t *testing.T) {
	f := newTestFacade(t)
	require.NoError(t, f.Put([]byte("block-1"), []byte("payload")))
	require.NoError(t, f.Delete([]byte("block-1")))

	_, err := f.Get([]byte("block-1"))
	require.ErrorIs(t, err, ErrNotFound)
}
