package balance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/evmindexer/internal/testutil"
)

func TestSpillAppendAndReadChunks(t *testing.T) {
	dir := testutil.TempDataDir(t)
	s := OpenSpill(dir)

	require.NoError(t, s.Append([]string{"0xaaa", "0xbbb", "0xccc"}))
	require.NoError(t, s.Append([]string{"0xddd"}))

	var chunks [][]string
	require.NoError(t, s.ReadChunks(2, func(chunk []string) error {
		cp := append([]string(nil), chunk...)
		chunks = append(chunks, cp)
		return nil
	}))
	require.Equal(t, [][]string{{"0xaaa", "0xbbb"}, {"0xccc", "0xddd"}}, chunks)
}

func TestSpillReadChunksMissingFileYieldsNoChunks(t *testing.T) {
	dir := testutil.TempDataDir(t)
	s := OpenSpill(dir)

	called := false
	require.NoError(t, s.ReadChunks(10, func(chunk []string) error {
		called = true
		return nil
	}))
	require.False(t, called)
}

func TestSpillDedupRemovesDuplicates(t *testing.T) {
	dir := testutil.TempDataDir(t)
	s := OpenSpill(dir)

	require.NoError(t, s.Append([]string{"0xbbb", "0xaaa", "0xbbb", "0xaaa"}))
	require.NoError(t, s.Dedup())

	data, err := os.ReadFile(filepath.Join(dir, "addresses.txt"))
	require.NoError(t, err)
	require.Equal(t, "0xaaa\n0xbbb\n", string(data))
}

func TestSpillDeleteIsIdempotent(t *testing.T) {
	dir := testutil.TempDataDir(t)
	s := OpenSpill(dir)
	require.NoError(t, s.Append([]string{"0xaaa"}))
	require.NoError(t, s.Delete())
	require.NoError(t, s.Delete())

	_, err := os.Stat(s.Path())
	require.True(t, os.IsNotExist(err))
}
