package retriever

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/evmindexer/internal/testutil"
)

func TestReadBlocks(t *testing.T) {
	dir := testutil.TempDataDir(t)
	path := testutil.WriteCSVFixture(t, dir, "blocks.csv", blocksHeader, [][]string{
		{"1", "0xhash1", "0xparent1", "0x0", "0xbloom", "0xminer", "1", "1", "0x", "500", "8000000", "21000", "1000", "0xuncles"},
	})

	rows, err := readBlocks(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1", rows[0].Number)
	require.Equal(t, "0xhash1", rows[0].Hash)
	require.Equal(t, "1000", rows[0].Timestamp)
}

func TestReadBlocksMissingFileYieldsNoRows(t *testing.T) {
	dir := testutil.TempDataDir(t)
	rows, err := readBlocks(filepath.Join(dir, "blocks.csv"))
	require.NoError(t, err)
	require.Nil(t, rows)
}

func TestReadTransactionsResortsByBlockAndIndex(t *testing.T) {
	dir := testutil.TempDataDir(t)
	path := testutil.WriteCSVFixture(t, dir, "transactions.csv", transactionsHeader, [][]string{
		{"0xb2", "2", "0xfrom2", "0xto2", "21000", "1", "0xtx2a", "", "0", "0", "1"},
		{"0xb1", "1", "0xfrom1", "0xto1", "21000", "1", "0xtx1a", "", "0", "0", "1"},
		{"0xb1", "1", "0xfrom1", "0xto1", "21000", "1", "0xtx1b", "", "1", "0", "0"},
	})

	rows, err := readTransactions(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "0xtx1b", rows[0].Hash)
	require.Equal(t, "0xtx1a", rows[1].Hash)
	require.Equal(t, "0xtx2a", rows[2].Hash)
}

func TestReadLogsSplitsTopics(t *testing.T) {
	dir := testutil.TempDataDir(t)
	path := testutil.WriteCSVFixture(t, dir, "logs.csv", logsHeader, [][]string{
		{"0xtx1", "0xdata", "0xtopic1,0xtopic2"},
		{"0xtx2", "0xdata2", ""},
	})

	rows, err := readLogs(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"0xtopic1", "0xtopic2"}, rows[0].Topics)
	require.Nil(t, rows[1].Topics)
}

func TestReadContractsParsesBooleans(t *testing.T) {
	dir := testutil.TempDataDir(t)
	path := testutil.WriteCSVFixture(t, dir, "contracts.csv", contractsHeader, [][]string{
		{"0xcontract1", "0xbytecode", "true", "false"},
	})

	rows, err := readContracts(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].IsERC20)
	require.False(t, rows[0].IsERC721)
}

func TestReadCSVRejectsWrongHeader(t *testing.T) {
	dir := testutil.TempDataDir(t)
	path := testutil.WriteCSVFixture(t, dir, "blocks.csv", []string{"wrong", "header"}, [][]string{
		{"a", "b"},
	})

	_, err := readBlocks(path)
	require.Error(t, err)
}

func TestReadTracesParsesNumericFields(t *testing.T) {
	dir := testutil.TempDataDir(t)
	path := testutil.WriteCSVFixture(t, dir, "traces.csv", tracesHeader, [][]string{
		{"10", "2", "0xfrom", "0xto", "100", "0xin", "0xout", "call", "call", "", "21000", "21000", ""},
	})

	rows, err := readTraces(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(10), rows[0].BlockNumber)
	require.Equal(t, uint64(2), rows[0].TransactionIndex)
}
