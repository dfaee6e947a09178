package query

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/evmindexer/codec"
	"github.com/chainindex/evmindexer/model"
	"github.com/chainindex/evmindexer/storage"
)

func newTestFacade(t *testing.T) *storage.Facade {
	t.Helper()
	backend, err := storage.NewMemoryBackend(nil, nil)
	require.NoError(t, err)
	return storage.NewFacade(backend, nil)
}

func seedBlockAndTx(t *testing.T, facade *storage.Facade) {
	t.Helper()
	block := model.Block{Number: "10", Hash: "0xblockA", Timestamp: "500", Transactions: "0xtxA+0xtxB"}
	tx1 := model.Transaction{Hash: "0xtxA", BlockNumber: "10", From: "0xalice", To: "0xbob", Value: "1", Timestamp: "500"}
	tx2 := model.Transaction{Hash: "0xtxB", BlockNumber: "10", From: "0xbob", To: "0xalice", Value: "2", Timestamp: "500"}

	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.BlockKey("10"), Value: codec.EncodeBlock(block)},
		{Key: storage.HashBlockKey("0xblocka"), Value: []byte("10")},
		{Key: storage.TimestampBlockKey("500"), Value: []byte("0xblocka")},
		{Key: storage.TransactionKey("0xtxa"), Value: codec.EncodeTransaction(tx1)},
		{Key: storage.TransactionKey("0xtxb"), Value: codec.EncodeTransaction(tx2)},
	}))
}

func TestGetBlockByNumberAndHash(t *testing.T) {
	facade := newTestFacade(t)
	seedBlockAndTx(t, facade)
	g := New(facade)

	byNumber, err := g.GetBlockByNumber("10")
	require.NoError(t, err)
	require.Equal(t, "0xblockA", byNumber.Hash)

	byHash, err := g.GetBlockByHash("0xblockA")
	require.NoError(t, err)
	require.Equal(t, "10", byHash.Number)

	hash, err := g.GetBlockHashByIndex("10")
	require.NoError(t, err)
	require.Equal(t, "0xblockA", hash)
}

func TestGetBlocksByIndexRangeSkipsGaps(t *testing.T) {
	facade := newTestFacade(t)
	seedBlockAndTx(t, facade)
	g := New(facade)

	blocks, err := g.GetBlocksByIndexRange(5, 15)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, "10", blocks[0].Number)
}

func TestGetBlocksByTimeFiltersRange(t *testing.T) {
	facade := newTestFacade(t)
	seedBlockAndTx(t, facade)
	g := New(facade)

	in, err := g.GetBlocksByTime(100, 900)
	require.NoError(t, err)
	require.Len(t, in, 1)

	out, err := g.GetBlocksByTime(501, 900)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestGetTransactionsOfBlockByHashAndIndex(t *testing.T) {
	facade := newTestFacade(t)
	seedBlockAndTx(t, facade)
	g := New(facade)

	byHash, err := g.GetTransactionsOfBlockByHash("0xblockA")
	require.NoError(t, err)
	require.Len(t, byHash, 2)
	require.Equal(t, "0xtxA", byHash[0].Hash)

	byIndex, err := g.GetTransactionsOfBlockByIndex("10")
	require.NoError(t, err)
	require.Len(t, byIndex, 2)
}

func TestGetAddressBalanceAndToken(t *testing.T) {
	facade := newTestFacade(t)
	addr := model.Address{Balance: "100", Code: model.NoCodeMarker, TokenContract: model.TokenContractNone}
	token := model.Token{Symbol: "TKN", Name: "Token", Decimals: "18", TxIndex: 3}
	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.AddressKey("0xalice"), Value: codec.EncodeAddress(addr)},
		{Key: storage.TokenKey("0xtoken"), Value: codec.EncodeToken(token)},
	}))
	g := New(facade)

	got, err := g.GetAddress("0xAlice")
	require.NoError(t, err)
	require.Equal(t, "100", got.Balance)

	bal, err := g.GetBalance("0xAlice")
	require.NoError(t, err)
	require.Equal(t, "100", bal)

	tok, err := g.GetToken("0xToken")
	require.NoError(t, err)
	require.Equal(t, "TKN", tok.Symbol)
}

func TestGetTransactionsOfAddressMergesDirectionsNewestFirst(t *testing.T) {
	facade := newTestFacade(t)
	addr := model.Address{Balance: model.PendingBalance, Code: model.NoCodeMarker, InputTxIndex: 1, OutputTxIndex: 2}
	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.AddressKey("0xalice"), Value: codec.EncodeAddress(addr)},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagInputTx), 1), Value: codec.EncodeTxDelta("0xin1", "1", "100")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputTx), 1), Value: codec.EncodeTxDelta("0xout1", "2", "50")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputTx), 2), Value: codec.EncodeTxDelta("0xout2", "3", "200")},
	}))
	g := New(facade)

	refs, err := g.GetTransactionsOfAddress("0xalice", TimeRange{}, ValueRange{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	require.Equal(t, "0xout2", refs[0].Hash) // timestamp 200, newest
	require.Equal(t, "0xin1", refs[1].Hash)  // timestamp 100
	require.Equal(t, "0xout1", refs[2].Hash) // timestamp 50, oldest
}

func TestGetTransactionsOfAddressFiltersByTimeAndValue(t *testing.T) {
	facade := newTestFacade(t)
	addr := model.Address{Balance: model.PendingBalance, Code: model.NoCodeMarker, InputTxIndex: 1, OutputTxIndex: 2}
	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.AddressKey("0xalice"), Value: codec.EncodeAddress(addr)},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagInputTx), 1), Value: codec.EncodeTxDelta("0xin1", "1", "100")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputTx), 1), Value: codec.EncodeTxDelta("0xout1", "2", "50")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputTx), 2), Value: codec.EncodeTxDelta("0xout2", "3", "200")},
	}))
	g := New(facade)

	refs, err := g.GetTransactionsOfAddress("0xalice", TimeRange{From: 60, To: 150}, ValueRange{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "0xin1", refs[0].Hash)

	refs, err = g.GetTransactionsOfAddress("0xalice", TimeRange{}, ValueRange{Min: big.NewInt(2), Max: big.NewInt(2)}, 0, 0)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "0xout1", refs[0].Hash)

	refs, err = g.GetTransactionsOfAddress("0xalice", TimeRange{From: 1000}, ValueRange{}, 0, 0)
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestGetTransactionsOfAddressPaginates(t *testing.T) {
	facade := newTestFacade(t)
	addr := model.Address{Balance: model.PendingBalance, Code: model.NoCodeMarker, OutputTxIndex: 3}
	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.AddressKey("0xalice"), Value: codec.EncodeAddress(addr)},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputTx), 1), Value: codec.EncodeTxDelta("0xa", "1", "10")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputTx), 2), Value: codec.EncodeTxDelta("0xb", "1", "20")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputTx), 3), Value: codec.EncodeTxDelta("0xc", "1", "30")},
	}))
	g := New(facade)

	page, err := g.GetTransactionsOfAddress("0xalice", TimeRange{}, ValueRange{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "0xb", page[0].Hash)
}

func TestGetTokenTransactionsOfAddressFiltersByValueViaLookup(t *testing.T) {
	facade := newTestFacade(t)
	addr := model.Address{Balance: model.PendingBalance, Code: model.NoCodeMarker, OutputTokenTxIndex: 2}
	transferSmall := model.TokenTransfer{TokenAddress: "0xtoken", AddressFrom: "0xalice", AddressTo: "0xbob", Value: "5", TransactionHash: "0xt1", Timestamp: "100"}
	transferLarge := model.TokenTransfer{TokenAddress: "0xtoken", AddressFrom: "0xalice", AddressTo: "0xcarol", Value: "500", TransactionHash: "0xt2", Timestamp: "200"}
	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.AddressKey("0xalice"), Value: codec.EncodeAddress(addr)},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputToken), 1), Value: codec.EncodeTokenTxDelta(1, "100")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputToken), 2), Value: codec.EncodeTokenTxDelta(2, "200")},
		{Key: storage.TokenTxKey(1), Value: codec.EncodeTokenTransfer(transferSmall)},
		{Key: storage.TokenTxKey(2), Value: codec.EncodeTokenTransfer(transferLarge)},
	}))
	g := New(facade)

	all, err := g.GetTokenTransactionsOfAddress("0xalice", TimeRange{}, ValueRange{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := g.GetTokenTransactionsOfAddress("0xalice", TimeRange{}, ValueRange{Max: big.NewInt(10)}, 0, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, uint64(1), filtered[0].GlobalIndex)
}

func TestGetInternalTransactionsOfAddressFiltersByValue(t *testing.T) {
	facade := newTestFacade(t)
	addr := model.Address{Balance: model.PendingBalance, Code: model.NoCodeMarker, OutputIntTxIndex: 2}
	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.AddressKey("0xalice"), Value: codec.EncodeAddress(addr)},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputIntTx), 1), Value: codec.EncodeIntTxDelta(1, "5", "100")},
		{Key: storage.AssociatedDataKey("0xalice", string(model.TagOutputIntTx), 2), Value: codec.EncodeIntTxDelta(2, "500", "200")},
	}))
	g := New(facade)

	filtered, err := g.GetInternalTransactionsOfAddress("0xalice", TimeRange{}, ValueRange{Min: big.NewInt(100)}, 0, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, uint64(2), filtered[0].GlobalIndex)
}

func TestGetMinedBlocksOfAddress(t *testing.T) {
	facade := newTestFacade(t)
	addr := model.Address{Balance: model.PendingBalance, Code: model.NoCodeMarker, MinedIndex: 2}
	require.NoError(t, facade.CommitBatch([]storage.WriteOp{
		{Key: storage.AddressKey("0xminer"), Value: codec.EncodeAddress(addr)},
		{Key: storage.AssociatedDataKey("0xminer", string(model.TagMined), 1), Value: codec.EncodeMinedDelta("0xblockA")},
		{Key: storage.AssociatedDataKey("0xminer", string(model.TagMined), 2), Value: codec.EncodeMinedDelta("0xblockB")},
	}))
	g := New(facade)

	hashes, err := g.GetMinedBlocksOfAddress("0xminer")
	require.NoError(t, err)
	require.Equal(t, []string{"0xblockA", "0xblockB"}, hashes)
}

func TestGetAddressMissingReturnsNotFound(t *testing.T) {
	facade := newTestFacade(t)
	g := New(facade)
	_, err := g.GetAddress("0xnoone")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetBlockByNumberRejectsEmptyInput(t *testing.T) {
	facade := newTestFacade(t)
	g := New(facade)
	_, err := g.GetBlockByNumber("")
	require.ErrorIs(t, err, ErrInvalidInput)
}
