package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainindex/evmindexer/model"
)

func TestBlockRoundTrip(t *testing.T) {
	b := model.Block{
		Number: "10", Hash: "0xabc", ParentHash: "0xdef", Nonce: "0x0",
		LogsBloom: "0x00", Miner: "0xminer", Difficulty: "1000",
		TotalDifficulty: "2000", ExtraData: "0x", Size: "512",
		GasLimit: "8000000", GasUsed: "21000", Timestamp: "1479653542",
		Sha3Uncles: "0xuncles", Transactions: "0x1+0x2+0x3",
	}
	got, err := DecodeBlock(EncodeBlock(b))
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestBlockRoundTripEmpty(t *testing.T) {
	b := model.Block{Number: "0", Hash: "0xabc", Transactions: ""}
	got, err := DecodeBlock(EncodeBlock(b))
	require.NoError(t, err)
	assert.Equal(t, "", got.Transactions)
}

func TestTransactionRoundTripWithLogs(t *testing.T) {
	tx := model.Transaction{
		BlockHash: "0xb1", BlockNumber: "10", From: "0xfrom", To: "0xto",
		Gas: "21000", GasPrice: "1", Hash: "0xh1", Input: "0x", Nonce: "1",
		Value: "100", CumulativeGasUsed: "21000", GasUsed: "21000",
		Logs: []model.Log{
			{Data: "0xdeadbeef", Topics: []string{"0xt1", "0xt2"}},
			{Data: "", Topics: nil},
		},
		ContractAddress: "", Timestamp: "1479653542", InternalTxIndex: 2,
	}
	got, err := DecodeTransaction(EncodeTransaction(tx))
	require.NoError(t, err)
	assert.Equal(t, tx, got)
}

func TestAddressRoundTrip(t *testing.T) {
	a := model.Address{
		Balance: model.PendingBalance, Code: model.NoCodeMarker,
		TokenContract: model.TokenContractNone,
		InputTxIndex:  3, OutputTxIndex: 1, InputTokenTxIndex: 0,
		OutputTokenTxIndex: 0, InputIntTxIndex: 2, OutputIntTxIndex: 0,
		MinedIndex: 1,
	}
	got, err := DecodeAddress(EncodeAddress(a))
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestTokenRoundTrip(t *testing.T) {
	tok := model.Token{
		Symbol: "USDX", Name: "USD Token", Decimals: "18",
		TotalSupply: "1000000000000000000000", Type: model.TokenTypeERC20,
		TxIndex: 42,
	}
	got, err := DecodeToken(EncodeToken(tok))
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestTokenTransferRoundTrip(t *testing.T) {
	tt := model.TokenTransfer{
		TokenAddress: "0xtoken", AddressFrom: "0xfrom", AddressTo: "0xto",
		Value: "100", TransactionHash: "0xh1", Timestamp: "1479653542",
	}
	got, err := DecodeTokenTransfer(EncodeTokenTransfer(tt))
	require.NoError(t, err)
	assert.Equal(t, tt, got)
}

func TestInternalTransactionRoundTrip(t *testing.T) {
	it := model.InternalTransaction{
		From: "0xfrom", To: "0xto", Value: "50", Input: "0x", Output: "0x",
		TraceType: "call", CallType: "call", RewardType: "", Gas: "21000",
		GasUsed: "21000", TransactionHash: "0xh1", Timestamp: "1479653542",
		Error: "",
	}
	got, err := DecodeInternalTransaction(EncodeInternalTransaction(it))
	require.NoError(t, err)
	assert.Equal(t, it, got)
}

func TestDecodeCorruptRecordShort(t *testing.T) {
	_, err := DecodeBlock([]byte("only\x00two"))
	require.ErrorIs(t, err, ErrCorruptRecord)
}

func TestDecodeCorruptRecordLong(t *testing.T) {
	longInput := make([]byte, 0)
	for i := 0; i < blockFieldCount+5; i++ {
		longInput = append(longInput, []byte("x\x00")...)
	}
	_, err := DecodeBlock(longInput)
	require.ErrorIs(t, err, ErrCorruptRecord)
}

func TestAssociatedDataDeltaRoundTrips(t *testing.T) {
	txHash, value, ts, err := DecodeTxDelta(EncodeTxDelta("0xh1", "100", "1479653542"))
	require.NoError(t, err)
	assert.Equal(t, "0xh1", txHash)
	assert.Equal(t, "100", value)
	assert.Equal(t, "1479653542", ts)

	idx, ts2, err := DecodeTokenTxDelta(EncodeTokenTxDelta(7, "1479653542"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), idx)
	assert.Equal(t, "1479653542", ts2)

	idx2, value2, ts3, err := DecodeIntTxDelta(EncodeIntTxDelta(9, "50", "1479653542"))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), idx2)
	assert.Equal(t, "50", value2)
	assert.Equal(t, "1479653542", ts3)

	assert.Equal(t, "0xblockhash", DecodeMinedDelta(EncodeMinedDelta("0xblockhash")))

	ref, err := DecodeInternalTxRef(EncodeInternalTxRef(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ref)
}

func TestEncodeDecodeLogsAmbiguousData(t *testing.T) {
	// Data containing characters that would otherwise collide with the
	// '+'/'-' separators must still round-trip because of the length prefix.
	logs := []model.Log{
		{Data: "0xab+cd-ef", Topics: []string{"0xaa", "0xbb"}},
	}
	got, err := DecodeLogs(EncodeLogs(logs))
	require.NoError(t, err)
	assert.Equal(t, logs, got)
}
