// Package codec implements the bidirectional encode/decode contract of
// spec §4.1 for every record type in model. Encoding is plain text: NUL
// (\x00) separates top-level fields in a fixed order; '|', '+' and '-'
// separate second/third/fourth level lists as documented per field. No
// chain-derived field (addresses, hashes, hex blobs) can contain these
// separators since they are restricted to [0-9a-fx], so only the log
// `data` field — whose content this codec does not otherwise constrain —
// is carried length-prefixed to stay unambiguous (spec §9 open question).
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chainindex/evmindexer/model"
)

// ErrCorruptRecord is returned when a decoded byte string has fewer fields
// than a record type requires, or more than its schema allows.
var ErrCorruptRecord = errors.New("codec: corrupt record")

const (
	fieldSep = "\x00"
	logSep   = "|"
	topicSep = "-"
	txSep    = "+"
)

// splitFields splits a NUL-delimited record into exactly want fields.
// Up to one trailing field may be entirely absent (not merely empty) to
// tolerate records written before a field was added to the schema; any
// shorter field count is an unexpected short record and fails as
// ErrCorruptRecord, as is any longer one (an extra, unparseable field).
func splitFields(data []byte, want int) ([]string, error) {
	parts := strings.Split(string(data), fieldSep)
	const toleratedMissingTrailingFields = 1
	if len(parts) > want {
		return nil, fmt.Errorf("%w: got %d fields, want at most %d", ErrCorruptRecord, len(parts), want)
	}
	if len(parts) < want-toleratedMissingTrailingFields {
		return nil, fmt.Errorf("%w: got %d fields, want at least %d", ErrCorruptRecord, len(parts), want-toleratedMissingTrailingFields)
	}
	for len(parts) < want {
		parts = append(parts, "")
	}
	return parts, nil
}

// ---------------------------------------------------------------------
// Block
// ---------------------------------------------------------------------

const blockFieldCount = 15

// EncodeBlock encodes a Block to its on-disk byte representation.
func EncodeBlock(b model.Block) []byte {
	fields := []string{
		b.Number, b.Hash, b.ParentHash, b.Nonce, b.LogsBloom, b.Miner,
		b.Difficulty, b.TotalDifficulty, b.ExtraData, b.Size, b.GasLimit,
		b.GasUsed, b.Timestamp, b.Sha3Uncles, b.Transactions,
	}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeBlock decodes a byte string produced by EncodeBlock.
func DecodeBlock(data []byte) (model.Block, error) {
	f, err := splitFields(data, blockFieldCount)
	if err != nil {
		return model.Block{}, err
	}
	return model.Block{
		Number: f[0], Hash: f[1], ParentHash: f[2], Nonce: f[3],
		LogsBloom: f[4], Miner: f[5], Difficulty: f[6], TotalDifficulty: f[7],
		ExtraData: f[8], Size: f[9], GasLimit: f[10], GasUsed: f[11],
		Timestamp: f[12], Sha3Uncles: f[13], Transactions: f[14],
	}, nil
}

// ---------------------------------------------------------------------
// Transaction
// ---------------------------------------------------------------------

const txFieldCount = 16

// EncodeLogs encodes a transaction's logs using the hierarchical separators
// `data+topic-topic-…|data+…`. The data segment is length-prefixed
// (`<len>:<hex>`) so that an empty or unusually-shaped data payload can
// never be confused with the topic list that follows it.
func EncodeLogs(logs []model.Log) string {
	entries := make([]string, len(logs))
	for i, l := range logs {
		entries[i] = fmt.Sprintf("%d:%s%s%s", len(l.Data), l.Data, txSep, strings.Join(l.Topics, topicSep))
	}
	return strings.Join(entries, logSep)
}

// DecodeLogs is the inverse of EncodeLogs. An empty input decodes to nil.
func DecodeLogs(s string) ([]model.Log, error) {
	if s == "" {
		return nil, nil
	}
	var logs []model.Log
	for entry := s; ; {
		colon := strings.Index(entry, ":")
		if colon < 0 {
			return nil, fmt.Errorf("%w: log entry missing length prefix", ErrCorruptRecord)
		}
		n, err := strconv.Atoi(entry[:colon])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid log data length %q", ErrCorruptRecord, entry[:colon])
		}
		rest := entry[colon+1:]
		if len(rest) < n || !strings.HasPrefix(rest[n:], txSep) {
			return nil, fmt.Errorf("%w: log data length %d does not end at a data/topics separator", ErrCorruptRecord, n)
		}
		data := rest[:n]
		// The data length, not a separator search, decides where the topics
		// start; the topics themselves end at the next '|'.
		topicsField, next, more := strings.Cut(rest[n+1:], logSep)
		var topics []string
		if topicsField != "" {
			topics = strings.Split(topicsField, topicSep)
		}
		logs = append(logs, model.Log{Data: data, Topics: topics})
		if !more {
			return logs, nil
		}
		entry = next
	}
}

// EncodeTransaction encodes a Transaction to its on-disk byte representation.
func EncodeTransaction(t model.Transaction) []byte {
	fields := []string{
		t.BlockHash, t.BlockNumber, t.From, t.To, t.Gas, t.GasPrice, t.Hash,
		t.Input, t.Nonce, t.Value, t.CumulativeGasUsed, t.GasUsed,
		EncodeLogs(t.Logs), t.ContractAddress, t.Timestamp,
		strconv.FormatUint(t.InternalTxIndex, 10),
	}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeTransaction decodes a byte string produced by EncodeTransaction.
func DecodeTransaction(data []byte) (model.Transaction, error) {
	f, err := splitFields(data, txFieldCount)
	if err != nil {
		return model.Transaction{}, err
	}
	logs, err := DecodeLogs(f[12])
	if err != nil {
		return model.Transaction{}, err
	}
	var intIdx uint64
	if f[15] != "" {
		intIdx, err = strconv.ParseUint(f[15], 10, 64)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("%w: invalid internalTxIndex: %v", ErrCorruptRecord, err)
		}
	}
	return model.Transaction{
		BlockHash: f[0], BlockNumber: f[1], From: f[2], To: f[3], Gas: f[4],
		GasPrice: f[5], Hash: f[6], Input: f[7], Nonce: f[8], Value: f[9],
		CumulativeGasUsed: f[10], GasUsed: f[11], Logs: logs,
		ContractAddress: f[13], Timestamp: f[14], InternalTxIndex: intIdx,
	}, nil
}

// ---------------------------------------------------------------------
// Address
// ---------------------------------------------------------------------

const addressFieldCount = 10

// EncodeAddress encodes an Address to its on-disk byte representation.
func EncodeAddress(a model.Address) []byte {
	fields := []string{
		a.Balance, a.Code, string(a.TokenContract),
		strconv.FormatUint(a.InputTxIndex, 10),
		strconv.FormatUint(a.OutputTxIndex, 10),
		strconv.FormatUint(a.InputTokenTxIndex, 10),
		strconv.FormatUint(a.OutputTokenTxIndex, 10),
		strconv.FormatUint(a.InputIntTxIndex, 10),
		strconv.FormatUint(a.OutputIntTxIndex, 10),
		strconv.FormatUint(a.MinedIndex, 10),
	}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeAddress decodes a byte string produced by EncodeAddress.
func DecodeAddress(data []byte) (model.Address, error) {
	f, err := splitFields(data, addressFieldCount)
	if err != nil {
		return model.Address{}, err
	}
	counters := make([]uint64, 7)
	for i, s := range f[3:10] {
		if s == "" {
			continue
		}
		n, perr := strconv.ParseUint(s, 10, 64)
		if perr != nil {
			return model.Address{}, fmt.Errorf("%w: invalid counter field %d: %v", ErrCorruptRecord, i, perr)
		}
		counters[i] = n
	}
	return model.Address{
		Balance: f[0], Code: f[1], TokenContract: model.TokenContractKind(f[2]),
		InputTxIndex: counters[0], OutputTxIndex: counters[1],
		InputTokenTxIndex: counters[2], OutputTokenTxIndex: counters[3],
		InputIntTxIndex: counters[4], OutputIntTxIndex: counters[5],
		MinedIndex: counters[6],
	}, nil
}

// ---------------------------------------------------------------------
// Token
// ---------------------------------------------------------------------

const tokenFieldCount = 6

// EncodeToken encodes a Token to its on-disk byte representation.
func EncodeToken(t model.Token) []byte {
	fields := []string{
		t.Symbol, t.Name, t.Decimals, t.TotalSupply, string(t.Type),
		strconv.FormatUint(t.TxIndex, 10),
	}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeToken decodes a byte string produced by EncodeToken.
func DecodeToken(data []byte) (model.Token, error) {
	f, err := splitFields(data, tokenFieldCount)
	if err != nil {
		return model.Token{}, err
	}
	var txIdx uint64
	if f[5] != "" {
		txIdx, err = strconv.ParseUint(f[5], 10, 64)
		if err != nil {
			return model.Token{}, fmt.Errorf("%w: invalid txIndex: %v", ErrCorruptRecord, err)
		}
	}
	return model.Token{
		Symbol: f[0], Name: f[1], Decimals: f[2], TotalSupply: f[3],
		Type: model.TokenType(f[4]), TxIndex: txIdx,
	}, nil
}

// ---------------------------------------------------------------------
// TokenTransfer
// ---------------------------------------------------------------------

const tokenTransferFieldCount = 6

// EncodeTokenTransfer encodes a TokenTransfer to its on-disk byte representation.
func EncodeTokenTransfer(tt model.TokenTransfer) []byte {
	fields := []string{
		tt.TokenAddress, tt.AddressFrom, tt.AddressTo, tt.Value,
		tt.TransactionHash, tt.Timestamp,
	}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeTokenTransfer decodes a byte string produced by EncodeTokenTransfer.
func DecodeTokenTransfer(data []byte) (model.TokenTransfer, error) {
	f, err := splitFields(data, tokenTransferFieldCount)
	if err != nil {
		return model.TokenTransfer{}, err
	}
	return model.TokenTransfer{
		TokenAddress: f[0], AddressFrom: f[1], AddressTo: f[2], Value: f[3],
		TransactionHash: f[4], Timestamp: f[5],
	}, nil
}

// ---------------------------------------------------------------------
// InternalTransaction
// ---------------------------------------------------------------------

const internalTxFieldCount = 13

// EncodeInternalTransaction encodes an InternalTransaction to its on-disk
// byte representation.
func EncodeInternalTransaction(it model.InternalTransaction) []byte {
	fields := []string{
		it.From, it.To, it.Value, it.Input, it.Output, it.TraceType,
		it.CallType, it.RewardType, it.Gas, it.GasUsed, it.TransactionHash,
		it.Timestamp, it.Error,
	}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeInternalTransaction decodes a byte string produced by
// EncodeInternalTransaction.
func DecodeInternalTransaction(data []byte) (model.InternalTransaction, error) {
	f, err := splitFields(data, internalTxFieldCount)
	if err != nil {
		return model.InternalTransaction{}, err
	}
	return model.InternalTransaction{
		From: f[0], To: f[1], Value: f[2], Input: f[3], Output: f[4],
		TraceType: f[5], CallType: f[6], RewardType: f[7], Gas: f[8],
		GasUsed: f[9], TransactionHash: f[10], Timestamp: f[11], Error: f[12],
	}, nil
}

// ---------------------------------------------------------------------
// Associated-data stream payloads (spec §3 table)
// ---------------------------------------------------------------------

// EncodeTxDelta encodes an Address input/output-tx associated-data payload:
// "<txHash>-<value>-<timestamp>".
func EncodeTxDelta(txHash, value, timestamp string) []byte {
	return []byte(strings.Join([]string{txHash, value, timestamp}, topicSep))
}

// DecodeTxDelta decodes a payload produced by EncodeTxDelta.
func DecodeTxDelta(data []byte) (txHash, value, timestamp string, err error) {
	parts := strings.Split(string(data), topicSep)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: tx delta wants 3 fields, got %d", ErrCorruptRecord, len(parts))
	}
	return parts[0], parts[1], parts[2], nil
}

// EncodeTokenTxDelta encodes an Address input/output-token-tx or Token
// txIndex associated-data payload: "<tokenTxGlobalIndex>-<timestamp>".
func EncodeTokenTxDelta(tokenTxIndex uint64, timestamp string) []byte {
	return []byte(strings.Join([]string{strconv.FormatUint(tokenTxIndex, 10), timestamp}, topicSep))
}

// DecodeTokenTxDelta decodes a payload produced by EncodeTokenTxDelta.
func DecodeTokenTxDelta(data []byte) (tokenTxIndex uint64, timestamp string, err error) {
	parts := strings.Split(string(data), topicSep)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("%w: token tx delta wants 2 fields, got %d", ErrCorruptRecord, len(parts))
	}
	tokenTxIndex, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: invalid tokenTxIndex: %v", ErrCorruptRecord, err)
	}
	return tokenTxIndex, parts[1], nil
}

// EncodeIntTxDelta encodes an Address input/output-internal-tx associated-data
// payload: "<intTxGlobalIndex>-<value>-<timestamp>".
func EncodeIntTxDelta(intTxIndex uint64, value, timestamp string) []byte {
	return []byte(strings.Join([]string{strconv.FormatUint(intTxIndex, 10), value, timestamp}, topicSep))
}

// DecodeIntTxDelta decodes a payload produced by EncodeIntTxDelta.
func DecodeIntTxDelta(data []byte) (intTxIndex uint64, value, timestamp string, err error) {
	parts := strings.Split(string(data), topicSep)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("%w: internal tx delta wants 3 fields, got %d", ErrCorruptRecord, len(parts))
	}
	intTxIndex, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("%w: invalid intTxIndex: %v", ErrCorruptRecord, err)
	}
	return intTxIndex, parts[1], parts[2], nil
}

// EncodeMinedDelta encodes an Address minedIndex associated-data payload:
// the mined block's hash, verbatim.
func EncodeMinedDelta(blockHash string) []byte { return []byte(blockHash) }

// DecodeMinedDelta decodes a payload produced by EncodeMinedDelta.
func DecodeMinedDelta(data []byte) string { return string(data) }

// EncodeInternalTxRef encodes a Transaction internalTxIndex associated-data
// payload: the global internal-transaction index it points to.
func EncodeInternalTxRef(intTxIndex uint64) []byte {
	return []byte(strconv.FormatUint(intTxIndex, 10))
}

// DecodeInternalTxRef decodes a payload produced by EncodeInternalTxRef.
func DecodeInternalTxRef(data []byte) (uint64, error) {
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid internal tx ref: %v", ErrCorruptRecord, err)
	}
	return n, nil
}

// EncodeUint64 encodes a counter value as a decimal string, used for global
// progress fields and key suffixes.
func EncodeUint64(n uint64) string { return strconv.FormatUint(n, 10) }

// DecodeUint64 is the inverse of EncodeUint64.
func DecodeUint64(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid decimal counter %q: %v", ErrCorruptRecord, s, err)
	}
	return n, nil
}
