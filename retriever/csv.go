// Package retriever drives the external ETL extractor process to produce
// per-batch CSV files and exposes the in-process JSON-RPC batch path for
// balances and traces (spec §4.3, §6 "CSV column contracts").
package retriever

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// BlockRow is one row of the blocks CSV (spec §6 "blocks").
type BlockRow struct {
	Number          string
	Hash            string
	ParentHash      string
	Nonce           string
	LogsBloom       string
	Miner           string
	Difficulty      string
	TotalDifficulty string
	ExtraData       string
	Size            string
	GasLimit        string
	GasUsed         string
	Timestamp       string
	Sha3Uncles      string
}

// TransactionRow is one row of the transactions CSV (spec §6 "transactions").
type TransactionRow struct {
	BlockHash        string
	BlockNumber      string
	FromAddress      string
	ToAddress        string
	Gas              string
	GasPrice         string
	Hash             string
	Input            string
	Nonce            string
	Value            string
	TransactionIndex uint64
}

// ReceiptRow is one row of the receipts CSV (spec §6 "receipts").
type ReceiptRow struct {
	TransactionHash   string
	CumulativeGasUsed string
	GasUsed           string
	ContractAddress   string
}

// LogRow is one row of the logs CSV (spec §6 "logs").
type LogRow struct {
	TransactionHash string
	Data            string
	Topics          []string
}

// ContractRow is one row of the contracts CSV (spec §6 "contracts").
type ContractRow struct {
	Address  string
	Bytecode string
	IsERC20  bool
	IsERC721 bool
}

// TokenRow is one row of the tokens CSV (spec §6 "tokens").
type TokenRow struct {
	Address     string
	Symbol      string
	Name        string
	Decimals    string
	TotalSupply string
}

// TokenTransferRow is one row of the token_transfers CSV (spec §6
// "token_transfers").
type TokenTransferRow struct {
	TokenAddress string
	FromAddress  string
	ToAddress    string
	Value        string
	TxHash       string
}

// TraceRow is one row of the traces CSV (spec §6 "traces").
type TraceRow struct {
	BlockNumber      uint64
	TransactionIndex uint64
	FromAddress      string
	ToAddress        string
	Value            string
	Input            string
	Output           string
	TraceType        string
	CallType         string
	RewardType       string
	Gas              string
	GasUsed          string
	Error            string
}

// Batch is the full set of parsed CSVs for one extraction window (spec
// §4.3: "blocks, transactions, receipts+logs, contract metadata... token
// descriptors, token transfers, and (optionally) geth-style call traces").
type Batch struct {
	Blocks          []BlockRow
	Transactions    []TransactionRow
	Receipts        []ReceiptRow
	Logs            []LogRow
	Contracts       []ContractRow
	Tokens          []TokenRow
	TokenTransfers  []TokenTransferRow
	Traces          []TraceRow
}

// readCSV opens path, validates its header against want, and invokes row
// for every data row. A missing file yields no rows (some CSVs, such as
// traces or tokens, are produced only when the corresponding gather flag
// is enabled and may not exist at all).
func readCSV(path string, want []string, row func([]string) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("retriever: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(want)

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("retriever: read header of %s: %w", path, err)
	}
	if len(header) != len(want) {
		return fmt.Errorf("retriever: %s: expected %d columns, got %d", path, len(want), len(header))
	}
	for i, h := range header {
		if h != want[i] {
			return fmt.Errorf("retriever: %s: expected column %d to be %q, got %q", path, i, want[i], h)
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("retriever: read row of %s: %w", path, err)
		}
		if err := row(rec); err != nil {
			return fmt.Errorf("retriever: %s: %w", path, err)
		}
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

var blocksHeader = []string{"number", "hash", "parent_hash", "nonce", "logs_bloom", "miner",
	"difficulty", "total_difficulty", "extra_data", "size", "gas_limit", "gas_used", "timestamp", "sha3_uncles"}

func readBlocks(path string) ([]BlockRow, error) {
	var rows []BlockRow
	err := readCSV(path, blocksHeader, func(rec []string) error {
		rows = append(rows, BlockRow{
			Number: rec[0], Hash: rec[1], ParentHash: rec[2], Nonce: rec[3],
			LogsBloom: rec[4], Miner: rec[5], Difficulty: rec[6], TotalDifficulty: rec[7],
			ExtraData: rec[8], Size: rec[9], GasLimit: rec[10], GasUsed: rec[11],
			Timestamp: rec[12], Sha3Uncles: rec[13],
		})
		return nil
	})
	return rows, err
}

var transactionsHeader = []string{"block_hash", "block_number", "from_address", "to_address",
	"gas", "gas_price", "hash", "input", "nonce", "value", "transaction_index"}

func readTransactions(path string) ([]TransactionRow, error) {
	var rows []TransactionRow
	err := readCSV(path, transactionsHeader, func(rec []string) error {
		idx, err := parseUint(rec[10])
		if err != nil {
			return fmt.Errorf("invalid transaction_index %q: %w", rec[10], err)
		}
		rows = append(rows, TransactionRow{
			BlockHash: rec[0], BlockNumber: rec[1], FromAddress: rec[2], ToAddress: rec[3],
			Gas: rec[4], GasPrice: rec[5], Hash: rec[6], Input: rec[7], Nonce: rec[8],
			Value: rec[9], TransactionIndex: idx,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Re-sort by (block_number, transaction_index) ascending so the
	// subsequent parse assigns deterministic intra-batch ordering (spec
	// §4.3).
	sort.SliceStable(rows, func(i, j int) bool {
		bi, _ := strconv.ParseUint(rows[i].BlockNumber, 10, 64)
		bj, _ := strconv.ParseUint(rows[j].BlockNumber, 10, 64)
		if bi != bj {
			return bi < bj
		}
		return rows[i].TransactionIndex < rows[j].TransactionIndex
	})
	return rows, nil
}

var receiptsHeader = []string{"transaction_hash", "cumulative_gas_used", "gas_used", "contract_address"}

func readReceipts(path string) ([]ReceiptRow, error) {
	var rows []ReceiptRow
	err := readCSV(path, receiptsHeader, func(rec []string) error {
		rows = append(rows, ReceiptRow{
			TransactionHash: rec[0], CumulativeGasUsed: rec[1], GasUsed: rec[2], ContractAddress: rec[3],
		})
		return nil
	})
	return rows, err
}

var logsHeader = []string{"transaction_hash", "data", "topics"}

func readLogs(path string) ([]LogRow, error) {
	var rows []LogRow
	err := readCSV(path, logsHeader, func(rec []string) error {
		var topics []string
		if rec[2] != "" {
			topics = splitNonEmpty(rec[2], ',')
		}
		rows = append(rows, LogRow{TransactionHash: rec[0], Data: rec[1], Topics: topics})
		return nil
	})
	return rows, err
}

var contractsHeader = []string{"address", "bytecode", "is_erc20", "is_erc721"}

func readContracts(path string) ([]ContractRow, error) {
	var rows []ContractRow
	err := readCSV(path, contractsHeader, func(rec []string) error {
		rows = append(rows, ContractRow{
			Address: rec[0], Bytecode: rec[1], IsERC20: parseBool(rec[2]), IsERC721: parseBool(rec[3]),
		})
		return nil
	})
	return rows, err
}

var tokensHeader = []string{"address", "symbol", "name", "decimals", "total_supply"}

func readTokens(path string) ([]TokenRow, error) {
	var rows []TokenRow
	err := readCSV(path, tokensHeader, func(rec []string) error {
		rows = append(rows, TokenRow{
			Address: rec[0], Symbol: rec[1], Name: rec[2], Decimals: rec[3], TotalSupply: rec[4],
		})
		return nil
	})
	return rows, err
}

var tokenTransfersHeader = []string{"token_address", "from_address", "to_address", "value", "transaction_hash"}

func readTokenTransfers(path string) ([]TokenTransferRow, error) {
	var rows []TokenTransferRow
	err := readCSV(path, tokenTransfersHeader, func(rec []string) error {
		rows = append(rows, TokenTransferRow{
			TokenAddress: rec[0], FromAddress: rec[1], ToAddress: rec[2], Value: rec[3], TxHash: rec[4],
		})
		return nil
	})
	return rows, err
}

var tracesHeader = []string{"block_number", "transaction_index", "from_address", "to_address", "value",
	"input", "output", "trace_type", "call_type", "reward_type", "gas", "gas_used", "error"}

func readTraces(path string) ([]TraceRow, error) {
	var rows []TraceRow
	err := readCSV(path, tracesHeader, func(rec []string) error {
		blockNum, err := parseUint(rec[0])
		if err != nil {
			return fmt.Errorf("invalid block_number %q: %w", rec[0], err)
		}
		txIdx, err := parseUint(rec[1])
		if err != nil {
			return fmt.Errorf("invalid transaction_index %q: %w", rec[1], err)
		}
		rows = append(rows, TraceRow{
			BlockNumber: blockNum, TransactionIndex: txIdx, FromAddress: rec[2], ToAddress: rec[3],
			Value: rec[4], Input: rec[5], Output: rec[6], TraceType: rec[7], CallType: rec[8],
			RewardType: rec[9], Gas: rec[10], GasUsed: rec[11], Error: rec[12],
		})
		return nil
	})
	return rows, err
}

// splitNonEmpty splits s on sep, dropping empty segments — an in-cell
// comma-joined topics list with no topics is an empty string, not [""].
func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
