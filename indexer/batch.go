package indexer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/model"
	"github.com/chainindex/evmindexer/progress"
	"github.com/chainindex/evmindexer/retriever"
	"github.com/chainindex/evmindexer/storage"
)

// batchState is the in-memory working set built up across the pipeline's
// passes (spec §4.4: "all in memory until the final commit").
type batchState struct {
	blocksByHash map[string]*model.Block
	minerBlocks  []minerBlockPair

	txsByHash            map[string]*model.Transaction
	txHashByBlockTxIndex map[string]string // "<blockNumber>|<txIndex>" -> hash
	logsByTxHash         map[string][]model.Log

	addresses map[string]*addressWork
	tokens    map[string]*tokenWork

	tokenTransfers []assignedTokenTransfer
	internalTxs    []assignedInternalTx

	contractCodeOps []storage.WriteOp

	nextContractCode uint64
	nextTokenTx      uint64
	nextInternalTx   uint64

	logger *zap.Logger
}

type minerBlockPair struct {
	Miner     string
	BlockHash string
}

type assignedTokenTransfer struct {
	GlobalIndex uint64
	Transfer    model.TokenTransfer
}

type assignedInternalTx struct {
	GlobalIndex uint64
	Tx          model.InternalTransaction
	TxHash      string // parent transaction, for the tit associated-data entry
	LocalIndex  uint64 // the parent Transaction's internalTxIndex after increment
}

func newBatchState(progressCounters progress.Counters, logger *zap.Logger) *batchState {
	return &batchState{
		blocksByHash:         make(map[string]*model.Block),
		txsByHash:            make(map[string]*model.Transaction),
		txHashByBlockTxIndex: make(map[string]string),
		logsByTxHash:         make(map[string][]model.Log),
		addresses:            make(map[string]*addressWork),
		tokens:               make(map[string]*tokenWork),
		nextContractCode:     progressCounters.HighestContractCode,
		nextTokenTx:          progressCounters.HighestTokenTx,
		nextInternalTx:       progressCounters.HighestInternalTx,
		logger:               logger,
	}
}

func lower(s string) string { return strings.ToLower(s) }

// tokenTypeOf derives a Token's standard (spec §3 "type (ERC-20 | ERC-721)")
// from the classification the contracts pass stamped on its address, since
// the tokens CSV itself carries no type column.
func tokenTypeOf(w *addressWork) model.TokenType {
	if w == nil {
		return ""
	}
	switch w.tokenContract {
	case model.TokenContractERC20:
		return model.TokenTypeERC20
	case model.TokenContractERC721:
		return model.TokenTypeERC721
	default:
		return ""
	}
}

func (s *batchState) address(addr string) *addressWork {
	addr = lower(addr)
	w, ok := s.addresses[addr]
	if !ok {
		w = &addressWork{}
		s.addresses[addr] = w
	}
	return w
}

func (s *batchState) token(addr string) *tokenWork {
	addr = lower(addr)
	w, ok := s.tokens[addr]
	if !ok {
		w = &tokenWork{}
		s.tokens[addr] = w
	}
	return w
}

// blocksPass parses blocks into the working set (spec §4.4 step 3).
func (s *batchState) blocksPass(rows []retriever.BlockRow) {
	for _, row := range rows {
		hash := lower(row.Hash)
		s.blocksByHash[hash] = &model.Block{
			Number: row.Number, Hash: row.Hash, ParentHash: row.ParentHash,
			Nonce: row.Nonce, LogsBloom: row.LogsBloom, Miner: row.Miner,
			Difficulty: row.Difficulty, TotalDifficulty: row.TotalDifficulty,
			ExtraData: row.ExtraData, Size: row.Size, GasLimit: row.GasLimit,
			GasUsed: row.GasUsed, Timestamp: row.Timestamp, Sha3Uncles: row.Sha3Uncles,
			Transactions: "",
		}
		if row.Miner != "" {
			s.minerBlocks = append(s.minerBlocks, minerBlockPair{Miner: row.Miner, BlockHash: row.Hash})
		}
	}
}

// transactionsPass parses transactions, in the re-sorted order the
// retriever already produced, and accumulates structural address deltas
// (spec §4.4 step 4).
func (s *batchState) transactionsPass(rows []retriever.TransactionRow) {
	txHashesByBlock := make(map[string][]string)

	for _, row := range rows {
		hash := lower(row.Hash)
		blockHash := lower(row.BlockHash)

		// The transactions CSV carries no timestamp column; it's joined
		// from the already-parsed owning block, same as the original
		// updater's transaction['timestamp'] = blocks[blockHash]['timestamp'].
		var timestamp string
		if b, ok := s.blocksByHash[blockHash]; ok {
			timestamp = b.Timestamp
		}

		s.txsByHash[hash] = &model.Transaction{
			BlockHash: row.BlockHash, BlockNumber: row.BlockNumber,
			From: row.FromAddress, To: row.ToAddress, Gas: row.Gas,
			GasPrice: row.GasPrice, Hash: row.Hash, Input: row.Input,
			Nonce: row.Nonce, Value: row.Value, Timestamp: timestamp,
		}

		txHashesByBlock[blockHash] = append(txHashesByBlock[blockHash], row.Hash)

		key := row.BlockNumber + "|" + strconv.FormatUint(row.TransactionIndex, 10)
		s.txHashByBlockTxIndex[key] = hash

		if row.FromAddress != "" {
			w := s.address(row.FromAddress)
			w.outputTx = append(w.outputTx, txDelta{TxHash: row.Hash, Value: row.Value, Timestamp: timestamp})
		}
		// A to=="" transaction is a contract-creation transaction and is
		// not registered as an Address (spec §4.4 "Edge cases").
		if row.ToAddress != "" {
			w := s.address(row.ToAddress)
			w.inputTx = append(w.inputTx, txDelta{TxHash: row.Hash, Value: row.Value, Timestamp: timestamp})
		}
	}

	for blockHash, hashes := range txHashesByBlock {
		if b, ok := s.blocksByHash[blockHash]; ok {
			b.Transactions = strings.Join(hashes, "+")
		}
	}
}

// receiptsPass attaches receipt and log data to each Transaction (spec
// §4.4 step 5).
func (s *batchState) receiptsPass(receipts []retriever.ReceiptRow, logs []retriever.LogRow) error {
	for _, row := range logs {
		hash := lower(row.TransactionHash)
		s.logsByTxHash[hash] = append(s.logsByTxHash[hash], model.Log{Data: row.Data, Topics: row.Topics})
	}

	for _, row := range receipts {
		hash := lower(row.TransactionHash)
		tx, ok := s.txsByHash[hash]
		if !ok {
			s.logger.Warn("receipt references unknown transaction, skipping", zap.String("hash", row.TransactionHash))
			continue
		}
		tx.CumulativeGasUsed = row.CumulativeGasUsed
		tx.GasUsed = row.GasUsed
		tx.ContractAddress = row.ContractAddress
		tx.Logs = s.logsByTxHash[hash]

		if row.ContractAddress != "" {
			s.address(row.ContractAddress)
		}
	}
	return nil
}

// contractsPass allocates out-of-line bytecode entries and stamps the
// token-contract classification (spec §4.4 step 6).
func (s *batchState) contractsPass(rows []retriever.ContractRow) {
	for _, row := range rows {
		s.nextContractCode++
		n := s.nextContractCode
		s.contractCodeOps = append(s.contractCodeOps, storage.WriteOp{
			Key:   storage.AddressContractKey(n),
			Value: []byte(row.Bytecode),
		})

		w := s.address(row.Address)
		w.code = strconv.FormatUint(n, 10)

		switch {
		case row.IsERC20:
			w.tokenContract = model.TokenContractERC20
		case row.IsERC721:
			w.tokenContract = model.TokenContractERC721
		}
	}
}

// tokensAndTransfersPass parses token descriptors and transfers,
// dropping transfers for tokens unknown to both this batch and the store
// (spec §4.4 step 7, "the token filter rule").
func (s *batchState) tokensAndTransfersPass(tokens []retriever.TokenRow, transfers []retriever.TokenTransferRow, facade *storage.Facade) error {
	for _, row := range tokens {
		addr := lower(row.Address)
		s.tokens[addr] = &tokenWork{descriptor: &model.Token{
			Symbol: row.Symbol, Name: row.Name, Decimals: row.Decimals,
			TotalSupply: row.TotalSupply, Type: tokenTypeOf(s.addresses[addr]),
		}}
	}

	for _, row := range transfers {
		tokenAddr := lower(row.TokenAddress)
		if _, ok := s.tokens[tokenAddr]; !ok {
			known, err := facade.Has(storage.TokenKey(tokenAddr))
			if err != nil {
				return fmt.Errorf("indexer: check existing token %s: %w", tokenAddr, err)
			}
			if !known {
				continue // token filter: drop the transfer
			}
			s.tokens[tokenAddr] = &tokenWork{}
		}

		timestamp := ""
		if tx, ok := s.txsByHash[lower(row.TxHash)]; ok {
			timestamp = tx.Timestamp
		}

		s.nextTokenTx++
		idx := s.nextTokenTx
		s.tokenTransfers = append(s.tokenTransfers, assignedTokenTransfer{
			GlobalIndex: idx,
			Transfer: model.TokenTransfer{
				TokenAddress: row.TokenAddress, AddressFrom: row.FromAddress,
				AddressTo: row.ToAddress, Value: row.Value,
				TransactionHash: row.TxHash, Timestamp: timestamp,
			},
		})

		delta := tokenTxDelta{TokenTxIndex: idx, Timestamp: timestamp}
		s.tokens[tokenAddr].transfers = append(s.tokens[tokenAddr].transfers, delta)
		if row.FromAddress != "" {
			s.address(row.FromAddress).outputToken = append(s.address(row.FromAddress).outputToken, delta)
		}
		if row.ToAddress != "" {
			s.address(row.ToAddress).inputToken = append(s.address(row.ToAddress).inputToken, delta)
		}
	}
	return nil
}

// minersPass appends each block's miner's mined-block delta (spec §4.4
// step 8).
func (s *batchState) minersPass() {
	for _, pair := range s.minerBlocks {
		w := s.address(pair.Miner)
		w.mined = append(w.mined, pair.BlockHash)
	}
}

// internalTransactionsPass joins trace rows to their parent Transaction by
// (blockNumber, transactionIndex), allocates global internal-tx indices,
// and appends deltas to both sides of the transfer; it also performs the
// trace-only address discovery of step 10, since the CSV contract already
// flattens every call into one row, so no nested-call address lies outside
// what this pass already touches (spec §4.4 steps 9-10).
func (s *batchState) internalTransactionsPass(rows []retriever.TraceRow) {
	for _, row := range rows {
		key := strconv.FormatUint(row.BlockNumber, 10) + "|" + strconv.FormatUint(row.TransactionIndex, 10)
		txHash, ok := s.txHashByBlockTxIndex[key]
		if !ok {
			s.logger.Warn("trace references unknown transaction, skipping",
				zap.Uint64("block_number", row.BlockNumber), zap.Uint64("transaction_index", row.TransactionIndex))
			continue
		}
		tx := s.txsByHash[txHash]

		s.nextInternalTx++
		globalIdx := s.nextInternalTx
		tx.InternalTxIndex++
		localIdx := tx.InternalTxIndex

		s.internalTxs = append(s.internalTxs, assignedInternalTx{
			GlobalIndex: globalIdx,
			TxHash:      txHash,
			LocalIndex:  localIdx,
			Tx: model.InternalTransaction{
				From: row.FromAddress, To: row.ToAddress, Value: row.Value,
				Input: row.Input, Output: row.Output, TraceType: row.TraceType,
				CallType: row.CallType, RewardType: row.RewardType, Gas: row.Gas,
				GasUsed: row.GasUsed, TransactionHash: tx.Hash, Timestamp: tx.Timestamp,
				Error: row.Error,
			},
		})

		delta := intTxDelta{IntTxIndex: globalIdx, Value: row.Value, Timestamp: tx.Timestamp}
		if row.FromAddress != "" {
			s.address(row.FromAddress).outputIntTx = append(s.address(row.FromAddress).outputIntTx, delta)
		}
		if row.ToAddress != "" {
			s.address(row.ToAddress).inputIntTx = append(s.address(row.ToAddress).inputIntTx, delta)
		}
	}
}

// touchedAddresses returns every address key touched this batch, for the
// balance spill file (spec §4.4 step 12).
func (s *batchState) touchedAddresses() []string {
	out := make([]string, 0, len(s.addresses))
	for addr := range s.addresses {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
