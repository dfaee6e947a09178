package indexer

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/codec"
	"github.com/chainindex/evmindexer/model"
	"github.com/chainindex/evmindexer/progress"
	"github.com/chainindex/evmindexer/retriever"
	"github.com/chainindex/evmindexer/storage"
)

// Result is everything ProcessBatch derived from one retriever.Batch: the
// atomic write batch ready for Facade.CommitBatch, the advanced progress
// counters, and the addresses touched this cycle for the balance spill
// (spec §4.4 steps 1-13).
type Result struct {
	Ops              []storage.WriteOp
	Counters         progress.Counters
	TouchedAddresses []string
}

// ProcessBatch runs the full per-batch fusion pipeline: it parses every CSV
// stream in the retriever.Batch into the working set, resolves counters
// against the store, and assembles one flat slice of write operations ready
// to commit in a single atomic batch (spec §4.4).
func ProcessBatch(facade *storage.Facade, counters progress.Counters, batch *retriever.Batch, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := newBatchState(counters, logger)

	s.blocksPass(batch.Blocks)
	s.transactionsPass(batch.Transactions)
	if err := s.receiptsPass(batch.Receipts, batch.Logs); err != nil {
		return nil, err
	}
	s.contractsPass(batch.Contracts)
	if err := s.tokensAndTransfersPass(batch.Tokens, batch.TokenTransfers, facade); err != nil {
		return nil, err
	}
	s.minersPass()
	s.internalTransactionsPass(batch.Traces)

	var ops []storage.WriteOp
	var highestBlock uint64

	for hash, b := range s.blocksByHash {
		ops = append(ops,
			storage.WriteOp{Key: storage.BlockKey(b.Number), Value: codec.EncodeBlock(*b)},
			storage.WriteOp{Key: storage.HashBlockKey(hash), Value: []byte(b.Number)},
			storage.WriteOp{Key: storage.TimestampBlockKey(b.Timestamp), Value: []byte(hash)},
		)
		// highestBlock is the exclusive end of the ingested range (spec §3,
		// §4.4 step 1: the persisted counter doubles as the next window's
		// start), so it's the highest parsed block number plus one, not the
		// number itself; this also disambiguates "genesis block processed"
		// from "no blocks processed" below, since only the latter leaves
		// highestBlock at zero.
		if n, err := strconv.ParseUint(b.Number, 10, 64); err == nil && n+1 > highestBlock {
			highestBlock = n + 1
		}
	}
	if highestBlock == 0 {
		highestBlock = counters.HighestBlock
	}

	for hash, tx := range s.txsByHash {
		ops = append(ops, storage.WriteOp{Key: storage.TransactionKey(hash), Value: codec.EncodeTransaction(*tx)})
	}

	for _, at := range s.tokenTransfers {
		ops = append(ops, storage.WriteOp{Key: storage.TokenTxKey(at.GlobalIndex), Value: codec.EncodeTokenTransfer(at.Transfer)})
	}

	for _, ait := range s.internalTxs {
		ops = append(ops, storage.WriteOp{Key: storage.InternalTxKey(ait.GlobalIndex), Value: codec.EncodeInternalTransaction(ait.Tx)})
		ops = append(ops, storage.WriteOp{
			Key:   storage.AssociatedDataKey(ait.TxHash, string(model.TagInternalTxRef), ait.LocalIndex),
			Value: codec.EncodeInternalTxRef(ait.GlobalIndex),
		})
	}

	ops = append(ops, s.contractCodeOps...)

	resolved, err := resolveCounters(facade, s.addresses, s.tokens)
	if err != nil {
		return nil, fmt.Errorf("indexer: resolve counters: %w", err)
	}
	ops = append(ops, resolved...)

	return &Result{
		Ops: ops,
		Counters: progress.Counters{
			HighestBlock:        highestBlock,
			HighestTokenTx:      s.nextTokenTx,
			HighestContractCode: s.nextContractCode,
			HighestInternalTx:   s.nextInternalTx,
		},
		TouchedAddresses: s.touchedAddresses(),
	}, nil
}
