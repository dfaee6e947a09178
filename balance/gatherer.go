package balance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/codec"
	"github.com/chainindex/evmindexer/internal/constants"
	"github.com/chainindex/evmindexer/retriever"
	"github.com/chainindex/evmindexer/storage"
)

// Gatherer implements the two Balance Gatherer operations the Indexer
// depends on (spec §4.5): record_addresses and resolve_balances.
type Gatherer struct {
	spill   *Spill
	rpc     *retriever.RPCGatherer
	facade  *storage.Facade
	logger  *zap.Logger

	batchesSinceDedup int
}

// Config configures a Gatherer.
type Config struct {
	DataDir string
	RPC     *retriever.RPCGatherer
	Facade  *storage.Facade
	Logger  *zap.Logger
}

// New builds a Gatherer over the spill file under cfg.DataDir.
func New(cfg Config) (*Gatherer, error) {
	if cfg.RPC == nil {
		return nil, fmt.Errorf("balance: rpc gatherer is required")
	}
	if cfg.Facade == nil {
		return nil, fmt.Errorf("balance: facade is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatherer{
		spill:  OpenSpill(cfg.DataDir),
		rpc:    cfg.RPC,
		facade: cfg.Facade,
		logger: logger,
	}, nil
}

// RecordAddresses appends the set of addresses touched by one ingest
// batch to the spill file, and every constants.SpillDedupEveryNBatches
// calls runs the external sort-unique pass to bound the file's size (spec
// §4.4 step 12).
func (g *Gatherer) RecordAddresses(addresses []string) error {
	if err := g.spill.Append(addresses); err != nil {
		return err
	}

	g.batchesSinceDedup++
	if g.batchesSinceDedup < constants.SpillDedupEveryNBatches {
		return nil
	}
	g.batchesSinceDedup = 0

	if err := g.spill.Dedup(); err != nil {
		g.logger.Warn("spill file dedup failed, continuing with unsorted file", zap.Error(err))
		return nil
	}
	return nil
}

// ResolveBalances runs the balance phase (spec §4.4 "after the window
// loop exits... run the balance phase"): for each chunk of addresses read
// from the spill file, resolve balances at height via batched
// eth_getBalance, then overwrite only the balance field of each existing
// Address record, committing one batch per chunk under the writer mutex.
// Per-address resolution failures are skipped silently (spec §4.5); the
// balance remains model.PendingBalance until the next cycle. The spill
// file is deleted once every chunk has been processed.
func (g *Gatherer) ResolveBalances(ctx context.Context, height uint64, chunkSize int) error {
	var chunkErr error
	err := g.spill.ReadChunks(chunkSize, func(chunk []string) error {
		if err := g.resolveChunk(ctx, chunk, height); err != nil {
			chunkErr = err
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if chunkErr != nil {
		return chunkErr
	}

	if err := g.spill.Delete(); err != nil {
		return err
	}
	return nil
}

func (g *Gatherer) resolveChunk(ctx context.Context, addresses []string, height uint64) error {
	results, err := g.rpc.GatherBalances(ctx, addresses, height)
	if err != nil {
		return err
	}

	var ops []storage.WriteOp
	for _, res := range results {
		if res.Err != nil {
			g.logger.Debug("skipping address with unresolved balance",
				zap.String("address", res.Address), zap.Error(res.Err))
			continue
		}

		key := storage.AddressKey(res.Address)
		existing, err := g.facade.Get(key)
		if err == storage.ErrNotFound {
			g.logger.Debug("balance resolved for address with no structural record, skipping",
				zap.String("address", res.Address))
			continue
		}
		if err != nil {
			return fmt.Errorf("balance: read existing address %s: %w", res.Address, err)
		}

		addr, err := codec.DecodeAddress(existing)
		if err != nil {
			g.logger.Warn("corrupt address record during balance phase, skipping",
				zap.String("address", res.Address), zap.Error(err))
			continue
		}
		addr.Balance = res.Balance
		ops = append(ops, storage.WriteOp{Key: key, Value: codec.EncodeAddress(addr)})
	}

	if len(ops) == 0 {
		return nil
	}
	return g.facade.CommitBatch(ops)
}
