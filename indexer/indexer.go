package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/balance"
	"github.com/chainindex/evmindexer/client"
	"github.com/chainindex/evmindexer/events"
	"github.com/chainindex/evmindexer/internal/constants"
	"github.com/chainindex/evmindexer/metrics"
	"github.com/chainindex/evmindexer/progress"
	"github.com/chainindex/evmindexer/retriever"
	"github.com/chainindex/evmindexer/storage"
)

// Config wires together the components the outer loop drives.
type Config struct {
	Client    *client.Client
	Facade    *storage.Facade
	Retriever *retriever.Retriever
	Balance   *balance.Gatherer
	Progress  *progress.Tracker

	// Events publishes BatchCommitted/BalancePhaseResolved notifications.
	// Optional; defaults to a local publisher with no subscribers.
	Events events.Publisher
	// Metrics records Prometheus instrumentation for the ingest loop.
	// Optional; nil disables metrics recording.
	Metrics *metrics.Metrics

	// Confirmations is the number of blocks to hold back from the chain
	// head before treating a block as final (spec §4.4 step 1).
	Confirmations uint64
	// BulkSize is the starting width of the extraction window; the window
	// shrinks after extractor failures and grows back after clean batches,
	// bounded by constants.MinBulkSize/MaxBulkSize.
	BulkSize uint64
	// BalanceChunkSize bounds one balance-resolution RPC batch.
	BalanceChunkSize int
	// RefreshInterval is how long the loop sleeps once it has caught up
	// to the safe head, before polling again.
	RefreshInterval time.Duration

	Logger *zap.Logger
}

// Indexer runs the outer ingest loop (spec §4.4): pick a window, extract,
// fuse, commit, advance.
type Indexer struct {
	cfg    Config
	logger *zap.Logger
	window *adaptiveBulkSize
}

// New validates cfg and returns an Indexer ready to Run.
func New(cfg Config) (*Indexer, error) {
	if cfg.Client == nil || cfg.Facade == nil || cfg.Retriever == nil || cfg.Balance == nil || cfg.Progress == nil {
		return nil, errors.New("indexer: client, facade, retriever, balance and progress are required")
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = constants.DefaultConfirmations
	}
	if cfg.BulkSize == 0 {
		cfg.BulkSize = constants.DefaultBulkSize
	}
	if cfg.BalanceChunkSize <= 0 {
		cfg.BalanceChunkSize = constants.DefaultBalanceBatchSize
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = constants.DefaultRefreshInterval
	}
	if cfg.Events == nil {
		cfg.Events = events.NewLocalPublisher(cfg.Logger)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{cfg: cfg, logger: logger, window: newAdaptiveBulkSize(cfg.BulkSize, logger)}, nil
}

// Run drives the loop until ctx is cancelled. Every failure path logs and
// retries after RefreshInterval rather than aborting the process, matching
// the "no partial writes, no crash loop" posture of spec §7.
func (idx *Indexer) Run(ctx context.Context) error {
	behindBatches := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := idx.tick(ctx, &behindBatches); err != nil {
			idx.logger.Error("ingest cycle failed, will retry", zap.Error(err))
			if !sleepOrDone(ctx, idx.cfg.RefreshInterval) {
				return nil
			}
			continue
		}

		// A cycle that fell behind races straight into the next window
		// instead of sleeping, to shrink the backlog as fast as the
		// extractor and RPC endpoint allow.
		if behindBatches > constants.FellBehindThreshold {
			continue
		}
		if !sleepOrDone(ctx, idx.cfg.RefreshInterval) {
			return nil
		}
	}
}

// tick runs exactly one iteration: compute the window, extract, fuse,
// commit, and — once caught up to the safe head — run the balance phase.
func (idx *Indexer) tick(ctx context.Context, behindBatches *int) error {
	head, err := idx.cfg.Client.HeadHeight(ctx)
	if err != nil {
		return fmt.Errorf("head height: %w", err)
	}
	if head < idx.cfg.Confirmations {
		return nil // chain younger than the confirmation depth; nothing final yet
	}
	safeHead := head - idx.cfg.Confirmations

	counters, err := idx.cfg.Progress.Read()
	if err != nil {
		return fmt.Errorf("read progress: %w", err)
	}
	// HighestBlock is the exclusive end of the ingested range so far (spec
	// §3, §4.4 step 1: it doubles as the next window's start), so a fresh
	// deployment's zero-value Counters already starts the window at
	// genesis with no special-casing needed.
	next := counters.HighestBlock

	if idx.cfg.Metrics != nil {
		idx.cfg.Metrics.SetSafeHeight(safeHead)
	}

	if next > safeHead {
		*behindBatches = 0
		phaseStart := time.Now()
		if err := idx.cfg.Balance.ResolveBalances(ctx, safeHead, idx.cfg.BalanceChunkSize); err != nil {
			return err
		}
		if idx.cfg.Metrics != nil {
			idx.cfg.Metrics.ObserveBalancePhase(time.Since(phaseStart))
		}
		if err := idx.cfg.Events.PublishBalancePhaseResolved(events.BalancePhaseResolved{
			Height: safeHead, ResolvedAt: time.Now(),
		}); err != nil {
			idx.logger.Warn("failed to publish balance phase event", zap.Error(err))
		}
		return nil
	}

	bulkSize := idx.window.Value()
	end := next + bulkSize
	if end > safeHead+1 {
		end = safeHead + 1
	}

	remaining := safeHead + 1 - end
	if remaining > bulkSize*uint64(constants.FellBehindThreshold) {
		*behindBatches++
	} else {
		*behindBatches = 0
	}

	cycleStart := time.Now()

	batch, err := idx.cfg.Retriever.Extract(ctx, next, end)
	if err != nil {
		idx.window.OnFailure()
		if idx.cfg.Metrics != nil {
			idx.cfg.Metrics.RecordRPCError("extract")
		}
		return fmt.Errorf("extract [%d,%d): %w", next, end, err)
	}

	result, err := ProcessBatch(idx.cfg.Facade, counters, batch, idx.logger)
	if err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	if err := idx.cfg.Facade.CommitBatch(result.Ops); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	if err := idx.cfg.Progress.Commit(result.Counters); err != nil {
		return fmt.Errorf("commit progress: %w", err)
	}
	if len(result.TouchedAddresses) > 0 {
		if err := idx.cfg.Balance.RecordAddresses(result.TouchedAddresses); err != nil {
			return fmt.Errorf("record addresses: %w", err)
		}
	}

	idx.window.OnSuccess()

	if idx.cfg.Metrics != nil {
		idx.cfg.Metrics.ObserveBatch(time.Since(cycleStart), int(end-next))
		idx.cfg.Metrics.SetSyncHeight(result.Counters.HighestBlock)
	}
	if err := idx.cfg.Events.PublishBatchCommitted(events.BatchCommitted{
		FromBlock: next, ToBlock: end - 1, AddressesTouched: len(result.TouchedAddresses), CommittedAt: time.Now(),
	}); err != nil {
		idx.logger.Warn("failed to publish batch committed event", zap.Error(err))
	}

	idx.logger.Info("committed batch",
		zap.Uint64("from", next), zap.Uint64("to", end-1),
		zap.Int("addresses_touched", len(result.TouchedAddresses)))
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
