package events

import "go.uber.org/zap"

// LocalPublisher fans events out to in-process subscriber channels. It
// backs the default "local" EventBus configuration (spec §6), useful when
// the Query Gatherer and Indexer share a process and a channel is enough.
type LocalPublisher struct {
	batchSubs   []chan BatchCommitted
	balanceSubs []chan BalancePhaseResolved
	logger      *zap.Logger
}

// NewLocalPublisher builds a LocalPublisher with no subscribers yet.
func NewLocalPublisher(logger *zap.Logger) *LocalPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalPublisher{logger: logger}
}

// SubscribeBatchCommitted registers a buffered channel that receives every
// future BatchCommitted event. Callers must drain it; a full channel drops
// the event rather than blocking the ingest loop.
func (p *LocalPublisher) SubscribeBatchCommitted(buffer int) <-chan BatchCommitted {
	ch := make(chan BatchCommitted, buffer)
	p.batchSubs = append(p.batchSubs, ch)
	return ch
}

// SubscribeBalancePhaseResolved registers a buffered channel for future
// BalancePhaseResolved events.
func (p *LocalPublisher) SubscribeBalancePhaseResolved(buffer int) <-chan BalancePhaseResolved {
	ch := make(chan BalancePhaseResolved, buffer)
	p.balanceSubs = append(p.balanceSubs, ch)
	return ch
}

func (p *LocalPublisher) PublishBatchCommitted(evt BatchCommitted) error {
	for _, ch := range p.batchSubs {
		select {
		case ch <- evt:
		default:
			p.logger.Warn("batch_committed subscriber channel full, dropping event")
		}
	}
	return nil
}

func (p *LocalPublisher) PublishBalancePhaseResolved(evt BalancePhaseResolved) error {
	for _, ch := range p.balanceSubs {
		select {
		case ch <- evt:
		default:
			p.logger.Warn("balance_phase_resolved subscriber channel full, dropping event")
		}
	}
	return nil
}

// Close closes every subscriber channel.
func (p *LocalPublisher) Close() error {
	for _, ch := range p.batchSubs {
		close(ch)
	}
	for _, ch := range p.balanceSubs {
		close(ch)
	}
	return nil
}
