package indexer

import (
	"math"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/internal/constants"
)

// adaptiveBulkSize shrinks the extraction window after repeated extractor
// failures and grows it back after a run of clean batches, generalizing the
// teacher's AdaptiveOptimizer to the window-size dimension of spec §4.4 step
// 1 ("Window selection") instead of worker/batch-size dimensions that don't
// apply to a CSV-driven extractor.
type adaptiveBulkSize struct {
	current uint64
	min     uint64
	max     uint64

	increaseFactor float64
	decreaseFactor float64
	growAfterClean int

	consecutiveClean int
	logger           *zap.Logger
}

func newAdaptiveBulkSize(configured uint64, logger *zap.Logger) *adaptiveBulkSize {
	a := &adaptiveBulkSize{
		current:        configured,
		min:            constants.MinBulkSize,
		max:            constants.MaxBulkSize,
		increaseFactor: 1.5,
		decreaseFactor: 0.5,
		growAfterClean: 3,
		logger:         logger,
	}
	if a.current < a.min {
		a.current = a.min
	}
	if a.current > a.max {
		a.current = a.max
	}
	return a
}

// Value returns the current window width.
func (a *adaptiveBulkSize) Value() uint64 {
	return a.current
}

// OnSuccess records a clean batch, growing the window every growAfterClean
// consecutive successes.
func (a *adaptiveBulkSize) OnSuccess() {
	a.consecutiveClean++
	if a.consecutiveClean < a.growAfterClean {
		return
	}
	a.consecutiveClean = 0

	next := uint64(math.Ceil(float64(a.current) * a.increaseFactor))
	if next > a.max {
		next = a.max
	}
	if next != a.current {
		a.logger.Info("growing extraction window after clean batches",
			zap.Uint64("from", a.current), zap.Uint64("to", next))
		a.current = next
	}
}

// OnFailure records an extraction failure, shrinking the window.
func (a *adaptiveBulkSize) OnFailure() {
	a.consecutiveClean = 0

	next := uint64(math.Floor(float64(a.current) * a.decreaseFactor))
	if next < a.min {
		next = a.min
	}
	if next != a.current {
		a.logger.Warn("shrinking extraction window after extractor failure",
			zap.Uint64("from", a.current), zap.Uint64("to", next))
		a.current = next
	}
}
