package storage

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/internal/constants"
)

// WriteOp is a single operation inside an atomic WriteBatch call.
type WriteOp struct {
	Key     []byte
	Value   []byte
	IsDelete bool
}

// Facade wraps a Backend with the two reliability policies the indexing
// engine depends on (spec §4.2): retrying reads across transient
// missing-file errors caused by compaction races, and serializing all
// writers through a single process-wide mutex while leaving readers
// lock-free.
type Facade struct {
	backend Backend
	logger  *zap.Logger

	writerMu   sync.Mutex
	writerHeld bool

	retryAttempts int
	retryBackoff  time.Duration

	readOnly bool
}

// FacadeOption customizes a Facade at construction time.
type FacadeOption func(*Facade)

// WithRetryPolicy overrides the default read-retry attempt count and
// back-off interval.
func WithRetryPolicy(attempts int, backoff time.Duration) FacadeOption {
	return func(f *Facade) {
		f.retryAttempts = attempts
		f.retryBackoff = backoff
	}
}

// NewFacade wraps an already-opened Backend.
func NewFacade(backend Backend, logger *zap.Logger, opts ...FacadeOption) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Facade{
		backend:       backend,
		logger:        logger,
		retryAttempts: constants.StoreRetryAttempts,
		retryBackoff:  constants.StoreRetryBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open creates the configured Backend from the registry and wraps it.
func Open(config *BackendConfig, logger *zap.Logger, opts ...FacadeOption) (*Facade, error) {
	backend, err := CreateBackend(config, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: open backend: %w", err)
	}
	f := NewFacade(backend, logger, opts...)
	f.readOnly = config.ReadOnly
	return f, nil
}

// Get retrieves a value, retrying on transient errors until the policy's
// attempt budget is exhausted (spec §4.2 policy 1). ErrNotFound is returned
// immediately without retry since it is not a transient condition.
func (f *Facade) Get(key []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.retryAttempts; attempt++ {
		value, err := f.backend.Get(key)
		if err == nil {
			return value, nil
		}
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		lastErr = err
		f.logger.Debug("transient read error, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		time.Sleep(f.retryBackoff)
	}
	return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// Has reports whether a key exists, applying the same retry policy as Get.
func (f *Facade) Has(key []byte) (bool, error) {
	_, err := f.Get(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put writes a single key-value pair outside of an explicit writer batch.
// Callers performing multiple related writes should prefer WriteBatch so
// the mutation lands atomically.
func (f *Facade) Put(key, value []byte) error {
	if f.readOnly {
		return ErrReadOnly
	}
	f.writerMu.Lock()
	defer f.writerMu.Unlock()
	return f.backend.Set(key, value)
}

// Delete removes a single key outside of an explicit writer batch.
func (f *Facade) Delete(key []byte) error {
	if f.readOnly {
		return ErrReadOnly
	}
	f.writerMu.Lock()
	defer f.writerMu.Unlock()
	return f.backend.Delete(key)
}

// PrefixScan seeks to prefix and returns every value whose key carries that
// prefix, in ascending key order, retrying the scan as a whole on a
// transient backend error (spec §4.2 "Prefix scan semantics").
func (f *Facade) PrefixScan(prefix []byte) ([][]byte, error) {
	upperBound := prefixUpperBound(prefix)

	var lastErr error
	for attempt := 0; attempt < f.retryAttempts; attempt++ {
		values, err := f.scanOnce(prefix, upperBound)
		if err == nil {
			return values, nil
		}
		lastErr = err
		f.logger.Debug("transient scan error, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		time.Sleep(f.retryBackoff)
	}
	return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// PrefixScanKV behaves like PrefixScan but also returns the matched keys,
// needed by callers (e.g. the Query Gatherer's time-range walk) that must
// decode information embedded in the key itself.
func (f *Facade) PrefixScanKV(prefix []byte) (keys [][]byte, values [][]byte, err error) {
	upperBound := prefixUpperBound(prefix)

	var lastErr error
	for attempt := 0; attempt < f.retryAttempts; attempt++ {
		keys, values, err = f.scanOnceKV(prefix, upperBound)
		if err == nil {
			return keys, values, nil
		}
		lastErr = err
		f.logger.Debug("transient scan error, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		time.Sleep(f.retryBackoff)
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

func (f *Facade) scanOnce(prefix, upperBound []byte) ([][]byte, error) {
	iter := f.backend.NewIterator(prefix, upperBound)

	var values [][]byte
	for iter.Valid() {
		if !HasPrefix(iter.Key(), prefix) {
			break
		}
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		values = append(values, v)
		iter.Next()
	}
	// Close reports any error the iterator hit while walking, which
	// PrefixScan treats as transient and retries.
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return values, nil
}

func (f *Facade) scanOnceKV(prefix, upperBound []byte) ([][]byte, [][]byte, error) {
	iter := f.backend.NewIterator(prefix, upperBound)

	var keys, values [][]byte
	for iter.Valid() {
		if !HasPrefix(iter.Key(), prefix) {
			break
		}
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		keys = append(keys, k)
		values = append(values, v)
		iter.Next()
	}
	if err := iter.Close(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

// prefixUpperBound computes the smallest byte string that is strictly
// greater than every byte string carrying prefix, bounding the iterator so
// it never walks past the requested namespace.
func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// AcquireWriter takes the exclusive single-writer lock (spec §4.2 policy 2).
// Callers must pair every AcquireWriter with a ReleaseWriter.
func (f *Facade) AcquireWriter() error {
	if f.readOnly {
		return ErrReadOnly
	}
	f.writerMu.Lock()
	f.writerHeld = true
	return nil
}

// ReleaseWriter releases the single-writer lock.
func (f *Facade) ReleaseWriter() {
	f.writerHeld = false
	f.writerMu.Unlock()
}

// WriteBatch commits a set of operations atomically with respect to
// readers. Callers should have already called AcquireWriter; WriteBatch
// does not take the lock itself so batch construction and commit can be
// separated from lock scope when needed.
func (f *Facade) WriteBatch(ops []WriteOp) error {
	if f.readOnly {
		return ErrReadOnly
	}
	batch := f.backend.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		if op.IsDelete {
			if err := batch.Delete(op.Key); err != nil {
				return fmt.Errorf("storage: batch delete: %w", err)
			}
			continue
		}
		if err := batch.Set(op.Key, op.Value); err != nil {
			return fmt.Errorf("storage: batch set: %w", err)
		}
	}
	return batch.Commit()
}

// CommitBatch is a convenience wrapper that acquires the writer lock,
// commits ops atomically, and releases the lock, matching the "take the
// writer mutex, commit the batch, release" sequence described for the
// Indexer's per-batch commit (spec §4.4 step 13).
func (f *Facade) CommitBatch(ops []WriteOp) error {
	if err := f.AcquireWriter(); err != nil {
		return err
	}
	defer f.ReleaseWriter()
	return f.WriteBatch(ops)
}

// OpenReadOnly opens an independent Facade sharing the same backend handle,
// for a long-lived serving task to run concurrently with ingest (spec §5).
// Because Backend implementations in this package are safe for concurrent
// multi-reader/single-writer use, the returned Facade wraps the same
// backend and simply never takes the writer lock for mutation.
func (f *Facade) OpenReadOnly() *Facade {
	return &Facade{
		backend:       f.backend,
		logger:        f.logger,
		retryAttempts: f.retryAttempts,
		retryBackoff:  f.retryBackoff,
		readOnly:      true,
	}
}

// Close releases the underlying backend.
func (f *Facade) Close() error {
	return f.backend.Close()
}
