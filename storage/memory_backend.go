package storage

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Ensure MemoryBackend implements Backend.
var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend is an in-memory, ordered Backend implementation used by unit
// tests that exercise the Store Facade and higher layers without touching
// disk. Keys live in a map; NewIterator sorts the keys in its range when it
// is called, so it offers the same ordered prefix-scan semantics as
// PebbleBackend.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(_ *BackendConfig, _ *zap.Logger) (*MemoryBackend, error) {
	return &MemoryBackend{data: make(map[string][]byte)}, nil
}

func (b *MemoryBackend) Type() BackendType { return BackendTypeMemory }

func (b *MemoryBackend) Get(key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *MemoryBackend) Set(key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	b.data[string(key)] = v
	return nil
}

func (b *MemoryBackend) Delete(key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, string(key))
	return nil
}

func (b *MemoryBackend) Has(key []byte) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[string(key)]
	return ok, nil
}

func (b *MemoryBackend) NewIterator(start, end []byte) Iterator {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		if start != nil && k < string(start) {
			continue
		}
		if end != nil && k >= string(end) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = b.data[k]
	}
	return &memoryIterator{keys: keys, values: values, pos: 0}
}

func (b *MemoryBackend) NewBatch() BackendBatch {
	return &memoryBatch{backend: b}
}

func (b *MemoryBackend) Close() error { return nil }

type memoryIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memoryIterator) Valid() bool { return it.pos < len(it.keys) }
func (it *memoryIterator) Next()       { it.pos++ }
func (it *memoryIterator) Key() []byte { return []byte(it.keys[it.pos]) }
func (it *memoryIterator) Value() []byte {
	return it.values[it.pos]
}
func (it *memoryIterator) Close() error { return nil }

type memoryOp struct {
	key     []byte
	value   []byte
	isDelete bool
}

type memoryBatch struct {
	backend *MemoryBackend
	ops     []memoryOp
}

func (b *memoryBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), isDelete: true})
	return nil
}

func (b *memoryBatch) Commit() error {
	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()
	for _, op := range b.ops {
		if op.isDelete {
			delete(b.backend.data, string(op.key))
		} else {
			b.backend.data[string(op.key)] = op.value
		}
	}
	return nil
}

func (b *memoryBatch) Reset() { b.ops = nil }
func (b *memoryBatch) Count() int { return len(b.ops) }
func (b *memoryBatch) Close() error { return nil }

func init() {
	MustRegisterBackend(
		BackendTypeMemory,
		func(config *BackendConfig, logger *zap.Logger) (Backend, error) {
			return NewMemoryBackend(config, logger)
		},
		&BackendMetadata{
			Name:        "Memory",
			Description: "In-memory backend for unit tests",
			Version:     "1.0.0",
			Features:    []string{"atomic-batches", "range-scans"},
		},
	)
}
