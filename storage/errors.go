package storage

import "errors"

// Sentinel errors returned by the Store Facade. Callers should use
// errors.Is against these rather than matching on backend-specific error
// types, since a Backend swap must not change the Facade's error contract.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrCorruptRecord is the store-level corrupt-record sentinel. Neither
	// the Facade nor any other package in this module returns it: codec
	// decoding failures wrap codec.ErrCorruptRecord, a separate value.
	ErrCorruptRecord = errors.New("storage: corrupt record")

	// ErrStoreUnavailable is returned when a read or prefix scan still
	// fails after exhausting the retry policy (a transient-missing-file
	// condition caused by a concurrent compaction, or the backend is
	// genuinely down). Open reports a backend that fails to open with a
	// plain wrapped error, not with this sentinel.
	ErrStoreUnavailable = errors.New("storage: backend unavailable")

	// ErrWriterAlreadyHeld names a second writer contending for the
	// single-writer lock. No Facade method returns it: AcquireWriter blocks
	// until the lock is free.
	ErrWriterAlreadyHeld = errors.New("storage: writer already held")

	// ErrReadOnly is returned when a mutating operation is attempted
	// against a read-only-opened Facade.
	ErrReadOnly = errors.New("storage: facade is read-only")
)
