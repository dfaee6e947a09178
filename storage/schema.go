package storage

import (
	"strconv"
	"strings"
)

// Key prefixes for the single ordered keyspace (spec §3). Every builder
// below produces the literal byte form stored in the backend; counters are
// rendered as plain decimal so lexicographic prefix iteration still groups
// entries per width the way the associated-data streams rely on.
const (
	prefixBlock             = "block-"
	prefixHashBlock         = "hash-block-"
	prefixTimestampBlock    = "timestamp-block-"
	prefixTransaction       = "transaction-"
	prefixAddress           = "address-"
	prefixAddressContract   = "address-contract-"
	prefixToken             = "token-"
	prefixTokenTx           = "token-tx-"
	prefixInternalTx        = "internal-tx-"
	prefixAssociatedData    = "associated-data-"
)

// ProgressFileName is the well-known sidecar file holding the four
// newline-separated progress counters (spec §3 "Global progress record",
// §6 "Persisted layout").
const ProgressFileName = "progress.txt"

// SpillFileName is the well-known spill file of unique addresses touched
// during a sync, consumed by the balance phase (spec §6).
const SpillFileName = "addresses.txt"

// BlockKey returns the key for a Block record.
func BlockKey(number string) []byte {
	return []byte(prefixBlock + number)
}

// HashBlockKey returns the key of the hash→number covering index.
func HashBlockKey(hash string) []byte {
	return []byte(prefixHashBlock + hash)
}

// TimestampBlockKey returns the key of the timestamp covering index. The
// value stored under it is the block hash, which readers resolve to a block
// through hash-block-<hash>; the block number itself is not stored there.
func TimestampBlockKey(timestamp string) []byte {
	return []byte(prefixTimestampBlock + timestamp)
}

// TimestampBlockPrefix is the prefix shared by every timestamp-block entry.
// The timestamps in the keys are unpadded decimal and do not sort
// numerically, so GetBlocksByTime scans every entry under this prefix and
// filters by timestamp; it does not seek to a starting timestamp.
func TimestampBlockPrefix() []byte {
	return []byte(prefixTimestampBlock)
}

// TransactionKey returns the key for a Transaction record.
func TransactionKey(hash string) []byte {
	return []byte(prefixTransaction + hash)
}

// AddressKey returns the key for an Address record. Callers are responsible
// for lowercasing the address before reaching the Facade (spec §4.6).
func AddressKey(addr string) []byte {
	return []byte(prefixAddress + addr)
}

// AddressContractKey returns the key of the out-of-line bytecode blob
// referenced by an Address's code field.
func AddressContractKey(n uint64) []byte {
	return []byte(prefixAddressContract + strconv.FormatUint(n, 10))
}

// TokenKey returns the key for a Token record.
func TokenKey(addr string) []byte {
	return []byte(prefixToken + addr)
}

// TokenTxKey returns the key for a TokenTransfer record by its global index.
func TokenTxKey(globalIndex uint64) []byte {
	return []byte(prefixTokenTx + strconv.FormatUint(globalIndex, 10))
}

// InternalTxKey returns the key for an InternalTransaction record by its
// global index.
func InternalTxKey(globalIndex uint64) []byte {
	return []byte(prefixInternalTx + strconv.FormatUint(globalIndex, 10))
}

// AssociatedDataKey returns the key of a single associated-data entry for
// an owner (an address or a transaction hash) under a given tag, at index n
// (spec §3 "Associated-data streams").
func AssociatedDataKey(owner string, tag string, n uint64) []byte {
	return []byte(prefixAssociatedData + owner + "-" + tag + "-" + strconv.FormatUint(n, 10))
}

// AssociatedDataPrefix returns the seek prefix that bounds a single
// owner+tag associated-data stream, used by the Query Gatherer's join
// algorithm (spec §4.6).
func AssociatedDataPrefix(owner string, tag string) []byte {
	return []byte(prefixAssociatedData + owner + "-" + tag + "-")
}

// HasPrefix reports whether key carries the given prefix, matching the
// Facade's prefix_scan stop condition (spec §4.2).
func HasPrefix(key []byte, prefix []byte) bool {
	return strings.HasPrefix(string(key), string(prefix))
}
