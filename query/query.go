// Package query implements the Query Gatherer (spec §4.6): point and
// range lookups served directly from the store, entirely independent of
// the Indexer's write path (spec §5 "serving-ingest isolation").
package query

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/chainindex/evmindexer/codec"
	"github.com/chainindex/evmindexer/model"
	"github.com/chainindex/evmindexer/storage"
)

// TimeRange bounds a query by inclusive Unix timestamp. A zero bound means
// unbounded on that side (spec §4.6 "[t0,t1]"), the same 0-means-unbounded
// convention the teacher's event Filter uses for FromBlock/ToBlock.
type TimeRange struct {
	From uint64
	To   uint64
}

func (r TimeRange) match(ts string) bool {
	v, _ := strconv.ParseUint(ts, 10, 64)
	if r.From > 0 && v < r.From {
		return false
	}
	if r.To > 0 && v > r.To {
		return false
	}
	return true
}

// ValueRange bounds a query by inclusive decimal value. A nil bound means
// unbounded on that side, mirroring the teacher's events.Filter
// MinValue/MaxValue *big.Int convention — values can exceed a uint64 (spec
// scenario 4 uses v1=10^28), so comparison goes through math/big rather
// than strconv.
type ValueRange struct {
	Min *big.Int
	Max *big.Int
}

func (r ValueRange) match(value string) bool {
	if r.Min == nil && r.Max == nil {
		return true
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		v = big.NewInt(0)
	}
	if r.Min != nil && v.Cmp(r.Min) < 0 {
		return false
	}
	if r.Max != nil && v.Cmp(r.Max) > 0 {
		return false
	}
	return true
}

// Gatherer answers read queries against a Facade. It never acquires the
// writer lock, so it never blocks on or is blocked by the ingest task.
type Gatherer struct {
	facade *storage.Facade
}

// New wraps a Facade opened either read-write (embedded in-process with
// the Indexer) or read-only (a separate serving process, spec §4.2
// "OpenReadOnly").
func New(facade *storage.Facade) *Gatherer {
	return &Gatherer{facade: facade}
}

// GetBlockByNumber returns the block stored at the given decimal height.
func (g *Gatherer) GetBlockByNumber(number string) (model.Block, error) {
	if number == "" {
		return model.Block{}, fmt.Errorf("%w: block number is required", ErrInvalidInput)
	}
	raw, err := g.facade.Get(storage.BlockKey(number))
	if err != nil {
		return model.Block{}, err
	}
	return codec.DecodeBlock(raw)
}

// GetBlockByHash resolves a block hash to its number via the covering
// index, then loads the block (spec §3 "hash-block-<hash>").
func (g *Gatherer) GetBlockByHash(hash string) (model.Block, error) {
	if hash == "" {
		return model.Block{}, fmt.Errorf("%w: block hash is required", ErrInvalidInput)
	}
	number, err := g.facade.Get(storage.HashBlockKey(strings.ToLower(hash)))
	if err != nil {
		return model.Block{}, err
	}
	return g.GetBlockByNumber(string(number))
}

// GetBlockHashByIndex returns the hash of the block at the given height.
func (g *Gatherer) GetBlockHashByIndex(number string) (string, error) {
	block, err := g.GetBlockByNumber(number)
	if err != nil {
		return "", err
	}
	return block.Hash, nil
}

// GetBlocksByIndexRange returns every block in the half-open range
// [start, end), skipping any height with no committed block rather than
// failing the whole call (a sparse range is normal near the chain tip
// under reorg-free, forward-only ingestion).
func (g *Gatherer) GetBlocksByIndexRange(start, end uint64) ([]model.Block, error) {
	if end < start {
		return nil, fmt.Errorf("%w: end must not precede start", ErrInvalidInput)
	}
	var blocks []model.Block
	for n := start; n < end; n++ {
		block, err := g.GetBlockByNumber(strconv.FormatUint(n, 10))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// GetBlocksByTime returns every block whose timestamp falls in the
// inclusive range [from, to], walking the timestamp-block covering index
// (spec §3 "timestamp-block-<timestamp>").
func (g *Gatherer) GetBlocksByTime(from, to uint64) ([]model.Block, error) {
	if to < from {
		return nil, fmt.Errorf("%w: to must not precede from", ErrInvalidInput)
	}
	keys, values, err := g.facade.PrefixScanKV(storage.TimestampBlockPrefix())
	if err != nil {
		return nil, err
	}

	var blocks []model.Block
	prefix := string(storage.TimestampBlockPrefix())
	for i, key := range keys {
		ts, err := strconv.ParseUint(strings.TrimPrefix(string(key), prefix), 10, 64)
		if err != nil {
			continue // tolerate a corrupt key rather than fail the whole scan
		}
		if ts < from || ts > to {
			continue
		}
		block, err := g.GetBlockByHash(string(values[i]))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	sort.Slice(blocks, func(i, j int) bool {
		ni, _ := strconv.ParseUint(blocks[i].Number, 10, 64)
		nj, _ := strconv.ParseUint(blocks[j].Number, 10, 64)
		return ni < nj
	})
	return blocks, nil
}

// GetTransactionByHash returns a single transaction by hash.
func (g *Gatherer) GetTransactionByHash(hash string) (model.Transaction, error) {
	if hash == "" {
		return model.Transaction{}, fmt.Errorf("%w: transaction hash is required", ErrInvalidInput)
	}
	raw, err := g.facade.Get(storage.TransactionKey(strings.ToLower(hash)))
	if err != nil {
		return model.Transaction{}, err
	}
	return codec.DecodeTransaction(raw)
}

// GetTransactionsOfBlockByHash returns every transaction of a block, in
// the order they were mined.
func (g *Gatherer) GetTransactionsOfBlockByHash(hash string) ([]model.Transaction, error) {
	block, err := g.GetBlockByHash(hash)
	if err != nil {
		return nil, err
	}
	return g.transactionsOf(block)
}

// GetTransactionsOfBlockByIndex returns every transaction of the block at
// the given height, in the order they were mined.
func (g *Gatherer) GetTransactionsOfBlockByIndex(number string) ([]model.Transaction, error) {
	block, err := g.GetBlockByNumber(number)
	if err != nil {
		return nil, err
	}
	return g.transactionsOf(block)
}

func (g *Gatherer) transactionsOf(block model.Block) ([]model.Transaction, error) {
	if block.Transactions == "" {
		return nil, nil
	}
	hashes := strings.Split(block.Transactions, "+")
	txs := make([]model.Transaction, 0, len(hashes))
	for _, hash := range hashes {
		tx, err := g.GetTransactionByHash(hash)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// GetAddress returns an address's ledger header.
func (g *Gatherer) GetAddress(addr string) (model.Address, error) {
	if addr == "" {
		return model.Address{}, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}
	raw, err := g.facade.Get(storage.AddressKey(strings.ToLower(addr)))
	if err != nil {
		return model.Address{}, err
	}
	return codec.DecodeAddress(raw)
}

// GetBalance returns an address's last-resolved balance, or
// model.PendingBalance if the balance phase has not yet reached it.
func (g *Gatherer) GetBalance(addr string) (string, error) {
	a, err := g.GetAddress(addr)
	if err != nil {
		return "", err
	}
	return a.Balance, nil
}

// GetToken returns a registered token's descriptor.
func (g *Gatherer) GetToken(addr string) (model.Token, error) {
	if addr == "" {
		return model.Token{}, fmt.Errorf("%w: token address is required", ErrInvalidInput)
	}
	raw, err := g.facade.Get(storage.TokenKey(strings.ToLower(addr)))
	if err != nil {
		return model.Token{}, err
	}
	return codec.DecodeToken(raw)
}

// TransactionRef is one entry of an address's input or output transaction
// ledger (spec §3 "Associated-data streams").
type TransactionRef struct {
	Hash      string
	Value     string
	Timestamp string
	Direction string // "in" or "out"
}

// GetTransactionsOfAddress merges the address's input and output
// transaction streams, applies the [t0,t1]x[v0,v1] filter (spec §4.6 join
// algorithm), sorts newest first, and applies offset/limit after the
// merge so pagination is stable across both directions.
func (g *Gatherer) GetTransactionsOfAddress(addr string, ts TimeRange, values ValueRange, offset, limit uint64) ([]TransactionRef, error) {
	a, err := g.GetAddress(addr)
	if err != nil {
		return nil, err
	}
	addr = strings.ToLower(addr)

	var refs []TransactionRef
	err = g.walkTxDeltas(addr, model.TagInputTx, a.InputTxIndex, "in", &refs)
	if err != nil {
		return nil, err
	}
	if err := g.walkTxDeltas(addr, model.TagOutputTx, a.OutputTxIndex, "out", &refs); err != nil {
		return nil, err
	}

	refs = filterTxRefs(refs, ts, values)
	sort.SliceStable(refs, func(i, j int) bool { return decimalLess(refs[j].Timestamp, refs[i].Timestamp) })
	return paginateRefs(refs, offset, limit), nil
}

func filterTxRefs(refs []TransactionRef, ts TimeRange, values ValueRange) []TransactionRef {
	out := refs[:0]
	for _, r := range refs {
		if ts.match(r.Timestamp) && values.match(r.Value) {
			out = append(out, r)
		}
	}
	return out
}

func (g *Gatherer) walkTxDeltas(owner string, tag model.AddressTag, count uint64, direction string, out *[]TransactionRef) error {
	for n := uint64(1); n <= count; n++ {
		raw, err := g.facade.Get(storage.AssociatedDataKey(owner, string(tag), n))
		if err != nil {
			return err
		}
		hash, value, timestamp, err := codec.DecodeTxDelta(raw)
		if err != nil {
			return err
		}
		*out = append(*out, TransactionRef{Hash: hash, Value: value, Timestamp: timestamp, Direction: direction})
	}
	return nil
}

// TokenTransferRef is one entry of an address's or token's transfer
// ledger.
type TokenTransferRef struct {
	GlobalIndex uint64
	Timestamp   string
	Direction   string // "in" or "out"
}

// GetTokenTransactionsOfAddress merges the address's input and output
// token-transfer streams, applies the timestamp filter directly and the
// value filter via a lookup of each candidate's full TokenTransfer record
// (the associated-data delta itself carries no value — spec §4.6 "value
// range optional for token"), sorts newest first, and paginates.
func (g *Gatherer) GetTokenTransactionsOfAddress(addr string, ts TimeRange, values ValueRange, offset, limit uint64) ([]TokenTransferRef, error) {
	a, err := g.GetAddress(addr)
	if err != nil {
		return nil, err
	}
	addr = strings.ToLower(addr)

	var refs []TokenTransferRef
	if err := g.walkTokenTxDeltas(addr, model.TagInputToken, a.InputTokenTxIndex, "in", &refs); err != nil {
		return nil, err
	}
	if err := g.walkTokenTxDeltas(addr, model.TagOutputToken, a.OutputTokenTxIndex, "out", &refs); err != nil {
		return nil, err
	}

	refs, err = g.filterTokenRefs(refs, ts, values)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(refs, func(i, j int) bool { return decimalLess(refs[j].Timestamp, refs[i].Timestamp) })
	return paginateTokenRefs(refs, offset, limit), nil
}

func (g *Gatherer) filterTokenRefs(refs []TokenTransferRef, ts TimeRange, values ValueRange) ([]TokenTransferRef, error) {
	out := refs[:0]
	for _, r := range refs {
		if !ts.match(r.Timestamp) {
			continue
		}
		if values.Min != nil || values.Max != nil {
			transfer, err := g.GetTokenTransferByIndex(r.GlobalIndex)
			if err != nil {
				return nil, err
			}
			if !values.match(transfer.Value) {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (g *Gatherer) walkTokenTxDeltas(owner string, tag model.AddressTag, count uint64, direction string, out *[]TokenTransferRef) error {
	for n := uint64(1); n <= count; n++ {
		raw, err := g.facade.Get(storage.AssociatedDataKey(owner, string(tag), n))
		if err != nil {
			return err
		}
		idx, timestamp, err := codec.DecodeTokenTxDelta(raw)
		if err != nil {
			return err
		}
		*out = append(*out, TokenTransferRef{GlobalIndex: idx, Timestamp: timestamp, Direction: direction})
	}
	return nil
}

// GetTokenTransferByIndex resolves a token-transfer global index to its
// full record.
func (g *Gatherer) GetTokenTransferByIndex(globalIndex uint64) (model.TokenTransfer, error) {
	raw, err := g.facade.Get(storage.TokenTxKey(globalIndex))
	if err != nil {
		return model.TokenTransfer{}, err
	}
	return codec.DecodeTokenTransfer(raw)
}

// InternalTransactionRef is one entry of an address's internal-transaction
// ledger.
type InternalTransactionRef struct {
	GlobalIndex uint64
	Value       string
	Timestamp   string
	Direction   string // "in" or "out"
}

// GetInternalTransactionsOfAddress merges the address's input and output
// internal-transaction streams, applies the [t0,t1]x[v0,v1] filter, sorts
// newest first, and paginates.
func (g *Gatherer) GetInternalTransactionsOfAddress(addr string, ts TimeRange, values ValueRange, offset, limit uint64) ([]InternalTransactionRef, error) {
	a, err := g.GetAddress(addr)
	if err != nil {
		return nil, err
	}
	addr = strings.ToLower(addr)

	var refs []InternalTransactionRef
	if err := g.walkIntTxDeltas(addr, model.TagInputIntTx, a.InputIntTxIndex, "in", &refs); err != nil {
		return nil, err
	}
	if err := g.walkIntTxDeltas(addr, model.TagOutputIntTx, a.OutputIntTxIndex, "out", &refs); err != nil {
		return nil, err
	}

	refs = filterIntTxRefs(refs, ts, values)
	sort.SliceStable(refs, func(i, j int) bool { return decimalLess(refs[j].Timestamp, refs[i].Timestamp) })
	return paginateIntRefs(refs, offset, limit), nil
}

func filterIntTxRefs(refs []InternalTransactionRef, ts TimeRange, values ValueRange) []InternalTransactionRef {
	out := refs[:0]
	for _, r := range refs {
		if ts.match(r.Timestamp) && values.match(r.Value) {
			out = append(out, r)
		}
	}
	return out
}

func (g *Gatherer) walkIntTxDeltas(owner string, tag model.AddressTag, count uint64, direction string, out *[]InternalTransactionRef) error {
	for n := uint64(1); n <= count; n++ {
		raw, err := g.facade.Get(storage.AssociatedDataKey(owner, string(tag), n))
		if err != nil {
			return err
		}
		idx, value, timestamp, err := codec.DecodeIntTxDelta(raw)
		if err != nil {
			return err
		}
		*out = append(*out, InternalTransactionRef{GlobalIndex: idx, Value: value, Timestamp: timestamp, Direction: direction})
	}
	return nil
}

// GetInternalTransactionByIndex resolves an internal-transaction global
// index to its full record.
func (g *Gatherer) GetInternalTransactionByIndex(globalIndex uint64) (model.InternalTransaction, error) {
	raw, err := g.facade.Get(storage.InternalTxKey(globalIndex))
	if err != nil {
		return model.InternalTransaction{}, err
	}
	return codec.DecodeInternalTransaction(raw)
}

// GetMinedBlocksOfAddress returns the hashes of blocks mined by addr, in
// mining order.
func (g *Gatherer) GetMinedBlocksOfAddress(addr string) ([]string, error) {
	a, err := g.GetAddress(addr)
	if err != nil {
		return nil, err
	}
	addr = strings.ToLower(addr)

	hashes := make([]string, 0, a.MinedIndex)
	for n := uint64(1); n <= a.MinedIndex; n++ {
		raw, err := g.facade.Get(storage.AssociatedDataKey(addr, string(model.TagMined), n))
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, codec.DecodeMinedDelta(raw))
	}
	return hashes, nil
}

// decimalLess compares two decimal-string Unix timestamps numerically; a
// malformed value sorts as if it were zero rather than failing the query.
func decimalLess(a, b string) bool {
	ai, _ := strconv.ParseUint(a, 10, 64)
	bi, _ := strconv.ParseUint(b, 10, 64)
	return ai < bi
}

func paginateRefs(refs []TransactionRef, offset, limit uint64) []TransactionRef {
	if offset >= uint64(len(refs)) {
		return nil
	}
	end := offset + limit
	if limit == 0 || end > uint64(len(refs)) {
		end = uint64(len(refs))
	}
	return refs[offset:end]
}

func paginateTokenRefs(refs []TokenTransferRef, offset, limit uint64) []TokenTransferRef {
	if offset >= uint64(len(refs)) {
		return nil
	}
	end := offset + limit
	if limit == 0 || end > uint64(len(refs)) {
		end = uint64(len(refs))
	}
	return refs[offset:end]
}

func paginateIntRefs(refs []InternalTransactionRef, offset, limit uint64) []InternalTransactionRef {
	if offset >= uint64(len(refs)) {
		return nil
	}
	end := offset + limit
	if limit == 0 || end > uint64(len(refs)) {
		end = uint64(len(refs))
	}
	return refs[offset:end]
}
