// Package indexer implements the writer side of the system (spec §4.4):
// the per-batch pipeline that fuses Data Retriever CSVs into block,
// transaction, address, token and internal-transaction records, merges
// them against existing per-entity counters in the store, and commits one
// atomic write batch per cycle.
package indexer

import "github.com/chainindex/evmindexer/model"

// txDelta is an Address inputTxIndex/outputTxIndex associated-data entry
// before it is assigned its final index (spec §3 associated-data table).
type txDelta struct {
	TxHash    string
	Value     string
	Timestamp string
}

// tokenTxDelta is an Address input/output-token-tx, or Token txIndex,
// associated-data entry before it is assigned its final index.
type tokenTxDelta struct {
	TokenTxIndex uint64
	Timestamp    string
}

// intTxDelta is an Address input/output-internal-tx associated-data entry
// before it is assigned its final index.
type intTxDelta struct {
	IntTxIndex uint64
	Value      string
	Timestamp  string
}

// addressWork accumulates everything this batch learned about one address,
// pending merge against its existing store record in the counter
// resolution pass (spec §4.4 step 11).
type addressWork struct {
	// code is the contract out-of-line reference assigned by the
	// contracts pass, or "" if this batch didn't touch it.
	code string
	// tokenContract is the classification stamped by the contracts pass,
	// or "" if this batch didn't touch it.
	tokenContract model.TokenContractKind

	inputTx      []txDelta
	outputTx     []txDelta
	inputToken   []tokenTxDelta
	outputToken  []tokenTxDelta
	inputIntTx   []intTxDelta
	outputIntTx  []intTxDelta
	mined        []string // block hashes
}

// tokenWork accumulates everything this batch learned about one token
// contract, pending merge against its existing store record.
type tokenWork struct {
	// descriptor is non-nil when this batch's tokens CSV carried a row for
	// this address; nil means the token is already known to the store and
	// only its txIndex advances this batch.
	descriptor *model.Token
	transfers  []tokenTxDelta
}
