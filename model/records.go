// Package model defines the entity types persisted by the indexer. Every
// numeric field is carried as a decimal string so that 256-bit chain-native
// integers survive encode/decode without truncation; timestamps are decimal
// Unix seconds.
package model

// TokenContractKind classifies whether an address is a token contract and,
// if so, which standard it implements.
type TokenContractKind string

const (
	// TokenContractNone marks an address that is not a known token contract.
	TokenContractNone TokenContractKind = "False"

	// TokenContractERC20 marks an address as an ERC-20 token contract.
	TokenContractERC20 TokenContractKind = "ERC-20"

	// TokenContractERC721 marks an address as an ERC-721 token contract.
	TokenContractERC721 TokenContractKind = "ERC-721"
)

// TokenType is the standard a Token record implements.
type TokenType string

const (
	TokenTypeERC20  TokenType = "ERC-20"
	TokenTypeERC721 TokenType = "ERC-721"
)

// NoCodeMarker is the Address.Code value for externally owned accounts.
const NoCodeMarker = "0x"

// PendingBalance is the Address.Balance sentinel before the balance phase
// resolves the account's current balance.
const PendingBalance = "null"

// Block is a stored block header plus the ordered list of its transaction
// hashes (spec §3 "Block").
type Block struct {
	Number          string // decimal
	Hash            string
	ParentHash      string
	Nonce           string
	LogsBloom       string
	Miner           string
	Difficulty      string
	TotalDifficulty string
	ExtraData       string
	Size            string
	GasLimit        string
	GasUsed         string
	Timestamp       string // decimal Unix seconds
	Sha3Uncles      string
	// Transactions holds the block's transaction hashes, '+'-joined in
	// block order. Empty string for an empty block.
	Transactions string
}

// Log is a single event log attached to a Transaction.
type Log struct {
	Data   string // hex
	Topics []string
}

// Transaction is a stored transaction plus its receipt-derived fields
// (spec §3 "Transaction").
type Transaction struct {
	BlockHash         string
	BlockNumber       string
	From              string
	To                string // empty for contract-creation transactions
	Gas               string
	GasPrice          string
	Hash              string
	Input             string
	Nonce             string
	Value             string
	CumulativeGasUsed string
	GasUsed           string
	Logs              []Log
	ContractAddress   string // empty if none
	Timestamp         string
	// InternalTxIndex is the count of internal transactions attributed to
	// this transaction so far.
	InternalTxIndex uint64
}

// Address is a per-account ledger header. History lives out of line in the
// associated-data streams keyed by the six monotone counters below plus
// MinedIndex (spec §3 "Address").
type Address struct {
	// Balance is a decimal string, or model.PendingBalance before the
	// balance phase first resolves it.
	Balance string
	// Code is model.NoCodeMarker for an EOA, or a decimal reference
	// "<n>" into the address-contract-<n> out-of-line bytecode stream.
	Code          string
	TokenContract TokenContractKind

	InputTxIndex      uint64
	OutputTxIndex     uint64
	InputTokenTxIndex uint64
	OutputTokenTxIndex uint64
	InputIntTxIndex   uint64
	OutputIntTxIndex  uint64
	MinedIndex        uint64
}

// Token is a registered ERC-20/ERC-721 contract's descriptor (spec §3
// "Token").
type Token struct {
	Symbol      string
	Name        string
	Decimals    string
	TotalSupply string
	Type        TokenType
	// TxIndex counts token transfers attributed to this token so far.
	TxIndex uint64
}

// TokenTransfer is a single ERC-20/ERC-721 transfer event (spec §3
// "TokenTransfer").
type TokenTransfer struct {
	TokenAddress    string
	AddressFrom     string
	AddressTo       string
	Value           string
	TransactionHash string
	Timestamp       string
}

// InternalTransaction is a single trace-derived value transfer (spec §3
// "InternalTransaction").
type InternalTransaction struct {
	From            string
	To              string
	Value           string
	Input           string
	Output          string
	TraceType       string
	CallType        string
	RewardType      string
	Gas             string
	GasUsed         string
	TransactionHash string
	Timestamp       string
	Error           string
}

// AddressTag identifies which associated-data stream a delta belongs to
// (spec §3 "Associated-data streams"). The same tag space is reused for
// the two non-Address owners in the table below: a Transaction's
// internal-tx references (owner is the tx hash) and a Token's transfer
// index (owner is the token address).
type AddressTag string

const (
	TagInputTx     AddressTag = "i"
	TagOutputTx    AddressTag = "o"
	TagInputToken  AddressTag = "ti"
	TagOutputToken AddressTag = "to"
	TagInputIntTx  AddressTag = "ii"
	TagOutputIntTx AddressTag = "io"
	TagMined       AddressTag = "b"

	// TagInternalTxRef is the Transaction internalTxIndex stream: owner is
	// the transaction hash, payload is the global internal-tx index.
	TagInternalTxRef AddressTag = "tit"
	// TagTokenTx is the Token txIndex stream: owner is the token address,
	// payload is "<tokenTxGlobalIndex>-<timestamp>".
	TagTokenTx AddressTag = "tt"
)
