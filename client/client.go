// Package client wraps the upstream full node's JSON-RPC surface down to
// exactly what the core consumes: head height, batched balance resolution,
// and batched call-tracer traces (spec §4.3, §6 "JSON-RPC").
package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Client wraps the go-ethereum RPC client with the subset of operations the
// indexing engine needs. It deliberately does not expose block/transaction
// retrieval, since those are sourced from the Data Retriever's CSVs, not
// RPC (spec §4.3).
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	logger    *zap.Logger
}

// Config holds client configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewClient dials the upstream node and verifies the connection with a
// chain-ID ping.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	ethClient := ethclient.NewClient(rpcClient)

	c := &Client{
		ethClient: ethClient,
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		logger:    logger,
	}

	if err := c.Ping(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	logger.Info("connected to upstream node", zap.String("endpoint", cfg.Endpoint))
	return c, nil
}

// Ping verifies the connection to the RPC endpoint via eth_chainId.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the client connection.
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// HeadHeight returns the node's current block height (spec §4.4 step 1,
// "the Indexer asks the upstream node for head height").
func (c *Client) HeadHeight(ctx context.Context) (uint64, error) {
	height, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get head height: %w", err)
	}
	return height, nil
}

// BalanceResult is a single resolved (or failed) eth_getBalance response.
type BalanceResult struct {
	Address string
	// Balance is the decimal string form of the hex balance. Empty when
	// Err is set.
	Balance string
	// Err is non-nil when the node returned no result for this address;
	// callers should skip the address silently (spec §4.5).
	Err error
}

// BatchGetBalances resolves the current balance of every address at the
// given height via batched eth_getBalance, tolerating per-address failures
// (spec §4.5 "tolerates per-address failures... by skipping that address
// silently").
func (c *Client) BatchGetBalances(ctx context.Context, addresses []string, height uint64) ([]BalanceResult, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	raw := make([]*hexutilBig, len(addresses))
	batch := make([]rpc.BatchElem, len(addresses))
	heightArg := fmt.Sprintf("0x%x", height)

	for i, addr := range addresses {
		batch[i] = rpc.BatchElem{
			Method: "eth_getBalance",
			Args:   []interface{}{addr, heightArg},
			Result: &raw[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("balance batch call failed: %w", err)
	}

	results := make([]BalanceResult, len(addresses))
	for i, elem := range batch {
		results[i].Address = addresses[i]
		if elem.Error != nil || raw[i] == nil {
			err := elem.Error
			if err == nil {
				err = fmt.Errorf("no result for address %s", addresses[i])
			}
			c.logger.Debug("skipping address with unresolved balance",
				zap.String("address", addresses[i]), zap.Error(err))
			results[i].Err = err
			continue
		}
		results[i].Balance = (*big.Int)(raw[i]).String()
	}

	return results, nil
}

// hexutilBig unmarshals a JSON-RPC quantity string directly into a
// *big.Int without pulling in the full hexutil dependency surface for a
// single field.
type hexutilBig big.Int

// UnmarshalJSON parses a 0x-prefixed hex quantity.
func (h *hexutilBig) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if len(s) < 2 || s[0:2] != "0x" {
		return fmt.Errorf("hexutilBig: invalid hex quantity %q", s)
	}
	v, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return fmt.Errorf("hexutilBig: cannot parse hex quantity %q", s)
	}
	*h = hexutilBig(*v)
	return nil
}

// CallFrame mirrors the subset of geth's callTracer output the indexer
// consumes from debug_traceBlockByNumber: a flattened value-transfer trace
// plus its nested calls.
type CallFrame struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	Value   string      `json:"value"`
	Input   string      `json:"input"`
	Output  string      `json:"output"`
	Type    string      `json:"type"`
	Gas     string      `json:"gas"`
	GasUsed string      `json:"gasUsed"`
	Error   string      `json:"error"`
	Calls   []CallFrame `json:"calls"`
}

// TxTrace is one entry of a debug_traceBlockByNumber response: the
// call-tracer result for a single transaction, positioned at its index
// within the block (the array order geth returns).
type TxTrace struct {
	TxHash string    `json:"txHash"`
	Result CallFrame `json:"result"`
}

// BlockTrace is the full callTracer response for one block.
type BlockTrace struct {
	BlockNumber uint64
	Traces      []TxTrace
}

// BatchGetTraces runs debug_traceBlockByNumber with the callTracer against
// a batch of block numbers, kept small to avoid node-side timeouts (spec
// §6: "batches of at most a few hundred"). The transaction index implied by
// each TxTrace's position in Traces is used to join back to the parent
// Transaction via (blockNumber, transactionIndex) (spec §4.4 step 9).
func (c *Client) BatchGetTraces(ctx context.Context, blockNumbers []uint64) ([]BlockTrace, error) {
	if len(blockNumbers) == 0 {
		return nil, nil
	}

	results := make([][]TxTrace, len(blockNumbers))
	batch := make([]rpc.BatchElem, len(blockNumbers))

	for i, num := range blockNumbers {
		batch[i] = rpc.BatchElem{
			Method: "debug_traceBlockByNumber",
			Args: []interface{}{
				fmt.Sprintf("0x%x", num),
				map[string]string{"tracer": "callTracer"},
			},
			Result: &results[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("trace batch call failed: %w", err)
	}

	blockTraces := make([]BlockTrace, len(blockNumbers))
	for i, elem := range batch {
		if elem.Error != nil {
			c.logger.Error("failed to trace block",
				zap.Uint64("block_number", blockNumbers[i]), zap.Error(elem.Error))
			return nil, fmt.Errorf("failed to trace block %d: %w", blockNumbers[i], elem.Error)
		}
		blockTraces[i] = BlockTrace{BlockNumber: blockNumbers[i], Traces: results[i]}
	}
	return blockTraces, nil
}
