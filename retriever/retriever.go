package retriever

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/client"
	"github.com/chainindex/evmindexer/internal/constants"
)

// Config configures the Data Retriever's extractor invocation (spec §4.3,
// §6 "Process configuration").
type Config struct {
	// ExtractorPath is the path to the external ETL binary.
	ExtractorPath string
	// OutputDir is the directory the extractor writes per-batch CSVs into.
	// It is reused across batches: every Extract call runs the extractor
	// against it and then reads the CSVs found there. The retriever does
	// not clear it itself; a file is replaced only when the extractor
	// writes it again.
	OutputDir string
	// GatherInternalTransactions enables the optional traces CSV.
	GatherInternalTransactions bool
	// GatherTokens enables the optional tokens/token_transfers CSVs.
	GatherTokens bool
	Logger       *zap.Logger
}

// Retriever drives the external ETL extractor process to materialize CSVs
// for a half-open block window (spec §4.3).
type Retriever struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Retriever. The extractor binary is resolved against PATH at
// Extract time, not here, so a misconfigured path surfaces as a single
// clear UpstreamUnavailable error per failed extraction rather than at
// startup.
func New(cfg Config) (*Retriever, error) {
	if cfg.ExtractorPath == "" {
		return nil, fmt.Errorf("retriever: extractor path is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("retriever: output directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{cfg: cfg, logger: logger}, nil
}

// Extract runs the external extractor for the half-open window
// [first, last), then parses its output CSVs into a Batch. The extractor
// is invoked as a subprocess and treated as a black box (spec §9 "Keep as
// a black box behind the Data Retriever interface"); only its fixed
// column contract (§6) and exit status are load-bearing.
func (r *Retriever) Extract(ctx context.Context, first, last uint64) (*Batch, error) {
	if last <= first {
		return &Batch{}, nil
	}

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("retriever: create output dir: %w", err)
	}

	args := []string{
		"--start", strconv.FormatUint(first, 10),
		"--end", strconv.FormatUint(last, 10),
		"--output", r.cfg.OutputDir,
	}
	if r.cfg.GatherInternalTransactions {
		args = append(args, "--traces")
	}
	if r.cfg.GatherTokens {
		args = append(args, "--tokens")
	}

	cmd := exec.CommandContext(ctx, r.cfg.ExtractorPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.Error("extractor subprocess failed",
			zap.Uint64("first", first), zap.Uint64("last", last),
			zap.ByteString("output", output), zap.Error(err))
		return nil, fmt.Errorf("%w: extractor exited with error: %v", ErrUpstreamUnavailable, err)
	}

	batch, err := r.readBatch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return batch, nil
}

func (r *Retriever) readBatch() (*Batch, error) {
	dir := r.cfg.OutputDir
	var b Batch
	var err error

	if b.Blocks, err = readBlocks(filepath.Join(dir, "blocks.csv")); err != nil {
		return nil, err
	}
	if b.Transactions, err = readTransactions(filepath.Join(dir, "transactions.csv")); err != nil {
		return nil, err
	}
	if b.Receipts, err = readReceipts(filepath.Join(dir, "receipts.csv")); err != nil {
		return nil, err
	}
	if b.Logs, err = readLogs(filepath.Join(dir, "logs.csv")); err != nil {
		return nil, err
	}
	if b.Contracts, err = readContracts(filepath.Join(dir, "contracts.csv")); err != nil {
		return nil, err
	}
	if r.cfg.GatherTokens {
		if b.Tokens, err = readTokens(filepath.Join(dir, "tokens.csv")); err != nil {
			return nil, err
		}
		if b.TokenTransfers, err = readTokenTransfers(filepath.Join(dir, "token_transfers.csv")); err != nil {
			return nil, err
		}
	}
	if r.cfg.GatherInternalTransactions {
		if b.Traces, err = readTraces(filepath.Join(dir, "traces.csv")); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// RPCGatherer exposes the Data Retriever's in-process JSON-RPC batch path
// for balances and traces, chunking requests and bounding outbound rate
// with a token-bucket limiter (spec §4.3, §6 "RPC worker concurrency").
type RPCGatherer struct {
	client       *client.Client
	limiter      *rateLimiter
	balanceChunk int
	traceChunk   int
	logger       *zap.Logger
}

// RPCGathererConfig configures an RPCGatherer.
type RPCGathererConfig struct {
	Client       *client.Client
	RateLimit    float64
	RateBurst    int
	BalanceChunk int
	TraceChunk   int
	Logger       *zap.Logger
}

// NewRPCGatherer builds an RPCGatherer wrapping an already-connected
// client.Client.
func NewRPCGatherer(cfg RPCGathererConfig) (*RPCGatherer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("retriever: client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = constants.DefaultRPCRateLimit
	}
	rateBurst := cfg.RateBurst
	if rateBurst <= 0 {
		rateBurst = constants.DefaultRPCRateBurst
	}
	balanceChunk := cfg.BalanceChunk
	if balanceChunk <= 0 {
		balanceChunk = constants.DefaultBalanceBatchSize
	}
	traceChunk := cfg.TraceChunk
	if traceChunk <= 0 {
		traceChunk = constants.DefaultTraceBatchSize
	}
	return &RPCGatherer{
		client:       cfg.Client,
		limiter:      newRateLimiter(rateLimit, rateBurst),
		balanceChunk: balanceChunk,
		traceChunk:   traceChunk,
		logger:       logger,
	}, nil
}

// GatherBalances resolves balances for every address in chunks of the
// configured BalanceChunk size (constants.DefaultBalanceBatchSize when
// unset), waiting on the rate limiter before each chunk (spec §4.5
// "chunked JSON-RPC batch request").
func (g *RPCGatherer) GatherBalances(ctx context.Context, addresses []string, height uint64) ([]client.BalanceResult, error) {
	chunkSize := g.balanceChunk
	var results []client.BalanceResult
	for start := 0; start < len(addresses); start += chunkSize {
		end := start + chunkSize
		if end > len(addresses) {
			end = len(addresses)
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		chunk, err := g.client.BatchGetBalances(ctx, addresses[start:end], height)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		results = append(results, chunk...)
	}
	return results, nil
}

// GatherTraces resolves call traces for every block number in chunks of the
// configured TraceChunk size (constants.DefaultTraceBatchSize when unset;
// spec §6: "batches of at most a few hundred to avoid node timeouts"). This
// is the in-process
// alternative to the extractor's traces.csv output (spec §4.3): the
// ingest loop is wired to the CSV path exclusively, since the external
// ETL is the canonical source for trace data (§9 "Keep as a black box").
// GatherTraces exists for a deployment that resolves traces itself rather
// than through the extractor; nothing in this repository calls it, and no
// test exercises it.
func (g *RPCGatherer) GatherTraces(ctx context.Context, blockNumbers []uint64) ([]client.BlockTrace, error) {
	chunkSize := g.traceChunk
	var results []client.BlockTrace
	for start := 0; start < len(blockNumbers); start += chunkSize {
		end := start + chunkSize
		if end > len(blockNumbers) {
			end = len(blockNumbers)
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		chunk, err := g.client.BatchGetTraces(ctx, blockNumbers[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		results = append(results, chunk...)
	}
	return results, nil
}
