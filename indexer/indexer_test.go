package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/evmindexer/balance"
	"github.com/chainindex/evmindexer/client"
	"github.com/chainindex/evmindexer/codec"
	"github.com/chainindex/evmindexer/internal/testutil"
	"github.com/chainindex/evmindexer/progress"
	"github.com/chainindex/evmindexer/retriever"
	"github.com/chainindex/evmindexer/storage"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

func newMockNodeServer(t *testing.T, handle func(method string, params []json.RawMessage) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		if raw[0] == '[' {
			require.NoError(t, json.Unmarshal(raw, &reqs))
		} else {
			var single rpcRequest
			require.NoError(t, json.Unmarshal(raw, &single))
			reqs = []rpcRequest{single}
		}

		type resp struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Result  interface{}     `json:"result"`
		}
		responses := make([]resp, 0, len(reqs))
		for _, req := range reqs {
			responses = append(responses, resp{JSONRPC: "2.0", ID: req.ID, Result: handle(req.Method, req.Params)})
		}

		w.Header().Set("Content-Type", "application/json")
		if raw[0] == '[' {
			require.NoError(t, json.NewEncoder(w).Encode(responses))
		} else {
			require.NoError(t, json.NewEncoder(w).Encode(responses[0]))
		}
	}))
}

// fakeExtractor writes a two-block (blocks 0 and 1), one-transaction fixture
// regardless of its --start/--end arguments, mirroring the retriever
// package's own test double for the external ETL process.
func fakeExtractor(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-extractor.sh")
	script := `#!/bin/sh
out=""
while [ "$#" -gt 0 ]; do
  if [ "$1" = "--output" ]; then
    shift
    out="$1"
  fi
  shift
done
mkdir -p "$out"
printf 'number,hash,parent_hash,nonce,logs_bloom,miner,difficulty,total_difficulty,extra_data,size,gas_limit,gas_used,timestamp,sha3_uncles\n0,0xhash0,0xgenesisparent,0x0,0xbloom,0xminer,1,1,0x,500,8000000,0,999,0xuncles\n1,0xhash1,0xhash0,0x0,0xbloom,0xminer,1,1,0x,500,8000000,21000,1000,0xuncles\n' > "$out/blocks.csv"
printf 'block_hash,block_number,from_address,to_address,gas,gas_price,hash,input,nonce,value,transaction_index\n0xhash1,1,0xfrom,0xto,21000,1,0xtx1,,0,0,0\n' > "$out/transactions.csv"
printf 'transaction_hash,cumulative_gas_used,gas_used,contract_address\n0xtx1,21000,21000,\n' > "$out/receipts.csv"
printf 'transaction_hash,data,topics\n' > "$out/logs.csv"
printf 'address,bytecode,is_erc20,is_erc721\n' > "$out/contracts.csv"
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestIndexer(t *testing.T, headHex string, balanceHex string) (*Indexer, *storage.Facade, *progress.Tracker) {
	t.Helper()
	dataDir := testutil.TempDataDir(t)
	extractorDir := testutil.TempDataDir(t)
	outputDir := testutil.TempDataDir(t)

	srv := newMockNodeServer(t, func(method string, params []json.RawMessage) interface{} {
		switch method {
		case "eth_chainId":
			return "0x1"
		case "eth_blockNumber":
			return headHex
		case "eth_getBalance":
			return balanceHex
		default:
			return nil
		}
	})
	t.Cleanup(srv.Close)

	c, err := client.NewClient(&client.Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	rpc, err := retriever.NewRPCGatherer(retriever.RPCGathererConfig{Client: c, RateLimit: 1000, RateBurst: 1000})
	require.NoError(t, err)

	r, err := retriever.New(retriever.Config{ExtractorPath: fakeExtractor(t, extractorDir), OutputDir: outputDir})
	require.NoError(t, err)

	backend, err := storage.NewMemoryBackend(nil, nil)
	require.NoError(t, err)
	facade := storage.NewFacade(backend, nil)

	bal, err := balance.New(balance.Config{DataDir: dataDir, RPC: rpc, Facade: facade})
	require.NoError(t, err)

	tracker, err := progress.Open(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })

	idx, err := New(Config{
		Client: c, Facade: facade, Retriever: r, Balance: bal, Progress: tracker,
		Confirmations: 1, BulkSize: 10, RefreshInterval: time.Millisecond,
	})
	require.NoError(t, err)

	return idx, facade, tracker
}

func TestTickCommitsOneWindowAndAdvancesProgress(t *testing.T) {
	idx, facade, tracker := newTestIndexer(t, "0x2", "0x0")

	behind := 0
	require.NoError(t, idx.tick(context.Background(), &behind))

	counters, err := tracker.Read()
	require.NoError(t, err)
	require.Equal(t, uint64(2), counters.HighestBlock)

	_, err = facade.Get(storage.BlockKey("1"))
	require.NoError(t, err)
}

func TestTickRunsBalancePhaseOnceCaughtUp(t *testing.T) {
	idx, facade, _ := newTestIndexer(t, "0x2", "0x64")

	behind := 0
	require.NoError(t, idx.tick(context.Background(), &behind))
	require.NoError(t, idx.tick(context.Background(), &behind))

	raw, err := facade.Get(storage.AddressKey("0xfrom"))
	require.NoError(t, err)
	addr, err := codec.DecodeAddress(raw)
	require.NoError(t, err)
	require.Equal(t, "100", addr.Balance)
}
