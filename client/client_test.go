package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClientRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "empty endpoint", config: &Config{Endpoint: ""}},
		{name: "invalid endpoint", config: &Config{Endpoint: "invalid://endpoint", Timeout: 2 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.config)
			require.Error(t, err)
			if c != nil {
				c.Close()
			}
		})
	}
}

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// newMockNodeServer serves eth_chainId (for the connection ping) plus
// whatever handler the test supplies for its method under test.
func newMockNodeServer(t *testing.T, handle func(method string, params []json.RawMessage) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		body := json.NewDecoder(r.Body)
		// A single request arrives as an object, a batch as an array;
		// normalize to a slice either way.
		var raw json.RawMessage
		require.NoError(t, body.Decode(&raw))
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
			if req.Method == "eth_chainId" {
				responses = append(responses, resp{JSONRPC: "2.0", ID: req.ID, Result: "0x1"})
				continue
			}
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

func TestHeadHeight(t *testing.T) {
	srv := newMockNodeServer(t, func(method string, params []json.RawMessage) interface{} {
		if method == "eth_blockNumber" {
			return "0x64"
		}
		return nil
	})
	defer srv.Close()

	c, err := NewClient(&Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	height, err := c.HeadHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), height)
}

func TestBatchGetBalances(t *testing.T) {
	srv := newMockNodeServer(t, func(method string, params []json.RawMessage) interface{} {
		if method != "eth_getBalance" {
			return nil
		}
		var addr string
		_ = json.Unmarshal(params[0], &addr)
		if addr == "0xfail" {
			return nil
		}
		return "0x64"
	})
	defer srv.Close()

	c, err := NewClient(&Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	results, err := c.BatchGetBalances(context.Background(), []string{"0xaaa", "0xfail"}, 100)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "100", results[0].Balance)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
}

func TestBatchGetTraces(t *testing.T) {
	srv := newMockNodeServer(t, func(method string, params []json.RawMessage) interface{} {
		if method != "debug_traceBlockByNumber" {
			return nil
		}
		return []TxTrace{
			{TxHash: "0xh1", Result: CallFrame{From: "0xfrom", To: "0xto", Value: "0x1"}},
		}
	})
	defer srv.Close()

	c, err := NewClient(&Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	traces, err := c.BatchGetTraces(context.Background(), []uint64{5})
	require.NoError(t, err)
	require.Len(t, traces, 1)
	require.Equal(t, uint64(5), traces[0].BlockNumber)
	require.Len(t, traces[0].Traces, 1)
	require.Equal(t, "0xh1", traces[0].Traces[0].TxHash)
}
