package electrum_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ABMatrix/electrs/electrum"
	"github.com/ABMatrix/electrs/electrum/electrumtest"
)

func newDispatcher(t *testing.T) (*electrum.Dispatcher, *electrumtest.Tracker, *electrumtest.Chain) {
	t.Helper()
	chain := electrumtest.NewChain()
	chain.PutHeader(0, &wire.BlockHeader{})
	tracker := electrumtest.NewTracker(chain)
	daemon := electrumtest.NewDaemon()
	cache := electrumtest.NewCache()
	merkle := electrumtest.MerkleBuilder{}
	d := electrum.NewDispatcher(tracker, daemon, cache, merkle, nil, nil, "1.0-test", 50001, func() string { return "welcome" })
	return d, tracker, chain
}

func requestLine(id int, method string, params any) []byte {
	raw, _ := json.Marshal(params)
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  json.RawMessage(raw),
	}
	line, _ := json.Marshal(req)
	return line
}

func TestDispatcher_ReadinessGateBlocksUnlistedMethods(t *testing.T) {
	d, _, _ := newDispatcher(t)
	client := electrum.NewClient()

	line := requestLine(1, electrum.MethodScriptHashListUnspent, []any{electrum.ScriptHash{}})
	out := d.HandleRequests(context.Background(), client, [][]byte{line})
	require.Len(t, out, 1)

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out[0], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
}

func TestDispatcher_ReadinessAllowlistPassesThrough(t *testing.T) {
	d, _, _ := newDispatcher(t)
	client := electrum.NewClient()

	line := requestLine(1, electrum.MethodBlockHeader, []any{uint32(0)})
	out := d.HandleRequests(context.Background(), client, [][]byte{line})
	require.Len(t, out, 1)

	var resp struct {
		Result *string `json:"result"`
		Error  *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out[0], &resp))
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestDispatcher_BatchedSubscribeAppliesReadinessGate(t *testing.T) {
	d, _, _ := newDispatcher(t)
	client := electrum.NewClient()

	batch := []byte("[" +
		string(requestLine(1, electrum.MethodScriptHashSubscribe, []any{electrum.ScriptHash{}})) + "," +
		string(requestLine(2, electrum.MethodScriptHashSubscribe, []any{electrum.ScriptHash{1}})) +
		"]")

	out := d.HandleRequests(context.Background(), client, [][]byte{batch})
	require.Len(t, out, 1)

	var resps []struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out[0], &resps))
	require.Len(t, resps, 2)
	for _, r := range resps {
		require.NotNil(t, r.Error)
		assert.Equal(t, -32603, r.Error.Code)
	}
}

func TestDispatcher_ScriptHashSubscribeOnceReady(t *testing.T) {
	d, tracker, _ := newDispatcher(t)
	tracker.SetReady(nil)
	client := electrum.NewClient()

	line := requestLine(1, electrum.MethodScriptHashSubscribe, []any{electrum.ScriptHash{}})
	out := d.HandleRequests(context.Background(), client, [][]byte{line})
	require.Len(t, out, 1)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out[0], &resp))
	assert.Nil(t, resp.Error)
	assert.Len(t, client.ScriptHashes, 1)
}

func TestDispatcher_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	d, tracker, _ := newDispatcher(t)
	tracker.SetReady(nil)
	client := electrum.NewClient()

	line := requestLine(1, "blockchain.nonexistent", []any{})
	out := d.HandleRequests(context.Background(), client, [][]byte{line})
	require.Len(t, out, 1)

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out[0], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}
