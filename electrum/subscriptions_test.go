package electrum_test

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ABMatrix/electrs/electrum"
)

func TestSubscribeBatch_SkipsAlreadySubscribed(t *testing.T) {
	d, tracker, _ := newDispatcher(t)
	tracker.SetReady(nil)
	client := electrum.NewClient()

	sh := electrum.ScriptHash{1}
	first := d.SubscribeBatch(context.Background(), client, []electrum.ScriptHash{sh})
	require.Len(t, first, 1)
	require.NoError(t, first[0].Err)

	again := d.SubscribeBatch(context.Background(), client, []electrum.ScriptHash{sh})
	require.Len(t, again, 1)
	assert.Equal(t, first[0].StatusHash, again[0].StatusHash)
	assert.Len(t, client.ScriptHashes, 1)
}

func TestSubscribeBatch_PreservesInputOrder(t *testing.T) {
	d, tracker, _ := newDispatcher(t)
	tracker.SetReady(nil)
	client := electrum.NewClient()

	shs := []electrum.ScriptHash{{1}, {2}, {3}}
	for i, sh := range shs {
		tracker.IndexScriptHash(sh, []electrum.HistoryEntry{{Height: int32(i + 1)}}, nil)
	}
	results := d.SubscribeBatch(context.Background(), client, shs)
	require.Len(t, results, 3)
	for i, r := range results {
		require.NoError(t, r.Err, "index %d", i)
		require.NotNil(t, r.StatusHash, "index %d", i)
		assert.Equal(t, client.ScriptHashes[shs[i]].StatusHash(), r.StatusHash, "index %d", i)
	}
	assert.Len(t, client.ScriptHashes, 3)
}

func TestUnsubscribe_ReportsPriorState(t *testing.T) {
	d, tracker, _ := newDispatcher(t)
	tracker.SetReady(nil)
	client := electrum.NewClient()
	sh := electrum.ScriptHash{1}

	assert.False(t, d.Unsubscribe(client, sh))

	d.SubscribeBatch(context.Background(), client, []electrum.ScriptHash{sh})
	assert.True(t, d.Unsubscribe(client, sh))
	assert.False(t, d.Unsubscribe(client, sh))
}

func TestUpdateClient_NotifiesOnHistoryChangeAndTipMove(t *testing.T) {
	d, tracker, chain := newDispatcher(t)
	tracker.SetReady(nil)
	client := electrum.NewClient()
	sh := electrum.ScriptHash{1}

	d.SubscribeBatch(context.Background(), client, []electrum.ScriptHash{sh})
	startTip := chain.Tip()
	client.Tip = &startTip

	tracker.IndexScriptHash(sh, []electrum.HistoryEntry{{Height: 1}}, nil)
	chain.PutHeader(1, &wire.BlockHeader{Nonce: 1})

	lines, err := d.UpdateClient(context.Background(), client)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), electrum.MethodScriptHashSubscribe)
	assert.Contains(t, string(lines[1]), electrum.MethodHeadersSubscribe)
}
