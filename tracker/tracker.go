package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ABMatrix/electrs/electrum"
	"github.com/ABMatrix/electrs/status"
)

var _ electrum.Tracker = (*Tracker)(nil)

// scriptHashData is what the (out-of-scope) sync pipeline would maintain
// per script-hash: its confirmed+mempool history and current unspent set.
// Tracker only reads this; writers are IndexScriptHash and the rest of
// the indexing pipeline this spec does not define.
type scriptHashData struct {
	history []electrum.HistoryEntry
	unspent []electrum.UnspentEntry
}

type txIndexEntry struct {
	blockHash *chainhash.Hash
	raw       []byte
}

// Tracker implements electrum.Tracker. Its scripthash and transaction
// indexes are plain in-memory maps fed by
// IndexScriptHash/IndexTransaction/SetFeesHistogram/SetReady — standins
// for an on-disk index and sync pipeline that would feed them in a full
// deployment.
type Tracker struct {
	chain *Chain

	mu            sync.RWMutex
	readyErr      error
	scriptHashes  map[electrum.ScriptHash]*scriptHashData
	transactions  map[chainhash.Hash]*txIndexEntry
	feesHistogram [][2]float64
}

// New wraps chain with empty script-hash/transaction indexes and starts
// in the not-ready state until SetReady(nil) is called.
func New(chain *Chain) *Tracker {
	return &Tracker{
		chain:        chain,
		readyErr:     fmt.Errorf("index not yet synced"),
		scriptHashes: make(map[electrum.ScriptHash]*scriptHashData),
		transactions: make(map[chainhash.Hash]*txIndexEntry),
	}
}

func (t *Tracker) Chain() electrum.Chain { return t.chain }

func (t *Tracker) Ready() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.readyErr
}

// SetReady flips the readiness gate; pass nil once the index has caught
// up to the daemon's tip.
func (t *Tracker) SetReady(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readyErr = err
}

func (t *Tracker) NewStatus(sh electrum.ScriptHash) electrum.Status {
	return status.New(sh)
}

// UpdateScriptHashStatus refreshes st from the current index snapshot.
// daemon is accepted to satisfy electrum.Tracker's signature for an
// implementation that falls back to a live daemon lookup on an index
// miss; this lean implementation only reads its own index. cache is
// populated opportunistically: every history entry whose raw bytes are
// already known locally is pushed into cache so a later
// transaction.get skips the daemon round trip entirely.
func (t *Tracker) UpdateScriptHashStatus(_ context.Context, st electrum.Status, _ electrum.Daemon, cache electrum.Cache) (electrum.UpdateResult, error) {
	concrete, ok := st.(*status.Status)
	if !ok {
		return electrum.Unchanged, fmt.Errorf("tracker: unexpected status implementation %T", st)
	}

	t.mu.RLock()
	data := t.scriptHashes[concrete.ScriptHash]
	var history []electrum.HistoryEntry
	var unspent []electrum.UnspentEntry
	if data != nil {
		history = data.history
		unspent = data.unspent
	}
	if cache != nil {
		for _, entry := range history {
			if tx, ok := t.transactions[entry.TxHash.Hash()]; ok && tx.raw != nil {
				cache.Put(entry.TxHash.Hash(), tx.raw)
			}
		}
	}
	t.mu.RUnlock()

	if concrete.Set(history, unspent) {
		return electrum.Changed, nil
	}
	return electrum.Unchanged, nil
}

func (t *Tracker) FeesHistogram() [][2]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][2]float64, len(t.feesHistogram))
	copy(out, t.feesHistogram)
	return out
}

func (t *Tracker) LookupTransaction(_ context.Context, _ electrum.Daemon, txid chainhash.Hash) (*chainhash.Hash, []byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.transactions[txid]
	if !ok {
		return nil, nil, nil
	}
	return entry.blockHash, entry.raw, nil
}

// IndexScriptHash replaces the indexed history/unspent set for sh. Called
// by the sync pipeline (out of scope) whenever sh's on-chain or mempool
// state changes.
func (t *Tracker) IndexScriptHash(sh electrum.ScriptHash, history []electrum.HistoryEntry, unspent []electrum.UnspentEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scriptHashes[sh] = &scriptHashData{history: history, unspent: unspent}
}

// IndexTransaction records a transaction's confirming block (nil if still
// in the mempool) and raw bytes for LookupTransaction/transaction.get.
func (t *Tracker) IndexTransaction(txid chainhash.Hash, blockHash *chainhash.Hash, raw []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transactions[txid] = &txIndexEntry{blockHash: blockHash, raw: raw}
}

// SetFeesHistogram replaces the mempool fee histogram served by
// mempool.get_fee_histogram.
func (t *Tracker) SetFeesHistogram(histogram [][2]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.feesHistogram = histogram
}
