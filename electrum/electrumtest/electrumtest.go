// Package electrumtest provides hand-written fakes for the electrum
// package's collaborator interfaces, driven directly by the dispatcher
// and subscription tests instead of a generated mock harness.
package electrumtest

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ABMatrix/electrs/electrum"
	"github.com/ABMatrix/electrs/status"
)

// Chain is an in-memory fake of electrum.Chain, populated directly by
// tests via PutHeader.
type Chain struct {
	mu      sync.RWMutex
	tip     chainhash.Hash
	height  int32
	headers map[int32]*wire.BlockHeader
}

// NewChain returns an empty Chain at height -1 (no headers).
func NewChain() *Chain {
	return &Chain{height: -1, headers: make(map[int32]*wire.BlockHeader)}
}

func (c *Chain) PutHeader(height int32, header *wire.BlockHeader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[height] = header
	if height >= c.height {
		c.height = height
		c.tip = header.BlockHash()
	}
}

func (c *Chain) Tip() chainhash.Hash { c.mu.RLock(); defer c.mu.RUnlock(); return c.tip }
func (c *Chain) Height() int32       { c.mu.RLock(); defer c.mu.RUnlock(); return c.height }

func (c *Chain) GetBlockHeader(height int32) *wire.BlockHeader {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers[height]
}

func (c *Chain) GetBlockHash(height int32) *chainhash.Hash {
	header := c.GetBlockHeader(height)
	if header == nil {
		return nil
	}
	hash := header.BlockHash()
	return &hash
}

// Tracker is an in-memory fake of electrum.Tracker. Tests seed its
// indexes with IndexScriptHash/IndexTransaction/SetFeesHistogram and
// flip readiness with SetReady before exercising the dispatcher.
type Tracker struct {
	ChainFake *Chain

	mu           sync.RWMutex
	readyErr     error
	history      map[electrum.ScriptHash][]electrum.HistoryEntry
	unspent      map[electrum.ScriptHash][]electrum.UnspentEntry
	transactions map[chainhash.Hash]struct {
		blockHash *chainhash.Hash
		raw       []byte
	}
	fees [][2]float64

	// UpdateErr, when set, is returned by every UpdateScriptHashStatus call.
	UpdateErr error
}

// NewTracker returns a Tracker backed by chain, starting not-ready.
func NewTracker(chain *Chain) *Tracker {
	return &Tracker{
		ChainFake: chain,
		readyErr:  errNotReady,
		history:   make(map[electrum.ScriptHash][]electrum.HistoryEntry),
		unspent:   make(map[electrum.ScriptHash][]electrum.UnspentEntry),
		transactions: make(map[chainhash.Hash]struct {
			blockHash *chainhash.Hash
			raw       []byte
		}),
	}
}

var errNotReady = &notReadyError{}

type notReadyError struct{}

func (*notReadyError) Error() string { return "index not ready" }

func (t *Tracker) Chain() electrum.Chain { return t.ChainFake }

func (t *Tracker) Ready() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.readyErr
}

func (t *Tracker) SetReady(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readyErr = err
}

func (t *Tracker) NewStatus(sh electrum.ScriptHash) electrum.Status {
	return status.New(sh)
}

func (t *Tracker) UpdateScriptHashStatus(_ context.Context, st electrum.Status, _ electrum.Daemon, cache electrum.Cache) (electrum.UpdateResult, error) {
	if t.UpdateErr != nil {
		return electrum.Unchanged, t.UpdateErr
	}
	concrete := st.(*status.Status)

	t.mu.RLock()
	history := t.history[concrete.ScriptHash]
	unspent := t.unspent[concrete.ScriptHash]
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
	return t.fees
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

func (t *Tracker) IndexScriptHash(sh electrum.ScriptHash, history []electrum.HistoryEntry, unspent []electrum.UnspentEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[sh] = history
	t.unspent[sh] = unspent
}

func (t *Tracker) IndexTransaction(txid chainhash.Hash, blockHash *chainhash.Hash, raw []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transactions[txid] = struct {
		blockHash *chainhash.Hash
		raw       []byte
	}{blockHash: blockHash, raw: raw}
}

func (t *Tracker) SetFeesHistogram(histogram [][2]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fees = histogram
}

// Daemon is a scriptable fake of electrum.Daemon: every method call is
// satisfied from a pre-set field or func hook, defaulting to a zero value
// with no error when left unset (Broadcast instead defaults to the
// double-SHA256 of the raw bytes as the txid).
type Daemon struct {
	BroadcastFunc         func(ctx context.Context, tx []byte) (*chainhash.Hash, error)
	EstimateFeeFunc       func(ctx context.Context, nblocks uint16) (*float64, error)
	RelayFee              float64
	RelayFeeErr           error
	BlockTxids            map[chainhash.Hash][]chainhash.Hash
	TransactionInfoFunc   func(ctx context.Context, txid chainhash.Hash, blockHash *chainhash.Hash) (any, error)
	TransactionHexFunc    func(ctx context.Context, txid chainhash.Hash, blockHash *chainhash.Hash) (string, error)
	blockNotify           chan struct{}
}

// NewDaemon returns a Daemon with its block-notification channel ready
// for tests to push on via NotifyNewBlock.
func NewDaemon() *Daemon {
	return &Daemon{blockNotify: make(chan struct{}, 1)}
}

func (d *Daemon) Broadcast(ctx context.Context, tx []byte) (*chainhash.Hash, error) {
	if d.BroadcastFunc != nil {
		return d.BroadcastFunc(ctx, tx)
	}
	hash := chainhash.DoubleHashH(tx)
	return &hash, nil
}

func (d *Daemon) EstimateFee(ctx context.Context, nblocks uint16) (*float64, error) {
	if d.EstimateFeeFunc != nil {
		return d.EstimateFeeFunc(ctx, nblocks)
	}
	return nil, nil
}

func (d *Daemon) GetRelayFee(context.Context) (float64, error) {
	return d.RelayFee, d.RelayFeeErr
}

func (d *Daemon) GetBlockTxids(_ context.Context, blockHash chainhash.Hash) ([]chainhash.Hash, error) {
	return d.BlockTxids[blockHash], nil
}

func (d *Daemon) GetTransactionInfo(ctx context.Context, txid chainhash.Hash, blockHash *chainhash.Hash) (any, error) {
	if d.TransactionInfoFunc != nil {
		return d.TransactionInfoFunc(ctx, txid, blockHash)
	}
	return nil, nil
}

func (d *Daemon) GetTransactionHex(ctx context.Context, txid chainhash.Hash, blockHash *chainhash.Hash) (string, error) {
	if d.TransactionHexFunc != nil {
		return d.TransactionHexFunc(ctx, txid, blockHash)
	}
	return "", nil
}

func (d *Daemon) NewBlockNotification() <-chan struct{} { return d.blockNotify }

// NotifyNewBlock pushes one tip-change signal, non-blocking.
func (d *Daemon) NotifyNewBlock() {
	select {
	case d.blockNotify <- struct{}{}:
	default:
	}
}

// Cache is a plain map-backed fake of electrum.Cache.
type Cache struct {
	mu  sync.RWMutex
	txs map[chainhash.Hash][]byte
}

func NewCache() *Cache {
	return &Cache{txs: make(map[chainhash.Hash][]byte)}
}

func (c *Cache) GetTx(txid chainhash.Hash, f func(tx []byte) string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.txs[txid]
	if !ok {
		return "", false
	}
	return f(raw), true
}

func (c *Cache) Put(txid chainhash.Hash, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[txid] = raw
}

// MerkleBuilder is a fake electrum.MerkleBuilder returning a fixed proof
// regardless of input, letting dispatcher tests assert on wiring rather
// than real merkle math.
type MerkleBuilder struct {
	Nodes []chainhash.Hash
}

func (m MerkleBuilder) Create(_ []chainhash.Hash, pos int) electrum.MerkleProof {
	return &merkleProof{position: pos, nodes: m.Nodes}
}

type merkleProof struct {
	position int
	nodes    []chainhash.Hash
}

func (p *merkleProof) Position() int { return p.position }

func (p *merkleProof) ToHex() []string {
	out := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.String()
	}
	return out
}
