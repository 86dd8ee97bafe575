// Package cache implements a bounded in-memory (txid) -> raw transaction
// bytes map on top of hashicorp/golang-lru.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ABMatrix/electrs/electrum"
)

var _ electrum.Cache = (*Cache)(nil)

// Cache bounds memory by entry count rather than byte size, the same
// tradeoff golang-lru/v2's plain Cache makes.
type Cache struct {
	txs *lru.Cache[chainhash.Hash, []byte]
}

// New builds a Cache holding at most size raw transactions.
func New(size int) (*Cache, error) {
	txs, err := lru.New[chainhash.Hash, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cache{txs: txs}, nil
}

// GetTx formats the cached raw bytes with f, reporting a miss via ok=false
// rather than returning a zero value.
func (c *Cache) GetTx(txid chainhash.Hash, f func(tx []byte) string) (string, bool) {
	raw, ok := c.txs.Get(txid)
	if !ok {
		return "", false
	}
	return f(raw), true
}

// Put stores a raw transaction, called by the dispatcher after a fetch
// from the index or the daemon, and by the tracker for already-known
// history entries while refreshing a status, so later lookups avoid the
// round trip.
func (c *Cache) Put(txid chainhash.Hash, raw []byte) {
	c.txs.Add(txid, raw)
}
