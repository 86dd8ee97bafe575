// Package tracker implements the chain/mempool/index side of the
// Electrum frontend. A full on-disk scripthash index and sync pipeline
// are out of scope here; what's in this file is the minimal header
// store the Chain half of the interface needs, backed by
// cockroachdb/pebble, using the same
// pebble.Open/Get/Set(..., pebble.Sync) shape as a cached key-value
// client built on the same library.
package tracker

import (
	"bytes"
	stderrors "errors"
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/ABMatrix/electrs/electrum"
)

var _ electrum.Chain = (*Chain)(nil)

// Chain stores one 80-byte serialized block header per height, keyed by
// big-endian height, and tracks the current tip in memory.
type Chain struct {
	db *pebble.DB

	mu     sync.RWMutex
	tip    chainhash.Hash
	height int32
}

// OpenChain opens (creating if absent) a pebble header store at dbPath and
// reconstructs the in-memory tip from the stored meta:tip record.
func OpenChain(dbPath string) (*Chain, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "opening chain header store")
	}
	c := &Chain{db: db, height: -1}
	if err := c.loadTip(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// tipMetaKey holds the (height, hash) of the highest header PutHeader has
// seen so far, avoiding a full-keyspace scan on every open.
var tipMetaKey = []byte("meta:tip")

func (c *Chain) loadTip() error {
	val, closer, err := c.db.Get(tipMetaKey)
	if err != nil {
		if stderrors.Is(err, pebble.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "reading chain tip metadata")
	}
	defer closer.Close()

	if len(val) != 4+chainhash.HashSize {
		return errors.New("corrupt chain tip metadata")
	}
	c.height = int32(binary.BigEndian.Uint32(val[:4]))
	copy(c.tip[:], val[4:])
	return nil
}

func (c *Chain) saveTip(height int32, hash chainhash.Hash) error {
	val := make([]byte, 4+chainhash.HashSize)
	binary.BigEndian.PutUint32(val[:4], uint32(height))
	copy(val[4:], hash[:])
	return c.db.Set(tipMetaKey, val, pebble.Sync)
}

// Close closes the underlying pebble store.
func (c *Chain) Close() error {
	return c.db.Close()
}

// PutHeader stores header at height, called by the (out-of-scope) sync
// pipeline as new blocks confirm. Heights at or above the current tip
// advance Tip/Height.
func (c *Chain) PutHeader(height int32, header *wire.BlockHeader) error {
	var buf bytes.Buffer
	buf.Grow(80)
	if err := header.Serialize(&buf); err != nil {
		return errors.Wrap(err, "serializing header")
	}
	if err := c.db.Set(headerKey(height), buf.Bytes(), pebble.Sync); err != nil {
		return errors.Wrap(err, "writing header")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if height >= c.height {
		hash := header.BlockHash()
		if err := c.saveTip(height, hash); err != nil {
			return err
		}
		c.height = height
		c.tip = hash
	}
	return nil
}

func (c *Chain) Tip() chainhash.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

func (c *Chain) Height() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

func (c *Chain) GetBlockHeader(height int32) *wire.BlockHeader {
	val, closer, err := c.db.Get(headerKey(height))
	if err != nil {
		return nil
	}
	defer closer.Close()

	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(val)); err != nil {
		return nil
	}
	return &header
}

func (c *Chain) GetBlockHash(height int32) *chainhash.Hash {
	header := c.GetBlockHeader(height)
	if header == nil {
		return nil
	}
	hash := header.BlockHash()
	return &hash
}

func headerKey(height int32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(height))
	return key[:]
}
