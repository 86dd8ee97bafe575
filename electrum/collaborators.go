package electrum

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Status is the tracker-owned per-scripthash status object's contract.
// The concrete implementation lives in package status; electrum only
// depends on this interface to avoid an import cycle.
type Status interface {
	StatusHash() *chainhash.Hash
	GetHistory(from, to *uint32) []HistoryEntry
	Unspent() []UnspentEntry
	Balance() Balance
}

// UpdateResult is the outcome of a single status refresh against the
// tracker: changed, unchanged, or (via a normal error return) failed.
type UpdateResult int

const (
	Unchanged UpdateResult = iota
	Changed
)

// Chain is the portion of the Tracker contract dealing with the
// maintained header chain.
type Chain interface {
	Tip() chainhash.Hash
	Height() int32
	GetBlockHeader(height int32) *wire.BlockHeader
	GetBlockHash(height int32) *chainhash.Hash
}

// Tracker is the chain/mempool/index collaborator. The dispatcher
// consumes it entirely through this interface; its sync pipeline and
// on-disk format are out of scope for this module.
type Tracker interface {
	Chain() Chain
	// Ready reports the readiness gate's verdict: a non-nil error means
	// the index is not ready and most methods must be refused.
	Ready() error
	// UpdateScriptHashStatus refreshes status in place against the
	// current chain/mempool/daemon state and reports whether its status
	// hash changed.
	UpdateScriptHashStatus(ctx context.Context, status Status, daemon Daemon, cache Cache) (UpdateResult, error)
	NewStatus(scriptHash ScriptHash) Status
	FeesHistogram() [][2]float64
	// LookupTransaction returns the confirming block hash (nil if
	// unconfirmed-but-known) and raw transaction bytes for a txid already
	// present in the local index, or (nil, nil, nil) on a miss.
	LookupTransaction(ctx context.Context, daemon Daemon, txid chainhash.Hash) (*chainhash.Hash, []byte, error)
}

// DaemonError is the upstream-error kind: any error satisfying this
// interface maps to JSON-RPC error code 2 with the daemon's own message.
// This tagged-kind discriminator replaces type-switching on a concrete
// error type.
type DaemonError interface {
	error
	DaemonMessage() string
}

// Daemon is the bitcoind RPC collaborator.
type Daemon interface {
	Broadcast(ctx context.Context, tx []byte) (*chainhash.Hash, error)
	EstimateFee(ctx context.Context, nblocks uint16) (*float64, error)
	GetRelayFee(ctx context.Context) (float64, error)
	GetBlockTxids(ctx context.Context, blockHash chainhash.Hash) ([]chainhash.Hash, error)
	GetTransactionInfo(ctx context.Context, txid chainhash.Hash, blockHash *chainhash.Hash) (any, error)
	GetTransactionHex(ctx context.Context, txid chainhash.Hash, blockHash *chainhash.Hash) (string, error)
	NewBlockNotification() <-chan struct{}
}

// Cache is the rawtx cache collaborator: GetTx only returns a value when
// already cached, and Put populates it after a fetch elsewhere.
type Cache interface {
	GetTx(txid chainhash.Hash, f func(tx []byte) string) (string, bool)
	Put(txid chainhash.Hash, raw []byte)
}

// MerkleBuilder is the merkle-proof collaborator.
type MerkleBuilder interface {
	Create(txids []chainhash.Hash, pos int) MerkleProof
}

// MerkleProof exposes the position and hex-encoded proof nodes for one
// transaction's inclusion proof within its block.
type MerkleProof interface {
	Position() int
	ToHex() []string
}
