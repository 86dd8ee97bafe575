package electrum

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Client is the per-client state: the last tip communicated to this
// client via a headers notification, and the set of script-hashes it has
// an outstanding subscription for.
//
// Exclusivity is the transport's responsibility: at most one
// Dispatcher.HandleRequests or UpdateClient call may touch a given
// Client at a time. Client itself does no locking.
type Client struct {
	Tip          *chainhash.Hash
	ScriptHashes map[ScriptHash]Status
}

// NewClient returns a freshly connected client with no subscriptions.
func NewClient() *Client {
	return &Client{ScriptHashes: make(map[ScriptHash]Status)}
}
