// Package electrum implements the Electrum protocol frontend: wire codec,
// method catalog, per-client subscription state and the UTXO selector.
// It consumes the tracker/daemon/cache/merkle collaborators through the
// interfaces declared in collaborators.go.
package electrum

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ScriptHash is the SHA-256 digest of a Bitcoin output script, displayed
// and JSON-encoded in reversed-byte hex like a block or transaction hash.
// It is comparable so it can key a Go map directly, giving unique keys
// for free.
type ScriptHash [32]byte

// NewScriptHashFromHex parses the reversed-hex wire encoding of a script hash.
func NewScriptHashFromHex(s string) (ScriptHash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return ScriptHash{}, fmt.Errorf("invalid scripthash %q: %w", s, err)
	}
	return ScriptHash(*h), nil
}

func (s ScriptHash) String() string {
	h := chainhash.Hash(s)
	return h.String()
}

func (s ScriptHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ScriptHash) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := NewScriptHashFromHex(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StatusHash summarizes the current history of a script-hash. A nil
// StatusHash means an empty history.
type StatusHash = chainhash.Hash

// HashHex wraps a chainhash.Hash so it marshals to the reversed-hex string
// Electrum clients expect. chainhash.Hash itself is a plain [32]byte array
// upstream and has no json.Marshaler/Unmarshaler of its own, so any hash
// crossing the wire boundary goes through this instead.
type HashHex chainhash.Hash

func NewHashHex(h chainhash.Hash) HashHex { return HashHex(h) }

func (h HashHex) Hash() chainhash.Hash { return chainhash.Hash(h) }

func (h HashHex) String() string { return chainhash.Hash(h).String() }

func (h HashHex) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *HashHex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return err
	}
	*h = HashHex(*parsed)
	return nil
}

// HistoryEntry is one confirmed-or-mempool appearance of a script-hash in
// a transaction, in the shape Electrum wallets expect back from
// blockchain.scripthash.get_history.
type HistoryEntry struct {
	Height int32   `json:"height"`
	TxHash HashHex `json:"tx_hash"`
	Fee    *int64  `json:"fee,omitempty"` // only set for unconfirmed entries with known fee
}

// Balance is the response shape of blockchain.scripthash.get_balance.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// UnspentEntry is one unspent output belonging to a subscribed
// script-hash. Height 0 means the output is still in the mempool.
type UnspentEntry struct {
	TxHash HashHex `json:"tx_hash"`
	Vout   uint32  `json:"tx_pos"`
	Value  uint64  `json:"value"`
	Height int32   `json:"height"`
}

// Equal compares two unspent entries by their outpoint (tx_hash, vout).
func (u UnspentEntry) Equal(other UnspentEntry) bool {
	return u.TxHash == other.TxHash && u.Vout == other.Vout
}
