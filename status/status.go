// Package status implements the tracker-owned per-scripthash status
// object: a summary of a script-hash's history and unspent set, mutated
// only in place by Tracker.UpdateScriptHashStatus.
package status

import (
	"crypto/sha256"
	"sort"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ABMatrix/electrs/electrum"
)

// Status is the concrete implementation of the tracker-owned status
// object. Two Statuses with the same StatusHash are observationally
// equivalent for subscription purposes.
type Status struct {
	ScriptHash electrum.ScriptHash

	history []electrum.HistoryEntry
	unspent []electrum.UnspentEntry
	hash    *chainhash.Hash
}

// New creates an empty status for a freshly subscribed script-hash. The
// caller (Tracker.UpdateScriptHashStatus) fills it in before first use.
func New(sh electrum.ScriptHash) *Status {
	return &Status{ScriptHash: sh}
}

// StatusHash returns the digest summarizing the current history, or nil
// when the history is empty.
func (s *Status) StatusHash() *chainhash.Hash {
	return s.hash
}

// GetHistory returns history entries at indices [max(0,from), min(L,to)).
// Nil bounds are treated as unbounded on that side; from > to yields an
// empty, non-erroring slice.
func (s *Status) GetHistory(from, to *uint32) []electrum.HistoryEntry {
	l := uint32(len(s.history))

	start := uint32(0)
	if from != nil {
		start = *from
	}
	end := l
	if to != nil {
		end = *to
	}

	if start > l {
		start = l
	}
	if end > l {
		end = l
	}
	if start >= end {
		return []electrum.HistoryEntry{}
	}

	out := make([]electrum.HistoryEntry, end-start)
	copy(out, s.history[start:end])
	return out
}

// Unspent returns the current unspent set, in indeterminate order.
func (s *Status) Unspent() []electrum.UnspentEntry {
	out := make([]electrum.UnspentEntry, len(s.unspent))
	copy(out, s.unspent)
	return out
}

// Balance sums confirmed (height > 0) and unconfirmed (height == 0)
// unspent value, matching blockchain.scripthash.get_balance's contract.
func (s *Status) Balance() electrum.Balance {
	var bal electrum.Balance
	for _, u := range s.unspent {
		if u.Height > 0 {
			bal.Confirmed += int64(u.Value)
		} else {
			bal.Unconfirmed += int64(u.Value)
		}
	}
	return bal
}

// Set replaces this status's history and unspent set in place — the
// status object identity never changes, only its contents — and
// recomputes the status hash. It reports whether the status hash
// changed, which is exactly the signal UpdateClient needs.
func (s *Status) Set(history []electrum.HistoryEntry, unspent []electrum.UnspentEntry) (changed bool) {
	sorted := make([]electrum.HistoryEntry, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Height != sorted[j].Height {
			// mempool (height 0) entries sort after confirmed ones, and
			// among confirmed entries lower height comes first.
			if sorted[i].Height == 0 {
				return false
			}
			if sorted[j].Height == 0 {
				return true
			}
			return sorted[i].Height < sorted[j].Height
		}
		return sorted[i].TxHash.String() < sorted[j].TxHash.String()
	})

	newHash := computeStatusHash(sorted)

	changed = !hashesEqual(s.hash, newHash)
	s.history = sorted
	s.unspent = unspent
	s.hash = newHash
	return changed
}

func hashesEqual(a, b *chainhash.Hash) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// computeStatusHash implements the standard ElectrumX status digest:
// sha256 over "tx_hash:height:" for every history entry in order,
// returned as a reversed-display chainhash.Hash; nil for empty history.
func computeStatusHash(history []electrum.HistoryEntry) *chainhash.Hash {
	if len(history) == 0 {
		return nil
	}

	h := sha256.New()
	for _, entry := range history {
		h.Write([]byte(entry.TxHash.String()))
		h.Write([]byte(":"))
		h.Write([]byte(strconv.FormatInt(int64(entry.Height), 10)))
		h.Write([]byte(":"))
	}

	sum := h.Sum(nil)
	var out chainhash.Hash
	copy(out[:], sum)
	return &out
}
