package electrum

import "sort"

// SelectUnspent implements a coin-selection heuristic: a pre-filter and
// sort, then one pass of selectForTarget per target amount, removing
// each round's picks from the pool before the next.
func SelectUnspent(unspent []UnspentEntry, amounts []uint64, minAmount uint64, confirmed bool) []UnspentEntry {
	pool := make([]UnspentEntry, 0, len(unspent))
	for _, u := range unspent {
		if u.Value < minAmount {
			continue
		}
		if confirmed && u.Height <= 0 {
			continue
		}
		pool = append(pool, u)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].Value < pool[j].Value })

	var selected []UnspentEntry
	for _, target := range amounts {
		if len(pool) == 0 {
			break
		}
		chosen, chosenIndex := selectForTarget(pool, target)
		selected = append(selected, chosen...)
		pool = removeIndices(pool, chosenIndex)
	}
	return selected
}

// removeIndices drops the given (unsorted, possibly duplicated) indices
// from entries, preserving the relative order of what remains.
func removeIndices(entries []UnspentEntry, indices []int) []UnspentEntry {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	out := make([]UnspentEntry, 0, len(entries)-len(drop))
	for i, e := range entries {
		if !drop[i] {
			out = append(out, e)
		}
	}
	return out
}

// selectForTarget picks utxos for one target amount: utxos must already
// be sorted ascending by value. It returns the chosen subset and the
// indices (into utxos) they came from.
//
// This is not a minimal-fee or privacy-preserving selector — it is the
// exact idiosyncratic heuristic Electrum clients of this server expect,
// except for the fallback branch's loop bound (see below).
func selectForTarget(utxos []UnspentEntry, targetValue uint64) ([]UnspentEntry, []int) {
	var chosen []UnspentEntry
	var chosenIndex []int

	if len(utxos) <= 3 {
		for i, u := range utxos {
			chosen = append(chosen, u)
			chosenIndex = append(chosenIndex, i)
		}
		return chosen, chosenIndex
	}

	utxoLen := len(utxos)

	pivot := -1
	for i, u := range utxos {
		if u.Value >= targetValue {
			pivot = i
			break
		}
	}

	if pivot != -1 {
		var selectIndex []int
		switch {
		case pivot == 0:
			// first (smallest-value) utxo already meets the target.
			selectIndex = []int{0, 1, 2}
		case pivot == utxoLen-1:
			// only the largest utxo meets the target.
			selectIndex = []int{0, utxoLen - 2, utxoLen - 1}
		default:
			confirmedIdx := -1
			for i := pivot + 1; i < utxoLen; i++ {
				if utxos[i].Height > 0 {
					confirmedIdx = i
					break
				}
			}
			if confirmedIdx != -1 {
				selectIndex = []int{0, pivot, confirmedIdx}
			} else {
				selectIndex = []int{0, pivot, utxoLen - 1}
			}
		}
		for _, i := range selectIndex {
			chosen = append(chosen, utxos[i])
			chosenIndex = append(chosenIndex, i)
		}
		return chosen, chosenIndex
	}

	// No single utxo reaches the target: accumulate from the largest down.
	// Bounded to the smaller of len(utxos) and 20 so the accumulation
	// never indexes below zero regardless of pool size.
	maxLen := utxoLen
	if maxLen > 20 {
		maxLen = 20
	}
	var total uint64
	for i := 0; i < maxLen; i++ {
		idx := utxoLen - 1 - i
		if idx < 0 {
			break
		}
		total += utxos[idx].Value
		chosen = append(chosen, utxos[idx])
		chosenIndex = append(chosenIndex, idx)
		if total > targetValue {
			break
		}
	}
	if len(chosen) < 3 {
		chosen = append(chosen, utxos[0])
		chosenIndex = append(chosenIndex, 0)
	}
	return chosen, chosenIndex
}
