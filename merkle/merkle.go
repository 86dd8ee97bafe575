// Package merkle builds inclusion proofs over a block's flat txid list,
// using btcd's own double-SHA256 pair-hashing helper rather than a
// hand-rolled one.
package merkle

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ABMatrix/electrs/electrum"
)

var _ electrum.MerkleBuilder = Builder{}

// Builder is stateless: every call rebuilds the tree for the txids it is
// given.
type Builder struct{}

// New returns a Builder. It holds no state because building a proof
// requires only the block's own txid list, supplied per call.
func New() Builder { return Builder{} }

func (Builder) Create(txids []chainhash.Hash, pos int) electrum.MerkleProof {
	return build(txids, pos)
}

// Proof is the inclusion path for one transaction within its block's
// merkle tree: the sibling hash at each level from the leaf up to the root.
type Proof struct {
	position int
	nodes    []chainhash.Hash
}

func (p *Proof) Position() int { return p.position }

func (p *Proof) ToHex() []string {
	out := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.String()
	}
	return out
}

func build(txids []chainhash.Hash, pos int) *Proof {
	level := make([]chainhash.Hash, len(txids))
	copy(level, txids)

	var nodes []chainhash.Hash
	idx := pos
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		nodes = append(nodes, level[idx^1])

		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = *blockchain.HashMerkleBranches(&level[i], &level[i+1])
		}
		level = next
		idx /= 2
	}
	return &Proof{position: pos, nodes: nodes}
}
