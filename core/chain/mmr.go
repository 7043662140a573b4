package chain

import (
	"github.com/riscvlabs/corechain/common"
	"golang.org/x/crypto/blake2b"
)

// memMMR is a minimal in-memory Merkle-Mountain-Range accumulator: it
// keeps every pushed digest and folds them left-to-right with Blake2b-256
// to answer Root. It trades the peak-merging structure of a real MMR for
// simplicity; a node that needs succinct proofs swaps in a proper
// implementation behind the same MMRFactory.
type memMMR struct {
	leaves []common.Hash
}

// NewMemMMRFactory returns an MMRFactory producing memMMR accumulators
// seeded with a single leaf: the common ancestor's digest.
func NewMemMMRFactory() MMRFactory {
	return func(seed common.Hash) (MMR, error) {
		return &memMMR{leaves: []common.Hash{seed}}, nil
	}
}

func (m *memMMR) Push(digest common.Hash) error {
	m.leaves = append(m.leaves, digest)
	return nil
}

func (m *memMMR) Root() common.Hash {
	if len(m.leaves) == 0 {
		return common.Hash{}
	}
	acc := m.leaves[0]
	for _, l := range m.leaves[1:] {
		h, _ := blake2b.New256(nil)
		h.Write(acc.Bytes())
		h.Write(l.Bytes())
		var out common.Hash
		copy(out[:], h.Sum(nil))
		acc = out
	}
	return acc
}
