// Package snapshot publishes the immutable, atomically-swapped read
// handle the chain reconciler hands out after every consume, grounded on
// the way blockchain/* historically cached its current-head pointer
// behind an atomic.Value so readers never block the writer and never
// observe a half-updated tip.
package snapshot

import (
	"math/big"
	"sync/atomic"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/types"
)

// Snapshot is a point-in-time, read-only view of chain state: the tip
// header, its accumulated total difficulty, the current epoch, and the
// active proposal short-id set.
type Snapshot struct {
	TipHeader         *types.Header
	TotalDifficulty   *big.Int
	CurrentEpoch      *types.EpochExt
	ActiveProposalIDs map[common.ProposalShortID]struct{}
}

// Container holds the single, atomically-published current Snapshot.
// Exactly one writer (the chain reconciler) calls Store; any number of
// readers call Load concurrently without locking. Every reader observes
// either the pre-consume or post-consume snapshot, never a partial one.
type Container struct {
	v atomic.Value
}

// NewContainer seeds the container with an initial snapshot, typically
// the genesis state.
func NewContainer(initial *Snapshot) *Container {
	c := &Container{}
	c.v.Store(initial)
	return c
}

// Load returns the currently published snapshot.
func (c *Container) Load() *Snapshot {
	return c.v.Load().(*Snapshot)
}

// Store atomically publishes next as the current snapshot. Readers that
// already called Load keep their own (now stale but internally
// consistent) copy.
func (c *Container) Store(next *Snapshot) {
	c.v.Store(next)
}

// HasProposal reports whether id is in the active proposal window.
func (s *Snapshot) HasProposal(id common.ProposalShortID) bool {
	_, ok := s.ActiveProposalIDs[id]
	return ok
}
