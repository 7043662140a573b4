package chain

import (
	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/types"
)

// FanoutNotifier dispatches every PoolNotifier call to each of Targets in
// order, letting a node hand the reconciler one PoolNotifier that
// actually updates the transaction pool and also feeds an external
// reorgfeed sink.
type FanoutNotifier struct {
	Targets []PoolNotifier
}

func (f FanoutNotifier) NotifyReorg(detached, attached []*types.Block, detachedProposalIDs []common.ProposalShortID, snap *snapshot.Snapshot) {
	for _, t := range f.Targets {
		t.NotifyReorg(detached, attached, detachedProposalIDs, snap)
	}
}

func (f FanoutNotifier) NotifyUncle(ext *types.BlockExt) {
	for _, t := range f.Targets {
		t.NotifyUncle(ext)
	}
}

func (f FanoutNotifier) NotifyNewBlock(snap *snapshot.Snapshot) {
	for _, t := range f.Targets {
		t.NotifyNewBlock(snap)
	}
}
