package types

import "github.com/riscvlabs/corechain/common"

// ForkChanges is the pair of ordered block sequences a reorg touches:
// Detached runs current-tip -> fork-point (reverse order), Attached runs
// fork-point+1 -> new-tip.
type ForkChanges struct {
	Detached            []*Block
	Attached            []*Block
	DirtyExts           []*BlockExt
	DetachedProposalIDs []common.ProposalShortID
}

// IsEmpty reports whether the fork made no change at all (a no-op
// consume that simply extended from the already-current tip).
func (f *ForkChanges) IsEmpty() bool {
	return len(f.Detached) == 0 && len(f.Attached) == 0
}

// AssertOrdered verifies that Attached and Detached are strictly ordered
// by block number. It is a debug assertion on the fork walk's own
// output; callers decide whether to panic or just log a violation.
func (f *ForkChanges) AssertOrdered() bool {
	for i := 1; i < len(f.Attached); i++ {
		if f.Attached[i].Number() <= f.Attached[i-1].Number() {
			return false
		}
	}
	for i := 1; i < len(f.Detached); i++ {
		if f.Detached[i].Number() >= f.Detached[i-1].Number() {
			return false
		}
	}
	return true
}
