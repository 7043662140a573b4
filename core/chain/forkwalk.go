package chain

import (
	"math/big"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/types"
)

// findFork locates the common ancestor of newTip and the current main
// chain tip, producing a ForkChanges. The walk has two phases: alignment
// brings both sides to the same height, then convergence steps both
// down in lockstep until the hashes agree.
func (r *Reconciler) findFork(newTip *types.Block, currentTipHash common.Hash, currentTipNumber uint64) (*types.ForkChanges, error) {
	fc := &types.ForkChanges{}

	var alignedDetached []*types.Block // heights (newTip.Number(), currentTipNumber], high to low
	var alignedAttached []*types.Block // heights (currentTipNumber, newTip.Number()], low to high
	var mainAligned, newAligned *types.Block

	switch {
	case newTip.Number() <= currentTipNumber:
		for n := currentTipNumber; n > newTip.Number(); n-- {
			b, err := r.mainChainBlockAt(n)
			if err != nil {
				return nil, err
			}
			alignedDetached = append(alignedDetached, b)
		}
		aligned, err := r.mainChainBlockAt(newTip.Number())
		if err != nil {
			return nil, err
		}
		mainAligned = aligned
		newAligned = newTip

	default:
		var highToLow []*types.Block
		cur := newTip
		for cur.Number() > currentTipNumber {
			highToLow = append(highToLow, cur)
			parent, err := r.store.GetBlock(cur.ParentHash())
			if err != nil {
				return nil, errkind.Wrap(errkind.InternalDB, cur.ParentHash().Hex(), err)
			}
			if parent == nil {
				return nil, errkind.New(errkind.UnknownParent, cur.ParentHash().Hex(), "ancestor block missing from store")
			}
			cur = parent
		}
		for i, j := 0, len(highToLow)-1; i < j; i, j = i+1, j-1 {
			highToLow[i], highToLow[j] = highToLow[j], highToLow[i]
		}
		alignedAttached = highToLow

		tip, err := r.store.GetBlock(currentTipHash)
		if err != nil {
			return nil, errkind.Wrap(errkind.InternalDB, currentTipHash.Hex(), err)
		}
		if tip == nil {
			return nil, errkind.New(errkind.InternalDB, currentTipHash.Hex(), "current tip missing from store")
		}
		mainAligned = tip
		newAligned = cur
	}

	var detachedTail []*types.Block
	var attachedHead []*types.Block
	a, b := mainAligned, newAligned
	for a.Hash() != b.Hash() {
		if a.Number() == 0 || b.Number() == 0 {
			return nil, errkind.New(errkind.InternalOther, "", "fork walk did not converge before genesis")
		}
		detachedTail = append(detachedTail, a)
		attachedHead = append([]*types.Block{b}, attachedHead...)

		aParent, err := r.store.GetBlock(a.ParentHash())
		if err != nil {
			return nil, errkind.Wrap(errkind.InternalDB, a.ParentHash().Hex(), err)
		}
		bParent, err := r.store.GetBlock(b.ParentHash())
		if err != nil {
			return nil, errkind.Wrap(errkind.InternalDB, b.ParentHash().Hex(), err)
		}
		if aParent == nil || bParent == nil {
			return nil, errkind.New(errkind.UnknownParent, "", "fork walk ran out of ancestors")
		}
		a, b = aParent, bParent
	}

	fc.Detached = append(alignedDetached, detachedTail...)
	fc.Attached = append(attachedHead, alignedAttached...)
	for _, b := range fc.Detached {
		fc.DetachedProposalIDs = append(fc.DetachedProposalIDs, b.Proposals...)
	}
	return fc, nil
}

func (r *Reconciler) mainChainBlockAt(number uint64) (*types.Block, error) {
	hash, ok, err := r.store.GetBlockHash(number)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, "", err)
	}
	if !ok {
		return nil, errkind.New(errkind.InternalDB, "", "main chain block missing at expected height")
	}
	b, err := r.store.GetBlock(hash)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, hash.Hex(), err)
	}
	if b == nil {
		return nil, errkind.New(errkind.InternalDB, hash.Hex(), "main chain block body missing")
	}
	return b, nil
}

// computeDirtyExts walks fc.Attached from the new tip backwards, marking
// blocks dirty (needing replay) as long as every encountered ext is
// VerifyNone; the first already-verified ext stops the walk. tentativeExt
// is the not-yet-persisted ext for the new tip block itself.
func (r *Reconciler) computeDirtyExts(fc *types.ForkChanges, tentativeExt *types.BlockExt) (map[common.Hash]*types.BlockExt, error) {
	n := len(fc.Attached)
	dirty := make(map[common.Hash]*types.BlockExt, n)
	unseen := true

	for i := n - 1; i >= 0; i-- {
		blk := fc.Attached[i]
		var ext *types.BlockExt
		if i == n-1 {
			ext = tentativeExt
		} else {
			stored, err := r.store.GetBlockExt(blk.Hash())
			if err != nil {
				return nil, errkind.Wrap(errkind.InternalDB, blk.Hash().Hex(), err)
			}
			ext = stored
		}

		if !unseen {
			continue
		}
		if ext == nil || ext.Verified == types.VerifyNone {
			if ext == nil {
				ext = &types.BlockExt{TotalDifficulty: big.NewInt(0), Verified: types.VerifyNone}
			}
			dirty[blk.Hash()] = ext
			continue
		}
		unseen = false
	}

	for i := n - 1; i >= 0; i-- {
		if ext, ok := dirty[fc.Attached[i].Hash()]; ok {
			fc.DirtyExts = append(fc.DirtyExts, ext)
		}
	}
	return dirty, nil
}
