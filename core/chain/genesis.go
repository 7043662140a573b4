package chain

import (
	"math/big"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/storage/chaindb"
)

// Bootstrap persists genesis as block 0 (if the store has no tip yet)
// and returns the snapshot container a Reconciler should be built
// against. Calling it against a store that already has a tip is a
// no-op: the existing tip is loaded and returned instead.
func Bootstrap(store *chaindb.Manager, genesis *types.Block) (*snapshot.Container, error) {
	tip, err := store.GetTipHeader()
	if err != nil {
		return nil, err
	}
	if tip != nil {
		ext, err := store.GetBlockExt(tip.Hash())
		if err != nil {
			return nil, err
		}
		return snapshot.NewContainer(&snapshot.Snapshot{
			TipHeader:         tip,
			TotalDifficulty:   ext.TotalDifficulty,
			ActiveProposalIDs: map[common.ProposalShortID]struct{}{},
		}), nil
	}

	txn := store.BeginTransaction()
	if err := txn.AttachBlock(genesis); err != nil {
		return nil, err
	}
	if err := txn.AttachBlockCell(genesis, collectOutputData(genesis)); err != nil {
		return nil, err
	}
	ext := &types.BlockExt{TotalDifficulty: big.NewInt(1), Verified: types.VerifyValid}
	if err := txn.InsertBlockExt(genesis.Hash(), ext); err != nil {
		return nil, err
	}
	if err := txn.InsertTipHeader(genesis.Header); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	return snapshot.NewContainer(&snapshot.Snapshot{
		TipHeader:         genesis.Header,
		TotalDifficulty:   ext.TotalDifficulty,
		ActiveProposalIDs: map[types.ProposalShortID]struct{}{},
	}), nil
}
