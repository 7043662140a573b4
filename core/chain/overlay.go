package chain

import (
	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/storage/chaindb"
)

// cellOverlay resolves out-points against the store with an in-memory
// overlay of the cells an in-progress reconcile pass has already
// applied: later attached blocks in the same reorg may spend outputs of
// earlier attached blocks that are not committed yet.
type cellOverlay struct {
	store *chaindb.Manager
	live  map[common.OutPoint]*types.CellMeta
	dead  map[common.OutPoint]bool
}

func newCellOverlay(store *chaindb.Manager) *cellOverlay {
	return &cellOverlay{
		store: store,
		live:  map[common.OutPoint]*types.CellMeta{},
		dead:  map[common.OutPoint]bool{},
	}
}

func (o *cellOverlay) resolve(op common.OutPoint) (types.CellResult, error) {
	if o.dead[op] {
		return types.DeadCell(), nil
	}
	if cm, ok := o.live[op]; ok {
		return types.LiveCell(cm), nil
	}
	return o.store.GetCell(op)
}

func (o *cellOverlay) loadCellData(op common.OutPoint) ([]byte, error) {
	if cm, ok := o.live[op]; ok && cm.MemCellData != nil {
		return cm.MemCellData, nil
	}
	return o.store.LoadCellData(op)
}

// apply records the cell-set deltas of a successfully replayed block so
// subsequent attached blocks in the same pass see its outputs.
func (o *cellOverlay) apply(b *types.Block) {
	for ti, tx := range b.Transactions {
		if !tx.IsCellbase() {
			for _, in := range tx.Inputs {
				delete(o.live, in.PreviousOutput)
				o.dead[in.PreviousOutput] = true
			}
		}
		txHash := tx.Hash()
		for oi, out := range tx.Outputs {
			op := common.OutPoint{TxHash: txHash, Index: uint32(oi)}
			cm := &types.CellMeta{
				OutPoint: op,
				Output:   out,
				Info: types.TransactionInfo{
					BlockNumber: b.Number(),
					BlockHash:   b.Hash(),
					BlockEpoch:  b.Header.Epoch,
					Index:       uint32(ti),
				},
			}
			if oi < len(tx.OutputsData) {
				cm.MemCellData = tx.OutputsData[oi]
			}
			o.live[op] = cm
			delete(o.dead, op)
		}
	}
}
