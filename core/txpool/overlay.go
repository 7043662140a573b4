package txpool

import (
	"encoding/binary"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/types"
)

// resolve looks up op against the pool's own unconfirmed outputs before
// falling through to the committed store, the same layered-overlay
// shape core/chain's cellOverlay uses for in-progress reorg state.
// Spending an output another pool entry already claims reports Dead,
// even though the store itself still shows it live, so two conflicting
// unconfirmed transactions cannot both be admitted.
func (p *Pool) resolve(op common.OutPoint) (types.CellResult, error) {
	if _, ok := p.spentByPool[op]; ok {
		return types.DeadCell(), nil
	}
	if producer, ok := p.poolOutputs[op]; ok {
		entry := p.entries[producer]
		if entry == nil || int(op.Index) >= len(entry.Rtx.Transaction.Outputs) {
			return types.UnknownCell(), nil
		}
		cm := &types.CellMeta{
			OutPoint: op,
			Output:   entry.Rtx.Transaction.Outputs[op.Index],
		}
		return types.LiveCell(cm), nil
	}
	return p.store.GetCell(op)
}

// resolveTransaction builds a ResolvedTransaction against the pool
// overlay plus the committed store. It reports which of tx's inputs
// came back Unknown (candidates for orphan parking) separately from a
// hard failure (a Dead input, or a store error).
func (p *Pool) resolveTransaction(tx *types.Transaction) (rtx *types.ResolvedTransaction, unknown []common.OutPoint, err error) {
	rtx = &types.ResolvedTransaction{Transaction: tx}

	for _, in := range tx.Inputs {
		res, rerr := p.resolve(in.PreviousOutput)
		if rerr != nil {
			return nil, nil, errkind.Wrap(errkind.InternalDB, in.PreviousOutput.String(), rerr)
		}
		switch {
		case res.IsLive():
			rtx.ResolvedInputs = append(rtx.ResolvedInputs, res.Cell)
		case res.IsDead():
			return nil, nil, errkind.New(errkind.DoubleSpent, in.PreviousOutput.String(), "out-point already spent")
		default:
			unknown = append(unknown, in.PreviousOutput)
		}
	}
	if len(unknown) > 0 {
		return rtx, unknown, nil
	}

	for _, dep := range tx.CellDeps {
		cm, derr := p.resolveDepCell(dep.OutPoint)
		if derr != nil {
			return nil, nil, derr
		}
		if dep.DepType == types.DepTypeCode {
			rtx.ResolvedCellDeps = append(rtx.ResolvedCellDeps, cm)
			continue
		}
		rtx.ResolvedDepGroups = append(rtx.ResolvedDepGroups, cm)
		data, derr := p.loadCellData(dep.OutPoint)
		if derr != nil {
			return nil, nil, errkind.Wrap(errkind.Resolve, dep.OutPoint.String(), derr)
		}
		members, derr := decodeOutPoints(data)
		if derr != nil {
			return nil, nil, errkind.Wrap(errkind.Resolve, dep.OutPoint.String(), derr)
		}
		for _, op := range members {
			mcm, merr := p.resolveDepCell(op)
			if merr != nil {
				return nil, nil, merr
			}
			rtx.ResolvedCellDeps = append(rtx.ResolvedCellDeps, mcm)
		}
	}

	return rtx, nil, nil
}

func (p *Pool) resolveDepCell(op common.OutPoint) (*types.CellMeta, error) {
	res, err := p.resolve(op)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, op.String(), err)
	}
	switch {
	case res.IsLive():
		return res.Cell, nil
	case res.IsDead():
		return nil, errkind.New(errkind.DoubleSpent, op.String(), "cell-dep already spent")
	default:
		return nil, errkind.New(errkind.Resolve, op.String(), "cell-dep unknown")
	}
}

func (p *Pool) loadCellData(op common.OutPoint) ([]byte, error) {
	if producer, ok := p.poolOutputs[op]; ok {
		entry := p.entries[producer]
		if entry != nil && int(op.Index) < len(entry.Rtx.Transaction.OutputsData) {
			return entry.Rtx.Transaction.OutputsData[op.Index], nil
		}
	}
	return p.store.LoadCellData(op)
}

// decodeOutPoints mirrors core/chain/verify.go's dep-group wire layout:
// a little-endian count followed by that many 36-byte (hash, index)
// pairs.
func decodeOutPoints(data []byte) ([]common.OutPoint, error) {
	if len(data) < 4 {
		return nil, errDepGroupFormat
	}
	n := binary.LittleEndian.Uint32(data[:4])
	out := make([]common.OutPoint, 0, n)
	off := 4
	for i := uint32(0); i < n; i++ {
		if off+36 > len(data) {
			return nil, errDepGroupFormat
		}
		var hash common.Hash
		copy(hash[:], data[off:off+32])
		index := binary.LittleEndian.Uint32(data[off+32 : off+36])
		out = append(out, common.OutPoint{TxHash: hash, Index: index})
		off += 36
	}
	return out, nil
}

var errDepGroupFormat = errkind.New(errkind.Resolve, "", "dep-group data malformed")
