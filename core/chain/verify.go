package chain

import (
	"encoding/binary"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/cache"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/script"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/storage/chaindb"
	"golang.org/x/crypto/blake2b"
)

// Verifier resolves a transaction against the store+overlay and runs its
// script groups through the scheduler. The RISC-V emulator itself is an
// external collaborator; Verifier only drives the Machine life-cycle
// surface via a caller-supplied script.MachineFactory.
type Verifier struct {
	machineFactory script.MachineFactory
	txVerifyCache  *cache.TxVerifyCache
	maxCyclesPerTx uint64
}

func NewVerifier(factory script.MachineFactory, txCache *cache.TxVerifyCache, maxCyclesPerTx uint64) *Verifier {
	return &Verifier{machineFactory: factory, txVerifyCache: txCache, maxCyclesPerTx: maxCyclesPerTx}
}

// ResolveAgainstStore resolves tx's inputs and cell-deps directly against
// store, with no in-progress overlay on top. Callers outside this package
// (the transaction pool) use this instead of the reorg-time cellOverlay
// path, since they only ever resolve against the committed chain.
func (v *Verifier) ResolveAgainstStore(store *chaindb.Manager, tx *types.Transaction) (*types.ResolvedTransaction, error) {
	return v.resolve(newCellOverlay(store), tx)
}

// VerifyTransaction exposes verifyTransaction to callers outside this
// package, such as the transaction pool's admission path.
func (v *Verifier) VerifyTransaction(rtx *types.ResolvedTransaction, blockNumber uint64, sw SwitchFlags) (cycles uint64, fee uint64, err error) {
	return v.verifyTransaction(rtx, blockNumber, sw)
}

// resolve builds a ResolvedTransaction by looking up every input and
// cell-dep against the overlay, expanding dep-groups inline.
func (v *Verifier) resolve(overlay *cellOverlay, tx *types.Transaction) (*types.ResolvedTransaction, error) {
	rtx := &types.ResolvedTransaction{Transaction: tx}

	for _, in := range tx.Inputs {
		cm, err := v.resolveLive(overlay, in.PreviousOutput)
		if err != nil {
			return nil, err
		}
		rtx.ResolvedInputs = append(rtx.ResolvedInputs, cm)
	}

	for _, dep := range tx.CellDeps {
		cm, err := v.resolveLive(overlay, dep.OutPoint)
		if err != nil {
			return nil, err
		}
		if dep.DepType == types.DepTypeCode {
			rtx.ResolvedCellDeps = append(rtx.ResolvedCellDeps, cm)
			continue
		}
		rtx.ResolvedDepGroups = append(rtx.ResolvedDepGroups, cm)
		data, err := overlay.loadCellData(dep.OutPoint)
		if err != nil {
			return nil, errkind.Wrap(errkind.Resolve, dep.OutPoint.String(), err)
		}
		members, err := decodeOutPoints(data)
		if err != nil {
			return nil, errkind.Wrap(errkind.Resolve, dep.OutPoint.String(), err)
		}
		for _, op := range members {
			mcm, err := v.resolveLive(overlay, op)
			if err != nil {
				return nil, err
			}
			rtx.ResolvedCellDeps = append(rtx.ResolvedCellDeps, mcm)
		}
	}

	return rtx, nil
}

// resolveLive fetches op, failing with errkind.Resolve on Unknown and
// errkind.DoubleSpent on Dead — a committed block naming a dead or
// unresolvable out-point is simply invalid (the pool's orphan handling
// does not apply once a block has reached the reconciler).
func (v *Verifier) resolveLive(overlay *cellOverlay, op common.OutPoint) (*types.CellMeta, error) {
	res, err := overlay.resolve(op)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, op.String(), err)
	}
	switch {
	case res.IsLive():
		return res.Cell, nil
	case res.IsDead():
		return nil, errkind.New(errkind.DoubleSpent, op.String(), "out-point already spent")
	default:
		return nil, errkind.New(errkind.Resolve, op.String(), "out-point unknown")
	}
}

// verifyTransaction runs the non-script checks and, unless sw disables
// it, the script groups of rtx through the scheduler: capacity
// conservation, then since/locktime (an input with a nonzero Since is
// mature only once blockNumber > Since), then script execution. No
// separate transaction-format check is made here.
// DAO accounting is delegated to the Consensus collaborator the same way
// epoch/difficulty are; this verifier only enforces the capacity, since
// and script invariants that belong to the core.
func (v *Verifier) verifyTransaction(rtx *types.ResolvedTransaction, blockNumber uint64, sw SwitchFlags) (cycles uint64, fee uint64, err error) {
	fee, ok := rtx.Fee()
	if !ok {
		return 0, 0, errkind.New(errkind.VerificationCapacity, rtx.Transaction.Hash().Hex(), "outputs exceed inputs")
	}

	for _, in := range rtx.Transaction.Inputs {
		if in.Since == 0 {
			continue
		}
		if blockNumber <= in.Since {
			return 0, 0, errkind.New(errkind.VerificationSince, rtx.Transaction.Hash().Hex(), "input not yet mature")
		}
	}

	if sw.DisableAll || sw.DisableScript {
		return 0, fee, nil
	}

	txHash := rtx.Transaction.Hash()
	if cached, ok := v.txVerifyCache.Get(txHash); ok {
		return cached.Cycles, fee, nil
	}

	var total uint64
	for _, group := range rtx.ScriptGroups(hashOfScript) {
		used, err := v.runScriptGroup(rtx, group, v.maxCyclesPerTx-total)
		if err != nil {
			return 0, 0, err
		}
		total += used
		if total > v.maxCyclesPerTx {
			return 0, 0, errkind.New(errkind.VerificationCycles, txHash.Hex(), "tx exceeded max verify cycles")
		}
	}

	v.txVerifyCache.Put(txHash, cache.VerifiedTx{Cycles: total, Fee: fee, Size: rtx.Transaction.SerializedSize()})
	return total, fee, nil
}

// runScriptGroup boots a scheduler against one script group's code
// location and runs it to completion under a cycle budget.
func (v *Verifier) runScriptGroup(rtx *types.ResolvedTransaction, group *types.ScriptGroup, budget uint64) (uint64, error) {
	var s *types.Script
	if group.IsLock {
		s = &rtx.ResolvedInputs[group.InputIndices[0]].Output.Lock
	} else {
		s = rtx.Transaction.Outputs[group.OutputIndices[0]].Type
	}

	argv := [][]byte{s.Args}
	sched, err := script.New(v.machineFactory, script.CodeLocation(s.CodeHash.Bytes()), argv)
	if err != nil {
		return 0, errkind.Wrap(errkind.VerificationScript, rtx.Transaction.Hash().Hex(), err)
	}

	exitCode, total, err := sched.Run(script.LimitCycles(budget))
	if err != nil {
		if err == script.ErrCyclesExceeded {
			return total, errkind.New(errkind.VerificationCycles, rtx.Transaction.Hash().Hex(), "script group exceeded cycle budget")
		}
		return total, errkind.Wrap(errkind.VerificationScript, rtx.Transaction.Hash().Hex(), err)
	}
	if exitCode != 0 {
		return total, errkind.New(errkind.VerificationScript, rtx.Transaction.Hash().Hex(), "script exited non-zero")
	}
	return total, nil
}

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

// encodeOutPoints is the inverse of decodeOutPoints: it builds dep-group
// cell data in the layout decodeOutPoints reads.
func encodeOutPoints(points []common.OutPoint) []byte {
	buf := make([]byte, 4, 4+len(points)*36)
	binary.LittleEndian.PutUint32(buf, uint32(len(points)))
	for _, op := range points {
		buf = append(buf, op.TxHash.Bytes()...)
		var idx [4]byte
		binary.LittleEndian.PutUint32(idx[:], op.Index)
		buf = append(buf, idx[:]...)
	}
	return buf
}

// HashOfScript exposes hashOfScript to callers outside this package
// (the transaction pool) that need to group a ResolvedTransaction's
// script groups the same way the reconciler's verifier does.
func HashOfScript(s *types.Script) [32]byte {
	return hashOfScript(s)
}

func hashOfScript(s *types.Script) [32]byte {
	buf := make([]byte, 0, 64+len(s.Args))
	buf = append(buf, s.CodeHash.Bytes()...)
	buf = append(buf, s.HashType)
	buf = append(buf, s.Args...)
	return blake2b.Sum256(buf)
}

var errDepGroupFormat = errkind.New(errkind.Resolve, "", "dep-group data malformed")
