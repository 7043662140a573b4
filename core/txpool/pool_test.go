package txpool

import (
	"math/big"
	"testing"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/cache"
	"github.com/riscvlabs/corechain/core/chain"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/script"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/storage/chaindb"
	"github.com/stretchr/testify/require"
)

// --- fakes, grounded on core/chain/reconciler_test.go's fixtures -------

type fakeConsensus struct{ window types.ProposalWindow }

func (c fakeConsensus) VerifyHeader(header, parent *types.Header) error { return nil }
func (c fakeConsensus) NextEpoch(parent *types.Header, parentEpoch *types.EpochExt) (*types.EpochExt, error) {
	return parentEpoch, nil
}
func (c fakeConsensus) ProposalWindow() types.ProposalWindow   { return c.window }
func (c fakeConsensus) CalculateDifficulty(header *types.Header) *big.Int { return big.NewInt(1) }

type fakePunisher struct {
	punished []string
}

func (p *fakePunisher) Punish(peerID string, kind errkind.Kind) {
	p.punished = append(p.punished, peerID)
}

type fakeTemplateNotifier struct{ notified int }

func (n *fakeTemplateNotifier) TemplateChanged() { n.notified++ }

// exitZeroMachine is a Machine that exits successfully on its first Run,
// the same pass-through fixture the reconciler's own tests use.
type exitZeroMachine struct{}

func (exitZeroMachine) Run(budget uint64) (script.RunOutcome, *script.Message, error) {
	return script.Exited, nil, nil
}
func (exitZeroMachine) Complete(script.SyscallResult) {}
func (exitZeroMachine) Cycles() uint64                { return 1 }
func (exitZeroMachine) ExitCode() int8                { return 0 }
func (exitZeroMachine) Snapshot() ([]byte, error)     { return nil, nil }
func (exitZeroMachine) Restore([]byte) error          { return nil }

func exitZeroFactory(loc script.CodeLocation, argv [][]byte) (script.Machine, error) {
	return exitZeroMachine{}, nil
}

var alwaysSuccessLock = types.Script{CodeHash: common.Hash{0x01}, HashType: 0, Args: nil}

func cellbaseTx(blockNumber uint64, capacity uint64) *types.Transaction {
	return &types.Transaction{
		Outputs:     []types.CellOutput{{Capacity: capacity, Lock: alwaysSuccessLock}},
		OutputsData: [][]byte{nil},
	}
}

func header(parent common.Hash, number uint64) *types.Header {
	return &types.Header{
		ParentHash:    parent,
		Number:        number,
		Timestamp:     number * 1000,
		CompactTarget: 0x20010000,
	}
}

func genesisBlock() *types.Block {
	h := header(common.Hash{}, 0)
	return &types.Block{Header: h, Transactions: []*types.Transaction{cellbaseTx(0, 100_000)}}
}

func collectOutputData(b *types.Block) [][][]byte {
	out := make([][][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		data := make([][]byte, len(tx.Outputs))
		copy(data, tx.OutputsData)
		out[i] = data
	}
	return out
}

// spendTx spends out-point op's full capacity into a single new output of
// the same lock, minus fee.
func spendTx(op common.OutPoint, capacity, fee uint64) *types.Transaction {
	return &types.Transaction{
		Inputs:      []types.CellInput{{PreviousOutput: op}},
		Outputs:     []types.CellOutput{{Capacity: capacity - fee, Lock: alwaysSuccessLock}},
		OutputsData: [][]byte{nil},
	}
}

func newTestPool(t *testing.T) (*Pool, *chaindb.Manager, *types.Block, *fakePunisher) {
	t.Helper()
	store, err := chaindb.NewManager(chaindb.Config{Backend: chaindb.MemoryDB})
	require.NoError(t, err)

	txCache, err := cache.NewTxVerifyCache(64)
	require.NoError(t, err)

	verifier := chain.NewVerifier(exitZeroFactory, txCache, 1_000_000)

	genesis := genesisBlock()
	txn := store.BeginTransaction()
	require.NoError(t, txn.AttachBlock(genesis))
	require.NoError(t, txn.AttachBlockCell(genesis, collectOutputData(genesis)))
	ext := &types.BlockExt{TotalDifficulty: big.NewInt(1), Verified: types.VerifyValid}
	require.NoError(t, txn.InsertBlockExt(genesis.Hash(), ext))
	require.NoError(t, txn.InsertTipHeader(genesis.Header))
	require.NoError(t, txn.Commit())

	snap := snapshot.NewContainer(&snapshot.Snapshot{
		TipHeader:         genesis.Header,
		TotalDifficulty:   big.NewInt(1),
		ActiveProposalIDs: map[common.ProposalShortID]struct{}{},
	})

	cfg := DefaultConfig()
	cfg.MinFeeRate = 1
	punisher := &fakePunisher{}

	p, err := New(store, snap, verifier, exitZeroFactory, fakeConsensus{window: types.ProposalWindow{Closest: 2, Farthest: 10}}, punisher, cfg)
	require.NoError(t, err)
	return p, store, genesis, punisher
}

func TestSubmitAcceptsSpendableTransaction(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx := spendTx(op, 100_000, 1000)

	res := p.Submit(SubmitRequest{Tx: tx, Source: Local})
	require.Equal(t, Ok, res.Kind)
	require.True(t, p.Contains(tx.ProposalShortID()))

	entry, ok := p.Get(tx.ProposalShortID())
	require.True(t, ok)
	require.Equal(t, StagePending, entry.Stage)
	require.Equal(t, uint64(1000), entry.Fee)
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx := spendTx(op, 100_000, 1000)

	require.Equal(t, Ok, p.Submit(SubmitRequest{Tx: tx, Source: Local}).Kind)
	require.Equal(t, Duplicated, p.Submit(SubmitRequest{Tx: tx, Source: Local}).Kind)
}

func TestSubmitRejectsDoubleSpend(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx1 := spendTx(op, 100_000, 1000)
	tx2 := spendTx(op, 100_000, 2000)

	require.Equal(t, Ok, p.Submit(SubmitRequest{Tx: tx1, Source: Local}).Kind)
	res := p.Submit(SubmitRequest{Tx: tx2, Source: Local})
	require.Equal(t, Rejected, res.Kind)
}

func TestSubmitRejectsBelowMinFeeRate(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	p.cfg.MinFeeRate = 1_000_000_000
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx := spendTx(op, 100_000, 1000)

	res := p.Submit(SubmitRequest{Tx: tx, Source: Local})
	require.Equal(t, Rejected, res.Kind)
}

func TestSubmitLocalUnresolvableInputRejected(t *testing.T) {
	p, _, _, _ := newTestPool(t)
	missing := common.OutPoint{TxHash: common.Hash{0xEE}, Index: 0}
	tx := spendTx(missing, 100_000, 1000)

	res := p.Submit(SubmitRequest{Tx: tx, Source: Local})
	require.Equal(t, Rejected, res.Kind)
}

func TestSubmitRemoteUnresolvableInputParksOrphan(t *testing.T) {
	p, _, _, _ := newTestPool(t)
	missing := common.OutPoint{TxHash: common.Hash{0xEE}, Index: 0}
	tx := spendTx(missing, 100_000, 1000)

	res := p.Submit(SubmitRequest{Tx: tx, Source: Remote, PeerID: "peer-1"})
	require.Equal(t, OrphanAccepted, res.Kind)
	require.Equal(t, 1, p.Info().Orphans)
}

func TestOrphanResolvesWhenParentAdmitted(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	parent := spendTx(op, 100_000, 1000)
	parentOp := common.OutPoint{TxHash: parent.Hash(), Index: 0}
	child := spendTx(parentOp, 99_000, 1000)

	res := p.Submit(SubmitRequest{Tx: child, Source: Remote, PeerID: "peer-1"})
	require.Equal(t, OrphanAccepted, res.Kind)

	res = p.Submit(SubmitRequest{Tx: parent, Source: Local})
	require.Equal(t, Ok, res.Kind)

	require.True(t, p.Contains(child.ProposalShortID()))
	require.Equal(t, 0, p.Info().Orphans)
}

func TestNotifyReorgReinjectsDetachedTransactions(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx := spendTx(op, 100_000, 1000)

	detachedBlock := &types.Block{
		Header:       header(genesis.Hash(), 1),
		Transactions: []*types.Transaction{cellbaseTx(1, 0), tx},
	}

	snap := &snapshot.Snapshot{
		TipHeader:         genesis.Header,
		TotalDifficulty:   big.NewInt(1),
		ActiveProposalIDs: map[common.ProposalShortID]struct{}{},
	}

	p.NotifyReorg([]*types.Block{detachedBlock}, nil, nil, snap)

	require.True(t, p.Contains(tx.ProposalShortID()))
	entry, ok := p.Get(tx.ProposalShortID())
	require.True(t, ok)
	require.Equal(t, StagePending, entry.Stage)
}

func TestNotifyReorgRemovesAttachedTransactions(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx := spendTx(op, 100_000, 1000)
	require.Equal(t, Ok, p.Submit(SubmitRequest{Tx: tx, Source: Local}).Kind)

	attachedBlock := &types.Block{
		Header:       header(genesis.Hash(), 1),
		Transactions: []*types.Transaction{cellbaseTx(1, 0), tx},
	}
	snap := &snapshot.Snapshot{
		TipHeader:         attachedBlock.Header,
		TotalDifficulty:   big.NewInt(2),
		ActiveProposalIDs: map[common.ProposalShortID]struct{}{},
	}

	p.NotifyReorg(nil, []*types.Block{attachedBlock}, nil, snap)
	require.False(t, p.Contains(tx.ProposalShortID()))
}

func TestGetBlockTemplateIncludesProposedEntry(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx := spendTx(op, 100_000, 5000)
	require.Equal(t, Ok, p.Submit(SubmitRequest{Tx: tx, Source: Local}).Kind)

	// Promote it into the proposed stage directly, mirroring what a
	// reorg's active-proposal-set update would do.
	p.mu.Lock()
	entry := p.entries[tx.Hash()]
	delete(p.byStage[entry.Stage], entry.Hash)
	entry.Stage = StageProposed
	p.byStage[StageProposed][entry.Hash] = struct{}{}
	p.mu.Unlock()

	tmpl := p.GetBlockTemplate(1<<20, 10, 0)
	require.Len(t, tmpl.Transactions, 1)
	require.Equal(t, tx.Hash(), tmpl.Transactions[0].Transaction.Hash())
}

func TestInfoReportsOccupancy(t *testing.T) {
	p, _, genesis, _ := newTestPool(t)
	op := common.OutPoint{TxHash: genesis.Transactions[0].Hash(), Index: 0}
	tx := spendTx(op, 100_000, 1000)
	require.Equal(t, Ok, p.Submit(SubmitRequest{Tx: tx, Source: Local}).Kind)

	info := p.Info()
	require.Equal(t, 1, info.Pending)
	require.Equal(t, 0, info.Proposed)
}
