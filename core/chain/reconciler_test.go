package chain

import (
	"math/big"
	"testing"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/cache"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/script"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/storage/chaindb"
	"github.com/stretchr/testify/require"
)

// --- fakes -----------------------------------------------------------

type fakeConsensus struct{}

func (fakeConsensus) VerifyHeader(header, parent *types.Header) error { return nil }
func (fakeConsensus) NextEpoch(parent *types.Header, parentEpoch *types.EpochExt) (*types.EpochExt, error) {
	return parentEpoch, nil
}
func (fakeConsensus) ProposalWindow() types.ProposalWindow { return types.ProposalWindow{} }
func (fakeConsensus) CalculateDifficulty(header *types.Header) *big.Int {
	return big.NewInt(1)
}

type fakeMMR struct{ pushed []common.Hash }

func (m *fakeMMR) Push(digest common.Hash) error {
	m.pushed = append(m.pushed, digest)
	return nil
}
func (m *fakeMMR) Root() common.Hash {
	if len(m.pushed) == 0 {
		return common.Hash{}
	}
	return m.pushed[len(m.pushed)-1]
}

func fakeMMRFactory(seed common.Hash) (MMR, error) { return &fakeMMR{}, nil }

type fakePool struct {
	reorgs  int
	uncles  int
	newTips int
}

func (p *fakePool) NotifyReorg(detached, attached []*types.Block, detachedProposalIDs []common.ProposalShortID, snap *snapshot.Snapshot) {
	p.reorgs++
}
func (p *fakePool) NotifyUncle(ext *types.BlockExt) { p.uncles++ }
func (p *fakePool) NotifyNewBlock(snap *snapshot.Snapshot) { p.newTips++ }

type fakePunisher struct {
	punished []string
}

func (p *fakePunisher) Punish(peerID string, kind errkind.Kind) {
	p.punished = append(p.punished, peerID)
}

// exitZeroMachine is a Machine that exits successfully on its first Run,
// used where script verification is a pass-through for reconciler-level
// tests (the scheduler itself is exercised by core/script's own tests).
type exitZeroMachine struct{}

func (exitZeroMachine) Run(budget uint64) (script.RunOutcome, *script.Message, error) {
	return script.Exited, nil, nil
}
func (exitZeroMachine) Complete(script.SyscallResult)  {}
func (exitZeroMachine) Cycles() uint64                 { return 1 }
func (exitZeroMachine) ExitCode() int8                 { return 0 }
func (exitZeroMachine) Snapshot() ([]byte, error)      { return nil, nil }
func (exitZeroMachine) Restore([]byte) error           { return nil }

func exitZeroFactory(loc script.CodeLocation, argv [][]byte) (script.Machine, error) {
	return exitZeroMachine{}, nil
}

// --- fixtures ----------------------------------------------------------

var alwaysSuccessLock = types.Script{CodeHash: common.Hash{0x01}, HashType: 0, Args: nil}

func cellbaseTx(blockNumber uint64) *types.Transaction {
	return &types.Transaction{
		Outputs: []types.CellOutput{{
			Capacity: 1000,
			Lock:     alwaysSuccessLock,
		}},
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

func block(parent common.Hash, number uint64, salt byte) *types.Block {
	h := header(parent, number)
	h.Nonce = uint64(salt)
	return &types.Block{Header: h, Transactions: []*types.Transaction{cellbaseTx(number)}}
}

func newTestReconciler(t *testing.T) (*Reconciler, *chaindb.Manager, *fakePool, *fakePunisher) {
	t.Helper()
	store, err := chaindb.NewManager(chaindb.Config{Backend: chaindb.MemoryDB})
	require.NoError(t, err)

	txCache, err := cache.NewTxVerifyCache(64)
	require.NoError(t, err)

	verifier := NewVerifier(exitZeroFactory, txCache, 1_000_000)
	pool := &fakePool{}
	punisher := &fakePunisher{}

	genesis := block(common.Hash{}, 0, 0)
	txn := store.BeginTransaction()
	require.NoError(t, txn.AttachBlock(genesis))
	require.NoError(t, txn.AttachBlockCell(genesis, collectOutputData(genesis)))
	genesisExt := &types.BlockExt{TotalDifficulty: big.NewInt(1), Verified: types.VerifyValid}
	require.NoError(t, txn.InsertBlockExt(genesis.Hash(), genesisExt))
	require.NoError(t, txn.InsertTipHeader(genesis.Header))
	require.NoError(t, txn.Commit())

	snap := snapshot.NewContainer(&snapshot.Snapshot{
		TipHeader:         genesis.Header,
		TotalDifficulty:   big.NewInt(1),
		ActiveProposalIDs: map[common.ProposalShortID]struct{}{},
	})

	r := New(store, snap, fakeConsensus{}, verifier, fakeMMRFactory, pool, punisher, txCache, nil)
	return r, store, pool, punisher
}

// TestConsumeLinearExtension covers E1: a single block extending the
// current best tip becomes the new tip.
func TestConsumeLinearExtension(t *testing.T) {
	r, store, pool, _ := newTestReconciler(t)
	genesisHash := r.snap.Load().TipHeader.Hash()

	b1 := block(genesisHash, 1, 1)
	outcome, err := r.Consume(&UnverifiedBlock{Block: b1})
	require.NoError(t, err)
	require.Equal(t, Extended, outcome.Kind)

	snap := r.snap.Load()
	require.Equal(t, b1.Hash(), snap.TipHeader.Hash())
	require.Equal(t, 1, pool.newTips)

	stored, err := store.GetBlockExt(b1.Hash())
	require.NoError(t, err)
	require.Equal(t, types.VerifyValid, stored.Verified)
}

// TestConsumeReorgDepthOne covers E2: a two-block side branch that
// outweighs the single-block current tip triggers a one-block rollback
// and a two-block replay.
func TestConsumeReorgDepthOne(t *testing.T) {
	r, store, pool, _ := newTestReconciler(t)
	genesisHash := r.snap.Load().TipHeader.Hash()

	mainB1 := block(genesisHash, 1, 1)
	_, err := r.Consume(&UnverifiedBlock{Block: mainB1})
	require.NoError(t, err)

	sideB1 := block(genesisHash, 1, 2)
	sideB2 := block(sideB1.Hash(), 2, 1)

	// The side branch's first block alone is not heavier than the main
	// tip, so it is staged as an uncle.
	outcome, err := r.Consume(&UnverifiedBlock{Block: sideB1})
	require.NoError(t, err)
	require.Equal(t, UncleBlockNotVerified, outcome.Kind)
	require.Equal(t, 1, pool.uncles)

	outcome, err = r.Consume(&UnverifiedBlock{Block: sideB2})
	require.NoError(t, err)
	require.Equal(t, Extended, outcome.Kind)
	require.Equal(t, 2, pool.reorgs) // mainB1's extension, then sideB2's reorg

	snap := r.snap.Load()
	require.Equal(t, sideB2.Hash(), snap.TipHeader.Hash())

	hash, ok, err := store.GetBlockHash(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sideB1.Hash(), hash)
}

// TestConsumeInvalidParentQuarantine covers E3: once a block's ext is
// marked VerifyInvalid, any child referencing it as parent is rejected
// without replay and its peer is reported.
func TestConsumeInvalidParentQuarantine(t *testing.T) {
	r, store, _, punisher := newTestReconciler(t)
	genesisHash := r.snap.Load().TipHeader.Hash()

	bad := block(genesisHash, 1, 1)
	badExt := &types.BlockExt{TotalDifficulty: big.NewInt(2), Verified: types.VerifyInvalid}
	txn := store.BeginTransaction()
	require.NoError(t, txn.InsertBlockExt(bad.Hash(), badExt))
	require.NoError(t, txn.Commit())

	child := block(bad.Hash(), 2, 1)
	outcome, err := r.Consume(&UnverifiedBlock{Block: child, PeerID: "peer-1"})
	require.Nil(t, outcome)
	require.Error(t, err)
	require.Equal(t, errkind.InvalidParent, errkind.KindOf(err))
	require.Contains(t, punisher.punished, "peer-1")
}

// TestConsumePreviouslySeenVerified covers the step 1 short-circuit: a
// block already marked VerifyValid is reported without re-running the
// algorithm.
func TestConsumePreviouslySeenVerified(t *testing.T) {
	r, _, pool, _ := newTestReconciler(t)
	genesisHash := r.snap.Load().TipHeader.Hash()

	b1 := block(genesisHash, 1, 1)
	_, err := r.Consume(&UnverifiedBlock{Block: b1})
	require.NoError(t, err)
	require.Equal(t, 1, pool.newTips)

	outcome, err := r.Consume(&UnverifiedBlock{Block: b1})
	require.NoError(t, err)
	require.Equal(t, PreviouslySeenAndVerified, outcome.Kind)
	require.Equal(t, 1, pool.newTips) // no second notification
}
