package chaindb

import (
	"testing"

	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/tests/fixtures"
	"github.com/stretchr/testify/require"
)

// seedLevelDBWithGenesis builds a fresh on-disk LevelDB store containing
// one attached block, returning its directory for snapshotting.
func seedLevelDBWithGenesis(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Config{Backend: LevelDB, Dir: dir})
	require.NoError(t, err)

	header := &types.Header{Number: 0, Timestamp: 0, CompactTarget: 0x20010000}
	block := &types.Block{Header: header, Transactions: []*types.Transaction{{}}}

	txn := m.BeginTransaction()
	require.NoError(t, txn.AttachBlock(block))
	require.NoError(t, txn.InsertTipHeader(header))
	require.NoError(t, txn.Commit())
	m.Close()

	return dir
}

// TestManagerReopensFromFixtureSnapshot seeds one on-disk store, snapshots
// it once, then restores independent copies for two subtests: one
// mutates its copy, and the other confirms that its own copy still holds
// the unmodified snapshot.
func TestManagerReopensFromFixtureSnapshot(t *testing.T) {
	seeded := seedLevelDBWithGenesis(t)
	snapshot := fixtures.Snapshot(t, seeded)

	t.Run("subtest A appends block 1", func(t *testing.T) {
		dir := fixtures.Restore(t, snapshot)
		m, err := NewManager(Config{Backend: LevelDB, Dir: dir})
		require.NoError(t, err)
		t.Cleanup(m.Close)

		tip, err := m.GetTipHeader()
		require.NoError(t, err)
		require.Equal(t, uint64(0), tip.Number)

		next := &types.Header{ParentHash: tip.Hash(), Number: 1, Timestamp: 1, CompactTarget: tip.CompactTarget}
		block := &types.Block{Header: next, Transactions: []*types.Transaction{{}}}
		txn := m.BeginTransaction()
		require.NoError(t, txn.AttachBlock(block))
		require.NoError(t, txn.InsertTipHeader(next))
		require.NoError(t, txn.Commit())

		tip, err = m.GetTipHeader()
		require.NoError(t, err)
		require.Equal(t, uint64(1), tip.Number)
	})

	t.Run("subtest B sees the unmodified snapshot", func(t *testing.T) {
		dir := fixtures.Restore(t, snapshot)
		m, err := NewManager(Config{Backend: LevelDB, Dir: dir})
		require.NoError(t, err)
		t.Cleanup(m.Close)

		tip, err := m.GetTipHeader()
		require.NoError(t, err)
		require.Equal(t, uint64(0), tip.Number)
	})
}
