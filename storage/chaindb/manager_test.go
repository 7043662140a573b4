package chaindb

import (
	"testing"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Backend: MemoryDB})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManagerAttachAndReadBlock(t *testing.T) {
	m := newTestManager(t)

	header := &types.Header{Number: 1, Timestamp: 100, CompactTarget: 0x1d00ffff}
	block := &types.Block{Header: header, Transactions: []*types.Transaction{{}}}

	txn := m.BeginTransaction()
	require.NoError(t, txn.AttachBlock(block))
	require.NoError(t, txn.InsertTipHeader(header))
	require.NoError(t, txn.Commit())

	got, err := m.GetBlock(block.Hash())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, block.Number(), got.Number())

	hash, ok, err := m.GetBlockHash(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Hash(), hash)

	tip, err := m.GetTipHeader()
	require.NoError(t, err)
	require.Equal(t, header.Number, tip.Number)
}

func TestManagerDetachBlockRemovesIndex(t *testing.T) {
	m := newTestManager(t)

	header := &types.Header{Number: 1}
	block := &types.Block{Header: header}

	txn := m.BeginTransaction()
	require.NoError(t, txn.AttachBlock(block))
	require.NoError(t, txn.Commit())

	txn2 := m.BeginTransaction()
	require.NoError(t, txn2.DetachBlock(block))
	require.NoError(t, txn2.Commit())

	got, err := m.GetBlock(block.Hash())
	require.NoError(t, err)
	require.Nil(t, got)

	_, ok, err := m.GetBlockHash(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerCellLifecycle(t *testing.T) {
	m := newTestManager(t)

	tx := &types.Transaction{Outputs: []types.CellOutput{{Capacity: 500}}}
	block := &types.Block{
		Header:       &types.Header{Number: 5},
		Transactions: []*types.Transaction{tx},
	}

	txn := m.BeginTransaction()
	require.NoError(t, txn.AttachBlockCell(block, nil))
	require.NoError(t, txn.Commit())

	op := common.OutPoint{TxHash: tx.Hash(), Index: 0}
	result, err := m.GetCell(op)
	require.NoError(t, err)
	require.True(t, result.IsLive())
	require.Equal(t, uint64(500), result.Cell.Output.Capacity)

	txn2 := m.BeginTransaction()
	require.NoError(t, txn2.DetachBlockCell(block))
	require.NoError(t, txn2.Commit())

	result2, err := m.GetCell(op)
	require.NoError(t, err)
	require.True(t, result2.IsUnknown())
}

func TestManagerEpochExt(t *testing.T) {
	m := newTestManager(t)

	epoch := &types.EpochExt{Number: 2, StartNumber: 100, Length: 50}
	txn := m.BeginTransaction()
	require.NoError(t, txn.InsertCurrentEpochExt(epoch))
	require.NoError(t, txn.Commit())

	got, err := m.GetEpochExt(2)
	require.NoError(t, err)
	require.Equal(t, epoch.StartNumber, got.StartNumber)
}
