package types

import (
	"testing"

	"github.com/riscvlabs/corechain/common"
	"github.com/stretchr/testify/require"
)

func TestHeaderHashDeterministic(t *testing.T) {
	h1 := &Header{Number: 1, Timestamp: 1000, CompactTarget: 0x1d00ffff}
	h2 := &Header{Number: 1, Timestamp: 1000, CompactTarget: 0x1d00ffff}
	require.Equal(t, h1.Hash(), h2.Hash())

	h3 := &Header{Number: 2, Timestamp: 1000, CompactTarget: 0x1d00ffff}
	require.NotEqual(t, h1.Hash(), h3.Hash())
}

func TestCompactToDifficultyZero(t *testing.T) {
	require.Equal(t, int64(0), CompactToDifficulty(0).Int64())
}

func TestTransactionIsCellbase(t *testing.T) {
	coinbase := &Transaction{}
	require.True(t, coinbase.IsCellbase())

	spending := &Transaction{Inputs: []CellInput{{PreviousOutput: common.OutPoint{TxHash: common.BytesToHash([]byte{1}), Index: 0}}}}
	require.False(t, spending.IsCellbase())
}

func TestResolvedTransactionFee(t *testing.T) {
	rtx := &ResolvedTransaction{
		Transaction: &Transaction{
			Outputs: []CellOutput{{Capacity: 700}},
		},
		ResolvedInputs: []*CellMeta{
			{Output: CellOutput{Capacity: 1000}},
		},
	}
	fee, ok := rtx.Fee()
	require.True(t, ok)
	require.Equal(t, uint64(300), fee)

	rtx.Transaction.Outputs[0].Capacity = 1500
	_, ok = rtx.Fee()
	require.False(t, ok)
}

func TestScriptGroupsPartitionByHash(t *testing.T) {
	lockA := Script{CodeHash: common.BytesToHash([]byte{0xaa})}
	lockB := Script{CodeHash: common.BytesToHash([]byte{0xbb})}
	rtx := &ResolvedTransaction{
		Transaction: &Transaction{
			Inputs: []CellInput{{}, {}},
		},
		ResolvedInputs: []*CellMeta{
			{Output: CellOutput{Lock: lockA}},
			{Output: CellOutput{Lock: lockB}},
		},
	}
	hashOf := func(s *Script) [32]byte {
		var out [32]byte
		copy(out[:], s.CodeHash.Bytes())
		return out
	}
	groups := rtx.ScriptGroups(hashOf)
	require.Len(t, groups, 2)
}
