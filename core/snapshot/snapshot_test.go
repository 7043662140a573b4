package snapshot

import (
	"math/big"
	"testing"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/stretchr/testify/require"
)

func TestContainerLoadStore(t *testing.T) {
	initial := &Snapshot{
		TipHeader:       &types.Header{Number: 0},
		TotalDifficulty: big.NewInt(0),
	}
	c := NewContainer(initial)
	require.Equal(t, uint64(0), c.Load().TipHeader.Number)

	next := &Snapshot{
		TipHeader:       &types.Header{Number: 1},
		TotalDifficulty: big.NewInt(100),
	}
	c.Store(next)
	require.Equal(t, uint64(1), c.Load().TipHeader.Number)
}

func TestSnapshotHasProposal(t *testing.T) {
	id := common.ProposalShortIDFromHash(common.BytesToHash([]byte{1}))
	s := &Snapshot{ActiveProposalIDs: map[common.ProposalShortID]struct{}{id: {}}}
	require.True(t, s.HasProposal(id))

	other := common.ProposalShortIDFromHash(common.BytesToHash([]byte{2}))
	require.False(t, s.HasProposal(other))
}
