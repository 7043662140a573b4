package consensus

import (
	"fmt"
	"math/big"
	"time"

	"github.com/riscvlabs/corechain/core/types"
)

// DevConsensus is a fixed-difficulty, fixed-epoch-length Consensus for
// running a node without a real proof-of-work backend wired in, the way
// geth's --dev mode and clique's single-signer mode stand in for a full
// consensus engine during development. It is not meant to secure a
// production chain; a real PoW or PoA implementation is swapped in by
// passing a different Consensus to chain.New and txpool.New.
type DevConsensus struct {
	FixedDifficulty *big.Int
	EpochLength     uint64
	ProposalWindow_ types.ProposalWindow
	MaxFutureSkew   time.Duration
}

// NewDevConsensus returns a DevConsensus with reasonable defaults: a
// small nonzero difficulty, a 1000-block epoch, and a [2,10] proposal
// window.
func NewDevConsensus() *DevConsensus {
	return &DevConsensus{
		FixedDifficulty: big.NewInt(1 << 20),
		EpochLength:     1000,
		ProposalWindow_: types.ProposalWindow{Closest: 2, Farthest: 10},
		MaxFutureSkew:   15 * time.Second,
	}
}

// VerifyHeader checks that the number extends the parent by one, that
// the timestamp advances past the parent's, and that it is at most
// MaxFutureSkew ahead of the local clock; it accepts any nonce, since there is no proof-of-work check to perform without a
// concrete difficulty target comparison against a real hash function
// tied to the block's sealed encoding.
func (d *DevConsensus) VerifyHeader(header, parent *types.Header) error {
	if header.Number != parent.Number+1 {
		return fmt.Errorf("consensus: header number %d does not extend parent %d", header.Number, parent.Number)
	}
	if header.Timestamp <= parent.Timestamp {
		return fmt.Errorf("consensus: header timestamp %d does not advance parent %d", header.Timestamp, parent.Timestamp)
	}
	if header.Timestamp > uint64(time.Now().Add(d.MaxFutureSkew).Unix()) {
		return fmt.Errorf("consensus: header timestamp %d too far in the future", header.Timestamp)
	}
	return nil
}

// NextEpoch advances the epoch every EpochLength blocks and otherwise
// carries the parent epoch forward unchanged.
func (d *DevConsensus) NextEpoch(parent *types.Header, parentEpoch *types.EpochExt) (*types.EpochExt, error) {
	if parentEpoch == nil {
		return &types.EpochExt{Number: 0, StartNumber: 0, Length: d.EpochLength, CompactTarget: 0x1d00ffff}, nil
	}
	if parent.Number+1-parentEpoch.StartNumber < parentEpoch.Length {
		return parentEpoch, nil
	}
	return &types.EpochExt{
		Number:        parentEpoch.Number + 1,
		StartNumber:   parent.Number + 1,
		Length:        d.EpochLength,
		CompactTarget: parentEpoch.CompactTarget,
	}, nil
}

// ProposalWindow returns the fixed configured window.
func (d *DevConsensus) ProposalWindow() types.ProposalWindow { return d.ProposalWindow_ }

// CalculateDifficulty always returns the fixed configured difficulty.
func (d *DevConsensus) CalculateDifficulty(*types.Header) *big.Int {
	return new(big.Int).Set(d.FixedDifficulty)
}
