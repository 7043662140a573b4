// Package consensus names the opaque collaborator the chain reconciler
// calls out to for everything difficulty, epoch and proposal-window
// related. Consensus parameter tuning, difficulty-adjustment formulas
// and reward schedules are intentionally not specified here; the core
// treats all of that as opaque functions a concrete Consensus
// collaborator provides. Grounded on consensus/protocol.go's shape (a
// narrow interface plus a couple of named constants) but emptied of the
// istanbul-BFT peer-broadcast machinery that protocol used for
// validator-set messaging, which has no home once the validator-set
// model is gone.
package consensus

import (
	"math/big"

	"github.com/riscvlabs/corechain/core/types"
)

// Consensus computes everything the chain reconciler and tx pool need
// but must not hard-code: next-block difficulty, epoch transitions, and
// the proposal window that decides when a short-id counts as proposed.
// A concrete PoW, PoA or hybrid implementation lives outside this tree;
// its difficulty-adjustment formula is deliberately not specified here.
type Consensus interface {
	// VerifyHeader checks header-level consensus rules (PoW validity,
	// difficulty, timestamp) given its resolved parent.
	VerifyHeader(header, parent *types.Header) error

	// NextEpoch computes the epoch a block at header extends into,
	// given the epoch its parent belonged to.
	NextEpoch(parent *types.Header, parentEpoch *types.EpochExt) (*types.EpochExt, error)

	// ProposalWindow returns the currently active proposal window.
	ProposalWindow() types.ProposalWindow

	// CalculateDifficulty computes the cumulative difficulty a header
	// contributes, used to extend BlockExt.TotalDifficulty.
	CalculateDifficulty(header *types.Header) *big.Int
}
