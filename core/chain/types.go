package chain

import (
	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/types"
)

// SwitchFlags controls how much verification consume() performs for one
// block.
type SwitchFlags struct {
	DisableAll    bool
	DisableScript bool
}

// UnverifiedBlock is the message the chain reconciler's single-writer
// loop receives on its work channel.
type UnverifiedBlock struct {
	Block        *types.Block
	ParentHeader *types.Header
	PeerID       string
	Switch       SwitchFlags

	// Callback, if set, is invoked with the outcome of consume() once it
	// completes.
	Callback func(*ConsumeOutcome, error)
}

// ConsumeOutcomeKind classifies a successful consume() (failures are
// reported as errors via core/errkind instead).
type ConsumeOutcomeKind int

const (
	// Extended means the block became (or extended) the new best tip.
	Extended ConsumeOutcomeKind = iota
	// PreviouslySeenAndVerified means the block was already verified
	// true in a prior consume() call.
	PreviouslySeenAndVerified
	// UncleBlockNotVerified means the block was accepted but did not
	// become the new best tip.
	UncleBlockNotVerified
)

// ConsumeOutcome is returned by consume() on success.
type ConsumeOutcome struct {
	Kind ConsumeOutcomeKind
}

// PoolNotifier is the tx-pool collaborator the reconciler informs after
// every commit.
type PoolNotifier interface {
	NotifyReorg(detached, attached []*types.Block, detachedProposalIDs []common.ProposalShortID, snap *snapshot.Snapshot)
	NotifyUncle(ext *types.BlockExt)
	NotifyNewBlock(snap *snapshot.Snapshot)
}

// PeerPunisher reports misbehaving peers, keyed by the error kind that
// gave rise to the report.
type PeerPunisher interface {
	Punish(peerID string, kind errkind.Kind)
}

// MMR is the external Merkle-Mountain-Range accumulator collaborator;
// only this narrow push/root surface is needed by the reconciler.
type MMR interface {
	Push(digest common.Hash) error
	Root() common.Hash
}

// MMRFactory rebuilds an in-memory MMR seeded from the common ancestor's
// digest.
type MMRFactory func(seed common.Hash) (MMR, error)
