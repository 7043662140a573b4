// Package txpool is the transaction pool (C2): it maintains the
// candidate set of transactions for future blocks, classifies each by
// proposal stage, evicts by capacity/age/conflict, and re-synchronizes
// itself after every chain reorg. Grounded on work/worker.go's pending
// transaction bookkeeping (ancestor sets via gopkg.in/fatih/set.v0,
// ResolvedTransaction-shaped verification) but restructured around an
// explicit three-stage state machine instead of a single pending pool.
package txpool

import (
	"time"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/params"
	set "gopkg.in/fatih/set.v0"
)

// Stage classifies a TxEntry by the active proposal window.
type Stage int

const (
	// StagePending holds transactions not yet proposed.
	StagePending Stage = iota
	// StageGap holds transactions proposed exactly once, awaiting
	// enough confirmations to become proposed.
	StageGap
	// StageProposed holds transactions within the active proposal
	// window, eligible for inclusion in the next committed block.
	StageProposed
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageGap:
		return "gap"
	case StageProposed:
		return "proposed"
	default:
		return "unknown"
	}
}

// Source distinguishes a transaction submitted by a local wallet/RPC
// caller from one relayed by a peer.
type Source int

const (
	Local Source = iota
	Remote
)

// SubmitRequest is the input to Submit.
type SubmitRequest struct {
	Tx     *types.Transaction
	Source Source

	// PeerID and DeclaredCycles only apply when Source == Remote: the
	// relaying peer, and the cycle count it claims the tx will consume
	// (checked against the actual verified count on completion).
	PeerID         string
	DeclaredCycles uint64
	HasDeclared    bool
}

// OutcomeKind classifies the result of a Submit call.
type OutcomeKind int

const (
	Ok OutcomeKind = iota
	Duplicated
	OrphanAccepted
	Rejected
	// Deferred means a remote transaction's script verification was
	// handed off to the chunked verifier and has not completed yet;
	// the caller is notified later via the pool's reject/accept path.
	Deferred
)

// SubmitResult is the output of Submit.
type SubmitResult struct {
	Kind OutcomeKind
	Err  error
}

// TxEntry is one transaction resident in the pool, together with the
// aggregate accounting needed for fee-rate eviction and ancestor-chain
// bookkeeping.
type TxEntry struct {
	Rtx    *types.ResolvedTransaction
	Hash   common.Hash
	Stage  Stage
	Source Source
	PeerID string

	Cycles uint64
	Fee    uint64
	Size   uint64

	// Ancestors is the set of in-pool transaction hashes this entry
	// spends from, transitively. AncestorsFee/Cycles/Size are this
	// entry's own counters plus the sum over Ancestors, and are what
	// get_block_template and size-based eviction rank on.
	Ancestors       *set.Set
	AncestorsFee    uint64
	AncestorsCycles uint64
	AncestorsSize   uint64

	AddedAt time.Time
}

// FeeRate ranks an entry for eviction and template assembly: total
// ancestor-inclusive fee per ancestor-inclusive byte.
func (e *TxEntry) FeeRate() float64 {
	if e.AncestorsSize == 0 {
		return 0
	}
	return float64(e.AncestorsFee) / float64(e.AncestorsSize)
}

// Config bounds pool admission and retention policy. Defaults come from
// package params; a running node may override them.
type Config struct {
	SizeLimit         uint64
	MinFeeRate        uint64
	MaxAncestors      int
	OrphanPoolLimit   int
	RecentRejectSize  int
	TxExpiry          time.Duration
	MaxTxVerifyCycles uint64

	// ChunkStep bounds how many cycles a single chunked-verifier step
	// runs before yielding control back to the pool's scheduling loop.
	ChunkStep uint64
}

// Info summarizes pool occupancy for RPC/metrics consumers.
type Info struct {
	Pending  int
	Gap      int
	Proposed int
	Orphans  int
	Chunked  int
}

// DefaultConfig returns the package params defaults, the values a node
// uses unless config overrides them.
func DefaultConfig() Config {
	return Config{
		SizeLimit:         params.DefaultPoolSizeLimit,
		MinFeeRate:        params.DefaultMinFeeRate,
		MaxAncestors:      params.DefaultMaxAncestors,
		OrphanPoolLimit:   params.DefaultOrphanPoolLimit,
		RecentRejectSize:  params.DefaultRecentRejectSize,
		TxExpiry:          params.DefaultTxExpiry,
		MaxTxVerifyCycles: params.DefaultMaxTxVerifyCycles,
		ChunkStep:         1 << 18,
	}
}
