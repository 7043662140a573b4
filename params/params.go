// Package params collects the node's tunable constants: RISC-V
// cycle-accounting and mempool-policy constants, in place of an EVM-era
// gas table.
package params

import "time"

// Script scheduler constants.
const (
	// MaxVMsCount bounds the total number of VM instances, resident or
	// suspended, a single script run may spawn.
	MaxVMsCount = 16

	// MaxInstantiatedVMs bounds how many VMs are materialized in memory
	// at once; the rest are held as serialized snapshots.
	MaxInstantiatedVMs = 4

	// MaxFDs bounds the number of file descriptors a single run may
	// allocate via Pipe.
	MaxFDs = 64

	// SpawnExtraCyclesBase is charged to the current iteration once per
	// successful Spawn. Displacing a resident VM into a snapshot, or
	// restoring one, in the scheduler's instantiation path is not charged.
	SpawnExtraCyclesBase = 500
)

// Transaction pool defaults. These are defaults, not consensus rules; a
// running node may override them via config.
const (
	// DefaultPoolSizeLimit caps the combined size, in bytes, of the
	// pending+gap+proposed stages before lowest fee-rate eviction kicks
	// in.
	DefaultPoolSizeLimit = 300 * 1024 * 1024

	// DefaultMinFeeRate is the minimum fee per serialized byte a
	// transaction must pay to be accepted.
	DefaultMinFeeRate = 1000

	// DefaultMaxAncestors bounds the ancestor set size submit() will
	// walk before rejecting a transaction as too deeply chained.
	DefaultMaxAncestors = 125

	// DefaultOrphanPoolLimit bounds how many not-yet-resolvable remote
	// transactions the orphan pool holds before evicting the oldest.
	DefaultOrphanPoolLimit = 1000

	// DefaultRecentRejectSize bounds the recent-reject LRU that remembers
	// transaction hashes that recently failed submission, so a
	// re-announced rejected tx doesn't re-run the same failing checks.
	DefaultRecentRejectSize = 20000
)

// DefaultTxExpiry is how long an entry may sit in the pool with no chain
// activity before a reorg resync evicts it as stale.
const DefaultTxExpiry = 48 * time.Hour

// DefaultMaxTxVerifyCycles bounds the cycles a single transaction's
// script verification may consume before the chain reconciler or tx
// pool reports VerificationCycles.
const DefaultMaxTxVerifyCycles = 3_500_000

// DefaultProposalWindowClosest/Farthest give the distance, in blocks,
// from the tip within which a short-id counts as proposed; a concrete
// Consensus collaborator may compute a different window per epoch.
const (
	DefaultProposalWindowClosest  = 2
	DefaultProposalWindowFarthest = 10
)
