package types

// EpochExt is the opaque-to-this-package epoch accounting record the
// Consensus collaborator produces; the core only needs to store and
// retrieve it via get_epoch_ext / insert_current_epoch_ext.
type EpochExt struct {
	Number          uint64
	StartNumber     uint64
	Length          uint64
	CompactTarget   uint32
	TotalUnclesCount uint64
}

// BlockEpochIndex is the (epoch number, block index within epoch) pair
// returned by get_block_epoch_index.
type BlockEpochIndex struct {
	Epoch uint64
	Index uint64
}

// ProposalWindow is the [Closest, Farthest] height range during which a
// short-id counts as "proposed".
type ProposalWindow struct {
	Closest  uint64
	Farthest uint64
}

// FarthestReload returns the number of blocks the active-proposal table
// must reload when rebuilding from scratch after a crash.
func (w ProposalWindow) FarthestReload() uint64 { return w.Farthest }

// Difficulty-adjustment formulas are opaque Consensus collaborator
// internals; only the types exchanged with the core (EpochExt,
// ProposalWindow) are defined here.
