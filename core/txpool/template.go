package txpool

import (
	"sort"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/types"
)

// BlockTemplate is what get_block_template hands back: short-ids worth
// proposing in the next block, plus the resolved transactions eligible
// for direct commitment.
type BlockTemplate struct {
	Proposals    []common.ProposalShortID
	Transactions []*types.ResolvedTransaction
}

// GetBlockTemplate returns a candidate proposal set (from pending-stage
// entries only) and a candidate committable set (from
// proposed-stage entries, greedily packed by ancestor-inclusive fee
// rate) under the given byte and count limits.
func (p *Pool) GetBlockTemplate(bytesLimit uint64, proposalsLimit int, maxVersion uint32) *BlockTemplate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tmpl := &BlockTemplate{}
	tmpl.Proposals = p.pickProposalsLocked(proposalsLimit, maxVersion)
	tmpl.Transactions = p.pickCommittableLocked(bytesLimit, maxVersion)
	return tmpl
}

func (p *Pool) pickProposalsLocked(limit int, maxVersion uint32) []common.ProposalShortID {
	var candidates []*TxEntry
	for h := range p.byStage[StagePending] {
		candidates = append(candidates, p.entries[h])
	}
	sortByFeeRateDesc(candidates)

	var ids []common.ProposalShortID
	for _, e := range candidates {
		if len(ids) >= limit {
			break
		}
		if e.Rtx.Transaction.Version > maxVersion {
			continue
		}
		ids = append(ids, e.Rtx.Transaction.ProposalShortID())
	}
	return ids
}

// pickCommittableLocked greedily packs proposed-stage entries by
// descending ancestor-inclusive fee rate, honoring the constraint that
// an entry cannot be packed before every one of its in-pool ancestors
// is also packed. Grounded on work/worker.go's fee-ordered inclusion
// loop, generalized from a flat list to one that respects ancestor
// chains via repeated passes instead of a single sorted walk.
func (p *Pool) pickCommittableLocked(bytesLimit uint64, maxVersion uint32) []*types.ResolvedTransaction {
	var remaining []*TxEntry
	for h := range p.byStage[StageProposed] {
		e := p.entries[h]
		if e.Rtx.Transaction.Version <= maxVersion {
			remaining = append(remaining, e)
		}
	}
	sortByFeeRateDesc(remaining)

	included := map[common.Hash]bool{}
	var out []*types.ResolvedTransaction
	var size uint64

	for {
		progressed := false
		for i, e := range remaining {
			if e == nil {
				continue
			}
			if !p.ancestorsIncluded(e, included) {
				continue
			}
			if size+e.Size > bytesLimit {
				continue
			}
			out = append(out, e.Rtx)
			included[e.Hash] = true
			size += e.Size
			remaining[i] = nil
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

func (p *Pool) ancestorsIncluded(e *TxEntry, included map[common.Hash]bool) bool {
	for _, a := range e.Ancestors.List() {
		ah, ok := a.(common.Hash)
		if !ok {
			continue
		}
		if _, exists := p.entries[ah]; !exists {
			continue
		}
		if !included[ah] {
			return false
		}
	}
	return true
}

func sortByFeeRateDesc(entries []*TxEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FeeRate() != entries[j].FeeRate() {
			return entries[i].FeeRate() > entries[j].FeeRate()
		}
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
}
