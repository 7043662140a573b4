package txpool

import (
	"sort"
	"time"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/txpool/chunk"
	"github.com/riscvlabs/corechain/core/types"
)

// NotifyUncle records a block that was accepted but did not become the
// new best tip; the pool takes no action, since an uncle never detaches
// or attaches anything on the main chain (the reconciler sends no
// NotifyReorg for such a commit).
func (p *Pool) NotifyUncle(ext *types.BlockExt) {}

// NotifyNewBlock refreshes the pool's idea of the current tip for
// query purposes; the substantive reorg work (stage recomputation,
// reinjection, eviction) happens in NotifyReorg, which is always called
// first with the same snapshot on every commit.
func (p *Pool) NotifyNewBlock(snap *snapshot.Snapshot) {}

// NotifyReorg runs the six-step reorg-sync algorithm: remove committed
// transactions, recompute every remaining entry's stage against the new
// snapshot, reinject detached transactions, expire stale entries, evict
// down to the size limit, then wake the block assembler.
func (p *Pool) NotifyReorg(detached, attached []*types.Block, detachedProposalIDs []common.ProposalShortID, snap *snapshot.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Step 1: detached-tx set D, and unconditional removal of every
	// attached-block transaction (now committed).
	attachedHashes := map[common.Hash]bool{}
	for _, b := range attached {
		for _, tx := range b.Transactions {
			if tx.IsCellbase() {
				continue
			}
			h := tx.Hash()
			attachedHashes[h] = true
			p.removeEntryLocked(h)
			p.removeOrphanLocked(h)
			if v, ok := p.chunked[h]; ok {
				v.Send(chunk.Stop)
				delete(p.chunked, h)
			}
		}
	}

	var detachedTxs []*types.Transaction
	for _, b := range detached {
		for _, tx := range b.Transactions {
			if !tx.IsCellbase() {
				detachedTxs = append(detachedTxs, tx)
			}
		}
	}

	// Step 2: recompute gap membership, then every entry's stage.
	for _, id := range detachedProposalIDs {
		delete(p.gapped, id)
		delete(p.gappedAt, id)
	}
	for _, b := range attached {
		for _, id := range b.Proposals {
			if _, ok := p.gapped[id]; !ok {
				p.gapped[id] = struct{}{}
				p.gappedAt[id] = b.Number()
			}
		}
	}
	if snap.TipHeader != nil {
		window := p.consensus.ProposalWindow()
		tip := snap.TipHeader.Number
		for id, at := range p.gappedAt {
			if tip > at+window.Farthest {
				delete(p.gapped, id)
				delete(p.gappedAt, id)
			}
		}
	}
	for _, e := range p.entries {
		p.restageLocked(e)
	}

	// Step 3: reinject detached transactions not also re-attached
	// unchanged; verification reuses the shared cycle cache by hash.
	for _, tx := range detachedTxs {
		h := tx.Hash()
		if attachedHashes[h] {
			continue
		}
		if _, ok := p.entries[h]; ok {
			continue
		}
		p.reject.Remove(h)
		p.submitLocked(SubmitRequest{Tx: tx, Source: Local})
	}

	// Step 4: expire stale entries.
	cutoff := time.Now().Add(-p.cfg.TxExpiry)
	for h, e := range p.entries {
		if e.AddedAt.Before(cutoff) {
			p.removeEntryLocked(h)
		}
	}

	// Step 5: evict lowest fee-rate entries while over the size limit.
	p.evictToSizeLimitLocked()

	// Step 6: wake the block assembler.
	p.notifyTemplateChanged()
	p.refreshOccupancyMetricsLocked()
}

// restageLocked recomputes e's stage from the current snapshot/gapped
// state and moves it between byStage buckets if it changed.
func (p *Pool) restageLocked(e *TxEntry) {
	next := p.classifyStage(e.Rtx.Transaction.ProposalShortID())
	if next == e.Stage {
		return
	}
	delete(p.byStage[e.Stage], e.Hash)
	e.Stage = next
	p.byStage[next][e.Hash] = struct{}{}
}

func (p *Pool) removeEntryLocked(hash common.Hash) {
	e, ok := p.entries[hash]
	if !ok {
		return
	}
	delete(p.entries, hash)
	delete(p.byStage[e.Stage], hash)
	for i := range e.Rtx.Transaction.Outputs {
		delete(p.poolOutputs, common.OutPoint{TxHash: hash, Index: uint32(i)})
	}
	for _, in := range e.Rtx.Transaction.Inputs {
		if p.spentByPool[in.PreviousOutput] == hash {
			delete(p.spentByPool, in.PreviousOutput)
		}
	}
}

// evictToSizeLimitLocked drops the lowest fee-rate entries (ties broken
// by insertion order) until the pool's total size is back under
// cfg.SizeLimit.
func (p *Pool) evictToSizeLimitLocked() {
	if p.cfg.SizeLimit == 0 {
		return
	}
	var total uint64
	for _, e := range p.entries {
		total += e.Size
	}
	if total <= p.cfg.SizeLimit {
		return
	}

	ranked := make([]*TxEntry, 0, len(p.entries))
	for _, e := range p.entries {
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FeeRate() != ranked[j].FeeRate() {
			return ranked[i].FeeRate() < ranked[j].FeeRate()
		}
		return ranked[i].AddedAt.After(ranked[j].AddedAt)
	})

	for _, e := range ranked {
		if total <= p.cfg.SizeLimit {
			break
		}
		total -= e.Size
		p.reject.Add(e.Hash)
		p.removeEntryLocked(e.Hash)
	}
}
