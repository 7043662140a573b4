package txpool

import (
	"sync"
	"time"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/consensus"
	"github.com/riscvlabs/corechain/core/chain"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/script"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/txpool/chunk"
	"github.com/riscvlabs/corechain/core/txpool/recentreject"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/log"
	"github.com/riscvlabs/corechain/metrics"
	"github.com/riscvlabs/corechain/storage/chaindb"
	set "gopkg.in/fatih/set.v0"
)

// PeerPunisher reports misbehaving peers; it has the same method set as
// core/chain's PeerPunisher, so both subsystems can share one
// implementation.
type PeerPunisher interface {
	Punish(peerID string, kind errkind.Kind)
}

// TemplateNotifier is told whenever the set of proposed/committable
// entries get_block_template would return may have changed, so a block
// assembler collaborator can wake up and recompute.
type TemplateNotifier interface {
	TemplateChanged()
}

type orphanEntry struct {
	Tx             *types.Transaction
	Source         Source
	PeerID         string
	DeclaredCycles uint64
	HasDeclared    bool
	AddedAt        time.Time
}

// Pool is the transaction pool (C2). It presents itself as a single
// logical owner: mutations serialize under mu in write mode, reads take
// the read lock and observe a consistent snapshot-plus-pool view.
type Pool struct {
	store          *chaindb.Manager
	snap           *snapshot.Container
	verifier       *chain.Verifier
	machineFactory script.MachineFactory
	consensus      consensus.Consensus
	punisher       PeerPunisher
	template       TemplateNotifier
	cfg            Config
	log            log.Logger

	mu sync.RWMutex

	entries map[common.Hash]*TxEntry
	byStage [3]map[common.Hash]struct{}

	// poolOutputs indexes outputs produced by pool entries, so a
	// dependent transaction's inputs can resolve against unconfirmed
	// ancestors instead of only the committed store.
	poolOutputs map[common.OutPoint]common.Hash
	spentByPool map[common.OutPoint]common.Hash

	orphans   map[common.Hash]*orphanEntry
	waitingOn map[common.OutPoint][]common.Hash

	// gapped holds proposal short-ids that a committed block has named
	// in its Proposals list but that are not yet in the active snapshot
	// proposal set; it drives the pending->gap transition independent
	// of whether the pool happens to hold a matching entry yet.
	// gappedAt records the block height each one was first proposed at,
	// so a short-id that ages past the consensus proposal window's
	// farthest bound without becoming active-proposed falls back out of
	// gap instead of sitting there forever.
	gapped   map[common.ProposalShortID]struct{}
	gappedAt map[common.ProposalShortID]uint64

	reject  *recentreject.Filter
	chunked map[common.Hash]*chunk.Verifier
}

// New builds an empty Pool. verifier and machineFactory are shared with
// the chain reconciler so a transaction verified once by the pool hits
// the same cycle-accounting cache if the reconciler sees it again in a
// block.
func New(
	store *chaindb.Manager,
	snap *snapshot.Container,
	verifier *chain.Verifier,
	machineFactory script.MachineFactory,
	cons consensus.Consensus,
	punisher PeerPunisher,
	cfg Config,
) (*Pool, error) {
	reject, err := recentreject.New(cfg.RecentRejectSize)
	if err != nil {
		return nil, err
	}
	return &Pool{
		store:          store,
		snap:           snap,
		verifier:       verifier,
		machineFactory: machineFactory,
		consensus:      cons,
		punisher:       punisher,
		cfg:            cfg,
		log:            log.NewModuleLogger(log.TxPool),
		entries:        map[common.Hash]*TxEntry{},
		byStage:        [3]map[common.Hash]struct{}{{}, {}, {}},
		poolOutputs:    map[common.OutPoint]common.Hash{},
		spentByPool:    map[common.OutPoint]common.Hash{},
		orphans:        map[common.Hash]*orphanEntry{},
		waitingOn:      map[common.OutPoint][]common.Hash{},
		gapped:         map[common.ProposalShortID]struct{}{},
		gappedAt:       map[common.ProposalShortID]uint64{},
		reject:         reject,
		chunked:        map[common.Hash]*chunk.Verifier{},
	}, nil
}

// SetTemplateNotifier attaches the block-assembler collaborator woken on
// every stage-affecting change. Optional; nil leaves it a no-op.
func (p *Pool) SetTemplateNotifier(t TemplateNotifier) { p.template = t }

func (p *Pool) notifyTemplateChanged() {
	if p.template != nil {
		p.template.TemplateChanged()
	}
}

// Contains reports whether short_id names a pool-resident transaction.
func (p *Pool) Contains(id common.ProposalShortID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.shortIDIndex()[id]
	return ok
}

// Get returns the entry named by short_id, if resident.
func (p *Pool) Get(id common.ProposalShortID) (*TxEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hash, ok := p.shortIDIndex()[id]
	if !ok {
		return nil, false
	}
	return p.entries[hash], true
}

// shortIDIndex is rebuilt per call rather than kept incrementally: pool
// sizes in the low thousands make this cheap relative to a submit's
// verification cost, and it avoids a second map to keep in sync on every
// admit/evict.
func (p *Pool) shortIDIndex() map[common.ProposalShortID]common.Hash {
	idx := make(map[common.ProposalShortID]common.Hash, len(p.entries))
	for h, e := range p.entries {
		idx[e.Rtx.Transaction.ProposalShortID()] = h
	}
	return idx
}

// Info summarizes current occupancy.
func (p *Pool) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Info{
		Pending:  len(p.byStage[StagePending]),
		Gap:      len(p.byStage[StageGap]),
		Proposed: len(p.byStage[StageProposed]),
		Orphans:  len(p.orphans),
		Chunked:  len(p.chunked),
	}
}

// Submit runs the seven-step ingestion algorithm for one transaction.
func (p *Pool) Submit(req SubmitRequest) SubmitResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.submitLocked(req)
	if res.Kind == Rejected {
		metrics.TxPoolRejected.Inc(1)
	}
	return res
}

func (p *Pool) submitLocked(req SubmitRequest) SubmitResult {
	tx := req.Tx
	hash := tx.Hash()

	// Step 1: non-contextual verification.
	if err := nonContextualVerify(tx); err != nil {
		if req.Source == Remote && p.punisher != nil {
			p.punisher.Punish(req.PeerID, errkind.KindOf(err))
		}
		return SubmitResult{Kind: Rejected, Err: err}
	}

	// Step 2: duplicate check across every stage the tx could already
	// occupy.
	if _, ok := p.entries[hash]; ok {
		return SubmitResult{Kind: Duplicated}
	}
	if _, ok := p.orphans[hash]; ok {
		return SubmitResult{Kind: Duplicated}
	}
	if _, ok := p.chunked[hash]; ok {
		return SubmitResult{Kind: Duplicated}
	}
	if p.reject.Contains(hash) {
		return SubmitResult{Kind: Rejected, Err: errkind.New(errkind.Duplicated, hash.Hex(), "recently rejected")}
	}

	// Step 3: resolve inputs/deps against the pool overlay + store.
	rtx, unknown, err := p.resolveTransaction(tx)
	if err != nil {
		p.reject.Add(hash)
		if req.Source == Remote && p.punisher != nil && errkind.KindOf(err).IsMalformed() {
			p.punisher.Punish(req.PeerID, errkind.KindOf(err))
		}
		return SubmitResult{Kind: Rejected, Err: err}
	}
	if len(unknown) > 0 {
		if req.Source == Local {
			return SubmitResult{Kind: Rejected, Err: errkind.New(errkind.Resolve, hash.Hex(), "unresolvable input")}
		}
		p.parkOrphan(hash, req, unknown)
		return SubmitResult{Kind: OrphanAccepted}
	}

	// Step 4: fee computation and fee-rate check.
	fee, ok := rtx.Fee()
	if !ok {
		p.reject.Add(hash)
		return SubmitResult{Kind: Rejected, Err: errkind.New(errkind.VerificationCapacity, hash.Hex(), "outputs exceed inputs")}
	}
	size := tx.SerializedSize()
	if size == 0 || fee < size*p.cfg.MinFeeRate {
		p.reject.Add(hash)
		return SubmitResult{Kind: Rejected, Err: errkind.New(errkind.Full, hash.Hex(), "fee rate below minimum")}
	}

	// Step 5: stage classification.
	stage := p.classifyStage(tx.ProposalShortID())

	// Step 6: script verification, eager for local, possibly deferred
	// for remote.
	tip := p.snap.Load().TipHeader
	blockNumber := uint64(0)
	if tip != nil {
		blockNumber = tip.Number
	}

	cycles, fee2, verr := p.verifier.VerifyTransaction(rtx, blockNumber, chain.SwitchFlags{})
	if verr != nil {
		if req.Source == Remote && errkind.KindOf(verr) == errkind.VerificationCycles {
			return p.beginChunkedVerify(hash, req, rtx, stage, blockNumber)
		}
		p.reject.Add(hash)
		if p.punisher != nil && req.Source == Remote && errkind.KindOf(verr).IsMalformed() {
			p.punisher.Punish(req.PeerID, errkind.KindOf(verr))
		}
		return SubmitResult{Kind: Rejected, Err: verr}
	}
	if req.Source == Remote && req.HasDeclared && req.DeclaredCycles != cycles {
		p.reject.Add(hash)
		return SubmitResult{Kind: Rejected, Err: errkind.New(errkind.DeclaredWrongCycles, hash.Hex(), "declared cycles mismatch")}
	}

	if n := p.countAncestorsLocked(rtx); n > p.cfg.MaxAncestors {
		p.reject.Add(hash)
		return SubmitResult{Kind: Rejected, Err: errkind.New(errkind.Full, hash.Hex(), "too many in-pool ancestors")}
	}

	// Step 7: admit.
	p.admitLocked(hash, rtx, stage, req.Source, req.PeerID, cycles, fee2, size)
	p.notifyTemplateChanged()
	p.refreshOccupancyMetricsLocked()
	return SubmitResult{Kind: Ok}
}

// refreshOccupancyMetricsLocked publishes the pending/proposed gauges
// named in the metrics package's subsystem list. Caller holds mu.
func (p *Pool) refreshOccupancyMetricsLocked() {
	metrics.TxPoolPending.Update(int64(len(p.byStage[StagePending]) + len(p.byStage[StageGap])))
	metrics.TxPoolProposed.Update(int64(len(p.byStage[StageProposed])))
}

// countAncestorsLocked counts rtx's transitive in-pool ancestors without
// mutating any pool state, so submitLocked can reject an overly deep
// chain before admitLocked commits to indexing it.
func (p *Pool) countAncestorsLocked(rtx *types.ResolvedTransaction) int {
	seen := set.New()
	for _, in := range rtx.Transaction.Inputs {
		producer, ok := p.poolOutputs[in.PreviousOutput]
		if !ok || seen.Has(producer) {
			continue
		}
		seen.Add(producer)
		if anc, ok := p.entries[producer]; ok {
			for _, a := range anc.Ancestors.List() {
				seen.Add(a)
			}
		}
	}
	return seen.Size()
}

func (p *Pool) classifyStage(id common.ProposalShortID) Stage {
	snap := p.snap.Load()
	if snap.HasProposal(id) {
		return StageProposed
	}
	if _, ok := p.gapped[id]; ok {
		return StageGap
	}
	return StagePending
}

// admitLocked inserts a fully-verified transaction as a TxEntry,
// indexing its outputs for descendant chaining and computing ancestor
// aggregates. Caller holds mu.
func (p *Pool) admitLocked(hash common.Hash, rtx *types.ResolvedTransaction, stage Stage, source Source, peerID string, cycles, fee, size uint64) {
	entry := &TxEntry{
		Rtx:       rtx,
		Hash:      hash,
		Stage:     stage,
		Source:    source,
		PeerID:    peerID,
		Cycles:    cycles,
		Fee:       fee,
		Size:      size,
		Ancestors: set.New(),
		AddedAt:   time.Now(),
	}

	for _, in := range rtx.Transaction.Inputs {
		if producer, ok := p.poolOutputs[in.PreviousOutput]; ok {
			entry.Ancestors.Add(producer)
			if anc, ok := p.entries[producer]; ok {
				for _, a := range anc.Ancestors.List() {
					entry.Ancestors.Add(a)
				}
			}
		}
		p.spentByPool[in.PreviousOutput] = hash
	}

	entry.AncestorsFee = fee
	entry.AncestorsCycles = cycles
	entry.AncestorsSize = size
	for _, a := range entry.Ancestors.List() {
		ah := a.(common.Hash)
		if anc, ok := p.entries[ah]; ok {
			entry.AncestorsFee += anc.Fee
			entry.AncestorsCycles += anc.Cycles
			entry.AncestorsSize += anc.Size
		}
	}

	p.entries[hash] = entry
	p.byStage[stage][hash] = struct{}{}
	for i := range rtx.Transaction.Outputs {
		p.poolOutputs[common.OutPoint{TxHash: hash, Index: uint32(i)}] = hash
	}
	p.waitingOn = p.resolveWaiters(hash)
}

// resolveWaiters retries orphans that were only waiting on hash's
// now-resolved outputs, returning the updated waitingOn map.
func (p *Pool) resolveWaiters(hash common.Hash) map[common.OutPoint][]common.Hash {
	var toRetry []common.Hash
	for op, waiters := range p.waitingOn {
		if op.TxHash != hash {
			continue
		}
		toRetry = append(toRetry, waiters...)
		delete(p.waitingOn, op)
	}
	for _, oh := range toRetry {
		orphan, ok := p.orphans[oh]
		if !ok {
			continue
		}
		delete(p.orphans, oh)
		p.submitLocked(SubmitRequest{
			Tx:             orphan.Tx,
			Source:         orphan.Source,
			PeerID:         orphan.PeerID,
			DeclaredCycles: orphan.DeclaredCycles,
			HasDeclared:    orphan.HasDeclared,
		})
	}
	return p.waitingOn
}

func (p *Pool) parkOrphan(hash common.Hash, req SubmitRequest, unknown []common.OutPoint) {
	if len(p.orphans) >= p.cfg.OrphanPoolLimit {
		p.evictOldestOrphanLocked()
	}
	p.orphans[hash] = &orphanEntry{
		Tx:             req.Tx,
		Source:         req.Source,
		PeerID:         req.PeerID,
		DeclaredCycles: req.DeclaredCycles,
		HasDeclared:    req.HasDeclared,
		AddedAt:        time.Now(),
	}
	for _, op := range unknown {
		p.waitingOn[op] = append(p.waitingOn[op], hash)
	}
}

func (p *Pool) evictOldestOrphanLocked() {
	var oldest common.Hash
	var oldestAt time.Time
	first := true
	for h, o := range p.orphans {
		if first || o.AddedAt.Before(oldestAt) {
			oldest, oldestAt, first = h, o.AddedAt, false
		}
	}
	if !first {
		p.removeOrphanLocked(oldest)
	}
}

func (p *Pool) removeOrphanLocked(hash common.Hash) {
	delete(p.orphans, hash)
	for op, waiters := range p.waitingOn {
		kept := waiters[:0]
		for _, w := range waiters {
			if w != hash {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			delete(p.waitingOn, op)
		} else {
			p.waitingOn[op] = kept
		}
	}
}

// beginChunkedVerify hands rtx's script verification off to a chunked
// verifier and returns Deferred; the entry is admitted once the stepper
// reports completion (see chunkStep).
func (p *Pool) beginChunkedVerify(hash common.Hash, req SubmitRequest, rtx *types.ResolvedTransaction, stage Stage, blockNumber uint64) SubmitResult {
	groups := rtx.ScriptGroups(hashOfScript)
	if len(groups) == 0 {
		p.admitLocked(hash, rtx, stage, req.Source, req.PeerID, 0, mustFee(rtx), req.Tx.SerializedSize())
		p.notifyTemplateChanged()
		return SubmitResult{Kind: Ok}
	}

	var s *types.Script
	g := groups[0]
	if g.IsLock {
		s = &rtx.ResolvedInputs[g.InputIndices[0]].Output.Lock
	} else {
		s = rtx.Transaction.Outputs[g.OutputIndices[0]].Type
	}
	sched, err := script.New(p.machineFactory, script.CodeLocation(s.CodeHash.Bytes()), [][]byte{s.Args})
	if err != nil {
		p.reject.Add(hash)
		return SubmitResult{Kind: Rejected, Err: errkind.Wrap(errkind.VerificationScript, hash.Hex(), err)}
	}

	v := chunk.New(sched, p.cfg.ChunkStep, p.cfg.MaxTxVerifyCycles)
	p.chunked[hash] = v
	v.Start()
	go p.awaitChunk(hash, req, rtx, stage, blockNumber, v)

	return SubmitResult{Kind: Deferred}
}

func (p *Pool) awaitChunk(hash common.Hash, req SubmitRequest, rtx *types.ResolvedTransaction, stage Stage, blockNumber uint64, v *chunk.Verifier) {
	res := <-v.Done()

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.chunked, hash)
	if res.Err != nil {
		p.reject.Add(hash)
		metrics.TxPoolRejected.Inc(1)
		p.log.Debug("chunked verification failed", "hash", hash.Hex(), "error", res.Err)
		return
	}
	if res.ExitCode != 0 {
		p.reject.Add(hash)
		metrics.TxPoolRejected.Inc(1)
		return
	}
	if req.HasDeclared && req.DeclaredCycles != res.Cycles {
		p.reject.Add(hash)
		metrics.TxPoolRejected.Inc(1)
		return
	}

	fee, _ := rtx.Fee()
	p.admitLocked(hash, rtx, stage, req.Source, req.PeerID, res.Cycles, fee, req.Tx.SerializedSize())
	p.notifyTemplateChanged()
	p.refreshOccupancyMetricsLocked()
}

func mustFee(rtx *types.ResolvedTransaction) uint64 {
	fee, _ := rtx.Fee()
	return fee
}

// nonContextualVerify runs the structural checks a transaction must
// pass independent of any chain state: no duplicate inputs, at least
// one input or output, and well-formed cell-dep types.
func nonContextualVerify(tx *types.Transaction) error {
	if len(tx.Inputs) == 0 && len(tx.Outputs) == 0 {
		return errkind.New(errkind.InvalidBlock, tx.Hash().Hex(), "empty transaction")
	}
	seen := map[common.OutPoint]bool{}
	for _, in := range tx.Inputs {
		if seen[in.PreviousOutput] {
			return errkind.New(errkind.InvalidBlock, tx.Hash().Hex(), "duplicate input")
		}
		seen[in.PreviousOutput] = true
	}
	for _, dep := range tx.CellDeps {
		if dep.DepType != types.DepTypeCode && dep.DepType != types.DepTypeDepGroup {
			return errkind.New(errkind.InvalidBlock, tx.Hash().Hex(), "malformed cell-dep type")
		}
	}
	return nil
}

func hashOfScript(s *types.Script) [32]byte {
	return chain.HashOfScript(s)
}
