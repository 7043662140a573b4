package chain

import (
	"context"
	"math/big"
	"runtime"
	"time"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/consensus"
	"github.com/riscvlabs/corechain/core/cache"
	"github.com/riscvlabs/corechain/core/errkind"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/fork"
	"github.com/riscvlabs/corechain/log"
	"github.com/riscvlabs/corechain/metrics"
	"github.com/riscvlabs/corechain/storage/chaindb"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Reconciler is the chain reconciler: the single writer of store and
// publisher of snapshots.
type Reconciler struct {
	store         *chaindb.Manager
	snap          *snapshot.Container
	consensus     consensus.Consensus
	verifier      *Verifier
	mmrFactory    MMRFactory
	pool          PoolNotifier
	punisher      PeerPunisher
	txVerifyCache *cache.TxVerifyCache
	log           log.Logger

	assumeValidTarget *common.Hash
}

// New constructs a Reconciler. assumeValidTarget may be nil (full
// verification from genesis).
func New(
	store *chaindb.Manager,
	snap *snapshot.Container,
	cons consensus.Consensus,
	verifier *Verifier,
	mmrFactory MMRFactory,
	pool PoolNotifier,
	punisher PeerPunisher,
	txVerifyCache *cache.TxVerifyCache,
	assumeValidTarget *common.Hash,
) *Reconciler {
	return &Reconciler{
		store:             store,
		snap:              snap,
		consensus:         cons,
		verifier:          verifier,
		mmrFactory:        mmrFactory,
		pool:              pool,
		punisher:          punisher,
		txVerifyCache:     txVerifyCache,
		log:               log.NewModuleLogger(log.ChainReconciler),
		assumeValidTarget: assumeValidTarget,
	}
}

// Run is the single-writer select loop: it receives UnverifiedBlock
// messages and a stop signal on two separate channels and selects
// between them.
func (r *Reconciler) Run(unverifiedCh <-chan UnverifiedBlock, stopCh <-chan struct{}) {
	for {
		select {
		case u := <-unverifiedCh:
			outcome, err := r.Consume(&u)
			if u.Callback != nil {
				u.Callback(outcome, err)
			}
		case <-stopCh:
			r.log.Info("chain reconciler stopping")
			return
		}
	}
}

// Consume applies one unverified block, running through the reconciler's
// ten-step acceptance algorithm.
func (r *Reconciler) Consume(u *UnverifiedBlock) (*ConsumeOutcome, error) {
	block := u.Block
	hash := block.Hash()

	// Step 1: short-circuit on at-most-once verification.
	ext, err := r.store.GetBlockExt(hash)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, hash.Hex(), err)
	}
	if ext != nil && ext.IsVerified() {
		if ext.Verified == types.VerifyValid {
			return &ConsumeOutcome{Kind: PreviouslySeenAndVerified}, nil
		}
		return nil, errkind.New(errkind.InvalidBlock, hash.Hex(), "block previously verified failed")
	}

	// Step 2: invalid-parent propagation.
	parentHash := block.ParentHash()
	parentExt, err := r.store.GetBlockExt(parentHash)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, parentHash.Hex(), err)
	}
	if parentExt != nil && parentExt.Verified == types.VerifyInvalid {
		r.punish(u.PeerID, errkind.InvalidParent)
		return nil, errkind.New(errkind.InvalidParent, parentHash.Hex(), "parent previously failed verification")
	}

	// Step 3: build tentative ext.
	parentTotalDifficulty := big.NewInt(0)
	var parentUncles uint64
	if parentExt != nil {
		parentTotalDifficulty = parentExt.TotalDifficulty
		parentUncles = parentExt.TotalUnclesCount
	}
	tentative := &types.BlockExt{
		ReceivedAt:       nowMillis(),
		TotalDifficulty:  new(big.Int).Add(parentTotalDifficulty, r.consensus.CalculateDifficulty(block.Header)),
		TotalUnclesCount: parentUncles + uint64(len(block.Uncles)),
		Verified:         types.VerifyNone,
	}

	// Step 4: compare to current tip.
	snap := r.snap.Load()
	newBest := tentative.TotalDifficulty.Cmp(snap.TotalDifficulty) > 0

	// Step 5: switch policy.
	sw := u.Switch
	if r.assumeValidTarget != nil {
		if hash != *r.assumeValidTarget {
			sw.DisableScript = true
		} else {
			r.assumeValidTarget = nil
		}
	}

	if !newBest {
		return r.acceptUncle(block, hash, tentative)
	}

	return r.reconcileMainChain(u, block, hash, tentative, snap, sw)
}

// acceptUncle implements step 6: the block is valid-shaped but does not
// extend the best chain, so it is staged without replacing the tip.
func (r *Reconciler) acceptUncle(block *types.Block, hash common.Hash, tentative *types.BlockExt) (*ConsumeOutcome, error) {
	txn := r.store.BeginTransaction()
	if err := txn.InsertBlockExt(hash, tentative); err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, hash.Hex(), err)
	}
	if err := txn.StageBlock(block); err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, hash.Hex(), err)
	}
	if err := txn.Commit(); err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, hash.Hex(), err)
	}
	r.pool.NotifyUncle(tentative)
	return &ConsumeOutcome{Kind: UncleBlockNotVerified}, nil
}

// reconcileMainChain implements steps 7-10.
func (r *Reconciler) reconcileMainChain(u *UnverifiedBlock, newTip *types.Block, newTipHash common.Hash, tentative *types.BlockExt, snap *snapshot.Snapshot, sw SwitchFlags) (*ConsumeOutcome, error) {
	currentTipHash := snap.TipHeader.Hash()
	currentTipNumber := snap.TipHeader.Number

	fc, err := r.findFork(newTip, currentTipHash, currentTipNumber)
	if err != nil {
		return nil, err
	}
	dirty, err := r.computeDirtyExts(fc, tentative)
	if err != nil {
		return nil, err
	}
	if !fc.AssertOrdered() {
		return nil, errkind.New(errkind.InternalOther, newTipHash.Hex(), "fork changes not strictly ordered")
	}

	ancestorHash, ancestorNumber := r.commonAncestor(fc, currentTipHash, currentTipNumber)
	if fork.CrossesBoundary(ancestorNumber, newTip.Number()) {
		r.txVerifyCache.Clear()
	}

	txn := r.store.BeginTransaction()

	// Step 8: rollback, detached already ordered tip -> fork point.
	for _, b := range fc.Detached {
		if err := txn.DetachBlock(b); err != nil {
			return nil, errkind.Wrap(errkind.InternalDB, b.Hash().Hex(), err)
		}
		if err := txn.DetachBlockCell(b); err != nil {
			return nil, errkind.Wrap(errkind.InternalDB, b.Hash().Hex(), err)
		}
	}

	// Step 9: reconcile main chain.
	mmr, err := r.mmrFactory(ancestorHash)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalMMR, ancestorHash.Hex(), err)
	}

	overlay := newCellOverlay(r.store)
	var firstErr error
	var invalidMarkers []invalidMarker

	for _, blk := range fc.Attached {
		blkHash := blk.Hash()
		dirtyExt, isDirty := dirty[blkHash]

		if !isDirty {
			if err := r.attach(txn, overlay, mmr, blk); err != nil {
				return nil, err
			}
			continue
		}

		if firstErr != nil {
			failed := dirtyExt.Clone()
			failed.Verified = types.VerifyInvalid
			invalidMarkers = append(invalidMarkers, invalidMarker{blkHash, failed})
			continue
		}

		cycles, fees, sizes, verr := r.replayBlock(overlay, blk, sw)
		if verr != nil {
			firstErr = verr
			failed := dirtyExt.Clone()
			failed.Verified = types.VerifyInvalid
			invalidMarkers = append(invalidMarkers, invalidMarker{blkHash, failed})
			continue
		}

		verified := dirtyExt.Clone()
		verified.Verified = types.VerifyValid
		verified.TxCycles = cycles
		verified.TxFees = fees
		verified.TxSizes = sizes
		if err := txn.InsertBlockExt(blkHash, verified); err != nil {
			return nil, errkind.Wrap(errkind.InternalDB, blkHash.Hex(), err)
		}
		if err := r.attach(txn, overlay, mmr, blk); err != nil {
			return nil, err
		}
	}

	if firstErr != nil {
		r.log.Warn("reorg replay failed", "hash", newTipHash.Hex(), "error", firstErr)
		if len(invalidMarkers) > 0 {
			markTxn := r.store.BeginTransaction()
			for _, m := range invalidMarkers {
				if err := markTxn.InsertBlockExt(m.hash, m.ext); err != nil {
					return nil, errkind.Wrap(errkind.InternalDB, m.hash.Hex(), err)
				}
			}
			if err := markTxn.Commit(); err != nil {
				return nil, errkind.Wrap(errkind.InternalDB, newTipHash.Hex(), err)
			}
		}
		r.punish(u.PeerID, errkind.KindOf(firstErr))
		return nil, firstErr
	}

	// Step 10: commit, publish snapshot, notify.
	newTipHeader := r.headerOf(fc, newTip)
	if err := txn.InsertTipHeader(newTipHeader); err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, newTipHash.Hex(), err)
	}
	if err := txn.Commit(); err != nil {
		return nil, errkind.Wrap(errkind.InternalDB, newTipHash.Hex(), err)
	}

	newEpoch, err := r.consensus.NextEpoch(newTip.Header, snap.CurrentEpoch)
	if err != nil {
		newEpoch = snap.CurrentEpoch
	}
	newSnap := &snapshot.Snapshot{
		TipHeader:         newTipHeader,
		TotalDifficulty:   tentative.TotalDifficulty,
		CurrentEpoch:      newEpoch,
		ActiveProposalIDs: rebuildProposalIDs(snap, fc),
	}
	r.snap.Store(newSnap)

	metrics.ChainReorgDepth.Update(int64(len(fc.Detached)))
	metrics.ChainBlocksNotified.Inc(1)
	r.pool.NotifyReorg(fc.Detached, fc.Attached, fc.DetachedProposalIDs, newSnap)
	r.pool.NotifyNewBlock(newSnap)

	return &ConsumeOutcome{Kind: Extended}, nil
}

func (r *Reconciler) attach(txn *chaindb.Txn, overlay *cellOverlay, mmr MMR, blk *types.Block) error {
	if err := txn.AttachBlock(blk); err != nil {
		return errkind.Wrap(errkind.InternalDB, blk.Hash().Hex(), err)
	}
	if err := txn.AttachBlockCell(blk, collectOutputData(blk)); err != nil {
		return errkind.Wrap(errkind.InternalDB, blk.Hash().Hex(), err)
	}
	if err := mmr.Push(blk.Hash()); err != nil {
		return errkind.Wrap(errkind.InternalMMR, blk.Hash().Hex(), err)
	}
	overlay.apply(blk)
	return nil
}

// replayBlockConcurrency bounds how many of a block's transactions are
// resolved and verified at once: within one block the overlay is stable
// (attach() only mutates it after replayBlock returns), so independent
// transactions can be fanned out, but an unbounded fan-out would let a
// single oversized block spawn one goroutine per transaction.
var replayBlockConcurrency = int64(runtime.GOMAXPROCS(0))

// replayBlock resolves and contextually verifies every non-cellbase
// transaction in blk, fanning the independent per-transaction work out
// across a semaphore-bounded pool of goroutines and stopping the group
// on the first verification failure.
func (r *Reconciler) replayBlock(overlay *cellOverlay, blk *types.Block, sw SwitchFlags) (cycles, fees, sizes []uint64, err error) {
	cycles = make([]uint64, len(blk.Transactions))
	fees = make([]uint64, len(blk.Transactions))
	sizes = make([]uint64, len(blk.Transactions))

	if sw.DisableAll {
		for i, tx := range blk.Transactions {
			sizes[i] = tx.SerializedSize()
		}
		return cycles, fees, sizes, nil
	}

	sem := semaphore.NewWeighted(replayBlockConcurrency)
	group, ctx := errgroup.WithContext(context.Background())

	for i, tx := range blk.Transactions {
		i, tx := i, tx
		sizes[i] = tx.SerializedSize()
		if tx.IsCellbase() {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			rtx, rerr := r.verifier.resolve(overlay, tx)
			if rerr != nil {
				return rerr
			}
			c, f, verr := r.verifier.verifyTransaction(rtx, blk.Number(), sw)
			if verr != nil {
				return verr
			}
			cycles[i] = c
			fees[i] = f
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return cycles, fees, sizes, nil
}

// commonAncestor returns the hash and number of the block the fork walk
// converged on.
func (r *Reconciler) commonAncestor(fc *types.ForkChanges, currentTipHash common.Hash, currentTipNumber uint64) (common.Hash, uint64) {
	if len(fc.Attached) > 0 {
		first := fc.Attached[0]
		return first.ParentHash(), first.Number() - 1
	}
	if len(fc.Detached) > 0 {
		last := fc.Detached[len(fc.Detached)-1]
		return last.ParentHash(), last.Number() - 1
	}
	return currentTipHash, currentTipNumber
}

// headerOf returns the header of the new tip: the last attached block if
// any, else (a pure rollback with no new attachment, which should not
// happen on the new-best path) newTip's own header.
func (r *Reconciler) headerOf(fc *types.ForkChanges, newTip *types.Block) *types.Header {
	if len(fc.Attached) > 0 {
		return fc.Attached[len(fc.Attached)-1].Header
	}
	return newTip.Header
}

func (r *Reconciler) punish(peerID string, kind errkind.Kind) {
	if r.punisher != nil && peerID != "" {
		r.punisher.Punish(peerID, kind)
	}
}

type invalidMarker struct {
	hash common.Hash
	ext  *types.BlockExt
}

func collectOutputData(b *types.Block) [][][]byte {
	out := make([][][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		data := make([][]byte, len(tx.Outputs))
		copy(data, tx.OutputsData)
		out[i] = data
	}
	return out
}

// rebuildProposalIDs applies detached/attached proposal deltas to the
// previous snapshot's active set.
func rebuildProposalIDs(prev *snapshot.Snapshot, fc *types.ForkChanges) map[common.ProposalShortID]struct{} {
	next := map[common.ProposalShortID]struct{}{}
	for id := range prev.ActiveProposalIDs {
		next[id] = struct{}{}
	}
	for _, id := range fc.DetachedProposalIDs {
		delete(next, id)
	}
	for _, b := range fc.Attached {
		for _, id := range b.Proposals {
			next[id] = struct{}{}
		}
	}
	return next
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixNano() / int64(time.Millisecond))
}

// Truncate rolls the main chain back to targetTipHash, detaching every
// block above it in reverse order and republishing a snapshot whose tip
// is targetTipHash. It is test-only scaffolding for seeding known chain
// states without replaying blocks through Consume, and it refuses to run
// against a hash that is not on the current main chain.
func (r *Reconciler) Truncate(targetTipHash common.Hash) error {
	targetNumber, ok, err := r.store.GetBlockNumber(targetTipHash)
	if err != nil {
		return errkind.Wrap(errkind.InternalDB, targetTipHash.Hex(), err)
	}
	if !ok {
		return errkind.New(errkind.InternalOther, targetTipHash.Hex(), "truncate target is not a known block")
	}
	mainHash, mainOK, err := r.store.GetBlockHash(targetNumber)
	if err != nil {
		return errkind.Wrap(errkind.InternalDB, targetTipHash.Hex(), err)
	}
	if !mainOK || mainHash != targetTipHash {
		return errkind.New(errkind.InternalOther, targetTipHash.Hex(), "truncate target is not on the main chain")
	}

	snap := r.snap.Load()
	currentTipHash := snap.TipHeader.Hash()
	currentTipNumber := snap.TipHeader.Number
	if currentTipHash == targetTipHash {
		return nil
	}

	var detached []*types.Block
	for n := currentTipNumber; n > targetNumber; n-- {
		b, err := r.mainChainBlockAt(n)
		if err != nil {
			return err
		}
		detached = append(detached, b)
	}

	targetBlock, err := r.store.GetBlock(targetTipHash)
	if err != nil {
		return errkind.Wrap(errkind.InternalDB, targetTipHash.Hex(), err)
	}
	if targetBlock == nil {
		return errkind.New(errkind.InternalDB, targetTipHash.Hex(), "truncate target block body missing")
	}

	txn := r.store.BeginTransaction()
	for _, b := range detached {
		if err := txn.DetachBlock(b); err != nil {
			return errkind.Wrap(errkind.InternalDB, b.Hash().Hex(), err)
		}
		if err := txn.DetachBlockCell(b); err != nil {
			return errkind.Wrap(errkind.InternalDB, b.Hash().Hex(), err)
		}
	}
	if err := txn.InsertTipHeader(targetBlock.Header); err != nil {
		return errkind.Wrap(errkind.InternalDB, targetTipHash.Hex(), err)
	}
	if err := txn.Commit(); err != nil {
		return errkind.Wrap(errkind.InternalDB, targetTipHash.Hex(), err)
	}

	targetExt, err := r.store.GetBlockExt(targetTipHash)
	if err != nil {
		return errkind.Wrap(errkind.InternalDB, targetTipHash.Hex(), err)
	}
	totalDifficulty := big.NewInt(0)
	var currentEpoch *types.EpochExt
	if targetExt != nil {
		totalDifficulty = targetExt.TotalDifficulty
	}
	epochIdx, err := r.store.GetBlockEpochIndex(targetNumber)
	if err == nil && epochIdx != nil {
		currentEpoch, _ = r.store.GetEpochExt(epochIdx.Epoch)
	}
	if currentEpoch == nil {
		currentEpoch = snap.CurrentEpoch
	}

	var detachedProposalIDs []common.ProposalShortID
	for _, b := range detached {
		detachedProposalIDs = append(detachedProposalIDs, b.Proposals...)
	}
	fc := &types.ForkChanges{Detached: detached, DetachedProposalIDs: detachedProposalIDs}

	newSnap := &snapshot.Snapshot{
		TipHeader:         targetBlock.Header,
		TotalDifficulty:   totalDifficulty,
		CurrentEpoch:      currentEpoch,
		ActiveProposalIDs: rebuildProposalIDs(snap, fc),
	}
	r.snap.Store(newSnap)
	metrics.ChainReorgDepth.Update(int64(len(fc.Detached)))
	metrics.ChainBlocksNotified.Inc(1)
	r.pool.NotifyReorg(fc.Detached, nil, fc.DetachedProposalIDs, newSnap)

	return nil
}
