// Package chaindb is the Store façade: a DBEntryType-keyed backing store
// plus the atomic commit/read surface the chain reconciler and tx pool
// consume. Adapted from storage/database/db_manager.go's open-by-type
// pattern, narrowed to four column families and re-keyed for the
// UTXO/cell model instead of an account trie.
//
// Entity encoding uses encoding/json rather than an RLP codec: RLP is an
// inseparable part of the go-ethereum/klaytn tree, not a standalone
// fetchable module, and no third-party serialization library appears
// anywhere else in the retrieved corpus, so there is no ecosystem
// library to reach for here.
//
// GetCell optionally reads through a sharded LRU (common.Cache, keyed by
// out-point) built from Config.CellCacheSize; Txn invalidates affected
// entries on every write that changes a cell's liveness.
package chaindb

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/log"
	"golang.org/x/crypto/blake2b"
)

// Manager is the opened, ready-to-use backing store: one Database handle
// per DBEntryType (the four column families), shared on one physical DB
// unless Config.Partitioned requests otherwise.
type Manager struct {
	cfg       Config
	dbs       [dbEntryTypeSize]Database
	log       log.Logger
	cellCache common.Cache // nil when Config.CellCacheSize is 0
}

// NewManager opens (and creates, if absent) the backing stores described
// by cfg.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{cfg: cfg, log: log.NewModuleLogger(log.Store)}

	if cfg.CellCacheSize > 0 {
		c, err := common.NewCache(common.LRUShardConfig{CacheSize: cfg.CellCacheSize, NumShards: 16})
		if err != nil {
			return nil, err
		}
		m.cellCache = c
	}

	if cfg.Backend == MemoryDB || !cfg.Partitioned {
		shared, err := cfg.open(cfg.Dir)
		if err != nil {
			return nil, err
		}
		for t := DBEntryType(0); t < dbEntryTypeSize; t++ {
			m.dbs[t] = shared
		}
		return m, nil
	}

	for t := DBEntryType(0); t < dbEntryTypeSize; t++ {
		dir := filepath.Join(cfg.Dir, dbDirs[t])
		db, err := cfg.open(dir)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.dbs[t] = db
	}
	return m, nil
}

// Close closes every distinct underlying Database exactly once.
func (m *Manager) Close() {
	closed := map[Database]bool{}
	for _, db := range m.dbs {
		if db == nil || closed[db] {
			continue
		}
		db.Close()
		closed[db] = true
	}
}

func (m *Manager) db(t DBEntryType) Database { return m.dbs[t] }

// --- read surface ------------------------------------------------------

func (m *Manager) GetTipHeader() (*types.Header, error) {
	data, err := m.db(BlockStoreDB).Get(tipHeaderKey)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var h types.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (m *Manager) GetBlockHash(number uint64) (common.Hash, bool, error) {
	data, err := m.db(BlockIndexDB).Get(keyBlockNumber(number))
	if err != nil {
		if IsNotFound(err) {
			return common.Hash{}, false, nil
		}
		return common.Hash{}, false, err
	}
	return common.BytesToHash(data), true, nil
}

func (m *Manager) GetBlockNumber(hash common.Hash) (uint64, bool, error) {
	data, err := m.db(BlockIndexDB).Get(keyBlockHash(hash))
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return decodeUint64(data), true, nil
}

func (m *Manager) GetBlockHeader(hash common.Hash) (*types.Header, error) {
	b, err := m.GetBlock(hash)
	if err != nil || b == nil {
		return nil, err
	}
	return b.Header, nil
}

func (m *Manager) GetBlock(hash common.Hash) (*types.Block, error) {
	data, err := m.db(BlockStoreDB).Get(keyBlock(hash))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var b types.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *Manager) GetBlockExt(hash common.Hash) (*types.BlockExt, error) {
	data, err := m.db(BlockStoreDB).Get(keyBlockExt(hash))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var e types.BlockExt
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *Manager) GetBlockEpochIndex(number uint64) (*types.BlockEpochIndex, error) {
	data, err := m.db(BlockStoreDB).Get(keyEpochIndex(number))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var idx types.BlockEpochIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (m *Manager) GetEpochExt(epochNumber uint64) (*types.EpochExt, error) {
	data, err := m.db(BlockStoreDB).Get(keyEpochExt(epochNumber))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var e types.EpochExt
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetCell resolves op's liveness, reading through an optional sharded LRU
// (Config.CellCacheSize) before falling back to CellSetDB. Dead and
// unknown results are cached too, since transaction pool admission
// re-resolves the same spent or missing out-points repeatedly under
// load.
func (m *Manager) GetCell(op common.OutPoint) (types.CellResult, error) {
	if m.cellCache != nil {
		if v, ok := m.cellCache.Get(op); ok {
			return v.(types.CellResult), nil
		}
	}

	res, err := m.getCellUncached(op)
	if err != nil {
		return types.CellResult{}, err
	}
	if m.cellCache != nil {
		m.cellCache.Add(op, res)
	}
	return res, nil
}

func (m *Manager) getCellUncached(op common.OutPoint) (types.CellResult, error) {
	data, err := m.db(CellSetDB).Get(keyCell(op))
	if err != nil {
		if IsNotFound(err) {
			return types.UnknownCell(), nil
		}
		return types.CellResult{}, err
	}
	if len(data) == 0 {
		return types.DeadCell(), nil
	}
	var cm types.CellMeta
	if err := json.Unmarshal(data, &cm); err != nil {
		return types.CellResult{}, err
	}
	return types.LiveCell(&cm), nil
}

// invalidateCell drops op from the read-through cache, if enabled. It is
// called whenever a Txn changes op's liveness (AttachBlockCell killing
// an input, DetachBlockCell reviving one during rollback) so the cache
// never serves a stale liveness bit across a reorg; the next GetCell
// repopulates it from CellSetDB.
func (m *Manager) invalidateCell(op common.OutPoint) {
	if m.cellCache != nil {
		m.cellCache.Remove(op)
	}
}

func (m *Manager) LoadCellData(op common.OutPoint) ([]byte, error) {
	data, err := m.db(CellSetDB).Get(keyCellData(op))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (m *Manager) LoadCellDataHash(op common.OutPoint) (*common.Hash, error) {
	data, err := m.LoadCellData(op)
	if err != nil || data == nil {
		return nil, err
	}
	h := common.BytesToHash(hashBytes(data))
	return &h, nil
}

// --- write surface: a single Batch per reorg --------------------------

// Txn accumulates a reorg's writes across every column family and
// applies them with BeginTransaction/Commit: one write-batch per reorg,
// applied atomically per distinct underlying Database.
type Txn struct {
	m       *Manager
	mu      sync.Mutex
	batches [dbEntryTypeSize]Batch
}

// BeginTransaction opens one Batch per distinct underlying Database.
func (m *Manager) BeginTransaction() *Txn {
	t := &Txn{m: m}
	opened := map[Database]Batch{}
	for i, db := range m.dbs {
		b, ok := opened[db]
		if !ok {
			b = db.NewBatch()
			opened[db] = b
		}
		t.batches[i] = b
	}
	return t
}

func (t *Txn) batch(ty DBEntryType) Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batches[ty]
}

func (t *Txn) AttachBlock(b *types.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	hash := b.Hash()
	if err := t.batch(BlockStoreDB).Put(keyBlock(hash), data); err != nil {
		return err
	}
	if err := t.batch(BlockIndexDB).Put(keyBlockNumber(b.Number()), hash.Bytes()); err != nil {
		return err
	}
	return t.batch(BlockIndexDB).Put(keyBlockHash(hash), encodeUint64(b.Number()))
}

// StageBlock persists a block's body keyed by hash without touching the
// block-index (number -> hash) column family, for blocks accepted but not
// (yet) on the main chain: the body must survive so a later reorg can
// attach through it even though it never reached the main chain itself.
func (t *Txn) StageBlock(b *types.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return t.batch(BlockStoreDB).Put(keyBlock(b.Hash()), data)
}

func (t *Txn) DetachBlock(b *types.Block) error {
	hash := b.Hash()
	if err := t.batch(BlockStoreDB).Delete(keyBlock(hash)); err != nil {
		return err
	}
	if err := t.batch(BlockIndexDB).Delete(keyBlockNumber(b.Number())); err != nil {
		return err
	}
	return t.batch(BlockIndexDB).Delete(keyBlockHash(hash))
}

// AttachBlockCell marks every output of b's transactions live and every
// consumed input dead: the cell-set delta a block's attachment applies.
func (t *Txn) AttachBlockCell(b *types.Block, outputData [][][]byte) error {
	for ti, tx := range b.Transactions {
		if !tx.IsCellbase() {
			for _, in := range tx.Inputs {
				if err := t.killCell(in.PreviousOutput); err != nil {
					return err
				}
			}
		}
		txHash := tx.Hash()
		for oi, out := range tx.Outputs {
			op := common.OutPoint{TxHash: txHash, Index: uint32(oi)}
			cm := &types.CellMeta{
				OutPoint: op,
				Output:   out,
				Info: types.TransactionInfo{
					BlockNumber: b.Number(),
					BlockHash:   b.Hash(),
					BlockEpoch:  b.Header.Epoch,
					Index:       uint32(ti),
				},
			}
			data, err := json.Marshal(cm)
			if err != nil {
				return err
			}
			if err := t.batch(CellSetDB).Put(keyCell(op), data); err != nil {
				return err
			}
			t.m.invalidateCell(op)
			if ti < len(outputData) && oi < len(outputData[ti]) {
				if err := t.batch(CellSetDB).Put(keyCellData(op), outputData[ti][oi]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// DetachBlockCell is the inverse of AttachBlockCell, applied to detached
// blocks in reverse order during rollback.
func (t *Txn) DetachBlockCell(b *types.Block) error {
	for _, tx := range b.Transactions {
		txHash := tx.Hash()
		for oi := range tx.Outputs {
			op := common.OutPoint{TxHash: txHash, Index: uint32(oi)}
			if err := t.batch(CellSetDB).Delete(keyCell(op)); err != nil {
				return err
			}
			if err := t.batch(CellSetDB).Delete(keyCellData(op)); err != nil {
				return err
			}
			t.m.invalidateCell(op)
		}
	}
	return nil
}

func (t *Txn) killCell(op common.OutPoint) error {
	t.m.invalidateCell(op)
	return t.batch(CellSetDB).Put(keyCell(op), nil)
}

func (t *Txn) InsertBlockExt(hash common.Hash, ext *types.BlockExt) error {
	data, err := json.Marshal(ext)
	if err != nil {
		return err
	}
	return t.batch(BlockStoreDB).Put(keyBlockExt(hash), data)
}

func (t *Txn) InsertTipHeader(h *types.Header) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return t.batch(BlockStoreDB).Put(tipHeaderKey, data)
}

func (t *Txn) InsertCurrentEpochExt(e *types.EpochExt) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := t.batch(BlockStoreDB).Put(currentEpochKey, data); err != nil {
		return err
	}
	return t.batch(BlockStoreDB).Put(keyEpochExt(e.Number), data)
}

func (t *Txn) InsertBlockEpochIndex(blockNumber uint64, idx types.BlockEpochIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return t.batch(BlockStoreDB).Put(keyEpochIndex(blockNumber), data)
}

// Commit flushes every distinct Batch exactly once — the one atomic
// step a reorg performs: either every delta lands, or (on a write
// error) the chain reconciler's caller sees the original state, modulo
// whatever partial writes the backend itself already flushed for prior
// distinct batches.
func (t *Txn) Commit() error {
	flushed := map[Batch]bool{}
	for _, b := range t.batches {
		if b == nil || flushed[b] {
			continue
		}
		if err := b.Write(); err != nil {
			return err
		}
		flushed[b] = true
	}
	return nil
}

func hashBytes(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}
