// Package cache hosts the read-mostly caches the core can share across
// subsystems: the system-cell cache (resolved cell-deps that almost
// never change, e.g. the always-success lock used by genesis), the
// tx-verification cache (hash -> verified cycles), and a byte-oriented
// cell-data cache fronting load_cell_data. SystemCellCache and
// TxVerifyCache guard their LRU with an RWMutex; CellDataCache relies on
// fastcache's own locking. Only TxVerifyCache is constructed at startup
// (cmd/node) and cleared at hard-fork boundaries (by the chain
// reconciler); SystemCellCache and CellDataCache are not constructed or
// cleared outside this package's tests.
package cache

import (
	"sync"

	"github.com/riscvlabs/corechain/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/VictoriaMetrics/fastcache"
)

// SystemCellCache holds CellMeta-shaped blobs for the small set of cells
// every script group dep-group expansion touches (system scripts).
// Built on common.Cache (LRU) the same way work/worker.go's task caches
// are.
type SystemCellCache struct {
	mu    sync.RWMutex
	cache common.Cache
}

func NewSystemCellCache(size int) (*SystemCellCache, error) {
	c, err := common.NewCache(common.LRUConfig{CacheSize: size})
	if err != nil {
		return nil, err
	}
	return &SystemCellCache{cache: c}, nil
}

func (s *SystemCellCache) Get(h common.Hash) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Get(h)
}

func (s *SystemCellCache) Put(h common.Hash, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(h, v)
}

// Clear drops every entry.
func (s *SystemCellCache) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}

// VerifiedTx is the cached outcome of a one-time script verification run,
// keyed by transaction hash, reused across pool reorg reinsertion and
// promotion.
type VerifiedTx struct {
	Cycles uint64
	Fee    uint64
	Size   uint64
}

// TxVerifyCache is the shared LRU used by both the chain reconciler and
// the transaction pool: read-mostly, guarded by an RWMutex, cleared on
// hard fork.
type TxVerifyCache struct {
	mu    sync.RWMutex
	cache *lru.Cache
}

func NewTxVerifyCache(size int) (*TxVerifyCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &TxVerifyCache{cache: c}, nil
}

func (c *TxVerifyCache) Get(txHash common.Hash) (VerifiedTx, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cache.Get(txHash)
	if !ok {
		return VerifiedTx{}, false
	}
	return v.(VerifiedTx), true
}

func (c *TxVerifyCache) Put(txHash common.Hash, v VerifiedTx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(txHash, v)
}

func (c *TxVerifyCache) Remove(txHash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(txHash)
}

// Clear drops the entire verification cache. A hard-fork boundary
// anywhere in the attached range forces a clear of the shared
// transaction-verification cache before replay.
func (c *TxVerifyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

func (c *TxVerifyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}

// CellDataCache fronts load_cell_data with a byte-oriented cache sized in
// bytes rather than entry count, matching fastcache's design for large,
// variable-length blobs.
type CellDataCache struct {
	c *fastcache.Cache
}

func NewCellDataCache(maxBytes int) *CellDataCache {
	return &CellDataCache{c: fastcache.New(maxBytes)}
}

func (c *CellDataCache) Get(op common.OutPoint) ([]byte, bool) {
	key := opKey(op)
	dst := c.c.GetBig(nil, key)
	if dst == nil {
		return nil, false
	}
	return dst, true
}

func (c *CellDataCache) Put(op common.OutPoint, data []byte) {
	c.c.SetBig(opKey(op), data)
}

func (c *CellDataCache) Reset() { c.c.Reset() }

func opKey(op common.OutPoint) []byte {
	key := make([]byte, 0, 36)
	key = append(key, op.TxHash.Bytes()...)
	key = append(key, byte(op.Index), byte(op.Index>>8), byte(op.Index>>16), byte(op.Index>>24))
	return key
}
