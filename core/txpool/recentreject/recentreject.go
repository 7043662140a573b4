// Package recentreject remembers transaction hashes that recently
// failed pool submission, so a re-announced rejected transaction does
// not re-run the same failing checks and re-orphan on repeated relays.
// Sized and keyed the way original_source's tx-pool/src/service.rs
// reject cache is: an in-process LRU by default, with an optional
// shared backing store for multi-process pool deployments.
package recentreject

import (
	"time"

	"github.com/go-redis/redis/v7"
	lru "github.com/hashicorp/golang-lru"
	"github.com/riscvlabs/corechain/common"
)

// Filter is the recent-reject set. The zero value is not usable; build
// one with New.
type Filter struct {
	local *lru.Cache
	redis *redis.Client
	ttl   time.Duration
}

// New builds an in-process-only Filter holding up to size hashes.
func New(size int) (*Filter, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Filter{local: c, ttl: 10 * time.Minute}, nil
}

// WithRedis attaches a shared backing store so multiple pool processes
// observe each other's recent rejects; local lookups still short-circuit
// first since they're cheaper than a round trip.
func (f *Filter) WithRedis(client *redis.Client) *Filter {
	f.redis = client
	return f
}

// Add records hash as recently rejected.
func (f *Filter) Add(hash common.Hash) {
	f.local.Add(hash, struct{}{})
	if f.redis != nil {
		f.redis.Set(hash.Hex(), 1, f.ttl)
	}
}

// Contains reports whether hash was recently rejected.
func (f *Filter) Contains(hash common.Hash) bool {
	if f.local.Contains(hash) {
		return true
	}
	if f.redis == nil {
		return false
	}
	n, err := f.redis.Exists(hash.Hex()).Result()
	return err == nil && n > 0
}

// Remove drops hash, used when a previously rejected transaction is
// reinstated by a reorg reinjection.
func (f *Filter) Remove(hash common.Hash) {
	f.local.Remove(hash)
	if f.redis != nil {
		f.redis.Del(hash.Hex())
	}
}
