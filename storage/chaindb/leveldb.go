// Adapted from storage/database/leveldb_database.go: same Options tuning
// and Put/Get/Has/Delete/NewBatch surface, trimmed of the go-metrics
// compaction meters (per-column-family disk metrics aren't exposed by
// this store) and retargeted at the Database interface in database.go.

package chaindb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/riscvlabs/corechain/log"
)

const (
	minCacheSize   = 16
	minHandleCount = 16
)

type levelDB struct {
	fn  string
	db  *leveldb.DB
	log log.Logger
}

func ldbOptions(cacheSizeMB, numHandles int) *opt.Options {
	if cacheSizeMB < minCacheSize {
		cacheSizeMB = minCacheSize
	}
	if numHandles < minHandleCount {
		numHandles = minHandleCount
	}
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

func openLevelDB(dir string, cacheSizeMB, numHandles int) (*levelDB, error) {
	logger := log.New("dbDir", dir)
	o := ldbOptions(cacheSizeMB, numHandles)
	db, err := leveldb.OpenFile(dir, o)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	return &levelDB{fn: dir, db: db, log: logger}, nil
}

func (d *levelDB) Put(key, value []byte) error { return d.db.Put(key, value, nil) }
func (d *levelDB) Has(key []byte) (bool, error) { return d.db.Has(key, nil) }
func (d *levelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err != nil {
		return nil, err
	}
	return v, nil
}
func (d *levelDB) Delete(key []byte) error { return d.db.Delete(key, nil) }

func (d *levelDB) NewIterator(prefix []byte) Iterator {
	if len(prefix) == 0 {
		return &levelDBIterator{it: d.db.NewIterator(nil, nil)}
	}
	return &levelDBIterator{it: d.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (d *levelDB) Close() {
	if err := d.db.Close(); err != nil {
		d.log.Error("failed to close leveldb", "err", err)
	} else {
		d.log.Info("leveldb closed")
	}
}

func (d *levelDB) NewBatch() Batch {
	return &levelDBBatch{db: d.db, b: new(leveldb.Batch)}
}

type levelDBIterator struct {
	it interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
	}
}

func (i *levelDBIterator) Next() bool     { return i.it.Next() }
func (i *levelDBIterator) Key() []byte    { return i.it.Key() }
func (i *levelDBIterator) Value() []byte  { return i.it.Value() }
func (i *levelDBIterator) Release()       { i.it.Release() }

type levelDBBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelDBBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelDBBatch) ValueSize() int { return b.size }
func (b *levelDBBatch) Write() error   { return b.db.Write(b.b, nil) }
func (b *levelDBBatch) Reset() {
	b.b.Reset()
	b.size = 0
}
