// Adapted from storage/database/badger_database.go: same transaction-per-
// op shape and background value-log GC ticker, retargeted at the Database
// interface in database.go. Offered as the alternative backend alongside
// LevelDB, since the store is backend-agnostic by design.

package chaindb

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/riscvlabs/corechain/log"
)

const (
	badgerGCThreshold     = int64(1 << 30)
	badgerGCTickInterval  = time.Minute
)

type badgerDB struct {
	fn       string
	db       *badger.DB
	gcTicker *time.Ticker
	stop     chan struct{}
	log      log.Logger
}

func openBadgerDB(dir string) (*badgerDB, error) {
	logger := log.New("dbDir", dir)

	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("chaindb: %s is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("chaindb: mkdir %s: %w", dir, err)
		}
	} else {
		return nil, err
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("chaindb: open badger at %s: %w", dir, err)
	}

	bg := &badgerDB{
		fn:       dir,
		db:       db,
		gcTicker: time.NewTicker(badgerGCTickInterval),
		stop:     make(chan struct{}),
		log:      logger,
	}
	go bg.runValueLogGC()
	return bg, nil
}

func (bg *badgerDB) runValueLogGC() {
	_, lastSize := bg.db.Size()
	for {
		select {
		case <-bg.stop:
			return
		case <-bg.gcTicker.C:
			_, curSize := bg.db.Size()
			if curSize-lastSize < badgerGCThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				bg.log.Error("value log gc failed", "err", err)
				continue
			}
			_, lastSize = bg.db.Size()
		}
	}
}

func (bg *badgerDB) Put(key, value []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value()
}

func (bg *badgerDB) Delete(key []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) NewIterator(prefix []byte) Iterator {
	txn := bg.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	if len(prefix) > 0 {
		opts.Prefix = prefix
	}
	it := txn.NewIterator(opts)
	bit := &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}
	return bit
}

func (bg *badgerDB) Close() {
	close(bg.stop)
	bg.gcTicker.Stop()
	if err := bg.db.Close(); err != nil {
		bg.log.Error("failed to close badger", "err", err)
	} else {
		bg.log.Info("badger closed")
	}
}

func (bg *badgerDB) NewBatch() Batch {
	return &badgerBatch{db: bg.db, txn: bg.db.NewTransaction(true)}
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		if len(i.prefix) > 0 {
			i.it.Seek(i.prefix)
		} else {
			i.it.Rewind()
		}
		i.started = true
	} else {
		i.it.Next()
	}
	if len(i.prefix) > 0 {
		return i.it.ValidForPrefix(i.prefix)
	}
	return i.it.Valid()
}

func (i *badgerIterator) Key() []byte { return i.it.Item().KeyCopy(nil) }
func (i *badgerIterator) Value() []byte {
	v, err := i.it.Item().ValueCopy(nil)
	if err != nil {
		return nil
	}
	return v
}
func (i *badgerIterator) Release() {
	i.it.Close()
	i.txn.Discard()
}

type badgerBatch struct {
	db   *badger.DB
	txn  *badger.Txn
	size int
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.txn.Set(key, value)
}

func (b *badgerBatch) Delete(key []byte) error {
	b.size += len(key)
	return b.txn.Delete(key)
}

func (b *badgerBatch) ValueSize() int { return b.size }
func (b *badgerBatch) Write() error   { return b.txn.Commit(nil) }
func (b *badgerBatch) Reset() {
	b.txn.Discard()
	b.txn = b.db.NewTransaction(true)
	b.size = 0
}
