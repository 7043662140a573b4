// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.
//
// Adapted from storage/database/db_manager.go: the DBEntryType-keyed,
// open-by-type backing store, narrowed from klaytn's header/body/receipts/
// statetrie/txlookup entries down to this node's four column families:
// block index, block store, cell set, and MMR store.

package chaindb

import (
	"errors"

	"github.com/dgraph-io/badger"
	"github.com/syndtr/goleveldb/leveldb"
)

// errNotFound is the sentinel the memory backend returns for a missing
// key; leveldb and badger each surface their own not-found errors, which
// manager.go normalizes via IsNotFound.
var errNotFound = errors.New("chaindb: not found")

// IsNotFound reports whether err represents a missing key, across all
// three backends.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	switch err {
	case errNotFound, badger.ErrKeyNotFound, leveldb.ErrNotFound:
		return true
	}
	return false
}

// Database is a minimal, backend-agnostic key/value store: the common
// surface leveldb, badger, and the in-memory test backend all implement.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(prefix []byte) Iterator
	Close()
}

// Batch accumulates writes for one Database; Write flushes them
// atomically for that Database. A Txn holds one Batch per distinct
// Database, so with Partitioned stores its Commit writes several
// batches in turn and is not atomic across them (see Txn.Commit).
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	ValueSize() int
	Write() error
	Reset()
}

// Iterator walks a key range in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// DBEntryType selects which column family a key belongs to.
type DBEntryType int

const (
	// BlockIndexDB maps block_number -> block_hash, main chain only.
	BlockIndexDB DBEntryType = iota
	// BlockStoreDB holds block_hash -> block/block_ext, block_number ->
	// epoch_index, epoch_number -> epoch_ext, the tip header and the
	// current epoch ext.
	BlockStoreDB
	// CellSetDB holds out_point -> cell_meta with a liveness bit.
	CellSetDB
	// MMRStoreDB holds the backing pages for the chain-root MMR.
	MMRStoreDB

	dbEntryTypeSize
)

var dbDirs = [dbEntryTypeSize]string{
	"blockindex",
	"blockstore",
	"cellset",
	"mmr",
}

// BackendType selects the storage engine.
type BackendType int

const (
	LevelDB BackendType = iota
	BadgerDB
	MemoryDB
)

// Config configures how the four column families are opened.
type Config struct {
	Dir              string
	Backend          BackendType
	Partitioned      bool // one physical DB per column family, vs one shared DB
	LevelDBCacheSize int
	LevelDBHandles   int

	// CellCacheSize, if positive, fronts GetCell with a sharded in-memory
	// LRU keyed by out-point (common.Cache / LRUShardConfig), sized in
	// number of entries. Zero disables the cache and every GetCell call
	// goes straight to CellSetDB.
	CellCacheSize int
}

func (c Config) open(dir string) (Database, error) {
	switch c.Backend {
	case LevelDB:
		return openLevelDB(dir, c.LevelDBCacheSize, c.LevelDBHandles)
	case BadgerDB:
		return openBadgerDB(dir)
	case MemoryDB:
		return newMemoryDB(), nil
	default:
		return nil, errors.New("chaindb: unknown backend type")
	}
}
