// In-memory backend for tests, grounded on the corpus's in-memory
// database test helper (database_test_util.go's NewMemoryDBManager), but
// implemented directly against the Database interface here rather than
// wrapping leveldb's own memdb, so unit tests don't pay for a temp-dir
// leveldb instance per test.

package chaindb

import (
	"bytes"
	"sort"
	"sync"
)

type memoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMemoryDB() *memoryDB {
	return &memoryDB{data: make(map[string][]byte)}
}

func (m *memoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *memoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *memoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memoryDB) Close() {}

func (m *memoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

func (m *memoryDB) NewIterator(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if len(prefix) == 0 || bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]memEntry, len(keys))
	for i, k := range keys {
		entries[i] = memEntry{key: []byte(k), value: append([]byte(nil), m.data[k]...)}
	}
	return &memoryIterator{entries: entries, idx: -1}
}

type memEntry struct {
	key, value []byte
}

type memoryIterator struct {
	entries []memEntry
	idx     int
}

func (it *memoryIterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}
func (it *memoryIterator) Key() []byte   { return it.entries[it.idx].key }
func (it *memoryIterator) Value() []byte { return it.entries[it.idx].value }
func (it *memoryIterator) Release()      {}

type memOp struct {
	del   bool
	key   []byte
	value []byte
}

type memoryBatch struct {
	db   *memoryDB
	ops  []memOp
	size int
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memOp{key: key, value: value})
	b.size += len(key) + len(value)
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memOp{del: true, key: key})
	b.size += len(key)
	return nil
}

func (b *memoryBatch) ValueSize() int { return b.size }

func (b *memoryBatch) Write() error {
	for _, op := range b.ops {
		if op.del {
			if err := b.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

func (b *memoryBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
