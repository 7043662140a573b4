// Package chain implements the chain reconciler: the single writer that
// accepts unverified blocks, locates the fork point against the current
// main chain, rolls back detached blocks, replays attached blocks with
// contextual verification via core/script, and atomically publishes a
// new tip snapshot.
//
// Grounded on the corpus's single-writer, select-loop-over-two-channels
// idiom (a dedicated goroutine owning the one mutable handle, reached via
// a work queue plus a stop channel) generalized here to a fork-detection
// and replay engine: the loop owns a *chaindb.Manager and a
// *snapshot.Container directly, since there is no account/state trie
// underneath a UTXO chain.
package chain
