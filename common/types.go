// Copyright 2018 The go-klaytn Authors
// This file is part of the go-klaytn library.
//
// The go-klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-klaytn library. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HashLength is the length in bytes of a Blake2b-256 content hash, the
// canonical identifier of headers, transactions and cells throughout the
// tree: every hash is Blake2b-256 over the entity's canonical encoding.
const HashLength = 32

// ProposalShortIDLength is the fixed width of a ProposalShortId, a
// truncated prefix of a transaction hash used by the propose-then-commit
// protocol.
const ProposalShortIDLength = 10

// Hash is a 32-byte content hash.
type Hash [HashLength]byte

// BytesToHash right-aligns b into a Hash, truncating from the left if
// b is longer than HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) Hex() string    { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) String() string { return h.Hex() }
func (h Hash) IsZero() bool   { return h == Hash{} }

// MarshalText renders h as a 0x-prefixed hex string, so JSON-RPC
// payloads carry hashes the way an operator reads them in a block
// explorer rather than as a raw byte array.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText parses a 0x-prefixed hex string produced by MarshalText.
func (h *Hash) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("common: invalid hash %q: %w", text, err)
	}
	if len(b) != HashLength {
		return fmt.Errorf("common: invalid hash length %d, want %d", len(b), HashLength)
	}
	copy(h[:], b)
	return nil
}

// getShardIndex implements common.CacheKey so a Hash can key into the
// sharded LRU cache defined in this package.
func (h Hash) getShardIndex(shardMask int) int {
	return int(h[len(h)-1]) & shardMask
}

// ProposalShortID is the fixed-width short identifier used by the
// proposal window.
type ProposalShortID [ProposalShortIDLength]byte

func ProposalShortIDFromHash(h Hash) ProposalShortID {
	var id ProposalShortID
	copy(id[:], h[:ProposalShortIDLength])
	return id
}

func (id ProposalShortID) Hex() string { return "0x" + hex.EncodeToString(id[:]) }
func (id ProposalShortID) String() string { return id.Hex() }

// MarshalText renders id as a 0x-prefixed hex string.
func (id ProposalShortID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText parses a 0x-prefixed hex string produced by MarshalText.
func (id *ProposalShortID) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("common: invalid proposal short id %q: %w", text, err)
	}
	if len(b) != ProposalShortIDLength {
		return fmt.Errorf("common: invalid proposal short id length %d, want %d", len(b), ProposalShortIDLength)
	}
	copy(id[:], b)
	return nil
}

// OutPoint names a previous transaction output: the transaction hash and
// the output index within it.
type OutPoint struct {
	TxHash Hash
	Index  uint32
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash.Hex(), o.Index)
}

// getShardIndex implements common.CacheKey so an OutPoint can key into
// the sharded LRU cache defined in this package, used to front cell
// lookups by out-point rather than by the cell-producing tx hash alone.
func (o OutPoint) getShardIndex(shardMask int) int {
	return int(o.TxHash[len(o.TxHash)-1]^byte(o.Index)) & shardMask
}
