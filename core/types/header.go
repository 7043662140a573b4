// Package types defines the canonical on-chain entities: headers,
// blocks, UTXO-style transactions and cells, and the per-block metadata
// the chain reconciler attaches to each header.
package types

import (
	"encoding/binary"
	"math/big"

	"github.com/riscvlabs/corechain/common"
	"golang.org/x/crypto/blake2b"
)

// Header uniquely identifies a block by the content hash of its
// canonical encoding.
type Header struct {
	ParentHash       common.Hash
	Number           uint64
	Epoch            uint64
	Timestamp        uint64
	CompactTarget    uint32
	Dao              common.Hash
	Nonce            uint64
	TransactionsRoot common.Hash
	ProposalsHash    common.Hash
	UnclesHash       common.Hash
	UnclesCount      uint32
}

// Hash returns the Blake2b-256 content hash of the canonical encoding of
// h.
func (h *Header) Hash() common.Hash {
	buf := make([]byte, 0, 160)
	buf = append(buf, h.ParentHash.Bytes()...)
	buf = appendUint64(buf, h.Number)
	buf = appendUint64(buf, h.Epoch)
	buf = appendUint64(buf, h.Timestamp)
	buf = appendUint32(buf, h.CompactTarget)
	buf = append(buf, h.Dao.Bytes()...)
	buf = appendUint64(buf, h.Nonce)
	buf = append(buf, h.TransactionsRoot.Bytes()...)
	buf = append(buf, h.ProposalsHash.Bytes()...)
	buf = append(buf, h.UnclesHash.Bytes()...)
	buf = appendUint32(buf, h.UnclesCount)
	sum := blake2b.Sum256(buf)
	return common.Hash(sum)
}

// Difficulty expands the compact target into a full big.Int difficulty,
// mirroring the compact-difficulty-target wire format.
func (h *Header) Difficulty() *big.Int {
	return CompactToDifficulty(h.CompactTarget)
}

// CompactToDifficulty is the inverse of a miner's difficulty->compact
// target packing; 0 target maps to 0 difficulty.
func CompactToDifficulty(compact uint32) *big.Int {
	if compact == 0 {
		return big.NewInt(0)
	}
	mantissa := big.NewInt(int64(compact & 0x007fffff))
	exponent := int(compact>>24) & 0xff
	shift := 8 * (exponent - 3)
	target := new(big.Int)
	if shift >= 0 {
		target.Lsh(mantissa, uint(shift))
	} else {
		target.Rsh(mantissa, uint(-shift))
	}
	if target.Sign() == 0 {
		return big.NewInt(0)
	}
	maxTarget := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(maxTarget, target)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
