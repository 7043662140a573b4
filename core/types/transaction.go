package types

import (
	"encoding/binary"

	"github.com/riscvlabs/corechain/common"
	"golang.org/x/crypto/blake2b"
)

// CellInput names a previous output by out-point plus the since field
// used for relative/absolute time-lock checks.
type CellInput struct {
	PreviousOutput common.OutPoint
	Since          uint64
}

// DepType distinguishes a cell-dep that points directly at a cell from
// one whose data is itself a vector of further out-points (a dep-group).
type DepType uint8

const (
	DepTypeCode DepType = iota
	DepTypeDepGroup
)

// CellDep is an input-side reference to a cell the transaction's scripts
// may read without consuming it.
type CellDep struct {
	OutPoint common.OutPoint
	DepType  DepType
}

// Script is a (code_hash, hash_type, args) triple naming one RISC-V
// program plus its arguments; code_hash resolves to a cell's data via a
// cell-dep (direct or dep-group).
type Script struct {
	CodeHash common.Hash
	HashType uint8
	Args     []byte
}

// CellOutput is a transaction output: a capacity-bearing cell guarded by
// a lock script and optionally typed by a type script.
type CellOutput struct {
	Capacity uint64
	Lock     Script
	Type     *Script
}

// Transaction is the UTXO-style entity this chain moves value through.
type Transaction struct {
	Version     uint32
	CellDeps    []CellDep
	HeaderDeps  []common.Hash
	Inputs      []CellInput
	Outputs     []CellOutput
	OutputsData [][]byte
	Witnesses   [][]byte
}

// Hash returns the content hash over everything except witnesses —
// witnesses are malleable wire data and are excluded from the canonical
// hash, the same signature-stripped identity ProposalShortID derives
// from.
func (tx *Transaction) Hash() common.Hash {
	buf := make([]byte, 0, 256)
	buf = appendU32(buf, tx.Version)
	for _, d := range tx.CellDeps {
		buf = append(buf, d.OutPoint.TxHash.Bytes()...)
		buf = appendU32(buf, d.OutPoint.Index)
		buf = append(buf, byte(d.DepType))
	}
	for _, h := range tx.HeaderDeps {
		buf = append(buf, h.Bytes()...)
	}
	for _, in := range tx.Inputs {
		buf = append(buf, in.PreviousOutput.TxHash.Bytes()...)
		buf = appendU32(buf, in.PreviousOutput.Index)
		buf = appendU64(buf, in.Since)
	}
	for i, out := range tx.Outputs {
		buf = appendU64(buf, out.Capacity)
		buf = append(buf, out.Lock.CodeHash.Bytes()...)
		buf = append(buf, out.Lock.HashType)
		buf = append(buf, out.Lock.Args...)
		if out.Type != nil {
			buf = append(buf, out.Type.CodeHash.Bytes()...)
			buf = append(buf, out.Type.HashType)
			buf = append(buf, out.Type.Args...)
		}
		if i < len(tx.OutputsData) {
			buf = append(buf, tx.OutputsData[i]...)
		}
	}
	sum := blake2b.Sum256(buf)
	return common.Hash(sum)
}

// ProposalShortID returns the fixed-width prefix of tx's hash used by the
// propose-then-commit protocol.
func (tx *Transaction) ProposalShortID() common.ProposalShortID {
	return common.ProposalShortIDFromHash(tx.Hash())
}

// IsCellbase reports whether tx is a coinbase transaction: no inputs
// (or, equivalently by convention, a single null-out-point input).
func (tx *Transaction) IsCellbase() bool {
	if len(tx.Inputs) != 1 {
		return len(tx.Inputs) == 0
	}
	return tx.Inputs[0].PreviousOutput.TxHash.IsZero()
}

// OutputsCapacity sums the capacity of every output.
func (tx *Transaction) OutputsCapacity() uint64 {
	var total uint64
	for _, o := range tx.Outputs {
		total += o.Capacity
	}
	return total
}

// SerializedSize is a cheap structural size estimate used for weight and
// fee-rate accounting; the real wire encoder is an external collaborator,
// this mirrors its length without implementing it.
func (tx *Transaction) SerializedSize() uint64 {
	size := uint64(4) // version
	size += uint64(len(tx.CellDeps)) * 41
	size += uint64(len(tx.HeaderDeps)) * 32
	size += uint64(len(tx.Inputs)) * 44
	for i, o := range tx.Outputs {
		size += 8 + 33 + uint64(len(o.Lock.Args))
		if o.Type != nil {
			size += 33 + uint64(len(o.Type.Args))
		}
		if i < len(tx.OutputsData) {
			size += uint64(len(tx.OutputsData[i]))
		}
	}
	for _, w := range tx.Witnesses {
		size += uint64(len(w))
	}
	return size
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
