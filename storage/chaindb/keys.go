// Key encodings for the four column families, grounded on storage/
// database/db_manager.go's prefix-byte convention (a one-byte tag
// followed by the big-endian natural key) adapted to this node's
// schema.

package chaindb

import (
	"encoding/binary"

	"github.com/riscvlabs/corechain/common"
)

var (
	tipHeaderKey    = []byte("h")
	currentEpochKey = []byte("e")

	blockNumberPrefix  = []byte("n") // BlockIndexDB: n||number -> hash
	blockHashPrefix    = []byte("H") // BlockIndexDB: H||hash -> number

	blockPrefix       = []byte("b") // BlockStoreDB: b||hash -> block
	blockExtPrefix    = []byte("x") // BlockStoreDB: x||hash -> block_ext
	epochIndexPrefix  = []byte("i") // BlockStoreDB: i||number -> epoch_index
	epochExtPrefix    = []byte("E") // BlockStoreDB: E||epoch_index -> epoch_ext

	cellPrefix     = []byte("c") // CellSetDB: c||out_point -> cell_meta (+liveness)
	cellDataPrefix = []byte("d") // CellSetDB: d||out_point -> cell data blob

	mmrPagePrefix = []byte("m") // MMRStoreDB: m||position -> page
)

func encodeUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func decodeUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func keyBlockNumber(number uint64) []byte {
	return append(append([]byte{}, blockNumberPrefix...), encodeUint64(number)...)
}

func keyBlockHash(h common.Hash) []byte {
	return append(append([]byte{}, blockHashPrefix...), h.Bytes()...)
}

func keyBlock(h common.Hash) []byte {
	return append(append([]byte{}, blockPrefix...), h.Bytes()...)
}

func keyBlockExt(h common.Hash) []byte {
	return append(append([]byte{}, blockExtPrefix...), h.Bytes()...)
}

func keyEpochIndex(number uint64) []byte {
	return append(append([]byte{}, epochIndexPrefix...), encodeUint64(number)...)
}

func keyEpochExt(epochNumber uint64) []byte {
	return append(append([]byte{}, epochExtPrefix...), encodeUint64(epochNumber)...)
}

func keyCell(op common.OutPoint) []byte {
	k := append([]byte{}, cellPrefix...)
	k = append(k, op.TxHash.Bytes()...)
	return append(k, encodeUint64(uint64(op.Index))...)
}

func keyCellData(op common.OutPoint) []byte {
	k := append([]byte{}, cellDataPrefix...)
	k = append(k, op.TxHash.Bytes()...)
	return append(k, encodeUint64(uint64(op.Index))...)
}

func keyMMRPage(position uint64) []byte {
	return append(append([]byte{}, mmrPagePrefix...), encodeUint64(position)...)
}
