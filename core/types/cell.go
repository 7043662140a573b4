package types

import "github.com/riscvlabs/corechain/common"

// TransactionInfo records where the cell-producing transaction lives on
// the main chain, enriching a CellMeta.
type TransactionInfo struct {
	BlockNumber uint64
	BlockHash   common.Hash
	BlockEpoch  uint64
	Index       uint32
}

// CellMeta enriches a CellOutput with its out-point, producing-tx info,
// and (optionally) in-memory data. If MemCellData is absent the loader
// must fetch it on demand.
type CellMeta struct {
	OutPoint    common.OutPoint
	Output      CellOutput
	Info        TransactionInfo
	DataLength  uint64
	MemCellData []byte
	MemDataHash *common.Hash
}

// HasData reports whether the cell's data is already resident in memory.
func (c *CellMeta) HasData() bool { return c.MemCellData != nil }

// CellStatus classifies the liveness of an out-point as seen by the
// store façade's get_cell.
type CellStatus int

const (
	CellUnknown CellStatus = iota
	CellLive
	CellDead
)

// CellResult is the {Live(CellMeta), Dead, Unknown} union returned by
// get_cell.
type CellResult struct {
	Status CellStatus
	Cell   *CellMeta
}

func LiveCell(c *CellMeta) CellResult  { return CellResult{Status: CellLive, Cell: c} }
func DeadCell() CellResult             { return CellResult{Status: CellDead} }
func UnknownCell() CellResult          { return CellResult{Status: CellUnknown} }
func (r CellResult) IsLive() bool      { return r.Status == CellLive }
func (r CellResult) IsDead() bool      { return r.Status == CellDead }
func (r CellResult) IsUnknown() bool   { return r.Status == CellUnknown }
