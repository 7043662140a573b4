package types

import "github.com/riscvlabs/corechain/common"

// UncleBlock is a stale-but-referenced block included for cumulative
// uncle count/total-difficulty accounting.
type UncleBlock struct {
	Header *Header
}

// Block is an ordered sequence of transactions plus a header.
type Block struct {
	Header       *Header
	Transactions []*Transaction
	Uncles       []*UncleBlock
	Proposals    []common.ProposalShortID
}

func (b *Block) Hash() common.Hash   { return b.Header.Hash() }
func (b *Block) Number() uint64      { return b.Header.Number }
func (b *Block) ParentHash() common.Hash { return b.Header.ParentHash }

// TxCount reports the number of transactions, coinbase included.
func (b *Block) TxCount() int { return len(b.Transactions) }
