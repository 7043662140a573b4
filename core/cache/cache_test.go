package cache

import (
	"testing"

	"github.com/riscvlabs/corechain/common"
	"github.com/stretchr/testify/require"
)

func TestTxVerifyCacheRoundTrip(t *testing.T) {
	c, err := NewTxVerifyCache(16)
	require.NoError(t, err)

	h := common.BytesToHash([]byte{1, 2, 3})
	_, ok := c.Get(h)
	require.False(t, ok)

	c.Put(h, VerifiedTx{Cycles: 42, Fee: 10, Size: 100})
	v, ok := c.Get(h)
	require.True(t, ok)
	require.Equal(t, uint64(42), v.Cycles)

	c.Clear()
	_, ok = c.Get(h)
	require.False(t, ok)
}

func TestSystemCellCache(t *testing.T) {
	c, err := NewSystemCellCache(4)
	require.NoError(t, err)
	h := common.BytesToHash([]byte{9})
	c.Put(h, "blob")
	v, ok := c.Get(h)
	require.True(t, ok)
	require.Equal(t, "blob", v)
}

func TestCellDataCache(t *testing.T) {
	c := NewCellDataCache(1024 * 1024)
	op := common.OutPoint{TxHash: common.BytesToHash([]byte{7}), Index: 2}
	_, ok := c.Get(op)
	require.False(t, ok)
	c.Put(op, []byte("cell-data"))
	v, ok := c.Get(op)
	require.True(t, ok)
	require.Equal(t, []byte("cell-data"), v)
}
