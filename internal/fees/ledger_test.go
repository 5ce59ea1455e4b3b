package fees

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func TestAccrue(t *testing.T) {
	l := NewLedger(owner)
	gross, _ := uint256.FromDecimal("10000000000000000000")

	net, fee, err := l.Accrue(weth, gross, 100)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", fee.Dec())
	assert.Equal(t, "9900000000000000000", net.Dec())
	assert.Equal(t, fee, l.Balance(weth))

	// second accrual adds exactly its fee
	_, fee2, err := l.Accrue(weth, gross, 50)
	require.NoError(t, err)
	assert.Equal(t, "150000000000000000", l.Balance(weth).Dec())
	assert.Equal(t, "50000000000000000", fee2.Dec())

	// other assets are independent
	assert.True(t, l.Balance(usdc).IsZero())
}

func TestAccrueRoundsDown(t *testing.T) {
	l := NewLedger(owner)

	net, fee, err := l.Accrue(usdc, uint256.NewInt(199), 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee.Uint64())
	assert.Equal(t, uint64(199), net.Uint64())

	_, _, err = l.Accrue(usdc, uint256.NewInt(1), 10_001)
	assert.ErrorIs(t, err, amount.ErrPrecision)
}

func TestWithdraw(t *testing.T) {
	l := NewLedger(owner)
	_, _, err := l.Accrue(usdc, uint256.NewInt(1_000_000), 250)
	require.NoError(t, err)

	_, err = l.Withdraw(stranger, usdc, stranger)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, uint64(25_000), l.Balance(usdc).Uint64())

	rec, err := l.Withdraw(owner, usdc, stranger)
	require.NoError(t, err)
	assert.Equal(t, usdc, rec.Asset)
	assert.Equal(t, stranger, rec.Recipient)
	assert.Equal(t, uint64(25_000), rec.Amount.Uint64())
	assert.False(t, rec.Timestamp.IsZero())
	assert.True(t, l.Balance(usdc).IsZero())

	_, err = l.Withdraw(owner, usdc, owner)
	assert.ErrorIs(t, err, ErrNothingToWithdraw)
}

func TestSnapshotRestore(t *testing.T) {
	l := NewLedger(owner)
	_, _, err := l.Accrue(weth, uint256.NewInt(10_000), 100)
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, map[string]string{weth.Hex(): "100"}, snap)

	other := NewLedger(owner)
	require.NoError(t, other.Restore(snap))
	assert.Equal(t, uint64(100), other.Balance(weth).Uint64())

	assert.Error(t, other.Restore(map[string]string{"nope": "1"}))
	assert.ErrorIs(t, other.Restore(map[string]string{weth.Hex(): "-1"}), amount.ErrPrecision)
}

func TestAccrueConcurrent(t *testing.T) {
	l := NewLedger(owner)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = l.Accrue(weth, uint256.NewInt(10_000), 100)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(10_000), l.Balance(weth).Uint64())
}
