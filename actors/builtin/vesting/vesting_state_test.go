package vesting_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestlabs/vesting-actors/actors/builtin/vesting"
	"github.com/vestlabs/vesting-actors/support/ipld"
	tutil "github.com/vestlabs/vesting-actors/support/testing"
)

func TestRemainingLocked(t *testing.T) {
	grant := func(amount int64, start, duration abi.ChainEpoch, periods int64) *vesting.Grant {
		return &vesting.Grant{
			Amount:   abi.NewTokenAmount(amount),
			Start:    start,
			Duration: duration,
			Periods:  periods,
		}
	}

	t.Run("fully locked until the cliff ends", func(t *testing.T) {
		g := grant(1000, 100, 300, 20)
		assert.Equal(t, abi.NewTokenAmount(1000), g.RemainingLocked(0))
		assert.Equal(t, abi.NewTokenAmount(1000), g.RemainingLocked(100))
		assert.Equal(t, abi.NewTokenAmount(1000), g.RemainingLocked(399))
	})

	t.Run("first period completes the instant the cliff ends", func(t *testing.T) {
		g := grant(1000, 100, 300, 20)
		// 1/20 unlocked at epoch 400
		assert.Equal(t, abi.NewTokenAmount(950), g.RemainingLocked(400))
	})

	t.Run("unlocks in discrete steps", func(t *testing.T) {
		g := grant(1000, 100, 300, 20)
		// period length 300/20 = 15, so 45 epochs past the cliff is 4 periods
		assert.Equal(t, abi.NewTokenAmount(800), g.RemainingLocked(445))
		// nothing changes within a period
		assert.Equal(t, abi.NewTokenAmount(800), g.RemainingLocked(459))
		assert.Equal(t, abi.NewTokenAmount(750), g.RemainingLocked(460))
	})

	t.Run("fully unlocked when all periods elapse", func(t *testing.T) {
		g := grant(1000, 100, 300, 20)
		// 20 periods after the cliff at 400+19*15
		assert.Equal(t, big.Zero(), g.RemainingLocked(685))
		assert.Equal(t, big.Zero(), g.RemainingLocked(100000))
	})

	t.Run("period length clamps to one epoch when duration is shorter than period count", func(t *testing.T) {
		g := grant(1000, 0, 10, 100)
		assert.Equal(t, abi.NewTokenAmount(1000), g.RemainingLocked(9))
		// one period per epoch past the cliff
		assert.Equal(t, abi.NewTokenAmount(990), g.RemainingLocked(10))
		assert.Equal(t, abi.NewTokenAmount(950), g.RemainingLocked(14))
		assert.Equal(t, big.Zero(), g.RemainingLocked(109))
	})

	t.Run("single period unlocks everything at the cliff", func(t *testing.T) {
		g := grant(1000, 100, 300, 1)
		assert.Equal(t, abi.NewTokenAmount(1000), g.RemainingLocked(399))
		assert.Equal(t, big.Zero(), g.RemainingLocked(400))
	})

	t.Run("locked amount never increases over time", func(t *testing.T) {
		g := grant(999, 7, 250, 17)
		prev := g.Amount
		for now := abi.ChainEpoch(0); now < 600; now++ {
			locked := g.RemainingLocked(now)
			assert.True(t, locked.LessThanEqual(prev), "locked %v at %d exceeds %v", locked, now, prev)
			assert.True(t, locked.GreaterThanEqual(big.Zero()))
			prev = locked
		}
		assert.Equal(t, big.Zero(), prev)
	})
}

func TestRevocableAt(t *testing.T) {
	t.Run("revocable grants are always eligible", func(t *testing.T) {
		g := &vesting.Grant{Amount: abi.NewTokenAmount(1), Start: 100, Duration: 300, Periods: 10, Revocable: true}
		assert.True(t, g.RevocableAt(0))
		assert.True(t, g.RevocableAt(100))
	})

	t.Run("non-revocable grants become eligible after the grace window", func(t *testing.T) {
		g := &vesting.Grant{Amount: abi.NewTokenAmount(1), Start: 100, Duration: 300, Periods: 10, Revocable: false}
		assert.False(t, g.RevocableAt(100))
		assert.False(t, g.RevocableAt(699))
		assert.True(t, g.RevocableAt(700))
	})
}

func TestStateBalances(t *testing.T) {
	manager := tutil.NewIDAddr(t, 101)
	treasury := tutil.NewIDAddr(t, 102)
	holder := tutil.NewIDAddr(t, 103)
	supply := abi.NewTokenAmount(1_000_000)

	t.Run("treasury holds the whole supply after construction", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		balance, err := st.BalanceOf(store, treasury)
		require.NoError(t, err)
		assert.Equal(t, supply, balance)

		balance, err = st.BalanceOf(store, holder)
		require.NoError(t, err)
		assert.Equal(t, big.Zero(), balance)
	})

	t.Run("transfer moves balance and conserves the total", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		require.NoError(t, st.Transfer(store, treasury, holder, abi.NewTokenAmount(400)))

		fromBalance, err := st.BalanceOf(store, treasury)
		require.NoError(t, err)
		toBalance, err := st.BalanceOf(store, holder)
		require.NoError(t, err)
		assert.Equal(t, big.Sub(supply, abi.NewTokenAmount(400)), fromBalance)
		assert.Equal(t, abi.NewTokenAmount(400), toBalance)

		summary, acc := vesting.CheckStateInvariants(st, store, 0)
		assert.True(t, acc.IsEmpty(), "%v", acc.Messages())
		assert.Equal(t, supply, summary.TotalBalance)
	})

	t.Run("transfer fails on insufficient balance", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		err = st.Transfer(store, holder, treasury, abi.NewTokenAmount(1))
		require.Error(t, err)
	})
}

func TestStateGrants(t *testing.T) {
	manager := tutil.NewIDAddr(t, 101)
	treasury := tutil.NewIDAddr(t, 102)
	holder := tutil.NewIDAddr(t, 103)
	supply := abi.NewTokenAmount(1_000_000)

	t.Run("transferable balance nets out overlapping grants", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		// Holder receives 2000, of which two grants lock portions on different schedules.
		require.NoError(t, st.Transfer(store, treasury, holder, abi.NewTokenAmount(2000)))
		require.NoError(t, st.PutGrantList(store, holder, []vesting.Grant{
			{Amount: abi.NewTokenAmount(1000), Start: 0, Duration: 300, Periods: 20, Revocable: false},
			{Amount: abi.NewTokenAmount(1000), Start: 100, Duration: 400, Periods: 10, Revocable: false},
		}))

		// At epoch 330: first grant has 3 periods done (locked 850), second is pre-cliff (locked 1000).
		locked, err := st.LockedBalance(store, holder, 330)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(1850), locked)

		transferable, err := st.TransferableBalance(store, holder, 330)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(150), transferable)

		summary, acc := vesting.CheckStateInvariants(st, store, 330)
		assert.True(t, acc.IsEmpty(), "%v", acc.Messages())
		assert.Equal(t, 2, summary.GrantCount)
		assert.Equal(t, abi.NewTokenAmount(1850), summary.TotalLocked)
	})

	t.Run("holders without grants short-circuit to the full balance", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		transferable, err := st.TransferableBalance(store, treasury, 0)
		require.NoError(t, err)
		assert.Equal(t, supply, transferable)
	})

	t.Run("deleting the last grant removes the holder entry", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		require.NoError(t, st.Transfer(store, treasury, holder, abi.NewTokenAmount(100)))
		require.NoError(t, st.PutGrantList(store, holder, []vesting.Grant{
			{Amount: abi.NewTokenAmount(100), Start: 0, Duration: 10, Periods: 1, Revocable: true},
		}))

		_, found, err := st.GetGrantList(store, holder)
		require.NoError(t, err)
		require.True(t, found)

		require.NoError(t, st.PutGrantList(store, holder, nil))
		_, found, err = st.GetGrantList(store, holder)
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestStateAllowances(t *testing.T) {
	manager := tutil.NewIDAddr(t, 101)
	treasury := tutil.NewIDAddr(t, 102)
	owner := tutil.NewIDAddr(t, 103)
	spender := tutil.NewIDAddr(t, 104)
	supply := abi.NewTokenAmount(1_000_000)

	t.Run("set, get, deduct", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		allowance, err := st.GetAllowance(store, owner, spender)
		require.NoError(t, err)
		assert.Equal(t, big.Zero(), allowance)

		require.NoError(t, st.SetAllowance(store, owner, spender, abi.NewTokenAmount(500)))
		allowance, err = st.GetAllowance(store, owner, spender)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(500), allowance)

		require.NoError(t, st.DeductAllowance(store, owner, spender, abi.NewTokenAmount(200)))
		allowance, err = st.GetAllowance(store, owner, spender)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(300), allowance)

		err = st.DeductAllowance(store, owner, spender, abi.NewTokenAmount(301))
		require.Error(t, err)
	})

	t.Run("allowances are directional", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		require.NoError(t, st.SetAllowance(store, owner, spender, abi.NewTokenAmount(500)))
		reverse, err := st.GetAllowance(store, spender, owner)
		require.NoError(t, err)
		assert.Equal(t, big.Zero(), reverse)
	})

	t.Run("setting an allowance to zero deletes the entry", func(t *testing.T) {
		store := ipld.NewADTStore(context.Background())
		st, err := vesting.ConstructState(store, manager, treasury, supply)
		require.NoError(t, err)

		require.NoError(t, st.SetAllowance(store, owner, spender, abi.NewTokenAmount(500)))
		require.NoError(t, st.SetAllowance(store, owner, spender, big.Zero()))

		_, acc := vesting.CheckStateInvariants(st, store, 0)
		assert.True(t, acc.IsEmpty(), "%v", acc.Messages())
	})
}
