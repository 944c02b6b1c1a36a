package vesting_test

import (
	"context"
	"strings"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestlabs/vesting-actors/actors/builtin"
	"github.com/vestlabs/vesting-actors/actors/builtin/vesting"
	"github.com/vestlabs/vesting-actors/actors/util/adt"
	"github.com/vestlabs/vesting-actors/support/mock"
	tutil "github.com/vestlabs/vesting-actors/support/testing"
)

func TestExports(t *testing.T) {
	mock.CheckActorExports(t, vesting.Actor{})
}

func TestConstruction(t *testing.T) {
	manager := tutil.NewIDAddr(t, 101)
	treasury := tutil.NewIDAddr(t, 102)
	supply := abi.NewTokenAmount(1_000_000)

	builder := mock.NewBuilder(context.Background(), builtin.VestingActorAddr).
		WithCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)

	t.Run("treasury receives the whole supply", func(t *testing.T) {
		rt := builder.Build(t)
		actor := vesting.Actor{}

		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		ret := rt.Call(actor.Constructor, &vesting.ConstructorParams{
			GrantManager:  manager,
			Treasury:      treasury,
			InitialSupply: supply,
		})
		assert.Nil(t, ret)
		rt.Verify()

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, manager, st.GrantManager)
		assert.Equal(t, supply, st.TotalSupply)

		balance, err := st.BalanceOf(adt.AsStore(rt), treasury)
		require.NoError(t, err)
		assert.Equal(t, supply, balance)
	})

	t.Run("fails when caller is not the system actor", func(t *testing.T) {
		rt := builder.Build(t)
		actor := vesting.Actor{}

		rt.SetCaller(tutil.NewIDAddr(t, 501), builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.ExpectAbort(exitcode.SysErrForbidden, func() {
			rt.Call(actor.Constructor, &vesting.ConstructorParams{
				GrantManager:  manager,
				Treasury:      treasury,
				InitialSupply: supply,
			})
		})
		rt.Verify()
	})

	t.Run("fails with a non-ID manager address", func(t *testing.T) {
		rt := builder.Build(t)
		actor := vesting.Actor{}

		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(actor.Constructor, &vesting.ConstructorParams{
				GrantManager:  tutil.NewSECP256K1Addr(t, "manager"),
				Treasury:      treasury,
				InitialSupply: supply,
			})
		})
		rt.Verify()
	})

	t.Run("fails with a non-positive supply", func(t *testing.T) {
		rt := builder.Build(t)
		actor := vesting.Actor{}

		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(actor.Constructor, &vesting.ConstructorParams{
				GrantManager:  manager,
				Treasury:      treasury,
				InitialSupply: big.Zero(),
			})
		})
		rt.Verify()
	})
}

func TestCreateGrant(t *testing.T) {
	holder := tutil.NewIDAddr(t, 201)

	t.Run("fails when caller lacks the grant capability", func(t *testing.T) {
		rt, h := setupVesting(t)

		rt.SetCaller(tutil.NewIDAddr(t, 501), builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.manager, builtin.DistributionActorAddr)
		rt.ExpectAbort(exitcode.SysErrForbidden, func() {
			rt.Call(h.CreateGrant, h.grantParams(holder, 1000, 0, 300, 20, false))
		})
		rt.Verify()
	})

	t.Run("fails with a non-ID beneficiary", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.expectGrantAbort(rt, exitcode.ErrIllegalArgument, h.grantParams(tutil.NewSECP256K1Addr(t, "holder"), 1000, 0, 300, 20, false))
	})

	t.Run("fails with a non-positive amount", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.expectGrantAbort(rt, exitcode.ErrIllegalArgument, h.grantParams(holder, 0, 0, 300, 20, false))
	})

	t.Run("fails with periods out of range", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.expectGrantAbort(rt, exitcode.ErrIllegalArgument, h.grantParams(holder, 1000, 0, 300, 0, false))
		h.expectGrantAbort(rt, exitcode.ErrIllegalArgument, h.grantParams(holder, 1000, 0, 300, 101, false))
	})

	t.Run("stores the grant and credits the beneficiary", func(t *testing.T) {
		rt, h := setupVesting(t)

		index := h.createGrant(rt, h.grantParams(holder, 1000, 0, 300, 20, false))
		assert.Equal(t, int64(0), index)

		assert.Equal(t, abi.NewTokenAmount(1000), h.balanceOf(rt, holder))
		assert.Equal(t, big.Sub(h.supply, abi.NewTokenAmount(1000)), h.balanceOf(rt, h.manager))
		assert.Equal(t, abi.NewTokenAmount(1000), h.lockedBalance(rt, holder))
		assert.Equal(t, big.Zero(), h.transferableBalance(rt, holder))

		views := h.listGrants(rt, holder)
		require.Len(t, views, 1)
		assert.Equal(t, abi.NewTokenAmount(1000), views[0].Amount)
		assert.Equal(t, abi.ChainEpoch(300), views[0].Duration)
		assert.Equal(t, int64(20), views[0].Periods)
		assert.False(t, views[0].Revocable)

		require.NotEmpty(t, rt.Logs())
		assert.True(t, strings.HasPrefix(rt.Logs()[len(rt.Logs())-1], "grant-created"))
	})

	t.Run("zero duration credits immediately without a record", func(t *testing.T) {
		rt, h := setupVesting(t)

		index := h.createGrant(rt, h.grantParams(holder, 1000, 0, 0, 1, false))
		assert.Equal(t, int64(-1), index)

		assert.Equal(t, abi.NewTokenAmount(1000), h.balanceOf(rt, holder))
		assert.Equal(t, big.Zero(), h.lockedBalance(rt, holder))
		assert.Equal(t, abi.NewTokenAmount(1000), h.transferableBalance(rt, holder))

		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrNotFound, func() {
			rt.Call(h.ListGrants, &holder)
		})
		rt.Verify()
	})

	t.Run("clamps a past start epoch to the current epoch", func(t *testing.T) {
		rt, h := setupVesting(t)
		rt.SetEpoch(100)

		h.createGrant(rt, h.grantParams(holder, 1000, 50, 300, 20, false))

		views := h.listGrants(rt, holder)
		require.Len(t, views, 1)
		assert.Equal(t, abi.ChainEpoch(100), views[0].Start)
	})

	t.Run("enforces the per-holder grant limit", func(t *testing.T) {
		rt, h := setupVesting(t)

		for i := 0; i < vesting.MaxGrantsPerHolder; i++ {
			h.createGrant(rt, h.grantParams(holder, 10, 0, 100, 1, true))
		}
		h.expectGrantAbort(rt, exitcode.ErrForbidden, h.grantParams(holder, 10, 0, 100, 1, true))

		views := h.listGrants(rt, holder)
		assert.Len(t, views, vesting.MaxGrantsPerHolder)
	})

	t.Run("fails when the creator cannot fund the credit", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.expectGrantAbort(rt, exitcode.ErrInsufficientFunds, h.grantParams(holder, 2_000_000, 0, 300, 20, false))
	})
}

func TestTransfer(t *testing.T) {
	holder := tutil.NewIDAddr(t, 201)
	recipient := tutil.NewIDAddr(t, 202)

	t.Run("moves transferable tokens", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(holder, 1000, 0, 0, 1, false)) // immediate transfer

		h.transfer(rt, holder, recipient, 400)

		assert.Equal(t, abi.NewTokenAmount(600), h.balanceOf(rt, holder))
		assert.Equal(t, abi.NewTokenAmount(400), h.balanceOf(rt, recipient))
	})

	t.Run("fails on a negative amount", func(t *testing.T) {
		rt, h := setupVesting(t)

		rt.SetCaller(holder, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.Transfer, &vesting.TransferParams{To: recipient, Amount: abi.NewTokenAmount(-1)})
		})
		rt.Verify()
	})

	t.Run("vesting locks cap the transferable amount", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(holder, 1000, 0, 300, 20, false))
		h.createGrant(rt, h.grantParams(holder, 1000, 100, 400, 10, false))

		// At epoch 345 the first grant has 4 periods done (locked 800) and the second
		// is still pre-cliff (locked 1000), leaving 200 of the 2000 transferable.
		rt.SetEpoch(345)
		assert.Equal(t, abi.NewTokenAmount(1800), h.lockedBalance(rt, holder))
		assert.Equal(t, abi.NewTokenAmount(200), h.transferableBalance(rt, holder))

		rt.SetCaller(holder, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(h.Transfer, &vesting.TransferParams{To: recipient, Amount: abi.NewTokenAmount(201)})
		})
		rt.Verify()

		// The full transferable amount moves cleanly.
		h.transfer(rt, holder, recipient, 200)
		assert.Equal(t, abi.NewTokenAmount(1800), h.balanceOf(rt, holder))
		assert.Equal(t, abi.NewTokenAmount(200), h.balanceOf(rt, recipient))
	})

	t.Run("locks expire as epochs advance", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(holder, 1000, 0, 300, 20, false))

		rt.SetEpoch(10_000)
		assert.Equal(t, big.Zero(), h.lockedBalance(rt, holder))
		h.transfer(rt, holder, recipient, 1000)
		assert.Equal(t, big.Zero(), h.balanceOf(rt, holder))
	})
}

func TestApproveAndTransferFrom(t *testing.T) {
	owner := tutil.NewIDAddr(t, 201)
	spender := tutil.NewIDAddr(t, 202)
	recipient := tutil.NewIDAddr(t, 203)

	t.Run("approve sets the allowance", func(t *testing.T) {
		rt, h := setupVesting(t)

		h.approve(rt, owner, spender, 500)
		assert.Equal(t, abi.NewTokenAmount(500), h.allowance(rt, owner, spender))
		// directional
		assert.Equal(t, big.Zero(), h.allowance(rt, spender, owner))
	})

	t.Run("approve overwrites a previous allowance", func(t *testing.T) {
		rt, h := setupVesting(t)

		h.approve(rt, owner, spender, 500)
		h.approve(rt, owner, spender, 100)
		assert.Equal(t, abi.NewTokenAmount(100), h.allowance(rt, owner, spender))
	})

	t.Run("delegated transfer moves tokens and deducts the allowance", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(owner, 1000, 0, 0, 1, false))
		h.approve(rt, owner, spender, 500)

		rt.SetCaller(spender, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.Call(h.TransferFrom, &vesting.TransferFromParams{From: owner, To: recipient, Amount: abi.NewTokenAmount(300)})
		rt.Verify()

		assert.Equal(t, abi.NewTokenAmount(700), h.balanceOf(rt, owner))
		assert.Equal(t, abi.NewTokenAmount(300), h.balanceOf(rt, recipient))
		assert.Equal(t, abi.NewTokenAmount(200), h.allowance(rt, owner, spender))
	})

	t.Run("fails beyond the allowance", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(owner, 1000, 0, 0, 1, false))
		h.approve(rt, owner, spender, 200)

		rt.SetCaller(spender, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(h.TransferFrom, &vesting.TransferFromParams{From: owner, To: recipient, Amount: abi.NewTokenAmount(201)})
		})
		rt.Verify()
	})

	t.Run("the owner's vesting lock binds the delegate", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(owner, 1000, 0, 300, 20, false))
		h.approve(rt, owner, spender, 1000)

		// Everything is locked pre-cliff regardless of the allowance.
		rt.SetCaller(spender, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(h.TransferFrom, &vesting.TransferFromParams{From: owner, To: recipient, Amount: abi.NewTokenAmount(1)})
		})
		rt.Verify()
	})
}

func TestRevokeGrant(t *testing.T) {
	holder := tutil.NewIDAddr(t, 201)

	t.Run("fails when the holder has no grants", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.expectRevokeAbort(rt, exitcode.ErrNotFound, holder, 0)
	})

	t.Run("fails with an out of range index", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(holder, 1000, 0, 300, 20, true))

		h.expectRevokeAbort(rt, exitcode.ErrIllegalArgument, holder, 1)
		h.expectRevokeAbort(rt, exitcode.ErrIllegalArgument, holder, -1)
	})

	t.Run("revoking releases the lock without moving tokens", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(holder, 1000, 0, 300, 20, true))
		assert.Equal(t, abi.NewTokenAmount(1000), h.lockedBalance(rt, holder))

		h.revokeGrant(rt, holder, 0)

		assert.Equal(t, abi.NewTokenAmount(1000), h.balanceOf(rt, holder))
		assert.Equal(t, big.Zero(), h.lockedBalance(rt, holder))
		assert.Equal(t, abi.NewTokenAmount(1000), h.transferableBalance(rt, holder))

		// The last record's removal deletes the holder's list entirely.
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrNotFound, func() {
			rt.Call(h.ListGrants, &holder)
		})
		rt.Verify()
	})

	t.Run("non-revocable grants are protected until the grace window elapses", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(holder, 1000, 0, 300, 20, false))

		h.expectRevokeAbort(rt, exitcode.ErrForbidden, holder, 0)

		// One epoch short of twice the duration, still protected.
		rt.SetEpoch(599)
		h.expectRevokeAbort(rt, exitcode.ErrForbidden, holder, 0)

		rt.SetEpoch(600)
		h.revokeGrant(rt, holder, 0)
	})

	t.Run("removal swaps the last grant into the vacated slot", func(t *testing.T) {
		rt, h := setupVesting(t)
		h.createGrant(rt, h.grantParams(holder, 100, 0, 300, 20, true))
		h.createGrant(rt, h.grantParams(holder, 200, 0, 300, 20, true))
		h.createGrant(rt, h.grantParams(holder, 300, 0, 300, 20, true))

		h.revokeGrant(rt, holder, 0)

		views := h.listGrants(rt, holder)
		require.Len(t, views, 2)
		assert.Equal(t, abi.NewTokenAmount(300), views[0].Amount)
		assert.Equal(t, abi.NewTokenAmount(200), views[1].Amount)
	})
}

func TestQueries(t *testing.T) {
	stranger := tutil.NewIDAddr(t, 999)

	t.Run("absent holders read as zero", func(t *testing.T) {
		rt, h := setupVesting(t)

		assert.Equal(t, big.Zero(), h.balanceOf(rt, stranger))
		assert.Equal(t, big.Zero(), h.lockedBalance(rt, stranger))
		assert.Equal(t, big.Zero(), h.transferableBalance(rt, stranger))
		assert.Equal(t, big.Zero(), h.allowance(rt, stranger, stranger))
	})

	t.Run("listing grants for a holder without any aborts", func(t *testing.T) {
		rt, h := setupVesting(t)

		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrNotFound, func() {
			rt.Call(h.ListGrants, &stranger)
		})
		rt.Verify()
	})
}

///// Test harness /////

type vestingHarness struct {
	vesting.Actor
	t       testing.TB
	manager address.Address
	supply  abi.TokenAmount
}

// Constructs the ledger with the manager also acting as treasury, so it can fund
// grants directly.
func setupVesting(t *testing.T) (*mock.Runtime, *vestingHarness) {
	h := &vestingHarness{
		t:       t,
		manager: tutil.NewIDAddr(t, 101),
		supply:  abi.NewTokenAmount(1_000_000),
	}
	rt := mock.NewBuilder(context.Background(), builtin.VestingActorAddr).
		WithCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID).
		Build(t)

	rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
	rt.Call(h.Constructor, &vesting.ConstructorParams{
		GrantManager:  h.manager,
		Treasury:      h.manager,
		InitialSupply: h.supply,
	})
	rt.Verify()

	rt.SetCaller(h.manager, builtin.AccountActorCodeID)
	return rt, h
}

func (h *vestingHarness) grantParams(beneficiary address.Address, amount int64, start, duration abi.ChainEpoch, periods int64, revocable bool) *vesting.CreateGrantParams {
	return &vesting.CreateGrantParams{
		Beneficiary: beneficiary,
		Amount:      abi.NewTokenAmount(amount),
		Start:       start,
		Duration:    duration,
		Periods:     periods,
		Revocable:   revocable,
	}
}

func (h *vestingHarness) createGrant(rt *mock.Runtime, params *vesting.CreateGrantParams) int64 {
	rt.SetCaller(h.manager, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.manager, builtin.DistributionActorAddr)
	ret := rt.Call(h.CreateGrant, params).(*vesting.CreateGrantReturn)
	rt.Verify()
	return ret.Index
}

func (h *vestingHarness) expectGrantAbort(rt *mock.Runtime, code exitcode.ExitCode, params *vesting.CreateGrantParams) {
	rt.SetCaller(h.manager, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.manager, builtin.DistributionActorAddr)
	rt.ExpectAbort(code, func() {
		rt.Call(h.CreateGrant, params)
	})
	rt.Verify()
}

func (h *vestingHarness) revokeGrant(rt *mock.Runtime, holder address.Address, index int64) {
	rt.SetCaller(h.manager, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.manager, builtin.DistributionActorAddr)
	rt.Call(h.RevokeGrant, &vesting.RevokeGrantParams{Holder: holder, Index: index})
	rt.Verify()
}

func (h *vestingHarness) expectRevokeAbort(rt *mock.Runtime, code exitcode.ExitCode, holder address.Address, index int64) {
	rt.SetCaller(h.manager, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.manager, builtin.DistributionActorAddr)
	rt.ExpectAbort(code, func() {
		rt.Call(h.RevokeGrant, &vesting.RevokeGrantParams{Holder: holder, Index: index})
	})
	rt.Verify()
}

func (h *vestingHarness) transfer(rt *mock.Runtime, from, to address.Address, amount int64) {
	rt.SetCaller(from, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAny()
	rt.Call(h.Transfer, &vesting.TransferParams{To: to, Amount: abi.NewTokenAmount(amount)})
	rt.Verify()
}

func (h *vestingHarness) approve(rt *mock.Runtime, owner, spender address.Address, amount int64) {
	rt.SetCaller(owner, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAny()
	rt.Call(h.Approve, &vesting.ApproveParams{Spender: spender, Allowance: abi.NewTokenAmount(amount)})
	rt.Verify()
}

func (h *vestingHarness) balanceOf(rt *mock.Runtime, holder address.Address) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.BalanceOf, &holder).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}

func (h *vestingHarness) transferableBalance(rt *mock.Runtime, holder address.Address) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.TransferableBalance, &holder).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}

func (h *vestingHarness) lockedBalance(rt *mock.Runtime, holder address.Address) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.LockedBalance, &holder).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}

func (h *vestingHarness) allowance(rt *mock.Runtime, owner, spender address.Address) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.Allowance, &vesting.AllowanceParams{Owner: owner, Spender: spender}).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}

func (h *vestingHarness) listGrants(rt *mock.Runtime, holder address.Address) []vesting.GrantView {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.ListGrants, &holder).(*vesting.ListGrantsReturn)
	rt.Verify()
	return ret.Grants
}
