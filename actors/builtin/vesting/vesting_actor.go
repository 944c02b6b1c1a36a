package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"

	"github.com/vestlabs/vesting-actors/actors/builtin"
	vmr "github.com/vestlabs/vesting-actors/actors/runtime"
	"github.com/vestlabs/vesting-actors/actors/util/adt"
)

// The vesting actor is the fixed-supply fungible ledger plus the grant engine that
// encumbers parts of it. A holder's transferable balance is always their ledger
// balance minus whatever their grants keep locked at the current epoch.
type Actor struct{}

type Runtime = vmr.Runtime

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.CreateGrant,
		3:                         a.RevokeGrant,
		4:                         a.Transfer,
		5:                         a.Approve,
		6:                         a.TransferFrom,
		7:                         a.BalanceOf,
		8:                         a.TransferableBalance,
		9:                         a.LockedBalance,
		10:                        a.ListGrants,
		11:                        a.Allowance,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.VestingActorCodeID
}

func (a Actor) IsSingleton() bool {
	return true
}

func (a Actor) State() cbor.Er {
	return new(State)
}

var _ vmr.VMActor = Actor{}

////////////////////////////////////////////////////////////////////////////////
// Actor methods
////////////////////////////////////////////////////////////////////////////////

type ConstructorParams struct {
	// Identity granted the grant-management capability.
	GrantManager addr.Address
	// Recipient of the entire initial supply.
	Treasury addr.Address
	// Token supply, fixed forever after construction.
	InitialSupply abi.TokenAmount
}

func (a Actor) Constructor(rt Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	builtin.RequireParam(rt, params.GrantManager.Protocol() == addr.ID, "grant manager must be an ID address")
	builtin.RequireParam(rt, params.Treasury.Protocol() == addr.ID, "treasury must be an ID address")
	builtin.RequireParam(rt, params.InitialSupply.GreaterThan(big.Zero()), "non-positive initial supply %v", params.InitialSupply)

	st, err := ConstructState(adt.AsStore(rt), params.GrantManager, params.Treasury, params.InitialSupply)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")
	rt.State().Create(st)
	return nil
}

type CreateGrantParams struct {
	Beneficiary addr.Address
	Amount      abi.TokenAmount
	Start       abi.ChainEpoch
	Duration    abi.ChainEpoch
	Periods     int64
	Revocable   bool
}

type CreateGrantReturn struct {
	// Index of the stored grant record in the beneficiary's list, or -1 when the
	// grant had zero duration and no record was stored.
	Index int64
}

// CreateGrant locks `Amount` for the beneficiary under a new release schedule and
// credits the beneficiary's ledger balance with the same amount, funded by the
// caller's balance. A zero-duration grant has no lock window to track: no record is
// stored but the credit still happens, making it an immediate unconditional transfer.
//
// A start epoch of zero or in the past is clamped forward to the current epoch.
func (a Actor) CreateGrant(rt Runtime, params *CreateGrantParams) *CreateGrantReturn {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.GrantManager, builtin.DistributionActorAddr)
	caller := rt.Message().Caller()

	if params.Beneficiary.Protocol() != addr.ID {
		rt.Abortf(exitcode.ErrIllegalArgument, "beneficiary %v is not an ID address", params.Beneficiary)
	}
	if params.Amount.LessThanEqual(big.Zero()) {
		rt.Abortf(exitcode.ErrIllegalArgument, "non-positive grant amount %v", params.Amount)
	}
	if params.Periods < MinGrantPeriods || params.Periods > MaxGrantPeriods {
		rt.Abortf(exitcode.ErrIllegalArgument, "periods %d out of range [%d, %d]", params.Periods, MinGrantPeriods, MaxGrantPeriods)
	}

	start := params.Start
	if start < rt.CurrEpoch() {
		start = rt.CurrEpoch()
	}

	index := int64(-1)
	rt.State().Transaction(&st, func() interface{} {
		store := adt.AsStore(rt)

		list, _, err := st.GetGrantList(store, params.Beneficiary)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load grants for %v", params.Beneficiary)
		if len(list) >= MaxGrantsPerHolder {
			rt.Abortf(exitcode.ErrForbidden, "%v already has %d grants", params.Beneficiary, len(list))
		}

		if params.Duration > 0 {
			list = append(list, Grant{
				Amount:    params.Amount,
				Start:     start,
				Duration:  params.Duration,
				Periods:   params.Periods,
				Revocable: params.Revocable,
			})
			index = int64(len(list) - 1)
			err = st.PutGrantList(store, params.Beneficiary, list)
			builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to store grant for %v", params.Beneficiary)
		}

		// The credit happens whether or not a record was stored.
		if err := st.Transfer(store, caller, params.Beneficiary, params.Amount); err != nil {
			if _, ok := err.(adt.ErrInsufficient); ok {
				rt.Abortf(exitcode.ErrInsufficientFunds, "grant creator %v cannot fund credit of %v: %v", caller, params.Amount, err)
			}
			rt.Abortf(exitcode.ErrIllegalState, "failed to credit %v: %v", params.Beneficiary, err)
		}
		return nil
	})

	rt.Log(rtt.INFO, "grant-created from=%v to=%v amount=%v start=%d duration=%d periods=%d revocable=%t",
		caller, params.Beneficiary, params.Amount, start, params.Duration, params.Periods, params.Revocable)
	return &CreateGrantReturn{Index: index}
}

type RevokeGrantParams struct {
	Holder addr.Address
	Index  int64
}

// RevokeGrant removes the lock bookkeeping entry at `Index` in the holder's grant
// list. It never claws back tokens: whatever the grant still held locked becomes
// transferable immediately. A grant is eligible when it was created revocable or its
// grace window (twice its duration, from its start) has elapsed.
//
// Removal swaps the last grant into the removed slot, so indices observed before a
// revocation are invalidated by it.
func (a Actor) RevokeGrant(rt Runtime, params *RevokeGrantParams) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.GrantManager, builtin.DistributionActorAddr)

	rt.State().Transaction(&st, func() interface{} {
		store := adt.AsStore(rt)

		list, found, err := st.GetGrantList(store, params.Holder)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load grants for %v", params.Holder)
		if !found || len(list) == 0 {
			rt.Abortf(exitcode.ErrNotFound, "%v has no grants", params.Holder)
		}
		if params.Index < 0 || params.Index >= int64(len(list)) {
			rt.Abortf(exitcode.ErrIllegalArgument, "grant index %d out of range for %d grants", params.Index, len(list))
		}

		grant := list[params.Index]
		if !grant.RevocableAt(rt.CurrEpoch()) {
			rt.Abortf(exitcode.ErrForbidden, "grant %d of %v is not revocable until epoch %d",
				params.Index, params.Holder, grant.Start+RevocationGraceFactor*grant.Duration)
		}

		list[params.Index] = list[len(list)-1]
		list = list[:len(list)-1]
		err = st.PutGrantList(store, params.Holder, list)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to store grants for %v", params.Holder)
		return nil
	})

	rt.Log(rtt.INFO, "grant-revoked holder=%v index=%d", params.Holder, params.Index)
	return nil
}

type TransferParams struct {
	To     addr.Address
	Amount abi.TokenAmount
}

// Transfer moves tokens from the caller, limited to the caller's transferable
// balance at the current epoch.
func (a Actor) Transfer(rt Runtime, params *TransferParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	from := rt.Message().Caller()

	builtin.RequireParam(rt, params.To != addr.Undef, "transfer to undefined address")
	builtin.RequireParam(rt, params.Amount.GreaterThanEqual(big.Zero()), "negative transfer amount %v", params.Amount)

	var st State
	rt.State().Transaction(&st, func() interface{} {
		guardedTransfer(rt, &st, from, params.To, params.Amount)
		return nil
	})

	rt.Log(rtt.DEBUG, "transfer from=%v to=%v amount=%v", from, params.To, params.Amount)
	return nil
}

type ApproveParams struct {
	Spender   addr.Address
	Allowance abi.TokenAmount
}

// Approve sets the amount the spender may pull from the caller's balance via
// TransferFrom, overwriting any previous allowance.
func (a Actor) Approve(rt Runtime, params *ApproveParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	owner := rt.Message().Caller()

	builtin.RequireParam(rt, params.Spender != addr.Undef, "approve for undefined spender")
	builtin.RequireParam(rt, params.Allowance.GreaterThanEqual(big.Zero()), "negative allowance %v", params.Allowance)

	var st State
	rt.State().Transaction(&st, func() interface{} {
		err := st.SetAllowance(adt.AsStore(rt), owner, params.Spender, params.Allowance)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to set allowance")
		return nil
	})
	return nil
}

type TransferFromParams struct {
	From   addr.Address
	To     addr.Address
	Amount abi.TokenAmount
}

// TransferFrom moves tokens on behalf of `From`, within the caller's allowance.
// The vesting guard applies to the token owner's grants, never the delegate's.
func (a Actor) TransferFrom(rt Runtime, params *TransferFromParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	spender := rt.Message().Caller()

	builtin.RequireParam(rt, params.From != addr.Undef && params.To != addr.Undef, "transfer with undefined address")
	builtin.RequireParam(rt, params.Amount.GreaterThanEqual(big.Zero()), "negative transfer amount %v", params.Amount)

	var st State
	rt.State().Transaction(&st, func() interface{} {
		store := adt.AsStore(rt)

		allowance, err := st.GetAllowance(store, params.From, spender)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load allowance")
		if allowance.LessThan(params.Amount) {
			rt.Abortf(exitcode.ErrInsufficientFunds, "allowance %v of %v for %v below transfer %v",
				allowance, params.From, spender, params.Amount)
		}

		guardedTransfer(rt, &st, params.From, params.To, params.Amount)

		err = st.DeductAllowance(store, params.From, spender, params.Amount)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to deduct allowance")
		return nil
	})

	rt.Log(rtt.DEBUG, "transfer-from spender=%v from=%v to=%v amount=%v", spender, params.From, params.To, params.Amount)
	return nil
}

// BalanceOf returns the holder's raw ledger balance, ignoring vesting locks.
func (a Actor) BalanceOf(rt Runtime, holder *addr.Address) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	balance, err := st.BalanceOf(adt.AsStore(rt), *holder)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load balance of %v", holder)
	return &balance
}

// TransferableBalance returns the holder's ledger balance minus the locked remainder
// of all their grants at the current epoch.
func (a Actor) TransferableBalance(rt Runtime, holder *addr.Address) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	transferable, err := st.TransferableBalance(adt.AsStore(rt), *holder, rt.CurrEpoch())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to compute transferable balance of %v", holder)
	return &transferable
}

// LockedBalance returns the total still-locked amount across the holder's grants at
// the current epoch.
func (a Actor) LockedBalance(rt Runtime, holder *addr.Address) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	locked, err := st.LockedBalance(adt.AsStore(rt), *holder, rt.CurrEpoch())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to compute locked balance of %v", holder)
	return &locked
}

type GrantView struct {
	// Index of the grant at query time. Invalidated by any subsequent revocation.
	Index     int64
	Amount    abi.TokenAmount
	Start     abi.ChainEpoch
	Duration  abi.ChainEpoch
	Periods   int64
	Revocable bool
	// Remaining locked amount at the query epoch.
	Locked abi.TokenAmount
}

type ListGrantsReturn struct {
	Grants []GrantView
}

// ListGrants reports the holder's grant records with their remaining-locked amounts
// evaluated at the current epoch. Aborts with not-found when the holder has no
// records, including immediately after their last grant was revoked. Ordering is
// storage order, which stops matching creation order once any revocation occurs.
func (a Actor) ListGrants(rt Runtime, holder *addr.Address) *ListGrantsReturn {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	list, found, err := st.GetGrantList(adt.AsStore(rt), *holder)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load grants for %v", holder)
	if !found || len(list) == 0 {
		rt.Abortf(exitcode.ErrNotFound, "%v has no grants", holder)
	}

	now := rt.CurrEpoch()
	views := make([]GrantView, 0, len(list))
	for i, g := range list {
		views = append(views, GrantView{
			Index:     int64(i),
			Amount:    g.Amount,
			Start:     g.Start,
			Duration:  g.Duration,
			Periods:   g.Periods,
			Revocable: g.Revocable,
			Locked:    g.RemainingLocked(now),
		})
	}
	return &ListGrantsReturn{Grants: views}
}

type AllowanceParams struct {
	Owner   addr.Address
	Spender addr.Address
}

// Allowance returns the amount the spender may still pull from the owner.
func (a Actor) Allowance(rt Runtime, params *AllowanceParams) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	allowance, err := st.GetAllowance(adt.AsStore(rt), params.Owner, params.Spender)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load allowance")
	return &allowance
}

// Moves tokens between ledger accounts after checking the sender's transferable
// balance at the current epoch.
func guardedTransfer(rt Runtime, st *State, from addr.Address, to addr.Address, amount abi.TokenAmount) {
	store := adt.AsStore(rt)

	transferable, err := st.TransferableBalance(store, from, rt.CurrEpoch())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to compute transferable balance of %v", from)
	if amount.GreaterThan(transferable) {
		rt.Abortf(exitcode.ErrInsufficientFunds, "transfer of %v exceeds transferable balance %v of %v", amount, transferable, from)
	}

	err = st.Transfer(store, from, to, amount)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to transfer %v from %v to %v", amount, from, to)
}
