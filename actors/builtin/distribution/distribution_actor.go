package distribution

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"

	"github.com/vestlabs/vesting-actors/actors/builtin"
	"github.com/vestlabs/vesting-actors/actors/builtin/vesting"
	vmr "github.com/vestlabs/vesting-actors/actors/runtime"
)

// The distribution actor batches grant creation and unconditional airdrops on top of
// the vesting ledger. It keeps no vesting state of its own: the ledger remains the
// single source of truth for lock state. Funds are pulled from the owner through an
// allowance approved on the ledger beforehand.
type Actor struct{}

type Runtime = vmr.Runtime

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.BulkFixedGrants,
		3:                         a.BulkFlexibleGrants,
		4:                         a.FixedAirdrop,
		5:                         a.FlexibleAirdrop,
		6:                         a.Pause,
		7:                         a.Unpause,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.DistributionActorCodeID
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
	Owner        addr.Address
	VestingActor addr.Address
}

func (a Actor) Constructor(rt Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	builtin.RequireParam(rt, params.Owner.Protocol() == addr.ID, "owner must be an ID address")
	builtin.RequireParam(rt, params.VestingActor.Protocol() == addr.ID, "vesting actor must be an ID address")

	rt.State().Create(ConstructState(params.Owner, params.VestingActor))
	return nil
}

type BulkFixedGrantsParams struct {
	Beneficiaries []addr.Address
	Amount        abi.TokenAmount
	Start         abi.ChainEpoch
	Duration      abi.ChainEpoch
	Periods       int64
	Revocable     bool
}

// BulkFixedGrants creates one grant with identical parameters for every beneficiary,
// pulling amount*len(beneficiaries) from the owner in a single delegated transfer
// first. Any failure aborts the whole batch.
func (a Actor) BulkFixedGrants(rt Runtime, params *BulkFixedGrantsParams) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)
	operator := rt.Message().Caller()

	count := len(params.Beneficiaries)
	builtin.RequireParam(rt, count >= MinBatchSize && count <= MaxBatchSize, "batch of %d recipients out of bounds [%d, %d]", count, MinBatchSize, MaxBatchSize)
	builtin.RequireParam(rt, params.Amount.GreaterThan(big.Zero()), "non-positive grant amount %v", params.Amount)

	total := big.Mul(params.Amount, big.NewInt(int64(count)))
	a.beginBulk(rt)
	a.requireOperatorFunds(rt, &st, operator, total)
	a.pullToSelf(rt, &st, operator, total)

	for _, beneficiary := range params.Beneficiaries {
		_, code := rt.Send(st.VestingActor, builtin.MethodsVesting.CreateGrant, &vesting.CreateGrantParams{
			Beneficiary: beneficiary,
			Amount:      params.Amount,
			Start:       params.Start,
			Duration:    params.Duration,
			Periods:     params.Periods,
			Revocable:   params.Revocable,
		}, big.Zero())
		builtin.RequireSuccess(rt, code, "failed to create grant for %v", beneficiary)
	}
	a.endBulk(rt)

	rt.Log(rtt.INFO, "bulk-distribution operator=%v recipients=%d total=%v", operator, count, total)
	return nil
}

type GrantSpec struct {
	Beneficiary addr.Address
	Amount      abi.TokenAmount
	Start       abi.ChainEpoch
	Duration    abi.ChainEpoch
	Periods     int64
	Revocable   bool
}

type BulkFlexibleGrantsParams struct {
	Grants []GrantSpec
}

// BulkFlexibleGrants creates one grant per entry with that entry's own parameters,
// pulling the sum of all amounts from the owner first.
func (a Actor) BulkFlexibleGrants(rt Runtime, params *BulkFlexibleGrantsParams) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)
	operator := rt.Message().Caller()

	count := len(params.Grants)
	builtin.RequireParam(rt, count >= MinBatchSize && count <= MaxBatchSize, "batch of %d grants out of bounds [%d, %d]", count, MinBatchSize, MaxBatchSize)

	total := big.Zero()
	for i := range params.Grants {
		builtin.RequireParam(rt, params.Grants[i].Amount.GreaterThan(big.Zero()), "non-positive amount %v for %v", params.Grants[i].Amount, params.Grants[i].Beneficiary)
		total = big.Add(total, params.Grants[i].Amount)
	}

	a.beginBulk(rt)
	a.requireOperatorFunds(rt, &st, operator, total)
	a.pullToSelf(rt, &st, operator, total)

	for i := range params.Grants {
		g := &params.Grants[i]
		_, code := rt.Send(st.VestingActor, builtin.MethodsVesting.CreateGrant, &vesting.CreateGrantParams{
			Beneficiary: g.Beneficiary,
			Amount:      g.Amount,
			Start:       g.Start,
			Duration:    g.Duration,
			Periods:     g.Periods,
			Revocable:   g.Revocable,
		}, big.Zero())
		builtin.RequireSuccess(rt, code, "failed to create grant for %v", g.Beneficiary)
	}
	a.endBulk(rt)

	rt.Log(rtt.INFO, "bulk-distribution operator=%v recipients=%d total=%v", operator, count, total)
	return nil
}

type FixedAirdropParams struct {
	Recipients []addr.Address
	Amount     abi.TokenAmount
}

// FixedAirdrop transfers the same amount to every recipient directly from the owner's
// balance. No grant records are created.
func (a Actor) FixedAirdrop(rt Runtime, params *FixedAirdropParams) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)
	operator := rt.Message().Caller()

	count := len(params.Recipients)
	builtin.RequireParam(rt, count >= MinBatchSize && count <= MaxBatchSize, "batch of %d recipients out of bounds [%d, %d]", count, MinBatchSize, MaxBatchSize)
	builtin.RequireParam(rt, params.Amount.GreaterThan(big.Zero()), "non-positive airdrop amount %v", params.Amount)

	total := big.Mul(params.Amount, big.NewInt(int64(count)))
	a.beginBulk(rt)
	a.requireOperatorFunds(rt, &st, operator, total)

	for _, recipient := range params.Recipients {
		a.pullTransfer(rt, &st, operator, recipient, params.Amount)
	}
	a.endBulk(rt)

	rt.Log(rtt.INFO, "bulk-distribution operator=%v recipients=%d total=%v", operator, count, total)
	return nil
}

type FlexibleAirdropParams struct {
	Recipients []addr.Address
	Amounts    []abi.TokenAmount
}

// FlexibleAirdrop transfers each recipient their own amount directly from the owner's
// balance.
func (a Actor) FlexibleAirdrop(rt Runtime, params *FlexibleAirdropParams) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)
	operator := rt.Message().Caller()

	count := len(params.Recipients)
	builtin.RequireParam(rt, count >= MinBatchSize && count <= MaxBatchSize, "batch of %d recipients out of bounds [%d, %d]", count, MinBatchSize, MaxBatchSize)
	builtin.RequireParam(rt, len(params.Amounts) == count, "%d amounts for %d recipients", len(params.Amounts), count)

	total := big.Zero()
	for i := range params.Amounts {
		builtin.RequireParam(rt, params.Amounts[i].GreaterThan(big.Zero()), "non-positive amount %v for %v", params.Amounts[i], params.Recipients[i])
		total = big.Add(total, params.Amounts[i])
	}

	a.beginBulk(rt)
	a.requireOperatorFunds(rt, &st, operator, total)

	for i, recipient := range params.Recipients {
		a.pullTransfer(rt, &st, operator, recipient, params.Amounts[i])
	}
	a.endBulk(rt)

	rt.Log(rtt.INFO, "bulk-distribution operator=%v recipients=%d total=%v", operator, count, total)
	return nil
}

// Pause rejects all bulk operations until Unpause.
func (a Actor) Pause(rt Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)

	rt.State().Transaction(&st, func() interface{} {
		if st.Paused {
			rt.Abortf(exitcode.ErrIllegalState, "already paused")
		}
		st.Paused = true
		return nil
	})

	rt.Log(rtt.INFO, "paused owner=%v", rt.Message().Caller())
	return nil
}

func (a Actor) Unpause(rt Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)

	rt.State().Transaction(&st, func() interface{} {
		if !st.Paused {
			rt.Abortf(exitcode.ErrIllegalState, "not paused")
		}
		st.Paused = false
		return nil
	})

	rt.Log(rtt.INFO, "unpaused owner=%v", rt.Message().Caller())
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Internal
////////////////////////////////////////////////////////////////////////////////

// Rejects the call when paused or when another bulk operation is in flight, then
// raises the reentry flag for the duration of this one.
func (a Actor) beginBulk(rt Runtime) {
	var st State
	rt.State().Transaction(&st, func() interface{} {
		if st.Paused {
			rt.Abortf(exitcode.ErrForbidden, "distribution is paused")
		}
		if st.EntryGuard {
			rt.Abortf(exitcode.ErrForbidden, "bulk operation already in flight")
		}
		st.EntryGuard = true
		return nil
	})
}

func (a Actor) endBulk(rt Runtime) {
	var st State
	rt.State().Transaction(&st, func() interface{} {
		st.EntryGuard = false
		return nil
	})
}

// Verifies up front that the operator approved a sufficient allowance for this actor
// and holds a sufficient ledger balance for the batch total.
func (a Actor) requireOperatorFunds(rt Runtime, st *State, operator addr.Address, total abi.TokenAmount) {
	ret, code := rt.Send(st.VestingActor, builtin.MethodsVesting.Allowance, &vesting.AllowanceParams{
		Owner:   operator,
		Spender: rt.Message().Receiver(),
	}, big.Zero())
	builtin.RequireSuccess(rt, code, "failed to query allowance of %v", operator)
	var allowance abi.TokenAmount
	err := ret.Into(&allowance)
	builtin.RequireNoErr(rt, err, exitcode.ErrSerialization, "failed to decode allowance")
	if allowance.LessThan(total) {
		rt.Abortf(exitcode.ErrInsufficientFunds, "allowance %v of %v below batch total %v", allowance, operator, total)
	}

	ret, code = rt.Send(st.VestingActor, builtin.MethodsVesting.BalanceOf, &operator, big.Zero())
	builtin.RequireSuccess(rt, code, "failed to query balance of %v", operator)
	var balance abi.TokenAmount
	err = ret.Into(&balance)
	builtin.RequireNoErr(rt, err, exitcode.ErrSerialization, "failed to decode balance")
	if balance.LessThan(total) {
		rt.Abortf(exitcode.ErrInsufficientFunds, "balance %v of %v below batch total %v", balance, operator, total)
	}
}

// Pulls the batch total from the operator to this actor, funding the per-beneficiary
// grant credits that follow.
func (a Actor) pullToSelf(rt Runtime, st *State, operator addr.Address, total abi.TokenAmount) {
	a.pullTransfer(rt, st, operator, rt.Message().Receiver(), total)
}

func (a Actor) pullTransfer(rt Runtime, st *State, from addr.Address, to addr.Address, amount abi.TokenAmount) {
	_, code := rt.Send(st.VestingActor, builtin.MethodsVesting.TransferFrom, &vesting.TransferFromParams{
		From:   from,
		To:     to,
		Amount: amount,
	}, big.Zero())
	builtin.RequireSuccess(rt, code, "failed to pull %v from %v to %v", amount, from, to)
}
