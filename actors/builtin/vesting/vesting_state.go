package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/vestlabs/vesting-actors/actors/util/adt"
)

type State struct {
	// Identity permitted to create and revoke grants.
	// The distribution actor holds the same capability implicitly.
	GrantManager addr.Address

	// Total token supply, fixed at construction.
	TotalSupply abi.TokenAmount

	// Fungible ledger balances. HAMT[address]TokenAmount
	Balances cid.Cid

	// Delegated spending allowances. HAMT[(owner, spender)]TokenAmount
	Allowances cid.Cid

	// Per-holder grant records. HAMT[address]GrantList
	Grants cid.Cid
}

// Grant is a time-locked allocation of tokens to one holder: a full-lock cliff of
// `Duration` epochs from `Start`, then `Periods` equal-fraction unlock steps.
type Grant struct {
	// Quantity originally locked, fixed at creation.
	Amount abi.TokenAmount
	// Epoch at which the cliff begins. Never in the past at creation.
	Start abi.ChainEpoch
	// Length of the cliff, in epochs. Zero-duration grants are never stored.
	Duration abi.ChainEpoch
	// Number of discrete unlock steps after the cliff, in [1, 100].
	Periods int64
	// Whether the grant may be revoked before its grace window elapses.
	Revocable bool
}

// GrantList is the set of grants encumbering one holder's balance.
// Removal is swap-with-last, so indices are not stable across revocations.
type GrantList struct {
	Grants []Grant
}

func ConstructState(store adt.Store, manager addr.Address, treasury addr.Address, supply abi.TokenAmount) (*State, error) {
	emptyMap, err := adt.MakeEmptyMap(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}

	balances := adt.AsBalanceTable(store, emptyMap.Root())
	if err := balances.Set(treasury, supply); err != nil {
		return nil, xerrors.Errorf("failed to credit treasury: %w", err)
	}

	return &State{
		GrantManager: manager,
		TotalSupply:  supply,
		Balances:     balances.Root(),
		Allowances:   emptyMap.Root(),
		Grants:       emptyMap.Root(),
	}, nil
}

// RemainingLocked computes the portion of the grant still locked at the given epoch.
// The full amount is locked until the cliff ends at Start+Duration. Afterwards the
// amount unlocks in Periods equal-fraction steps; the instant the cliff ends already
// counts as completing the first step. All divisions truncate, so the reported locked
// amount may fall short of a continuous-release ideal by up to Periods-1 units. That
// quantization is the behaviour committed to, not an approximation.
func (g *Grant) RemainingLocked(now abi.ChainEpoch) abi.TokenAmount {
	cliffEnd := g.Start + g.Duration
	if now < cliffEnd {
		return g.Amount
	}

	elapsedAfterCliff := now - cliffEnd
	periodLength := abi.ChainEpoch(1)
	if int64(g.Duration) >= g.Periods {
		periodLength = g.Duration / abi.ChainEpoch(g.Periods)
	}

	periodsElapsed := int64(elapsedAfterCliff/periodLength) + 1
	if periodsElapsed >= g.Periods {
		return big.Zero()
	}

	unlocked := big.Div(big.Mul(g.Amount, big.NewInt(periodsElapsed)), big.NewInt(g.Periods))
	return big.Sub(g.Amount, unlocked)
}

// RevocableAt reports whether the grant may be revoked at the given epoch: either it
// was created revocable, or the grace window of RevocationGraceFactor times its
// duration has elapsed since its start.
func (g *Grant) RevocableAt(now abi.ChainEpoch) bool {
	return g.Revocable || now >= g.Start+RevocationGraceFactor*g.Duration
}

//
// Ledger balances
//

// BalanceOf returns the ledger balance of a holder, zero for absent entries.
func (st *State) BalanceOf(store adt.Store, holder addr.Address) (abi.TokenAmount, error) {
	balances := adt.AsBalanceTable(store, st.Balances)
	return balances.GetOrZero(holder)
}

// Transfer moves tokens between ledger accounts, creating the destination entry if
// needed. It fails when the source balance is insufficient; callers enforce the
// vesting lock separately.
func (st *State) Transfer(store adt.Store, from addr.Address, to addr.Address, amount abi.TokenAmount) error {
	balances := adt.AsBalanceTable(store, st.Balances)
	if err := balances.MustSubtract(from, amount); err != nil {
		return err
	}
	if err := balances.AddCreate(to, amount); err != nil {
		return xerrors.Errorf("failed to credit %v: %w", to, err)
	}
	st.Balances = balances.Root()
	return nil
}

//
// Grants
//

// GetGrantList loads a holder's grants, returning found=false when the holder has none.
func (st *State) GetGrantList(store adt.Store, holder addr.Address) ([]Grant, bool, error) {
	grants := adt.AsMap(store, st.Grants)
	var list GrantList
	found, err := grants.Get(abi.AddrKey(holder), &list)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load grants for %v: %w", holder, err)
	}
	if !found {
		return nil, false, nil
	}
	return list.Grants, true, nil
}

// PutGrantList stores a holder's grants, deleting the entry when the list is empty.
func (st *State) PutGrantList(store adt.Store, holder addr.Address, list []Grant) error {
	grants := adt.AsMap(store, st.Grants)
	if len(list) == 0 {
		if err := grants.Delete(abi.AddrKey(holder)); err != nil {
			return xerrors.Errorf("failed to delete grants for %v: %w", holder, err)
		}
	} else {
		if err := grants.Put(abi.AddrKey(holder), &GrantList{Grants: list}); err != nil {
			return xerrors.Errorf("failed to store grants for %v: %w", holder, err)
		}
	}
	st.Grants = grants.Root()
	return nil
}

// LockedBalance sums the remaining-locked amounts of all the holder's grants at the
// given epoch. Zero when the holder has no grants.
func (st *State) LockedBalance(store adt.Store, holder addr.Address, now abi.ChainEpoch) (abi.TokenAmount, error) {
	list, found, err := st.GetGrantList(store, holder)
	if err != nil {
		return big.Zero(), err
	}
	if !found {
		return big.Zero(), nil
	}
	locked := big.Zero()
	for i := range list {
		locked = big.Add(locked, list[i].RemainingLocked(now))
	}
	return locked, nil
}

// TransferableBalance returns the holder's ledger balance less the locked sum of their
// grants. Holders without grants short-circuit to the full ledger balance.
func (st *State) TransferableBalance(store adt.Store, holder addr.Address, now abi.ChainEpoch) (abi.TokenAmount, error) {
	balance, err := st.BalanceOf(store, holder)
	if err != nil {
		return big.Zero(), err
	}

	list, found, err := st.GetGrantList(store, holder)
	if err != nil {
		return big.Zero(), err
	}
	if !found {
		return balance, nil
	}

	locked := big.Zero()
	for i := range list {
		locked = big.Add(locked, list[i].RemainingLocked(now))
	}
	return big.Sub(balance, locked), nil
}

//
// Allowances
//

// GetAllowance returns the amount a spender may move on the owner's behalf.
func (st *State) GetAllowance(store adt.Store, owner addr.Address, spender addr.Address) (abi.TokenAmount, error) {
	allowances := adt.AsMap(store, st.Allowances)
	var amount abi.TokenAmount
	found, err := allowances.Get(abi.NewAddrPairKey(owner, spender), &amount)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load allowance of %v for %v: %w", owner, spender, err)
	}
	if !found {
		return big.Zero(), nil
	}
	return amount, nil
}

// SetAllowance overwrites a spender's allowance, deleting the entry at zero.
func (st *State) SetAllowance(store adt.Store, owner addr.Address, spender addr.Address, amount abi.TokenAmount) error {
	allowances := adt.AsMap(store, st.Allowances)
	key := abi.NewAddrPairKey(owner, spender)
	if amount.Sign() == 0 {
		found, err := allowances.Has(key)
		if err != nil {
			return err
		}
		if found {
			if err := allowances.Delete(key); err != nil {
				return xerrors.Errorf("failed to clear allowance of %v for %v: %w", owner, spender, err)
			}
		}
	} else {
		if err := allowances.Put(key, &amount); err != nil {
			return xerrors.Errorf("failed to store allowance of %v for %v: %w", owner, spender, err)
		}
	}
	st.Allowances = allowances.Root()
	return nil
}

// DeductAllowance lowers a spender's allowance after a delegated transfer.
func (st *State) DeductAllowance(store adt.Store, owner addr.Address, spender addr.Address, amount abi.TokenAmount) error {
	current, err := st.GetAllowance(store, owner, spender)
	if err != nil {
		return err
	}
	if current.LessThan(amount) {
		return xerrors.Errorf("allowance %v of %v for %v below deduction %v", current, owner, spender, amount)
	}
	return st.SetAllowance(store, owner, spender, big.Sub(current, amount))
}
