package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/vestlabs/vesting-actors/actors/builtin"
	"github.com/vestlabs/vesting-actors/actors/util/adt"
)

type StateSummary struct {
	HolderCount  int
	GrantCount   int
	TotalBalance abi.TokenAmount
	TotalLocked  abi.TokenAmount
}

// Checks internal invariants of the vesting ledger state.
func CheckStateInvariants(st *State, store adt.Store, now abi.ChainEpoch) (*StateSummary, *builtin.MessageAccumulator) {
	acc := &builtin.MessageAccumulator{}

	// Every balance is non-negative and the total equals the fixed supply.
	holderCount := 0
	totalBalance := big.Zero()
	balances := adt.AsBalanceTable(store, st.Balances)
	var balance abi.TokenAmount
	err := (*adt.Map)(balances).ForEach(&balance, func(key string) error {
		acc.Require(balance.GreaterThanEqual(big.Zero()), "balance for key %x is negative: %v", key, balance)
		totalBalance = big.Add(totalBalance, balance)
		holderCount++
		return nil
	})
	acc.RequireNoError(err, "error iterating balances")
	acc.Require(totalBalance.Equals(st.TotalSupply), "sum of balances %v does not equal total supply %v", totalBalance, st.TotalSupply)

	// Every allowance is strictly positive; zero allowances are deleted, not stored.
	allowances := adt.AsMap(store, st.Allowances)
	var allowance abi.TokenAmount
	err = allowances.ForEach(&allowance, func(key string) error {
		acc.Require(allowance.GreaterThan(big.Zero()), "allowance for key %x is not positive: %v", key, allowance)
		return nil
	})
	acc.RequireNoError(err, "error iterating allowances")

	// Grant lists are non-empty, bounded, and well formed, and never lock more than
	// the holder's balance.
	grantCount := 0
	totalLocked := big.Zero()
	grants := adt.AsMap(store, st.Grants)
	var list GrantList
	err = grants.ForEach(&list, func(key string) error {
		holder, err := addr.NewFromBytes([]byte(key))
		acc.RequireNoError(err, "grant key %x is not an address", key)

		acc.Require(len(list.Grants) > 0, "empty grant list stored for %v", holder)
		acc.Require(len(list.Grants) <= MaxGrantsPerHolder, "%v has %d grants, exceeding the maximum %d", holder, len(list.Grants), MaxGrantsPerHolder)

		locked := big.Zero()
		for i := range list.Grants {
			g := &list.Grants[i]
			acc.Require(g.Amount.GreaterThan(big.Zero()), "grant %d of %v has non-positive amount %v", i, holder, g.Amount)
			acc.Require(g.Duration > 0, "grant %d of %v has non-positive duration %d", i, holder, g.Duration)
			acc.Require(g.Periods >= MinGrantPeriods && g.Periods <= MaxGrantPeriods,
				"grant %d of %v has periods %d outside [%d, %d]", i, holder, g.Periods, MinGrantPeriods, MaxGrantPeriods)
			locked = big.Add(locked, g.RemainingLocked(now))
		}
		grantCount += len(list.Grants)
		totalLocked = big.Add(totalLocked, locked)

		heldBalance, err := st.BalanceOf(store, holder)
		acc.RequireNoError(err, "error loading balance of %v", holder)
		acc.Require(locked.LessThanEqual(heldBalance), "%v has %v locked but only %v held", holder, locked, heldBalance)
		return nil
	})
	acc.RequireNoError(err, "error iterating grants")

	return &StateSummary{
		HolderCount:  holderCount,
		GrantCount:   grantCount,
		TotalBalance: totalBalance,
		TotalLocked:  totalLocked,
	}, acc
}
