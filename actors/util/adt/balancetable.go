package adt

import (
	"fmt"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
)

// A specialization of a map of addresses to token amounts.
// It is an error to query for a key that doesn't exist.
type BalanceTable Map

// AsBalanceTable interprets a store as balance table with root `r`.
func AsBalanceTable(s Store, r cid.Cid) *BalanceTable {
	return &BalanceTable{
		root:  r,
		store: s,
	}
}

// Root returns the root cid of the underlying HAMT.
func (t *BalanceTable) Root() cid.Cid {
	return t.root
}

// Gets the balance for a key. The entry must have been previously initialized.
func (t *BalanceTable) Get(key addr.Address) (abi.TokenAmount, error) {
	var value abi.TokenAmount
	found, err := (*Map)(t).Get(abi.AddrKey(key), &value)
	if err != nil {
		return big.Zero(), err // The errors from Map carry good information, no need to wrap here.
	}
	if !found {
		return big.Zero(), ErrNotFound{t.root, key}
	}
	return value, nil
}

// GetOrZero gets the balance for a key, returning zero for an absent entry.
func (t *BalanceTable) GetOrZero(key addr.Address) (abi.TokenAmount, error) {
	var value abi.TokenAmount
	found, err := (*Map)(t).Get(abi.AddrKey(key), &value)
	if err != nil {
		return big.Zero(), err
	}
	if !found {
		return big.Zero(), nil
	}
	return value, nil
}

// Has checks if the balance for a key exists.
func (t *BalanceTable) Has(key addr.Address) (bool, error) {
	return (*Map)(t).Has(abi.AddrKey(key))
}

// Sets the balance for an address, overwriting any previous balance.
func (t *BalanceTable) Set(key addr.Address, value abi.TokenAmount) error {
	return (*Map)(t).Put(abi.AddrKey(key), &value)
}

// Adds an amount to a balance. The entry must have been previously initialized.
func (t *BalanceTable) Add(key addr.Address, value abi.TokenAmount) error {
	prev, err := t.Get(key)
	if err != nil {
		return err
	}
	sum := big.Add(prev, value)
	return (*Map)(t).Put(abi.AddrKey(key), &sum)
}

// AddCreate adds an amount to a balance, creating the entry at zero if it doesn't already exist.
func (t *BalanceTable) AddCreate(key addr.Address, value abi.TokenAmount) error {
	prev, err := t.GetOrZero(key)
	if err != nil {
		return err
	}
	sum := big.Add(prev, value)
	return (*Map)(t).Put(abi.AddrKey(key), &sum)
}

// Subtracts up to the specified amount from a balance, without reducing the balance below some minimum.
// Returns the amount subtracted (always positive or zero).
func (t *BalanceTable) SubtractWithMinimum(key addr.Address, req abi.TokenAmount, floor abi.TokenAmount) (abi.TokenAmount, error) {
	prev, err := t.Get(key)
	if err != nil {
		return big.Zero(), err
	}
	available := big.Max(big.Zero(), big.Sub(prev, floor))
	sub := big.Min(available, req)
	if sub.Sign() > 0 {
		err = t.Add(key, sub.Neg())
		if err != nil {
			return big.Zero(), err
		}
	}
	return sub, nil
}

// MustSubtract subtracts the given amount from a balance, failing if the balance is insufficient.
func (t *BalanceTable) MustSubtract(key addr.Address, req abi.TokenAmount) error {
	prev, err := t.GetOrZero(key)
	if err != nil {
		return err
	}
	if prev.LessThan(req) {
		return ErrInsufficient{key, prev, req}
	}
	remainder := big.Sub(prev, req)
	return (*Map)(t).Put(abi.AddrKey(key), &remainder)
}

// Removes an entry from the table, returning the prior value. The entry must have been previously initialized.
func (t *BalanceTable) Remove(key addr.Address) (abi.TokenAmount, error) {
	prev, err := t.Get(key)
	if err != nil {
		return big.Zero(), err
	}
	err = (*Map)(t).Delete(abi.AddrKey(key))
	if err != nil {
		return big.Zero(), err
	}
	return prev, nil
}

// Total returns the sum of all balances in the table.
func (t *BalanceTable) Total() (abi.TokenAmount, error) {
	total := big.Zero()
	var cur abi.TokenAmount
	err := (*Map)(t).ForEach(&cur, func(key string) error {
		total = big.Add(total, cur)
		return nil
	})
	return total, err
}

// ErrNotFound is returned when an expected key is absent.
type ErrNotFound struct {
	Root cid.Cid
	Key  addr.Address
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("no key %v in map root %v", e.Key, e.Root)
}

// ErrInsufficient is returned when a balance is too small for a requested subtraction.
type ErrInsufficient struct {
	Key       addr.Address
	Balance   abi.TokenAmount
	Requested abi.TokenAmount
}

func (e ErrInsufficient) Error() string {
	return fmt.Sprintf("balance %v of %v insufficient to subtract %v", e.Balance, e.Key, e.Requested)
}
