package distribution

import (
	addr "github.com/filecoin-project/go-address"
)

type State struct {
	// Identity holding the distribution-owner capability.
	Owner addr.Address

	// Address of the vesting ledger actor this coordinator distributes through.
	VestingActor addr.Address

	// Circuit breaker. While set, every bulk operation is rejected.
	Paused bool

	// Reentry flag, set for the duration of a bulk operation. Bulk operations
	// perform external sends, so a nested call into this actor while one is in
	// flight is rejected.
	EntryGuard bool
}

func ConstructState(owner addr.Address, vestingActor addr.Address) *State {
	return &State{
		Owner:        owner,
		VestingActor: vestingActor,
	}
}
