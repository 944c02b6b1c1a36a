package builtin

import (
	addr "github.com/filecoin-project/go-address"
)

// Addresses of singleton actors, instantiated in the genesis state.
var (
	SystemActorAddr       = mustMakeAddress(0)
	InitActorAddr         = mustMakeAddress(1)
	VestingActorAddr      = mustMakeAddress(10)
	DistributionActorAddr = mustMakeAddress(11)
)

func mustMakeAddress(id uint64) addr.Address {
	address, err := addr.NewIDAddress(id)
	if err != nil {
		panic(err)
	}
	return address
}
