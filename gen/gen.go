package main

import (
	distribution "github.com/vestlabs/vesting-actors/actors/builtin/distribution"
	system "github.com/vestlabs/vesting-actors/actors/builtin/system"
	vesting "github.com/vestlabs/vesting-actors/actors/builtin/vesting"

	gen "github.com/whyrusleeping/cbor-gen"
)

func main() {
	if err := gen.WriteTupleEncodersToFile("./actors/builtin/system/cbor_gen.go", "system",
		// actor state
		system.State{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/vesting/cbor_gen.go", "vesting",
		// actor state
		vesting.State{},
		vesting.Grant{},
		vesting.GrantList{},
		// method params and returns
		vesting.ConstructorParams{},
		vesting.CreateGrantParams{},
		vesting.CreateGrantReturn{},
		vesting.RevokeGrantParams{},
		vesting.TransferParams{},
		vesting.ApproveParams{},
		vesting.TransferFromParams{},
		vesting.AllowanceParams{},
		vesting.GrantView{},
		vesting.ListGrantsReturn{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/distribution/cbor_gen.go", "distribution",
		// actor state
		distribution.State{},
		// method params
		distribution.ConstructorParams{},
		distribution.BulkFixedGrantsParams{},
		distribution.GrantSpec{},
		distribution.BulkFlexibleGrantsParams{},
		distribution.FixedAirdropParams{},
		distribution.FlexibleAirdropParams{},
	); err != nil {
		panic(err)
	}
}
