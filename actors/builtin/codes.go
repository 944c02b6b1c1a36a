package builtin

import (
	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// The built-in actor code IDs
var (
	SystemActorCodeID       cid.Cid
	InitActorCodeID         cid.Cid
	AccountActorCodeID      cid.Cid
	VestingActorCodeID      cid.Cid
	DistributionActorCodeID cid.Cid
	CallerTypesSignable     []cid.Cid
)

func init() {
	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	makeBuiltin := func(s string) cid.Cid {
		c, err := builder.Sum([]byte(s))
		if err != nil {
			panic(err)
		}
		return c
	}

	SystemActorCodeID = makeBuiltin("vest/1/system")
	InitActorCodeID = makeBuiltin("vest/1/init")
	AccountActorCodeID = makeBuiltin("vest/1/account")
	VestingActorCodeID = makeBuiltin("vest/1/vesting")
	DistributionActorCodeID = makeBuiltin("vest/1/distribution")

	// Set of actor code types that can represent external signing parties.
	CallerTypesSignable = []cid.Cid{AccountActorCodeID}
}

// IsBuiltinActor returns true if the code belongs to one of the built-in actors.
func IsBuiltinActor(code cid.Cid) bool {
	return code.Equals(SystemActorCodeID) ||
		code.Equals(InitActorCodeID) ||
		code.Equals(AccountActorCodeID) ||
		code.Equals(VestingActorCodeID) ||
		code.Equals(DistributionActorCodeID)
}

// ActorNameByCode returns the (friendly) name for an actor code, or "<unknown>".
func ActorNameByCode(code cid.Cid) string {
	if !code.Defined() {
		return "<undefined>"
	}
	switch code {
	case SystemActorCodeID:
		return "vest/1/system"
	case InitActorCodeID:
		return "vest/1/init"
	case AccountActorCodeID:
		return "vest/1/account"
	case VestingActorCodeID:
		return "vest/1/vesting"
	case DistributionActorCodeID:
		return "vest/1/distribution"
	default:
		return "<unknown>"
	}
}
