package exported

import (
	"github.com/vestlabs/vesting-actors/actors/builtin/distribution"
	"github.com/vestlabs/vesting-actors/actors/builtin/system"
	"github.com/vestlabs/vesting-actors/actors/builtin/vesting"
	"github.com/vestlabs/vesting-actors/actors/runtime"
)

// BuiltinActors returns all the actors this module defines, in a form suitable for
// registration with a VM.
func BuiltinActors() []runtime.VMActor {
	return []runtime.VMActor{
		system.Actor{},
		vesting.Actor{},
		distribution.Actor{},
	}
}
