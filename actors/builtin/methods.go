package builtin

import (
	"github.com/filecoin-project/go-state-types/abi"
)

const (
	MethodSend        = abi.MethodNum(0)
	MethodConstructor = abi.MethodNum(1)
)

type vestingMethods struct {
	Constructor         abi.MethodNum
	CreateGrant         abi.MethodNum
	RevokeGrant         abi.MethodNum
	Transfer            abi.MethodNum
	Approve             abi.MethodNum
	TransferFrom        abi.MethodNum
	BalanceOf           abi.MethodNum
	TransferableBalance abi.MethodNum
	LockedBalance       abi.MethodNum
	ListGrants          abi.MethodNum
	Allowance           abi.MethodNum
}

var MethodsVesting = vestingMethods{MethodConstructor, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

type distributionMethods struct {
	Constructor        abi.MethodNum
	BulkFixedGrants    abi.MethodNum
	BulkFlexibleGrants abi.MethodNum
	FixedAirdrop       abi.MethodNum
	FlexibleAirdrop    abi.MethodNum
	Pause              abi.MethodNum
	Unpause            abi.MethodNum
}

var MethodsDistribution = distributionMethods{MethodConstructor, 2, 3, 4, 5, 6, 7}
