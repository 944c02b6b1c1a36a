package vesting

// The maximum number of concurrent grant records for a single holder.
const MaxGrantsPerHolder = 10

// Bounds on the number of discrete unlock steps that follow a grant's cliff.
const (
	MinGrantPeriods = int64(1)
	MaxGrantPeriods = int64(100)
)

// Multiple of a grant's duration after which even a non-revocable grant becomes
// revocable. This grace window is measured from the grant's start.
const RevocationGraceFactor = 2
