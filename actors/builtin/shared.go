package builtin

import (
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/vestlabs/vesting-actors/actors/runtime"
)

///// Code shared by multiple built-in actors. /////

// RequireSuccess propagates a failed send by aborting the current method with the same exit code.
func RequireSuccess(rt runtime.Runtime, e exitcode.ExitCode, msg string, args ...interface{}) {
	if !e.IsSuccess() {
		rt.Abortf(e, msg, args...)
	}
}

// RequireParam aborts with ErrIllegalArgument if the predicate is false.
func RequireParam(rt runtime.Runtime, predicate bool, msg string, args ...interface{}) {
	if !predicate {
		rt.Abortf(exitcode.ErrIllegalArgument, msg, args...)
	}
}

// RequireState aborts with ErrIllegalState if the predicate is false.
func RequireState(rt runtime.Runtime, predicate bool, msg string, args ...interface{}) {
	if !predicate {
		rt.Abortf(exitcode.ErrIllegalState, msg, args...)
	}
}

// RequireNoErr aborts with a code and formatted message if err is non-nil.
// The provided message will be suffixed by ": %s" and the error message.
func RequireNoErr(rt runtime.Runtime, err error, code exitcode.ExitCode, msg string, args ...interface{}) {
	if err != nil {
		newMsg := msg + ": %s"
		newArgs := append(args, err)
		rt.Abortf(code, newMsg, newArgs...)
	}
}
