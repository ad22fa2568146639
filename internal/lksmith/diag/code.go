// Package diag defines the verifier's failure taxonomy and the sink that
// delivers diagnostics.
//
// Hooks return Code values; non-zero codes from a pre-hook tell the shim
// layer to skip the native call. The sink target is selected once from
// LKSMITH_LOG and never changes afterwards.
package diag

import "fmt"

// Code identifies one class of lock-discipline failure.
//
// Code implements error so hook results can flow through ordinary Go error
// returns at the facade boundary.
type Code int

// The failure taxonomy. Numeric values are part of the shim contract.
const (
	// OK means the operation may proceed.
	OK Code = 0

	// LockInversion: acquiring the lock would create a cycle with locks
	// already held. The operation proceeds.
	LockInversion Code = 1

	// SelfDeadlock: a non-recursive lock re-acquired by the thread that
	// already holds it. The operation proceeds; the native primitive may
	// fail on its own.
	SelfDeadlock Code = 2

	// NotHeld: unlock of a lock the calling thread does not hold. The
	// native call is skipped.
	NotHeld Code = 3

	// DestroyInUse: destroy of a lock that still has holders. The native
	// call is skipped.
	DestroyInUse Code = 4

	// CondWaitUnheld: condition wait on a mutex the thread does not hold.
	// The native call is skipped.
	CondWaitUnheld Code = 5

	// SpinHoldingSleeper: a sleeping lock acquired while a spin lock is
	// held. Warning; emitted at most once per lock record.
	SpinHoldingSleeper Code = 6

	// OutOfMemory: verifier allocation failure. Retained for shim
	// compatibility; the Go runtime aborts on allocation failure, so no
	// path emits it.
	OutOfMemory Code = 7

	// Internal: a verifier invariant was violated (for example, a
	// post-hook could not find the record its pre-hook prepared).
	Internal Code = 8
)

// String returns the symbolic name of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case LockInversion:
		return "LockInversion"
	case SelfDeadlock:
		return "SelfDeadlock"
	case NotHeld:
		return "NotHeld"
	case DestroyInUse:
		return "DestroyInUse"
	case CondWaitUnheld:
		return "CondWaitUnheld"
	case SpinHoldingSleeper:
		return "SpinHoldingSleeper"
	case OutOfMemory:
		return "OutOfMemory"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error implements the error interface. OK should never be returned as an
// error; callers translate it to nil.
func (c Code) Error() string {
	return fmt.Sprintf("lksmith: %s (code %d)", c.String(), int(c))
}

// Warning reports whether the code is advisory rather than an error.
func (c Code) Warning() bool {
	return c == SpinHoldingSleeper
}
