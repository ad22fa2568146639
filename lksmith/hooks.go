package lksmith

import "github.com/cmccabe/lksmith/internal/lksmith/api"

// Raw hook functions for shim layers that wrap their own primitives.
//
// A key is the address of the user's lock object; it must be stable for
// the lifetime of the lock. The pre/post pairs must surround the native
// call exactly as the wrapper types do: a non-zero status from a pre-hook
// means the native call is skipped and that status returned.

// PreInit registers a lock ahead of its native initialization. sleeper
// selects the blocking flavor; recursive permits same-thread re-entry.
func PreInit(key uintptr, sleeper, recursive bool) Code {
	return api.PreInit(key, sleeper, recursive)
}

// PostInit completes an init; ok reports whether the native init
// succeeded. A failed init withdraws the registration.
func PostInit(key uintptr, ok bool) {
	api.PostInit(key, ok)
}

// PreDestroy validates a destroy. CodeDestroyInUse means skip the native
// call and report busy.
func PreDestroy(key uintptr) Code {
	return api.PreDestroy(key)
}

// PreLock analyzes a lock, trylock, or timedlock attempt.
func PreLock(key uintptr, sleeper bool) Code {
	return api.PreLock(key, sleeper)
}

// PostLock completes an acquisition attempt; acquired reports whether the
// native call succeeded.
func PostLock(key uintptr, acquired bool) {
	api.PostLock(key, acquired)
}

// PreUnlock validates a release. CodeNotHeld means skip the native call
// and report a permission violation.
func PreUnlock(key uintptr) Code {
	return api.PreUnlock(key)
}

// PostUnlock completes a release.
func PostUnlock(key uintptr) {
	api.PostUnlock(key)
}

// PreCondWait validates a condition wait on the mutex with the given key.
// CodeCondWaitUnheld means skip the native wait.
func PreCondWait(key uintptr) Code {
	return api.PreCondWait(key)
}

// CheckHeld reports whether the calling thread holds the lock with the
// given key.
func CheckHeld(key uintptr) bool {
	return api.CheckHeld(key)
}
