// Package api provides the hook entry points of the lock verifier.
//
// These functions are the interposition boundary: a shim layer (or the
// wrapper types in the public package) surrounds each observed primitive
// with the matching pre/post pair. Every entry performs first-touch
// initialization, so the verifier works from any thread at any time,
// including global constructors.
//
// A non-zero code from a pre-hook tells the caller to skip the native call
// and report that status; warnings never surface as statuses.
package api

import (
	"github.com/cmccabe/lksmith/internal/lksmith/diag"
	"github.com/cmccabe/lksmith/internal/lksmith/verifier"
)

func kindFor(sleeper bool) verifier.Kind {
	if sleeper {
		return verifier.KindSleeper
	}
	return verifier.KindSpin
}

// PreInit registers a lock ahead of its native initialization.
func PreInit(key uintptr, sleeper, recursive bool) diag.Code {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return diag.OK
	}
	return v.Init(ctx, key, kindFor(sleeper), recursive)
}

// PostInit completes an init. A failed native init withdraws the record
// registered by PreInit.
func PostInit(key uintptr, ok bool) {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return
	}
	if !ok {
		v.Destroy(ctx, key)
	}
}

// PreDestroy validates a destroy. DestroyInUse means the native call must
// be skipped and busy reported.
func PreDestroy(key uintptr) diag.Code {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return diag.OK
	}
	return v.Destroy(ctx, key)
}

// PreLock runs the dependency analysis for a lock, trylock, or timedlock
// attempt and records the prospective holder.
func PreLock(key uintptr, sleeper bool) diag.Code {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return diag.OK
	}
	return v.PreLock(ctx, key, kindFor(sleeper))
}

// PostLock completes an acquisition attempt; acquired reports whether the
// native call succeeded.
func PostLock(key uintptr, acquired bool) {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return
	}
	v.PostLock(ctx, key, acquired)
}

// PreUnlock validates a release. NotHeld means the native call must be
// skipped and a permission violation reported.
func PreUnlock(key uintptr) diag.Code {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return diag.OK
	}
	return v.PreUnlock(ctx, key)
}

// PostUnlock completes a release.
func PostUnlock(key uintptr) {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return
	}
	v.PostUnlock(ctx, key)
}

// PreCondWait validates a condition wait on the mutex with the given key.
// CondWaitUnheld means the native wait must be skipped.
func PreCondWait(key uintptr) diag.Code {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return diag.OK
	}
	return v.PreCondWait(ctx, key)
}

// CheckHeld reports whether the calling thread holds the lock.
func CheckHeld(key uintptr) bool {
	v := ensureInit()
	ctx := current()
	if !ctx.Intercepting {
		return false
	}
	return v.CheckHeld(ctx, key)
}

// SetThreadName names the calling thread for diagnostics. Names longer
// than the bound are truncated silently.
func SetThreadName(name string) {
	ensureInit()
	current().SetName(name)
}

// ThreadName returns the calling thread's diagnostic name.
func ThreadName() string {
	ensureInit()
	return current().Name()
}

// IgnoredFrames returns the configured exact frame suppressions.
func IgnoredFrames() []string {
	ensureInit()
	return globalFilter.Exact()
}

// IgnoredFramePatterns returns the configured pattern suppressions.
func IgnoredFramePatterns() []string {
	ensureInit()
	return globalFilter.Patterns()
}

// NumLocks returns the number of locks the verifier currently tracks.
func NumLocks() int {
	return ensureInit().NumLocks()
}

// Dump renders the verifier's registry for debugging.
func Dump() string {
	return ensureInit().Dump()
}
