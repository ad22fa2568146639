// Package lksmith provides runtime lock-discipline verification for Go
// programs.
//
// Every observed lock operation updates a global lock-order graph and
// per-thread state. Violations — lock inversions, self-deadlocks, unlocks
// of locks not held, destroys of locks in use, condition waits without the
// mutex, sleeping locks taken under spin locks — are reported through a
// configurable sink without stopping the program.
//
// # Quick start
//
// Use the wrapper types as drop-in locks:
//
//	var mu lksmith.Mutex
//
//	func update() {
//		mu.Lock()
//		defer mu.Unlock()
//		// critical section
//	}
//
// A zero-value Mutex works immediately, like a statically initialized
// pthread mutex: the verifier registers it on first touch. Call [Mutex.Init]
// to mark a lock non-recursive (error-checking) or [Mutex.InitRecursive]
// to allow same-thread re-entry.
//
// # Shim layers
//
// Embedders that wrap their own primitives drive the verifier through the
// hook functions ([PreLock], [PostLock], [PreUnlock], ...), keyed by the
// address of the lock object. A non-zero [Code] from a pre-hook means the
// native call must be skipped and that status reported; warnings never
// surface as statuses.
//
// # Configuration
//
// Environment variables, read once at first use:
//
//	LKSMITH_LOG=stderr|stdout|syslog|file://PATH|callback
//	LKSMITH_IGNORED_FRAMES=sym1:sym2
//	LKSMITH_IGNORED_FRAME_PATTERNS=pat1:pat2
//
// An acquisition whose backtrace contains an ignored frame is excluded
// from lock-order analysis. The callback sink delivers diagnostics to the
// function registered with [SetErrorCallback].
//
// All state is process-scoped and lost on exit. The verifier never aborts
// on user errors; it aborts only when its own bootstrap fails.
package lksmith
