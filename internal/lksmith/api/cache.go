package api

import (
	"sync"
	"sync/atomic"

	"github.com/cmccabe/lksmith/internal/lksmith/threadctx"
)

// Per-goroutine context cache.
//
// Goroutines have no exit callback, so contexts of dead goroutines are
// reclaimed by a periodic sweep instead: every cleanupInterval context
// allocations, the cache is compared against the set of live goroutine
// ids and stale entries are dropped.
var (
	contexts     sync.Map // int64 (goroutine id) -> *threadctx.Ctx
	allocCounter atomic.Uint32
)

const cleanupInterval = 1000

// current returns the calling goroutine's context, creating and caching it
// on first access.
func current() *threadctx.Ctx {
	gid := threadctx.GoroutineID()
	if v, ok := contexts.Load(gid); ok {
		return v.(*threadctx.Ctx)
	}

	ctx := threadctx.New(gid)
	if prev, loaded := contexts.LoadOrStore(gid, ctx); loaded {
		// Lost a store race against ourselves; impossible for distinct
		// goroutines since gid is ours, but keep the canonical entry.
		return prev.(*threadctx.Ctx)
	}
	maybeCleanup()
	return ctx
}

// maybeCleanup launches a sweep every cleanupInterval allocations. The
// sweep runs in its own goroutine; it is idempotent, so overlapping sweeps
// only waste a stack dump.
func maybeCleanup() {
	if allocCounter.Add(1)%cleanupInterval == 0 {
		go cleanupDeadGoroutines()
	}
}

// cleanupDeadGoroutines drops cached contexts whose goroutines no longer
// appear in a full stack dump.
func cleanupDeadGoroutines() {
	live := make(map[int64]bool)
	for _, gid := range threadctx.LiveGoroutineIDs() {
		live[gid] = true
	}
	contexts.Range(func(key, _ any) bool {
		if gid := key.(int64); !live[gid] {
			contexts.Delete(gid)
		}
		return true
	})
}
