// Package verifier implements the lock-discipline engine: the registry of
// observed locks, the must-be-acquired-before graph with its cycle search,
// and the holder ledger, driven by the pre/post hooks.
//
// All registry and record state is mutated only under the verifier's
// registry lock. The lock is released before any diagnostic reaches the
// sink, so a blocking sink can never wedge the engine.
package verifier

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cmccabe/lksmith/internal/lksmith/diag"
	"github.com/cmccabe/lksmith/internal/lksmith/frames"
	"github.com/cmccabe/lksmith/internal/lksmith/threadctx"
)

// Verifier holds the process-wide verification state.
type Verifier struct {
	// mu is the registry lock. It linearizes all graph mutations and the
	// traversal-color counter. It is never held across a sink call or a
	// native primitive call.
	mu sync.Mutex

	reg *registry

	// color is the latest traversal color. Incremented under mu before
	// each cycle search so visited-node checks need no clearing pass.
	color uint64

	filter *frames.Filter
	sink   *diag.Sink
}

// New creates a verifier with the given ignore filter and diagnostic sink.
func New(filter *frames.Filter, sink *diag.Sink) *Verifier {
	return &Verifier{
		reg:    newRegistry(),
		filter: filter,
		sink:   sink,
	}
}

// pendingDiag is a diagnostic noted while the registry lock was held and
// emitted after it is released.
type pendingDiag struct {
	code      diag.Code
	msg       string
	backtrace string
}

// Init registers a lock explicitly (the init hook).
//
// Re-initializing a known key is a no-op success; its properties are
// refreshed only while nothing holds it.
func (v *Verifier) Init(ctx *threadctx.Ctx, key uintptr, kind Kind, recursive bool) diag.Code {
	v.mu.Lock()
	r, created := v.reg.findOrInsert(key, kind, recursive)
	if !created && r.holders == nil {
		r.kind = kind
		r.recursive = recursive
	}
	v.mu.Unlock()
	return diag.OK
}

// Destroy handles the destroy hook.
//
// Destroying an unknown key is benign: the lock may have been statically
// initialized and never touched. Destroying a held lock emits DestroyInUse
// and tells the shim to skip the native call. On success the record is
// removed and purged from every other record's before set.
func (v *Verifier) Destroy(ctx *threadctx.Ctx, key uintptr) diag.Code {
	var pend []pendingDiag

	v.mu.Lock()
	r := v.reg.find(key)
	if r == nil {
		v.mu.Unlock()
		return diag.OK
	}
	if r.holders != nil {
		if ctx.Holds(key) {
			pend = append(pend, pendingDiag{diag.DestroyInUse, fmt.Sprintf(
				"destroy(lock=%#x, thread=%s): you must unlock this lock before destroying it",
				key, ctx.Name()), ""})
		} else {
			pend = append(pend, pendingDiag{diag.DestroyInUse, fmt.Sprintf(
				"destroy(lock=%#x, thread=%s): this lock is currently in use and so cannot be destroyed",
				key, ctx.Name()), ""})
		}
		v.mu.Unlock()
		v.emit(ctx, pend)
		return diag.DestroyInUse
	}
	v.reg.remove(key)
	v.reg.ascend(func(o *record) bool {
		o.before.Remove(key)
		return true
	})
	v.mu.Unlock()
	return diag.OK
}

// PreLock handles the pre-hook of lock, trylock, and timedlock.
//
// It captures the acquisition backtrace, registers the lock on first touch
// (recursive, since a statically initialized lock may legitimately be
// recursive), runs the dependency-graph update unless the backtrace matches
// the ignore filter, and appends the holder entry. Inversion and
// self-deadlock diagnostics do not stop the operation, so the returned
// status is OK either way.
func (v *Verifier) PreLock(ctx *threadctx.Ctx, key uintptr, kind Kind) diag.Code {
	h := v.newHolder(ctx)

	var pend []pendingDiag
	v.mu.Lock()
	r, _ := v.reg.findOrInsert(key, kind, true)
	if !v.filter.Matches(h.frames) {
		pend = v.processDepends(ctx, r, h)
	}
	r.addHolder(h)
	v.mu.Unlock()

	v.emit(ctx, pend)
	return diag.OK
}

// PostLock handles the post-hook of lock, trylock, and timedlock.
//
// acquired reports whether the native call succeeded. On failure the holder
// pushed by PreLock is withdrawn; on success the held stack and spin depth
// are updated and the one-shot spin-holding-sleeper warning may fire.
func (v *Verifier) PostLock(ctx *threadctx.Ctx, key uintptr, acquired bool) {
	var pend []pendingDiag

	v.mu.Lock()
	r := v.reg.find(key)
	if r == nil {
		v.mu.Unlock()
		v.emit(ctx, []pendingDiag{{diag.Internal, fmt.Sprintf(
			"post-lock(lock=%#x, thread=%s): pre-lock did not create the lock record",
			key, ctx.Name()), ""}})
		return
	}
	if !acquired {
		r.removeHolder(ctx.ID)
		v.mu.Unlock()
		return
	}
	if r.acquireCount < maxAcquireCount {
		r.acquireCount++
	}
	ctx.PushHeld(key)
	if r.kind == KindSpin {
		ctx.Spins++
	} else if ctx.Spins > 0 && !r.spinWarned {
		r.spinWarned = true
		pend = append(pend, pendingDiag{diag.SpinHoldingSleeper, fmt.Sprintf(
			"post-lock(lock=%#x, thread=%s): performance problem: you are taking a sleeping lock while holding a spin lock",
			key, ctx.Name()), ""})
	}
	v.mu.Unlock()
	v.emit(ctx, pend)
}

// PreUnlock handles the unlock pre-hook.
//
// Unlocking a lock this thread does not hold (including one the verifier
// has never seen) emits NotHeld and tells the shim to skip the native call.
func (v *Verifier) PreUnlock(ctx *threadctx.Ctx, key uintptr) diag.Code {
	v.mu.Lock()
	known := v.reg.find(key) != nil
	v.mu.Unlock()

	if !known {
		v.emit(ctx, []pendingDiag{{diag.NotHeld, fmt.Sprintf(
			"unlock(lock=%#x, thread=%s): attempted to unlock an unknown lock",
			key, ctx.Name()), ""}})
		return diag.NotHeld
	}
	if !ctx.Holds(key) {
		v.emit(ctx, []pendingDiag{{diag.NotHeld, fmt.Sprintf(
			"unlock(lock=%#x, thread=%s): attempted to unlock a lock that this thread does not currently hold",
			key, ctx.Name()), ""}})
		return diag.NotHeld
	}
	return diag.OK
}

// PostUnlock handles the unlock post-hook: the held stack loses the last
// occurrence of the key, the spin depth is adjusted, and the holder entry
// is withdrawn.
func (v *Verifier) PostUnlock(ctx *threadctx.Ctx, key uintptr) {
	if err := ctx.PopHeld(key); err != nil {
		v.emit(ctx, []pendingDiag{{diag.Internal, fmt.Sprintf(
			"post-unlock(lock=%#x, thread=%s): pre-unlock said we held this lock, but we do not",
			key, ctx.Name()), ""}})
		return
	}

	var pend []pendingDiag
	v.mu.Lock()
	r := v.reg.find(key)
	if r == nil {
		pend = append(pend, pendingDiag{diag.Internal, fmt.Sprintf(
			"post-unlock(lock=%#x, thread=%s): attempted to unlock an unknown lock",
			key, ctx.Name()), ""})
	} else {
		if r.kind == KindSpin {
			ctx.Spins--
		}
		if !r.removeHolder(ctx.ID) {
			pend = append(pend, pendingDiag{diag.Internal, fmt.Sprintf(
				"post-unlock(lock=%#x, thread=%s): no holder entry recorded for this thread",
				key, ctx.Name()), ""})
		}
	}
	v.mu.Unlock()
	v.emit(ctx, pend)
}

// PreCondWait handles the condition-wait pre-hook. Waiting on a mutex the
// thread does not hold emits CondWaitUnheld and skips the native call; the
// wait's internal release/reacquire is otherwise invisible because the
// mutex stays logically held.
func (v *Verifier) PreCondWait(ctx *threadctx.Ctx, key uintptr) diag.Code {
	if ctx.Holds(key) {
		return diag.OK
	}
	v.emit(ctx, []pendingDiag{{diag.CondWaitUnheld, fmt.Sprintf(
		"cond-wait(mutex=%#x, thread=%s): waiting on a mutex that this thread does not currently hold",
		key, ctx.Name()), ""}})
	return diag.CondWaitUnheld
}

// CheckHeld reports whether the calling thread holds the lock.
func (v *Verifier) CheckHeld(ctx *threadctx.Ctx, key uintptr) bool {
	return ctx.Holds(key)
}

// NumLocks returns the number of registered locks.
func (v *Verifier) NumLocks() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reg.size()
}

// Dump renders the whole registry. Debug aid; takes the registry lock.
func (v *Verifier) Dump() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reg.dump()
}

// processDepends updates the dependency graph for an acquisition of lk
// while the thread holds ctx.Held().
//
// For each held lock: a re-entry of lk is allowed for recursive locks and
// is a self-deadlock otherwise; any held lock from which lk is reachable
// along before edges means the acquisition inverts the established order;
// everything else becomes a new before edge on lk. Held locks are processed
// in acquisition order and a failure never rolls back an earlier edge: the
// goal is maximum signal, not transactional consistency.
//
// Called with v.mu held.
func (v *Verifier) processDepends(ctx *threadctx.Ctx, lk *record, h *holderEntry) []pendingDiag {
	var pend []pendingDiag

	v.color++
	for _, heldKey := range ctx.Held() {
		ak := v.reg.find(heldKey)
		if ak == nil {
			pend = append(pend, pendingDiag{diag.Internal, fmt.Sprintf(
				"pre-lock(lock=%#x, thread=%s): thread holds unknown lock %#x",
				lk.key, ctx.Name(), heldKey), ""})
			continue
		}
		if ak == lk {
			if lk.recursive {
				continue
			}
			pend = append(pend, pendingDiag{diag.SelfDeadlock, fmt.Sprintf(
				"pre-lock(lock=%#x, thread=%s): this thread already holds this lock, and it is not a recursive lock",
				lk.key, ctx.Name()), ""})
			continue
		}
		if v.search(ak, lk.key) {
			pend = append(pend, pendingDiag{diag.LockInversion, fmt.Sprintf(
				"pre-lock(lock=%#x, thread=%s): lock inversion! this lock should have been taken before lock %#x, which this thread already holds",
				lk.key, ctx.Name(), heldKey), frames.Format(h.frames)})
			continue
		}
		lk.before.Insert(ak.key)
	}
	return pend
}

// search reports whether start is reachable from lk along before edges.
//
// Depth-first with traversal coloring: a node whose color equals the
// current color was already visited by this acquisition's searches and
// cannot lead anywhere new. Each search is O(nodes+edges) with no
// allocation and no clearing pass.
//
// Called with v.mu held.
func (v *Verifier) search(lk *record, start uintptr) bool {
	if lk.key == start {
		return true
	}
	if lk.color == v.color {
		return false
	}
	lk.color = v.color
	for _, k := range lk.before.Elems() {
		ak := v.reg.find(k)
		if ak == nil {
			continue
		}
		if v.search(ak, start) {
			return true
		}
	}
	return false
}

// newHolder builds a holder entry for the current thread, capturing the
// acquisition backtrace with interception disabled so the capture itself
// is never observed.
func (v *Verifier) newHolder(ctx *threadctx.Ctx) *holderEntry {
	was := ctx.Intercepting
	ctx.Intercepting = false
	bt := trimOwnFrames(frames.Capture(0))
	ctx.Intercepting = was
	return &holderEntry{name: ctx.Name(), owner: ctx.ID, frames: bt}
}

// emit delivers pending diagnostics with interception disabled. Never
// called with v.mu held.
func (v *Verifier) emit(ctx *threadctx.Ctx, pend []pendingDiag) {
	if len(pend) == 0 {
		return
	}
	was := ctx.Intercepting
	ctx.Intercepting = false
	for _, p := range pend {
		if p.backtrace != "" {
			v.sink.EmitBacktrace(p.code, p.backtrace, "%s", p.msg)
		} else {
			v.sink.Emit(p.code, "%s", p.msg)
		}
	}
	ctx.Intercepting = was
}

// Frames belonging to the verifier's own call chain, dropped from the top
// of captured backtraces so reports and the ignore filter see user code
// first. The prefixes cover every function of these packages, so a leading
// caller that lives in one of them (an in-package test function or helper,
// for example) is dropped as well; trimming stops at the first frame from
// any other package.
var ownFramePrefixes = []string{
	"github.com/cmccabe/lksmith/internal/lksmith/verifier.",
	"github.com/cmccabe/lksmith/internal/lksmith/frames.",
	"github.com/cmccabe/lksmith/internal/lksmith/api.Pre",
	"github.com/cmccabe/lksmith/internal/lksmith/api.Post",
	"github.com/cmccabe/lksmith/lksmith.",
}

func trimOwnFrames(bt []frames.Frame) []frames.Frame {
	for len(bt) > 0 {
		own := false
		for _, p := range ownFramePrefixes {
			if strings.HasPrefix(bt[0].Function, p) {
				own = true
				break
			}
		}
		if !own {
			break
		}
		bt = bt[1:]
	}
	return bt
}
