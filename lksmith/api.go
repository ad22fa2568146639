package lksmith

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cmccabe/lksmith/internal/lksmith/api"
	"github.com/cmccabe/lksmith/internal/lksmith/diag"
	"github.com/cmccabe/lksmith/internal/lksmith/threadctx"
)

// Code is a verifier status. Non-zero codes double as error values.
type Code = diag.Code

// The failure taxonomy. Numeric values are part of the shim contract.
const (
	CodeOK                 = diag.OK
	CodeLockInversion      = diag.LockInversion
	CodeSelfDeadlock       = diag.SelfDeadlock
	CodeNotHeld            = diag.NotHeld
	CodeDestroyInUse       = diag.DestroyInUse
	CodeCondWaitUnheld     = diag.CondWaitUnheld
	CodeSpinHoldingSleeper = diag.SpinHoldingSleeper
	CodeOutOfMemory        = diag.OutOfMemory
	CodeInternal           = diag.Internal
)

// errFor converts a status to a Go error, with OK mapping to nil.
func errFor(code Code) error {
	if code == diag.OK {
		return nil
	}
	return code
}

// A Mutex is a sleeping lock observed by the verifier.
//
// The zero value is ready to use; the verifier registers it on first touch
// the way it would a statically initialized lock, as recursive, so it
// reports no self-deadlock for it. The zero-value Mutex itself is not
// re-entrant: a second Lock on the same thread blocks. Call Init to get
// error-checking (non-recursive) registration, or InitRecursive for a lock
// the same thread may re-acquire.
//
// Unlike sync.Mutex, Unlock reports misuse instead of panicking: unlocking
// a Mutex the calling thread does not hold returns CodeNotHeld and leaves
// the lock untouched.
type Mutex struct {
	mu sync.Mutex

	recursive bool
	owner     atomic.Int64
	depth     int32 // re-entry depth; touched only by the owner
}

func (m *Mutex) key() uintptr {
	return uintptr(unsafe.Pointer(m))
}

// Init registers the mutex as non-recursive. Re-acquiring it on the same
// thread reports a self-deadlock.
func (m *Mutex) Init() error {
	key := m.key()
	if code := api.PreInit(key, true, false); code != CodeOK {
		return errFor(code)
	}
	api.PostInit(key, true)
	return nil
}

// InitRecursive registers the mutex as recursive: the owning thread may
// re-acquire it, and each Lock must be paired with an Unlock.
func (m *Mutex) InitRecursive() error {
	key := m.key()
	m.recursive = true
	if code := api.PreInit(key, true, true); code != CodeOK {
		return errFor(code)
	}
	api.PostInit(key, true)
	return nil
}

// Lock acquires the mutex, blocking until it is available. Discipline
// violations are reported through the sink; the acquisition proceeds
// regardless, like its native counterpart.
func (m *Mutex) Lock() {
	key := m.key()
	api.PreLock(key, true)
	gid := threadctx.GoroutineID()
	if m.recursive && m.owner.Load() == gid {
		m.depth++
		api.PostLock(key, true)
		return
	}
	m.mu.Lock()
	m.owner.Store(gid)
	m.depth = 1
	api.PostLock(key, true)
}

// TryLock acquires the mutex without blocking and reports whether it
// succeeded. The attempt is analyzed either way: even a failed trylock
// reveals intended ordering.
func (m *Mutex) TryLock() bool {
	key := m.key()
	api.PreLock(key, true)
	gid := threadctx.GoroutineID()
	if m.recursive && m.owner.Load() == gid {
		m.depth++
		api.PostLock(key, true)
		return true
	}
	ok := m.mu.TryLock()
	if ok {
		m.owner.Store(gid)
		m.depth = 1
	}
	api.PostLock(key, ok)
	return ok
}

// Unlock releases the mutex. Unlocking a mutex the calling thread does not
// hold returns CodeNotHeld without touching the lock.
func (m *Mutex) Unlock() error {
	key := m.key()
	if code := api.PreUnlock(key); code != CodeOK {
		return errFor(code)
	}
	gid := threadctx.GoroutineID()
	if m.recursive && m.owner.Load() == gid && m.depth > 1 {
		m.depth--
		api.PostUnlock(key)
		return nil
	}
	m.owner.Store(0)
	m.depth = 0
	m.mu.Unlock()
	api.PostUnlock(key)
	return nil
}

// Destroy retires the mutex from the verifier. Destroying a mutex that is
// still held returns CodeDestroyInUse. Destroying a mutex the verifier has
// never observed is a no-op.
func (m *Mutex) Destroy() error {
	return errFor(api.PreDestroy(m.key()))
}

// Held reports whether the calling thread holds the mutex.
func (m *Mutex) Held() bool {
	return api.CheckHeld(m.key())
}

// A SpinLock is a busy-wait lock observed by the verifier.
//
// The verifier warns (once per lock) when a sleeping lock is acquired while
// any spin lock is held, since the holder of a spin lock should not block.
type SpinLock struct {
	v atomic.Int32
}

func (s *SpinLock) key() uintptr {
	return uintptr(unsafe.Pointer(s))
}

// Init registers the spin lock with the verifier.
func (s *SpinLock) Init() error {
	key := s.key()
	if code := api.PreInit(key, false, false); code != CodeOK {
		return errFor(code)
	}
	api.PostInit(key, true)
	return nil
}

// Lock busy-waits until the lock is acquired.
func (s *SpinLock) Lock() {
	key := s.key()
	api.PreLock(key, false)
	for !s.v.CompareAndSwap(0, 1) {
	}
	api.PostLock(key, true)
}

// TryLock makes one acquisition attempt and reports whether it succeeded.
func (s *SpinLock) TryLock() bool {
	key := s.key()
	api.PreLock(key, false)
	ok := s.v.CompareAndSwap(0, 1)
	api.PostLock(key, ok)
	return ok
}

// Unlock releases the spin lock. Unlocking a lock the calling thread does
// not hold returns CodeNotHeld without touching the lock.
func (s *SpinLock) Unlock() error {
	key := s.key()
	if code := api.PreUnlock(key); code != CodeOK {
		return errFor(code)
	}
	s.v.Store(0)
	api.PostUnlock(key)
	return nil
}

// Destroy retires the spin lock from the verifier.
func (s *SpinLock) Destroy() error {
	return errFor(api.PreDestroy(s.key()))
}

// Held reports whether the calling thread holds the spin lock.
func (s *SpinLock) Held() bool {
	return api.CheckHeld(s.key())
}

// A Cond is a condition variable bound to a Mutex.
//
// Wait refuses to run when the calling thread does not hold the mutex,
// returning CodeCondWaitUnheld instead of blocking forever. The mutex must
// be non-recursive; a recursive hold deeper than one cannot be released by
// the underlying wait.
type Cond struct {
	m *Mutex
	c *sync.Cond
}

// NewCond returns a condition variable whose waiters are protected by m.
func NewCond(m *Mutex) *Cond {
	return &Cond{m: m, c: sync.NewCond(&m.mu)}
}

// Wait atomically releases the mutex and suspends the calling thread until
// Signal or Broadcast wakes it, then reacquires the mutex. From the
// verifier's viewpoint the mutex stays held throughout: the internal
// release/reacquire is invisible.
func (c *Cond) Wait() error {
	if code := api.PreCondWait(c.m.key()); code != CodeOK {
		return errFor(code)
	}
	c.c.Wait()
	return nil
}

// Signal wakes one waiter, if any.
func (c *Cond) Signal() {
	c.c.Signal()
}

// Broadcast wakes all waiters.
func (c *Cond) Broadcast() {
	c.c.Broadcast()
}

// SetThreadName names the calling thread in diagnostics. Names longer than
// 64 bytes are truncated silently.
func SetThreadName(name string) {
	api.SetThreadName(name)
}

// GetThreadName returns the calling thread's diagnostic name.
func GetThreadName() string {
	return api.ThreadName()
}

// SetErrorCallback registers the function that receives diagnostics when
// LKSMITH_LOG selects the callback sink. Passing nil clears it.
func SetErrorCallback(fn func(code Code, msg string)) {
	if fn == nil {
		diag.SetCallback(nil)
		return
	}
	diag.SetCallback(func(code diag.Code, msg string) { fn(code, msg) })
}

// IgnoredFrames returns the configured exact frame suppressions.
func IgnoredFrames() []string {
	return api.IgnoredFrames()
}

// IgnoredFramePatterns returns the configured frame pattern suppressions.
func IgnoredFramePatterns() []string {
	return api.IgnoredFramePatterns()
}
