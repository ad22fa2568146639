// Package threadctx tracks the per-thread state of the verifier.
//
// Every goroutine that enters a hook gets a Ctx holding its display name,
// the stack of lock keys it currently holds, the number of spin locks among
// them, and the intercept gate that keeps the verifier from observing its
// own calls. A Ctx is owned by its goroutine; no other goroutine reads or
// writes it, so none of its fields are synchronized.
package threadctx

import (
	"errors"
)

// NameMax bounds thread display names. Longer names are truncated silently.
const NameMax = 64

// ErrNotHeld is returned by PopHeld when the key is not on the held stack.
var ErrNotHeld = errors.New("lock not held by this thread")

// Ctx is the verifier's state for one thread.
//
// Invariants maintained by the hook layer:
//   - Spins equals the number of currently held keys whose record kind is
//     spin.
//   - Intercepting == false means any nested hook entry is a no-op; the
//     verifier flips it off around backtrace capture and sink calls.
type Ctx struct {
	// ID is the goroutine id this context belongs to.
	ID int64

	// name is the display name, bounded by NameMax.
	name string

	// held is the stack of lock keys currently held, in acquisition
	// order. Duplicates are legal: a recursive lock held twice appears
	// twice.
	held []uintptr

	// Spins counts currently held spin locks.
	Spins int

	// Intercepting gates hook processing for this thread.
	Intercepting bool
}

// New creates a context for the given goroutine id with a platform default
// name. Interception starts enabled.
func New(id int64) *Ctx {
	return &Ctx{
		ID:           id,
		name:         platformThreadName(id),
		Intercepting: true,
	}
}

// Name returns the thread's display name.
func (c *Ctx) Name() string {
	return c.name
}

// SetName sets the thread's display name, truncating to NameMax bytes.
func (c *Ctx) SetName(name string) {
	if len(name) > NameMax {
		name = name[:NameMax]
	}
	c.name = name
}

// PushHeld appends key to the held stack.
//
// Keys may be pushed more than once; this is how recursive re-entry is
// represented.
func (c *Ctx) PushHeld(key uintptr) {
	c.held = append(c.held, key)
}

// PopHeld removes the last occurrence of key from the held stack.
//
// The last occurrence is the right one to drop for recursive locks: the
// inner acquire pairs with the outer release. Returns ErrNotHeld if key is
// not on the stack.
func (c *Ctx) PopHeld(key uintptr) error {
	for i := len(c.held) - 1; i >= 0; i-- {
		if c.held[i] == key {
			c.held = append(c.held[:i], c.held[i+1:]...)
			return nil
		}
	}
	return ErrNotHeld
}

// Holds reports whether key is anywhere on the held stack. Linear scan;
// held stacks are short.
func (c *Ctx) Holds(key uintptr) bool {
	for _, k := range c.held {
		if k == key {
			return true
		}
	}
	return false
}

// Held returns the held stack in acquisition order.
//
// The slice is shared with the context; callers must not modify it and
// must not hold it across Push/Pop.
func (c *Ctx) Held() []uintptr {
	return c.held
}

// NumHeld returns the number of held entries, counting recursive holds
// once per acquisition.
func (c *Ctx) NumHeld() int {
	return len(c.held)
}
