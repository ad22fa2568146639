package verifier

import (
	"fmt"
	"strings"

	"github.com/cmccabe/lksmith/internal/lksmith/frames"
	"github.com/cmccabe/lksmith/internal/lksmith/sortedset"
)

// Kind distinguishes the two observed lock flavors.
type Kind uint8

const (
	// KindSleeper is a blocking lock whose waiters may yield the CPU.
	KindSleeper Kind = iota
	// KindSpin is a busy-wait lock whose waiters do not yield.
	KindSpin
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	if k == KindSpin {
		return "spin"
	}
	return "sleeper"
}

// acquireCount saturates here rather than wrapping.
const maxAcquireCount = ^uint64(0)

// holderEntry is one live hold of a lock: who took it and from where.
//
// Entries form a singly-linked list with the newest hold at the head, so
// for recursive locks the inner acquire is the first candidate at release
// time.
type holderEntry struct {
	name   string
	owner  int64 // goroutine id; release matches on this
	frames []frames.Frame
	next   *holderEntry
}

// record is the verifier's persistent state for one user lock.
//
// All fields are protected by the verifier's registry lock.
type record struct {
	// key is the lock's identity: the address of the user's lock object.
	key uintptr

	kind      Kind
	recursive bool

	// spinWarned latches after the one SpinHoldingSleeper warning this
	// record is allowed.
	spinWarned bool

	// acquireCount counts successful acquisitions; saturates.
	acquireCount uint64

	// color marks the node as visited during the cycle search whose
	// traversal color matches.
	color uint64

	// before holds the keys of locks that were held when this lock was
	// acquired: the established order is "them before this".
	before sortedset.Set[uintptr]

	// holders is the LIFO list of live holds.
	holders *holderEntry
}

// addHolder pushes a hold onto the head of the list.
func (r *record) addHolder(h *holderEntry) {
	h.next = r.holders
	r.holders = h
}

// removeHolder unlinks the head-most entry owned by the given goroutine.
//
// Walking from the head removes holds in the reverse of insertion order,
// which pairs the inner acquire of a recursive lock with the outer release.
// Reports whether an entry was found.
func (r *record) removeHolder(owner int64) bool {
	p := &r.holders
	for *p != nil {
		if (*p).owner == owner {
			*p = (*p).next
			return true
		}
		p = &(*p).next
	}
	return false
}

// numHolders counts live holds.
func (r *record) numHolders() int {
	n := 0
	for h := r.holders; h != nil; h = h.next {
		n++
	}
	return n
}

// String renders the record for dumps and debugging.
func (r *record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lk{key=%#x, kind=%s, nlock=%d, recursive=%t, color=%d, before={",
		r.key, r.kind, r.acquireCount, r.recursive, r.color)
	for i, k := range r.before.Elems() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%#x", k)
	}
	b.WriteString("}, holders=[")
	for h := r.holders; h != nil; h = h.next {
		if h != r.holders {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "{name=%s}", h.name)
	}
	b.WriteString("]}")
	return b.String()
}
