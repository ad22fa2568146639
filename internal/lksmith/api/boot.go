package api

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cmccabe/lksmith/internal/lksmith/diag"
	"github.com/cmccabe/lksmith/internal/lksmith/frames"
	"github.com/cmccabe/lksmith/internal/lksmith/verifier"
)

// One-shot bootstrap state.
//
// The latch is a user-space spin on an atomic because nothing else is
// guaranteed to work yet: the first hook can arrive from any goroutine
// before any package-level setup the host program might do.
var (
	bootLatch   atomic.Int32
	initialized atomic.Bool

	global       *verifier.Verifier
	globalFilter *frames.Filter
)

// ensureInit returns the process-wide verifier, performing first-touch
// initialization if needed. Safe from any goroutine at any time.
func ensureInit() *verifier.Verifier {
	if initialized.Load() {
		return global
	}
	spinLock(&bootLatch)
	if !initialized.Load() {
		bootstrap()
		initialized.Store(true)
	}
	spinUnlock(&bootLatch)
	return global
}

func spinLock(l *atomic.Int32) {
	for !l.CompareAndSwap(0, 1) {
		time.Sleep(10 * time.Microsecond)
	}
}

func spinUnlock(l *atomic.Int32) {
	l.CompareAndSwap(1, 0)
}

// bootstrap performs the one-shot initialization: sink from LKSMITH_LOG,
// ignore filter from the environment, then the verifier itself. A broken
// ignore configuration is fatal; running with filters silently dropped
// would make every later report suspect.
func bootstrap() {
	sink := diag.FromEnv()

	filter, err := frames.FromEnv()
	if err != nil {
		sink.Emit(diag.Internal, "init: loading ignored frames failed: %v", err)
		panic(fmt.Sprintf("lksmith: init: %v", err))
	}

	globalFilter = filter
	global = verifier.New(filter, sink)
	sink.Emit(diag.OK, "lock verifier initialized for process %d", os.Getpid())
}
