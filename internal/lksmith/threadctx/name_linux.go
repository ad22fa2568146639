//go:build linux

package threadctx

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// platformThreadName builds the default display name for a new context.
//
// On Linux the kernel thread id is used when it can be read, since other
// debugging tools report the same number. Goroutines migrate between OS
// threads, so the id only identifies the thread the context was created
// on; the goroutine id is appended to keep names distinct.
func platformThreadName(gid int64) string {
	tid := unix.Gettid()
	if tid <= 0 {
		return fmt.Sprintf("thread_%d", gid)
	}
	return fmt.Sprintf("thread_%d.%d", tid, gid)
}
