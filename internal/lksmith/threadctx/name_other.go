//go:build !linux

package threadctx

import "fmt"

// platformThreadName builds the default display name for a new context.
//
// There is no portable way to name a thread after a kernel identifier, so
// the goroutine id stands in. It is unique for the life of the goroutine.
func platformThreadName(gid int64) string {
	return fmt.Sprintf("thread_%d", gid)
}
