package threadctx

import "runtime"

// GoroutineID extracts the id of the calling goroutine by parsing the
// header line of runtime.Stack output.
//
// Stack trace format: "goroutine 123 [running]:\n..."
//
// This is the portable path (~1.5µs, dominated by runtime.Stack). Hooks
// call it on every entry to look up the cached Ctx keyed by this id; the
// cache saves allocating a Ctx per lock operation, not this lookup.
func GoroutineID() int64 {
	// Only the first line is needed; 64 bytes covers it.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return ParseGID(buf[:n])
}

// ParseGID extracts a goroutine id from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:...". Returns 0 if the buffer
// does not match. Direct byte parsing, no allocation.
func ParseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}

// LiveGoroutineIDs returns the ids of all live goroutines, parsed from a
// full runtime.Stack dump. Used by the context cache to reclaim entries
// for goroutines that have exited.
func LiveGoroutineIDs() []int64 {
	// 1MB holds headers for well over a thousand goroutines; a truncated
	// dump still yields ids for every goroutine it covers.
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	buf = buf[:n]

	var gids []int64
	for i := 0; i < len(buf); {
		end := i
		for end < len(buf) && buf[end] != '\n' {
			end++
		}
		line := buf[i:end]
		if len(line) >= 10 && string(line[:10]) == "goroutine " {
			if gid := ParseGID(line); gid != 0 {
				gids = append(gids, gid)
			}
		}
		i = end + 1
	}
	return gids
}
