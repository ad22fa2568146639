// Package frames captures and filters backtraces for lock diagnostics.
//
// Capture symbolizes the current call stack; Filter decides whether a
// backtrace matches the user's ignore configuration, in which case the
// acquisition it belongs to is excluded from dependency analysis.
package frames

import (
	"fmt"
	"runtime"
	"strings"
)

// MaxDepth is the maximum number of stack frames captured per acquisition.
// Lock-discipline bugs are visible near the top of the stack; deeper frames
// only add noise to reports.
const MaxDepth = 32

// Frame is one symbolized stack frame.
type Frame struct {
	// Function is the fully qualified function name ("pkg.Func").
	Function string
	// File and Line locate the call site.
	File string
	Line int
}

// Capture symbolizes the current call stack, skipping the given number of
// frames below the caller. Runtime-internal frames ("runtime.*") are
// dropped; any other frames, including the verifier's own hook frames, are
// kept and left for the caller to trim.
//
// Capture allocates; callers disable interception for its duration so the
// allocation and symbolization machinery is never observed.
func Capture(skip int) []Frame {
	var pcs [MaxDepth]uintptr
	// +2 skips runtime.Callers and Capture itself.
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return nil
	}

	out := make([]Frame, 0, n)
	iter := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := iter.Next()
		if fr.PC == 0 {
			break
		}
		if !strings.HasPrefix(fr.Function, "runtime.") {
			out = append(out, Frame{
				Function: fr.Function,
				File:     fr.File,
				Line:     fr.Line,
			})
		}
		if !more {
			break
		}
	}
	return out
}

// Format renders frames in the report layout:
//
//	pkg.caller()
//	    /path/to/file.go:45
func Format(frames []Frame) string {
	if len(frames) == 0 {
		return "  <no backtrace available>\n"
	}
	var buf strings.Builder
	for _, fr := range frames {
		fmt.Fprintf(&buf, "  %s()\n", fr.Function)
		fmt.Fprintf(&buf, "      %s:%d\n", fr.File, fr.Line)
	}
	return buf.String()
}
