package frames

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Environment variables read once at bootstrap.
const (
	// EnvIgnoredFrames is a colon-separated list of exact frame symbols.
	EnvIgnoredFrames = "LKSMITH_IGNORED_FRAMES"
	// EnvIgnoredFramePatterns is a colon-separated list of glob patterns.
	EnvIgnoredFramePatterns = "LKSMITH_IGNORED_FRAME_PATTERNS"
)

// Filter holds the user's ignore configuration.
//
// A backtrace matches the filter if any of its frames is in the exact set
// or matches any pattern. Matching acquisitions keep their holder entries
// (so unlock bookkeeping works) but skip dependency-graph updates.
//
// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	exact    []string // sorted
	patterns []glob.Glob
	raw      []string // pattern sources, for introspection
}

// FromEnv builds a Filter from the process environment.
//
// An unparseable glob pattern is a configuration error and fails the whole
// load; bootstrap treats that as fatal.
func FromEnv() (*Filter, error) {
	return newFilter(
		splitList(os.Getenv(EnvIgnoredFrames)),
		splitList(os.Getenv(EnvIgnoredFramePatterns)),
	)
}

// NewFilter builds a Filter from explicit lists. Used by tests and by
// embedders that configure programmatically.
func NewFilter(exact, patterns []string) (*Filter, error) {
	return newFilter(exact, patterns)
}

func newFilter(exact, patterns []string) (*Filter, error) {
	f := &Filter{
		exact: append([]string(nil), exact...),
		raw:   append([]string(nil), patterns...),
	}
	sort.Strings(f.exact)
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad ignored-frame pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// splitList splits a colon-separated environment value, dropping empty
// entries the way strtok does.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ":") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Matches reports whether any frame of the backtrace is suppressed by the
// filter. Each frame is tested under its fully qualified name and under
// its bare symbol, so `ignore1` suppresses both `ignore1` and
// `example.com/pkg.ignore1`.
func (f *Filter) Matches(bt []Frame) bool {
	if len(f.exact) == 0 && len(f.patterns) == 0 {
		return false
	}
	for _, fr := range bt {
		if f.matchesSymbol(fr.Function) || f.matchesSymbol(shortName(fr.Function)) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesSymbol(sym string) bool {
	i := sort.SearchStrings(f.exact, sym)
	if i < len(f.exact) && f.exact[i] == sym {
		return true
	}
	for _, g := range f.patterns {
		if g.Match(sym) {
			return true
		}
	}
	return false
}

// shortName strips the package qualifier from a symbol:
// "example.com/pkg.(*T).ignore1" becomes "ignore1".
func shortName(sym string) string {
	if i := strings.LastIndexByte(sym, '/'); i >= 0 {
		sym = sym[i+1:]
	}
	if i := strings.LastIndexByte(sym, '.'); i >= 0 {
		sym = sym[i+1:]
	}
	return sym
}

// Exact returns the sorted exact-symbol suppressions.
func (f *Filter) Exact() []string {
	return f.exact
}

// Patterns returns the pattern suppressions as configured.
func (f *Filter) Patterns() []string {
	return f.raw
}
