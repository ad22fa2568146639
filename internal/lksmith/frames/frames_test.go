package frames

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// capturingHelper exists so the test can look for a known symbol in its own
// backtrace.
func capturingHelper() []Frame {
	return Capture(0)
}

// TestCapture verifies the current function appears and runtime frames do not.
func TestCapture(t *testing.T) {
	bt := capturingHelper()
	if len(bt) == 0 {
		t.Fatal("Capture returned no frames")
	}

	foundHelper := false
	for _, fr := range bt {
		if strings.HasPrefix(fr.Function, "runtime.") {
			t.Errorf("runtime frame %q not filtered", fr.Function)
		}
		if strings.HasSuffix(fr.Function, "capturingHelper") {
			foundHelper = true
			if fr.Line == 0 || fr.File == "" {
				t.Errorf("helper frame missing location: %+v", fr)
			}
		}
	}
	if !foundHelper {
		t.Errorf("capturingHelper not in backtrace: %+v", bt)
	}
}

// TestCapture_Skip verifies skipped frames are dropped.
func TestCapture_Skip(t *testing.T) {
	inner := func() []Frame { return Capture(1) }
	bt := inner()
	for _, fr := range bt {
		if strings.Contains(fr.Function, "TestCapture_Skip.func") {
			t.Errorf("skipped frame %q still present", fr.Function)
		}
	}
}

// TestFormat verifies the two-line-per-frame report layout.
func TestFormat(t *testing.T) {
	bt := []Frame{{Function: "main.worker", File: "/src/main.go", Line: 42}}
	got := Format(bt)
	want := "  main.worker()\n      /src/main.go:42\n"
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}

	if got := Format(nil); !strings.Contains(got, "no backtrace") {
		t.Errorf("Format(nil) = %q, want placeholder", got)
	}
}

// TestFilter_ExactSymbol verifies exact matching on both qualified and bare
// symbol names.
func TestFilter_ExactSymbol(t *testing.T) {
	f, err := NewFilter([]string{"ignore1"}, nil)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	bt := []Frame{
		{Function: "example.com/app.setup"},
		{Function: "example.com/app.ignore1"},
	}
	if !f.Matches(bt) {
		t.Error("Matches = false, want true for bare symbol ignore1")
	}

	bt = []Frame{{Function: "example.com/app.other"}}
	if f.Matches(bt) {
		t.Error("Matches = true, want false for unrelated frames")
	}
}

// TestFilter_Patterns verifies glob matching.
func TestFilter_Patterns(t *testing.T) {
	f, err := NewFilter(nil, []string{"ignore*"})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if !f.Matches([]Frame{{Function: "pkg.ignoreMe"}}) {
		t.Error("Matches = false, want true for pattern ignore*")
	}
	if f.Matches([]Frame{{Function: "pkg.keepMe"}}) {
		t.Error("Matches = true, want false for non-matching frame")
	}
}

// TestFilter_BadPattern verifies an unparseable glob fails construction.
func TestFilter_BadPattern(t *testing.T) {
	if _, err := NewFilter(nil, []string{"[unclosed"}); err == nil {
		t.Error("NewFilter with bad pattern: err = nil, want error")
	}
}

// TestFilter_Empty verifies the empty filter matches nothing.
func TestFilter_Empty(t *testing.T) {
	f, err := NewFilter(nil, nil)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if f.Matches([]Frame{{Function: "anything"}}) {
		t.Error("empty filter matched a frame")
	}
}

// TestFromEnv verifies colon-separated parsing of both variables.
func TestFromEnv(t *testing.T) {
	t.Setenv(EnvIgnoredFrames, "alpha:beta::gamma")
	t.Setenv(EnvIgnoredFramePatterns, "p1*:p2?")

	f, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	wantExact := []string{"alpha", "beta", "gamma"}
	if diff := cmp.Diff(wantExact, f.Exact()); diff != "" {
		t.Errorf("Exact() mismatch (-want +got):\n%s", diff)
	}
	wantPat := []string{"p1*", "p2?"}
	if diff := cmp.Diff(wantPat, f.Patterns()); diff != "" {
		t.Errorf("Patterns() mismatch (-want +got):\n%s", diff)
	}
}
