package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// EnvLog selects the diagnostic sink target.
//
// Recognized values: "stderr" (default), "stdout", "syslog", "file://PATH"
// (append), and "callback" / "callback://..." which routes diagnostics to
// the callback registered with SetCallback.
const EnvLog = "LKSMITH_LOG"

const (
	filePrefix     = "file://"
	callbackPrefix = "callback"
)

// Callback receives diagnostics when the callback sink is selected.
type Callback func(code Code, msg string)

var (
	cbMu       sync.Mutex
	registered Callback
)

// SetCallback registers the process-wide diagnostic callback. Passing nil
// clears it; the callback sink then falls back to stderr.
func SetCallback(fn Callback) {
	cbMu.Lock()
	registered = fn
	cbMu.Unlock()
}

func callback() Callback {
	cbMu.Lock()
	defer cbMu.Unlock()
	return registered
}

// Sink delivers diagnostics to the configured target.
//
// Emission is serialized by an internal mutex so multi-line reports are not
// interleaved. The mutex is never held while verifier locks are held; hooks
// release the registry lock before emitting.
type Sink struct {
	mu         sync.Mutex
	useCB      bool
	logger     *logrus.Logger
	warnedNoCB bool
}

// FromEnv builds a Sink from LKSMITH_LOG.
func FromEnv() *Sink {
	target := os.Getenv(EnvLog)
	if target == "" {
		target = "stderr"
	}
	return New(target)
}

// New builds a Sink for an explicit target, using the same syntax as
// LKSMITH_LOG.
//
// An unusable target (unknown value, unopenable file, unavailable syslog)
// falls back to stderr with a complaint on stderr, so diagnostics are never
// silently dropped.
func New(target string) *Sink {
	s := &Sink{logger: newLogger(os.Stderr)}
	switch {
	case target == "stderr":
	case target == "stdout":
		s.logger.SetOutput(os.Stdout)
	case target == "syslog":
		if err := attachSyslog(s.logger); err != nil {
			fmt.Fprintf(os.Stderr, "lksmith: cannot open syslog: %v\n"+
				"redirecting output to stderr\n", err)
		}
	case strings.HasPrefix(target, filePrefix):
		path := target[len(filePrefix):]
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lksmith: unable to open %q: %v\n"+
				"redirecting output to stderr\n", path, err)
			break
		}
		s.logger.SetOutput(f)
	case strings.HasPrefix(target, callbackPrefix):
		s.useCB = true
	default:
		fmt.Fprintf(os.Stderr, "lksmith: unable to understand log target %q; "+
			"redirecting output to stderr\n", target)
	}
	return s
}

func newLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})
	return logger
}

// Emit delivers one diagnostic.
func (s *Sink) Emit(code Code, format string, args ...any) {
	s.emit(code, fmt.Sprintf(format, args...), "")
}

// EmitBacktrace delivers a diagnostic followed by a formatted backtrace.
func (s *Sink) EmitBacktrace(code Code, backtrace, format string, args ...any) {
	s.emit(code, fmt.Sprintf(format, args...), backtrace)
}

func (s *Sink) emit(code Code, msg, backtrace string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.useCB {
		if cb := callback(); cb != nil {
			if backtrace != "" {
				msg = msg + "\n" + backtrace
			}
			cb(code, msg)
			return
		}
		if !s.warnedNoCB {
			s.warnedNoCB = true
			s.logger.Warn("lksmith: callback sink selected but no callback registered; using stderr")
		}
	}

	entry := s.logger.WithField("code", int(code))
	switch {
	case code == OK:
		entry.Info(msg)
	case code.Warning():
		entry.Warn(msg)
	default:
		entry.Error(msg)
	}
	if backtrace != "" {
		for _, line := range strings.Split(strings.TrimRight(backtrace, "\n"), "\n") {
			fmt.Fprintln(s.logger.Out, line)
		}
	}
}
