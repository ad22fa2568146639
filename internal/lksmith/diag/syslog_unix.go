//go:build !windows && !plan9

package diag

import (
	"io"
	"log/syslog"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// attachSyslog routes the logger's output to the system log.
func attachSyslog(logger *logrus.Logger) error {
	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_USER, "lksmith")
	if err != nil {
		return err
	}
	logger.AddHook(hook)
	// Lines go to syslog via the hook; keep stderr quiet.
	logger.SetOutput(io.Discard)
	return nil
}
