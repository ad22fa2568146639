//go:build windows || plan9

package diag

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// attachSyslog is unavailable on platforms without a system log.
func attachSyslog(*logrus.Logger) error {
	return errors.New("syslog not supported on this platform")
}
