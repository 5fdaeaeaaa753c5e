//go:build linux

package utils

import (
	"github.com/srand/fleet/pkg/log"
	"golang.org/x/sys/unix"
)

// Raise the open file limit to the hard limit.
// Every connected worker holds at least one socket.
func RaiseFileLimit() {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		log.Warn("Failed to query open file limit:", err)
		return
	}

	if limit.Cur >= limit.Max {
		log.Debugf("Open file limit: %d", limit.Cur)
		return
	}

	limit.Cur = limit.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		log.Warn("Failed to raise open file limit:", err)
		return
	}

	log.Infof("Raised open file limit to %d", limit.Cur)
}
