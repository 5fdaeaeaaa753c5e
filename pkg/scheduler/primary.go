package scheduler

import (
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/utils"
)

// IsPrimary decides once, at startup, whether this instance owns the
// write path. The instance serving HTTP on the primary port is the
// primary. If no primary port is configured or the listen port cannot
// be determined, the instance assumes it is the primary.
func IsPrimary(listenHttp []string, primaryPort int) bool {
	if primaryPort <= 0 {
		return true
	}

	if len(listenHttp) == 0 {
		log.Warn("No HTTP listen address, assuming primary instance")
		return true
	}

	for _, addr := range listenHttp {
		port, err := utils.HttpUrlPort(addr)
		if err != nil {
			log.Warnf("Cannot determine port of %s, assuming primary instance: %v", addr, err)
			return true
		}
		if port == primaryPort {
			return true
		}
	}

	return false
}
