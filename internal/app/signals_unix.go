//go:build unix

package app

import (
	"os"
	"syscall"
)

func manualSyncSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}
