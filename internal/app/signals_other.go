//go:build !unix

package app

import "os"

func manualSyncSignals() []os.Signal {
	return nil
}
