package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "FINREPORT_TEST_MODE"

// testMode is 0 until first read, then 1 (off) or 2 (on).
var testMode atomic.Int32

// InTestMode reports whether binaries should skip database, queue and network
// startup. The environment is read once; see RefreshTestMode.
func InTestMode() bool {
	switch testMode.Load() {
	case 1:
		return false
	case 2:
		return true
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads FINREPORT_TEST_MODE and returns the new state.
func RefreshTestMode() bool {
	on := os.Getenv(testModeEnv) == "1"
	if on {
		testMode.Store(2)
	} else {
		testMode.Store(1)
	}
	return on
}
