// Package guard switches binaries into test mode when imported by their tests,
// so calling main does not open database or queue connections.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FINREPORT_TEST_MODE") == "" {
			_ = os.Setenv("FINREPORT_TEST_MODE", "1")
		}
	})
}
