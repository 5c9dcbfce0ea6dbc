// Package guard forces test mode when imported, so binary entry points can be
// exercised in tests without starting servers or touching infrastructure.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AMANAH_TEST_MODE") == "" {
			_ = os.Setenv("AMANAH_TEST_MODE", "1")
		}
	})
}
