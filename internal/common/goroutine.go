// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics
var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs fn in a goroutine with panic recovery.
// Panics are logged but don't crash the process.
//
// Example:
//
//	common.SafeGo(logger, "progressServer", func() {
//	    server.ListenAndServe()
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer RecoverPanic(logger, name, nil)
		fn()
	}()
}

// RecoverPanic must be deferred directly. It logs a recovered panic and, when
// onPanic is set, hands the panic value to it.
func RecoverPanic(logger arbor.ILogger, name string, onPanic func(recovered interface{})) {
	r := recover()
	if r == nil {
		return
	}

	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", GetStackTrace()).
			Msg("Recovered from panic")
	} else {
		fmt.Fprintf(os.Stderr, "PANIC in %s: %v\n%s\n", name, r, GetStackTrace())
	}

	if onPanic != nil {
		onPanic(r)
	}
}
