// SPDX-License-Identifier: MIT

// Package supervutil provides goroutine panic containment for long-lived
// room supervisors, the governor tick, and other background tasks that must
// never take the whole daemon down with them.
package supervutil

import (
	"fmt"
	"io"
	"runtime/debug"
)

// Go runs fn in a new goroutine, recovering any panic so it cannot crash the
// process. The panic (if any) is written to logger with its stack trace and
// handed to onPanic, which may be nil.
func Go(name string, logger io.Writer, fn func(), onPanic func(recovered interface{}, stack []byte)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if logger != nil {
					_, _ = fmt.Fprintf(logger, "[PANIC in %s] %v\n%s\n", name, r, stack)
				}
				if onPanic != nil {
					onPanic(r, stack)
				}
			}
		}()
		fn()
	}()
}

// GoWithResult runs fn in a new goroutine, recovering any panic and
// forwarding it (or fn's returned error) on errCh. errCh is closed once fn
// returns or panics, so callers using for-range or a second receive never
// block forever.
func GoWithResult(name string, logger io.Writer, fn func() error, errCh chan<- error, onPanic func(recovered interface{}, stack []byte)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if logger != nil {
					_, _ = fmt.Fprintf(logger, "[PANIC in %s] %v\n%s\n", name, r, stack)
				}
				if onPanic != nil {
					onPanic(r, stack)
				}
				if errCh != nil {
					errCh <- fmt.Errorf("panic in %s: %v", name, r)
					close(errCh)
				}
			}
		}()

		err := fn()
		if errCh != nil {
			if err != nil {
				errCh <- err
			}
			close(errCh)
		}
	}()
}

// Recover converts a panic raised by fn into an error return.
// supervisortree runs every service's Serve through it, so a panicking
// service fails like any other instead of taking the process down.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
