package core

import (
	"fmt"
	"os"
	"runtime/debug"
)

// FatalError reports an unrecoverable invariant breach: log it, run
// cleanups, then terminate per build trust (re-panic on debug builds so
// the native trace survives, clean exit on release builds).
//
// An installed fatal handler short-circuits termination; callers must
// therefore not assume FatalError never returns.
func (c *Context) FatalError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	if fn := c.fatalHandler(); fn != nil {
		fn(msg)
		return
	}

	c.crashMu.Lock()
	if c.crashActive {
		// Crashed while crashing; stop digging.
		c.crashMu.Unlock()
		os.Exit(1)
	}
	c.crashActive = true
	c.crashMu.Unlock()

	c.runCleanups()
	c.Log.Error().Str("stack", string(debug.Stack())).Msg("FATAL: " + msg)

	if c.Build.Debug {
		panic(msg)
	}
	os.Exit(1)
}

// HandleCrash is the unified panic funnel for runtime goroutines.
// Cleanups run first so the terminal is sane before anything prints.
func (c *Context) HandleCrash(r any, scope string) {
	if r == nil {
		return
	}

	c.crashMu.Lock()
	if c.crashActive {
		c.crashMu.Unlock()
		os.Exit(1)
	}
	c.crashActive = true
	c.crashMu.Unlock()

	c.runCleanups()

	fmt.Fprintf(os.Stderr, "\r\npanic in %s: %v\r\n", scope, r)
	fmt.Fprintf(os.Stderr, "%s\r\n", debug.Stack())
	os.Stderr.Sync()

	if c.Build.Debug {
		panic(r)
	}
	os.Exit(1)
}

// Go runs fn in a new goroutine with panic recovery routed through
// HandleCrash. Use this instead of the 'go' keyword for runtime
// goroutines so cleanup hooks run on crash.
func (c *Context) Go(scope string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.HandleCrash(r, scope)
			}
		}()
		fn()
	}()
}
