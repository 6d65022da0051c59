package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/status"
)

// Context carries the ambient facilities every subsystem needs: the
// root logger, the app clock, build identity, and runtime metrics.
// One Context exists per app; it is passed explicitly, never stored in
// package globals.
type Context struct {
	Log    zerolog.Logger
	Clock  *Clock
	Build  BuildInfo
	Status *status.Registry

	fatalMu  sync.Mutex
	cleanups []func()
	onFatal  func(msg string)

	crashActive bool
	crashMu     sync.Mutex
}

func NewContext(log zerolog.Logger, st *status.Registry, build BuildInfo) *Context {
	return &Context{
		Log:    log,
		Clock:  NewClock(),
		Build:  build,
		Status: st,
	}
}

// AddCleanup registers a function to run before the process terminates
// on a crash or fatal invariant breach. Cleanups run in reverse
// registration order (terminal restore before log flush, etc).
func (c *Context) AddCleanup(fn func()) {
	c.fatalMu.Lock()
	c.cleanups = append(c.cleanups, fn)
	c.fatalMu.Unlock()
}

// SetFatalHandler replaces process termination on fatal errors.
// Embedding platforms install their own teardown here; tests use it to
// observe fatal paths without dying.
func (c *Context) SetFatalHandler(fn func(msg string)) {
	c.fatalMu.Lock()
	c.onFatal = fn
	c.fatalMu.Unlock()
}

func (c *Context) fatalHandler() func(string) {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.onFatal
}

func (c *Context) runCleanups() {
	c.fatalMu.Lock()
	fns := c.cleanups
	c.cleanups = nil
	c.fatalMu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
