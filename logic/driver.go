package logic

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/event"
	"github.com/lixenwraith/keel/graphics"
)

const (
	// Headless mode has no render side requesting draws; display time
	// advances on a fixed timer instead.
	headlessStepPeriod = 100 * time.Millisecond

	pendingWorkPeriod = time.Millisecond
)

// WorkSource drains deferred background work in small slices on the
// logic goroutine. RunPending reports whether work remains.
type WorkSource interface {
	RunPending() bool
}

// Driver owns the logic EventLoop and the display-time clock derived
// from it. The render side paces it: every consumed frame pushes a draw
// request, which builds the next frame and steps display time.
type Driver struct {
	ctx  *core.Context
	log  zerolog.Logger
	loop *event.Loop

	builder  *graphics.Builder
	headless bool

	displayTime          time.Duration
	displayTimeIncrement time.Duration
	lastAppTime          time.Duration
	started              bool

	smooth incrementSmoother

	displayTimers *event.TimerList

	work      WorkSource
	workTimer *event.Timer

	stepCallbacks     []func()
	shutdownCallbacks []func()
	shuttingDown      bool
	onShutdown        func()
}

// NewDriver spawns the logic loop. The builder may be nil in headless
// mode.
func NewDriver(ctx *core.Context, builder *graphics.Builder, headless bool) *Driver {
	d := &Driver{
		ctx:           ctx,
		log:           ctx.Log.With().Str("sys", "logic").Logger(),
		builder:       builder,
		headless:      headless,
		displayTimers: event.NewTimerList(),
	}
	d.displayTimers.SetClock(func() time.Duration { return d.displayTime })
	d.loop = event.New(ctx, "logic")
	return d
}

// Loop exposes the logic EventLoop for cross-thread pushes.
func (d *Driver) Loop() *event.Loop { return d.loop }

// DisplayTime returns the current display-time value. Logic goroutine
// only.
func (d *Driver) DisplayTime() time.Duration { return d.displayTime }

// DisplayTimeIncrement returns the smoothed per-frame step. Logic
// goroutine only.
func (d *Driver) DisplayTimeIncrement() time.Duration { return d.displayTimeIncrement }

// Start schedules app bootstrap as the first runnable on the logic
// loop. onShutdown (optional) fires once, on the logic goroutine, when
// Shutdown completes.
func (d *Driver) Start(work WorkSource, onShutdown func()) {
	d.work = work
	d.onShutdown = onShutdown
	d.loop.PushCall(d.onAppStart)
}

func (d *Driver) onAppStart() {
	if d.started {
		d.ctx.FatalError("logic driver started twice")
		return
	}
	d.started = true
	d.lastAppTime = d.ctx.Clock.Now()

	// Suspended until NotifyPendingWork arms it.
	d.workTimer = d.loop.NewTimer(-1, true, d.runPendingWork)

	if d.headless {
		d.loop.NewTimer(headlessStepPeriod, true, d.stepDisplayTime)
	} else {
		// First frame primes the pipeline; the render side requests
		// every one after it.
		d.drawNow()
	}
	d.log.Info().Bool("headless", d.headless).Msg("logic up")
}

// PushDraw asks the logic loop to build the next frame. Render side,
// any goroutine.
func (d *Driver) PushDraw() {
	d.loop.PushCall(d.drawNow)
}

func (d *Driver) drawNow() {
	if d.shuttingDown || d.builder == nil {
		return
	}
	appTime := d.ctx.Clock.Now()
	d.builder.BuildAndPushFrameDef(appTime, d.displayTime, d.displayTimeIncrement)
	d.stepDisplayTime()
}

// stepDisplayTime advances display time by the smoothed frame
// increment, steps the registered subsystems, and runs display timers.
func (d *Driver) stepDisplayTime() {
	appTime := d.ctx.Clock.Now()
	raw := appTime - d.lastAppTime
	d.lastAppTime = appTime

	d.displayTimeIncrement = d.smooth.step(raw, d.displayTimeIncrement)
	d.displayTime += d.displayTimeIncrement

	for _, fn := range d.stepCallbacks {
		fn()
	}
	d.displayTimers.Run(d.displayTime)
}

// AddStepCallback registers a subsystem step run every display tick,
// in registration order. Logic goroutine only.
func (d *Driver) AddStepCallback(fn func()) {
	d.checkThread("AddStepCallback")
	d.stepCallbacks = append(d.stepCallbacks, fn)
}

// NewDisplayTimer schedules fn on the display-time clock, which holds
// still between frames and across pauses. Logic goroutine only.
func (d *Driver) NewDisplayTimer(length time.Duration, repeating bool, fn func()) *event.Timer {
	d.checkThread("NewDisplayTimer")
	return d.displayTimers.NewTimer(d.displayTime, length, repeating, fn)
}

// DeleteDisplayTimer cancels a display timer.
func (d *Driver) DeleteDisplayTimer(id int) {
	d.checkThread("DeleteDisplayTimer")
	d.displayTimers.Delete(id)
}

// NotifyPendingWork arms the pending-work timer. Safe from any
// goroutine; work sources call it when they enqueue.
func (d *Driver) NotifyPendingWork() {
	d.loop.PushCall(func() {
		if d.workTimer != nil {
			d.workTimer.SetLength(pendingWorkPeriod)
		}
	})
}

// runPendingWork drains one slice of background work per millisecond
// and suspends itself when the source reports empty.
func (d *Driver) runPendingWork() {
	if d.work == nil || !d.work.RunPending() {
		d.workTimer.SetLength(-1)
	}
}

// AddShutdownCallback registers fn to run during Shutdown, before the
// loop exits. Logic goroutine only.
func (d *Driver) AddShutdownCallback(fn func()) {
	d.checkThread("AddShutdownCallback")
	d.shutdownCallbacks = append(d.shutdownCallbacks, fn)
}

// Shutdown winds the logic loop down: shutdown callbacks, loop exit,
// then the app-level notification. Idempotent; safe from any
// goroutine.
func (d *Driver) Shutdown() {
	if !d.loop.ThreadIsCurrent() {
		d.loop.PushCall(d.Shutdown)
		return
	}
	if d.shuttingDown {
		return
	}
	d.shuttingDown = true
	d.log.Info().Msg("logic shutting down")

	for _, fn := range d.shutdownCallbacks {
		fn()
	}
	d.loop.PushShutdown()
	if d.onShutdown != nil {
		d.onShutdown()
	}
}

// Join blocks until the logic loop has exited.
func (d *Driver) Join() { d.loop.Join() }

func (d *Driver) checkThread(op string) {
	if !d.loop.ThreadIsCurrent() {
		d.ctx.FatalError("logic %s called off the logic goroutine", op)
	}
}
