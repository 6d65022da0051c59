package event

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
)

// Message queue thresholds. Crossing the soft limit logs a kind tally
// once per loop lifetime; the hard limit means a runaway producer and
// is fatal before memory goes with it.
const (
	msgBacklogSoft = 1000
	msgBacklogHard = 10 * msgBacklogSoft
)

// Source records how a loop got its goroutine.
type Source uint8

const (
	SourceSpawned Source = iota // New spawned a goroutine for it
	SourceWrapped               // WrapCurrent took over the caller's
)

// Loop is a per-subsystem scheduler: one goroutine draining a
// cross-thread message queue and a timer list in a wait/drain/execute
// cycle. All loop-affine methods (timers, callbacks, Run*) must be
// called on the loop's own goroutine; Push* methods are safe anywhere.
type Loop struct {
	ctx    *core.Context
	name   string
	source Source
	log    zerolog.Logger

	mu            sync.Mutex
	messages      []message
	messagesSpare []message
	dead          bool
	backlogLogged bool
	wake          chan struct{} // cap 1; token means "messages arrived"

	gid    atomic.Uint64
	paused atomic.Bool
	done   bool

	pending      []pendingCall // loop-local, staged by the drain
	pendingSpare []pendingCall

	timers *TimerList

	exclusive sync.Locker

	pauseCallbacks  []func()
	resumeCallbacks []func()
	pausedAt        time.Duration

	waitTimer *time.Timer

	loopDone   chan struct{}
	finishOnce sync.Once

	mMessages prometheus.Counter
	mDepth    prometheus.Gauge
	mBacklog  prometheus.Counter
}

func newLoop(ctx *core.Context, name string, source Source) *Loop {
	l := &Loop{
		ctx:      ctx,
		name:     name,
		source:   source,
		wake:     make(chan struct{}, 1),
		timers:   NewTimerList(),
		loopDone: make(chan struct{}),
	}
	l.timers.SetClock(ctx.Clock.Now)
	l.log = ctx.Log.With().Str("sys", "loop").Str("loop", name).Logger()
	l.mMessages = ctx.Status.LoopMessages.WithLabelValues(name)
	l.mDepth = ctx.Status.LoopQueueDepth.WithLabelValues(name)
	l.mBacklog = ctx.Status.LoopBacklogHits.WithLabelValues(name)
	return l
}

// New spawns a goroutine-backed loop and blocks until it is live:
// the handshake guarantees the returned loop's goroutine id is set and
// its queue is being serviced before anyone can push to it.
func New(ctx *core.Context, name string) *Loop {
	l := newLoop(ctx, name, SourceSpawned)
	bootstrapped := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.ctx.HandleCrash(r, "event loop "+l.name)
			}
		}()
		defer l.closeDone()
		l.gid.Store(curGoroutineID())
		close(bootstrapped)
		l.log.Debug().Msg("loop up")
		l.run(false)
	}()
	<-bootstrapped
	return l
}

// WrapCurrent turns the calling goroutine into a loop. The caller keeps
// control: it must invoke Run (or RunSingleCycle repeatedly) itself and
// exits via Quit or PushShutdown.
func WrapCurrent(ctx *core.Context, name string) *Loop {
	l := newLoop(ctx, name, SourceWrapped)
	l.gid.Store(curGoroutineID())
	return l
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) Source() Source { return l.source }

// Paused reports the loop's pause state; readable from any goroutine.
func (l *Loop) Paused() bool { return l.paused.Load() }

// ThreadIsCurrent reports whether the caller runs on the loop goroutine.
func (l *Loop) ThreadIsCurrent() bool {
	return l.gid.Load() == curGoroutineID()
}

func (l *Loop) checkThread(op string) {
	if !l.ThreadIsCurrent() {
		l.ctx.FatalError("%s called off the %q loop goroutine", op, l.name)
	}
}

// Run drives a wrapped loop to completion. Spawned loops run
// themselves; calling Run on one is an error.
func (l *Loop) Run() {
	if l.source != SourceWrapped {
		l.ctx.FatalError("Run on spawned loop %q", l.name)
		return
	}
	l.checkThread("Run")
	defer l.closeDone()
	l.run(false)
}

// RunSingleCycle performs one wait-free pass: drain messages, run due
// timers and pending calls, return. For callers embedding the loop in
// an external frame callback.
func (l *Loop) RunSingleCycle() {
	if l.source != SourceWrapped {
		l.ctx.FatalError("RunSingleCycle on spawned loop %q", l.name)
		return
	}
	l.checkThread("RunSingleCycle")
	l.run(true)
}

// Quit stops a wrapped loop from within its own goroutine.
func (l *Loop) Quit() {
	if l.source != SourceWrapped {
		l.ctx.FatalError("Quit on spawned loop %q", l.name)
		return
	}
	l.checkThread("Quit")
	l.done = true
}

// Join blocks until the loop has fully exited.
func (l *Loop) Join() {
	if l.ThreadIsCurrent() {
		l.ctx.FatalError("Join from own loop %q", l.name)
		return
	}
	<-l.loopDone
}

// PushCall schedules fn on the loop. From the loop's own goroutine it
// lands directly in the pending list; otherwise it rides the message
// queue.
func (l *Loop) PushCall(fn func()) {
	if l.ThreadIsCurrent() {
		l.pending = append(l.pending, pendingCall{run: fn})
		return
	}
	l.pushMessage(message{kind: msgRunnable, run: fn})
}

// PushCallSynchronous schedules fn and blocks until the loop has run
// it. Calling it on the target loop's own goroutine can never complete
// and fails loudly instead of deadlocking.
func (l *Loop) PushCallSynchronous(fn func()) {
	if l.ThreadIsCurrent() {
		l.ctx.FatalError("PushCallSynchronous onto own loop %q; would deadlock", l.name)
		return
	}
	done := make(chan struct{})
	l.pushMessage(message{kind: msgRunnable, run: fn, done: done})
	<-done
}

// PushShutdown asks the loop to exit after its current cycle.
func (l *Loop) PushShutdown() {
	l.pushMessage(message{kind: msgShutdown})
}

// PushSetPaused toggles the loop's paused state. While paused the loop
// keeps draining its queue but executes no timers or runnables.
func (l *Loop) PushSetPaused(paused bool) {
	k := msgResume
	if paused {
		k = msgPause
	}
	l.pushMessage(message{kind: k})
}

// CheckPushSafety reports whether a push now would stay under the soft
// backlog limit. Producers of droppable traffic (raw input) consult
// this and shed load instead of pushing through.
func (l *Loop) CheckPushSafety() bool {
	if l.ThreadIsCurrent() {
		return len(l.pending) < msgBacklogSoft
	}
	l.mu.Lock()
	n := len(l.messages)
	l.mu.Unlock()
	return n < msgBacklogSoft
}

// NewTimer schedules fn after length on this loop. Repeating timers
// rearm at expiry+length. Loop goroutine only.
func (l *Loop) NewTimer(length time.Duration, repeating bool, fn func()) *Timer {
	l.checkThread("NewTimer")
	return l.timers.NewTimer(l.ctx.Clock.Now(), length, repeating, fn)
}

// GetTimer returns the live timer with the given id, or nil.
func (l *Loop) GetTimer(id int) *Timer {
	l.checkThread("GetTimer")
	return l.timers.Get(id)
}

// DeleteTimer cancels the timer with the given id.
func (l *Loop) DeleteTimer(id int) {
	l.checkThread("DeleteTimer")
	l.timers.Delete(id)
}

// AddPauseCallback registers fn to run (on the loop goroutine) just
// before the loop enters pause.
func (l *Loop) AddPauseCallback(fn func()) {
	l.checkThread("AddPauseCallback")
	l.pauseCallbacks = append(l.pauseCallbacks, fn)
}

// AddResumeCallback registers fn to run just before the loop resumes.
func (l *Loop) AddResumeCallback(fn func()) {
	l.checkThread("AddResumeCallback")
	l.resumeCallbacks = append(l.resumeCallbacks, fn)
}

// SetExclusiveLock hands the loop a token to hold while executing and
// release while blocked waiting, so another domain (a script VM, a
// foreign runtime) can interleave with it. Set at most once, from the
// loop goroutine; the loop acquires it immediately.
func (l *Loop) SetExclusiveLock(lk sync.Locker) {
	l.checkThread("SetExclusiveLock")
	if l.exclusive != nil {
		l.ctx.FatalError("exclusive lock already set on loop %q", l.name)
		return
	}
	l.exclusive = lk
	lk.Lock()
}

func (l *Loop) pushMessage(m message) {
	var tally string
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		if m.done != nil {
			close(m.done)
		}
		l.log.Error().Str("kind", m.kind.String()).Msg("message push to terminated loop dropped")
		return
	}
	l.messages = append(l.messages, m)
	depth := len(l.messages)
	if depth > msgBacklogSoft && !l.backlogLogged {
		l.backlogLogged = true
		tally = l.tallyLocked()
	}
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	l.mMessages.Inc()
	l.mDepth.Set(float64(depth))
	if tally != "" {
		l.mBacklog.Inc()
		l.log.Error().Int("depth", depth).Str("tally", tally).Msg("thread message backlog past soft limit")
	}
	if depth > msgBacklogHard {
		l.ctx.FatalError("thread message list > %d in loop %q", msgBacklogHard, l.name)
	}
}

// tallyLocked summarizes queued message kinds (and runnable targets)
// for the backlog log. Called with mu held, on the overflow path only.
func (l *Loop) tallyLocked() string {
	counts := make(map[string]int)
	for _, m := range l.messages {
		key := m.kind.String()
		if m.kind == msgRunnable && m.run != nil {
			if fn := runtime.FuncForPC(reflect.ValueOf(m.run).Pointer()); fn != nil {
				key += ":" + fn.Name()
			}
		}
		counts[key]++
	}
	parts := make([]string, 0, len(counts))
	for k, n := range counts {
		parts = append(parts, fmt.Sprintf("%s x%d", k, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func (l *Loop) run(singleCycle bool) {
	if l.waitTimer == nil {
		l.waitTimer = time.NewTimer(0)
		if !l.waitTimer.Stop() {
			<-l.waitTimer.C
		}
	}
	var strandedTail []message
	for {
		l.waitForNextEvent(singleCycle)
		strandedTail = l.processMessages()

		// Paused loops keep accepting messages but hold execution.
		if !l.paused.Load() {
			l.timers.Run(l.ctx.Clock.Now())
			l.runPendingCalls()
		}

		if l.done || singleCycle {
			break
		}
	}
	if l.done {
		l.finish(strandedTail)
	}
}

func (l *Loop) waitForNextEvent(singleCycle bool) {
	// Single-cycle callers never block.
	if singleCycle {
		return
	}
	// Runnables can queue more runnables; service them before sleeping.
	// Skipped while paused, where pending work is intentionally held.
	if len(l.pending) > 0 && !l.paused.Load() {
		return
	}

	if l.exclusive != nil {
		l.exclusive.Unlock()
	}

	if !l.paused.Load() && l.timers.ActiveCount() > 0 {
		wait := l.timers.TimeToNext(l.ctx.Clock.Now())
		if wait > 0 {
			l.waitTimer.Reset(wait)
			select {
			case <-l.wake:
				if !l.waitTimer.Stop() {
					<-l.waitTimer.C
				}
			case <-l.waitTimer.C:
			}
		}
	} else {
		// No timers to bound the wait (or paused); sleep until a
		// message arrives.
		<-l.wake
	}

	if l.exclusive != nil {
		l.exclusive.Lock()
	}
}

// processMessages swap-drains the queue and dispatches control
// messages. Returns any tail left unprocessed by an early shutdown
// break, for stranded-message accounting.
func (l *Loop) processMessages() []message {
	l.mu.Lock()
	msgs := l.messages
	l.messages = l.messagesSpare
	l.mu.Unlock()
	if len(msgs) > 0 {
		l.mDepth.Set(0)
	}

	var tail []message
	for i := range msgs {
		m := msgs[i]
		switch m.kind {
		case msgRunnable:
			l.pending = append(l.pending, pendingCall{run: m.run, done: m.done})
		case msgShutdown:
			l.done = true
		case msgPause:
			if l.paused.Load() {
				l.log.Error().Msg("pause message while already paused")
				break
			}
			for _, fn := range l.pauseCallbacks {
				fn()
			}
			l.paused.Store(true)
			l.pausedAt = l.ctx.Clock.Now()
			l.log.Debug().Msg("paused")
		case msgResume:
			if !l.paused.Load() {
				l.log.Error().Msg("resume message while not paused")
				break
			}
			for _, fn := range l.resumeCallbacks {
				fn()
			}
			l.paused.Store(false)
			l.log.Debug().Dur("paused_for", l.ctx.Clock.Now()-l.pausedAt).Msg("resumed")
		}
		if l.done {
			if i+1 < len(msgs) {
				tail = append([]message(nil), msgs[i+1:]...)
			}
			break
		}
	}

	clear(msgs)
	l.messagesSpare = msgs[:0]
	return tail
}

func (l *Loop) runPendingCalls() {
	// Swap out first; calls may push more, which wait for next cycle.
	calls := l.pending
	l.pending = l.pendingSpare
	for i := range calls {
		c := calls[i]
		c.run()
		if c.done != nil {
			close(c.done)
		}
	}
	clear(calls)
	l.pendingSpare = calls[:0]
}

// finish marks the loop dead and resolves anything stranded in the
// queue so no synchronous caller hangs on a loop that will never run
// again.
func (l *Loop) finish(tail []message) {
	l.mu.Lock()
	l.dead = true
	stranded := append(tail, l.messages...)
	l.messages = nil
	l.mu.Unlock()

	dropped := 0
	for _, m := range stranded {
		if m.done != nil {
			close(m.done)
		}
		if m.kind == msgRunnable {
			dropped++
		}
	}
	for _, c := range l.pending {
		if c.done != nil {
			close(c.done)
		}
		dropped++
	}
	l.pending = nil
	if dropped > 0 {
		l.log.Error().Int("count", dropped).Msg("runnables stranded at loop shutdown")
	}
	l.log.Debug().Msg("loop down")
}

func (l *Loop) closeDone() {
	l.finishOnce.Do(func() { close(l.loopDone) })
}
