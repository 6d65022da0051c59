package event

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/status"
)

func newTestContext() *core.Context {
	return core.NewContext(zerolog.Nop(), status.New(prometheus.NewRegistry()),
		core.BuildInfo{Version: "test", Debug: true})
}

// fatalRecorder captures FatalError calls instead of dying.
type fatalRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fatalRecorder) install(ctx *core.Context) {
	ctx.SetFatalHandler(func(msg string) {
		f.mu.Lock()
		f.msgs = append(f.msgs, msg)
		f.mu.Unlock()
	})
}

func (f *fatalRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fatalRecorder) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1]
}

func TestPushCallFIFO(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	const n = 100
	var got []int
	for i := 0; i < n; i++ {
		i := i
		l.PushCall(func() { got = append(got, i) })
	}
	l.PushCallSynchronous(func() {})

	if len(got) != n {
		t.Fatalf("Expected %d calls, got %d", n, len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("Expected call %d at position %d, got %d", i, i, v)
		}
	}
}

func TestPushCallSynchronousBlocksUntilRun(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	ran := false
	l.PushCallSynchronous(func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	})
	if !ran {
		t.Error("Expected synchronous call to have completed before return")
	}
}

func TestPushCallSynchronousSelfCallIsFatal(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)

	l := WrapCurrent(ctx, "main")
	l.PushCallSynchronous(func() {})

	if rec.count() != 1 {
		t.Fatalf("Expected 1 fatal, got %d", rec.count())
	}
	if !strings.Contains(rec.last(), "deadlock") {
		t.Errorf("Expected deadlock message, got %q", rec.last())
	}
}

func TestRunSingleCycleNeverBlocks(t *testing.T) {
	ctx := newTestContext()
	l := WrapCurrent(ctx, "main")

	done := make(chan struct{})
	go func() {
		// Watchdog: the cycle below must return with zero pending work.
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			panic("RunSingleCycle blocked with no work")
		}
	}()

	l.RunSingleCycle()
	ran := false
	l.PushCall(func() { ran = true })
	l.RunSingleCycle()
	close(done)

	if !ran {
		t.Error("Expected queued call to run in single cycle")
	}
}

func TestWrappedLoopQuit(t *testing.T) {
	ctx := newTestContext()
	l := WrapCurrent(ctx, "main")

	count := 0
	var tick func()
	tick = func() {
		count++
		if count == 3 {
			l.Quit()
			return
		}
		l.PushCall(tick)
	}
	l.PushCall(tick)
	l.Run()

	if count != 3 {
		t.Errorf("Expected 3 iterations before quit, got %d", count)
	}
}

func TestPauseHoldsExecutionAndResumeFlushes(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	var mu sync.Mutex
	var got []int

	l.PushSetPaused(true)
	for i := 0; i < 5; i++ {
		i := i
		l.PushCall(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	held := len(got)
	mu.Unlock()
	if held != 0 {
		t.Fatalf("Expected paused loop to hold runnables, ran %d", held)
	}
	if !l.Paused() {
		t.Fatal("Expected loop to report paused")
	}

	l.PushSetPaused(false)
	l.PushCallSynchronous(func() {})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("Expected all 5 held runnables after resume, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("Expected held order preserved, got %v", got)
		}
	}
}

func TestPauseResumeCallbacks(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	var mu sync.Mutex
	var events []string
	l.PushCallSynchronous(func() {
		l.AddPauseCallback(func() {
			mu.Lock()
			events = append(events, "pause")
			mu.Unlock()
		})
		l.AddResumeCallback(func() {
			mu.Lock()
			events = append(events, "resume")
			mu.Unlock()
		})
	})

	l.PushSetPaused(true)
	l.PushSetPaused(false)
	l.PushCallSynchronous(func() {})

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "pause" || events[1] != "resume" {
		t.Errorf("Expected [pause resume], got %v", events)
	}
}

func TestCheckPushSafetySoftThreshold(t *testing.T) {
	ctx := newTestContext()
	l := WrapCurrent(ctx, "main")

	result := make(chan [2]bool)
	go func() {
		before := l.CheckPushSafety()
		for i := 0; i < msgBacklogSoft; i++ {
			l.PushCall(func() {})
		}
		result <- [2]bool{before, l.CheckPushSafety()}
	}()

	r := <-result
	if !r[0] {
		t.Error("Expected push safety before any backlog")
	}
	if r[1] {
		t.Errorf("Expected push safety to flip false at %d queued", msgBacklogSoft)
	}
}

func TestHardBacklogCeilingIsFatal(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)

	l := WrapCurrent(ctx, "main")
	done := make(chan struct{})
	go func() {
		for i := 0; i <= msgBacklogHard; i++ {
			l.PushCall(func() {})
		}
		close(done)
	}()
	<-done

	if rec.count() == 0 {
		t.Fatal("Expected fatal at hard backlog ceiling")
	}
	if !strings.Contains(rec.last(), "thread message list") {
		t.Errorf("Expected backlog message, got %q", rec.last())
	}
}

func TestPushToTerminatedLoopResolvesCompletion(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	l.PushShutdown()
	l.Join()

	// Must return, not hang: the dead loop closes the completion.
	finished := make(chan struct{})
	go func() {
		l.PushCallSynchronous(func() {})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Synchronous push to dead loop hung")
	}
}

func TestLoopTimersFireOnLoop(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	fired := make(chan struct{})
	l.PushCall(func() {
		l.NewTimer(20*time.Millisecond, false, func() {
			if !l.ThreadIsCurrent() {
				t.Error("Expected timer callback on loop goroutine")
			}
			close(fired)
		})
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop timer never fired")
	}
}

func TestTimerRearmFromRunnableUsesCurrentTime(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	var tm *Timer
	fired := make(chan time.Duration, 1)
	l.PushCallSynchronous(func() {
		tm = l.NewTimer(-1, false, func() { fired <- ctx.Clock.Now() })
	})

	// A slow runnable earlier in the cycle leaves the stamped list
	// time well behind the clock; the rearm must not inherit that lag.
	var armedAt time.Duration
	l.PushCallSynchronous(func() {
		time.Sleep(80 * time.Millisecond)
		armedAt = ctx.Clock.Now()
		tm.SetLength(40 * time.Millisecond)
	})

	select {
	case at := <-fired:
		if d := at - armedAt; d < 30*time.Millisecond {
			t.Errorf("Expected fire ~40ms after rearm, got %v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Rearmed timer never fired")
	}
}

func TestThreadIsCurrent(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	if l.ThreadIsCurrent() {
		t.Error("Expected ThreadIsCurrent false off the loop")
	}
	l.PushCallSynchronous(func() {
		if !l.ThreadIsCurrent() {
			t.Error("Expected ThreadIsCurrent true on the loop")
		}
	})
}

func TestSetExclusiveLockHandoff(t *testing.T) {
	ctx := newTestContext()
	l := New(ctx, "test")
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	var gil sync.Mutex
	l.PushCallSynchronous(func() { l.SetExclusiveLock(&gil) })

	// The loop releases the token while blocked waiting for work, so
	// another thread can take it.
	acquired := make(chan struct{})
	go func() {
		gil.Lock()
		gil.Unlock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("Exclusive token not released during idle wait")
	}

	// And it holds the token while executing callbacks.
	l.PushCallSynchronous(func() {
		if gil.TryLock() {
			gil.Unlock()
			t.Error("Expected token held during callback execution")
		}
	})
}

func TestSetExclusiveLockTwiceIsFatal(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)

	l := WrapCurrent(ctx, "main")
	var gil sync.Mutex
	l.SetExclusiveLock(&gil)
	gil.Unlock()

	var gil2 sync.Mutex
	l.SetExclusiveLock(&gil2)
	if rec.count() != 1 {
		t.Errorf("Expected fatal on second exclusive lock, got %d", rec.count())
	}
}
