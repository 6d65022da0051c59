package logic

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/graphics"
	"github.com/lixenwraith/keel/status"
)

func newTestContext() *core.Context {
	return core.NewContext(zerolog.Nop(), status.New(prometheus.NewRegistry()),
		core.BuildInfo{Version: "test", Debug: true})
}

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

// takeFrame polls the mailbox until a def arrives or the deadline hits.
func takeFrame(t *testing.T, b *graphics.Builder, deadline time.Duration) *graphics.FrameDef {
	t.Helper()
	for start := time.Now(); time.Since(start) < deadline; {
		if def := b.Mailbox().TryTake(); def != nil {
			return def
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("No frame def arrived before deadline")
	return nil
}

func TestDriverPrimesFirstFrame(t *testing.T) {
	ctx := newTestContext()
	b := graphics.NewBuilder(ctx, graphics.Options{})
	d := NewDriver(ctx, b, false)
	defer func() {
		d.Shutdown()
		d.Join()
	}()

	d.Start(nil, nil)
	def := takeFrame(t, b, 2*time.Second)
	if def.Number != 1 {
		t.Errorf("Expected primed frame 1, got %d", def.Number)
	}
}

func TestDriverBuildsOnDrawRequest(t *testing.T) {
	ctx := newTestContext()
	b := graphics.NewBuilder(ctx, graphics.Options{})
	d := NewDriver(ctx, b, false)
	defer func() {
		d.Shutdown()
		d.Join()
	}()

	d.Start(nil, nil)
	first := takeFrame(t, b, 2*time.Second)
	// Snapshot before returning the def: the pool may recycle and
	// restamp the same object for the next frame.
	firstNumber := first.Number
	firstDisplayTime := first.DisplayTime
	b.ReturnCompletedFrameDef(first)

	// No draw request, no frame.
	time.Sleep(20 * time.Millisecond)
	if def := b.Mailbox().TryTake(); def != nil {
		t.Fatalf("Expected no unsolicited frame, got %d", def.Number)
	}

	d.PushDraw()
	second := takeFrame(t, b, 2*time.Second)
	if second.Number != firstNumber+1 {
		t.Errorf("Expected frame %d, got %d", firstNumber+1, second.Number)
	}
	if second.DisplayTime <= firstDisplayTime {
		t.Errorf("Expected display time to advance, %v then %v",
			firstDisplayTime, second.DisplayTime)
	}
}

func TestHeadlessDisplayTimeAdvances(t *testing.T) {
	ctx := newTestContext()
	d := NewDriver(ctx, nil, true)
	defer func() {
		d.Shutdown()
		d.Join()
	}()

	d.Start(nil, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var dt time.Duration
		d.Loop().PushCallSynchronous(func() { dt = d.DisplayTime() })
		if dt > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Headless display time never advanced")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStepCallbacksRunEachTick(t *testing.T) {
	ctx := newTestContext()
	d := NewDriver(ctx, nil, true)
	defer func() {
		d.Shutdown()
		d.Join()
	}()

	var steps atomic.Int64
	d.Start(nil, nil)
	d.Loop().PushCallSynchronous(func() {
		d.AddStepCallback(func() { steps.Add(1) })
	})

	deadline := time.Now().Add(2 * time.Second)
	for steps.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected repeated step callbacks, got %d", steps.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDisplayTimerFiresOnDisplayClock(t *testing.T) {
	ctx := newTestContext()
	d := NewDriver(ctx, nil, true)
	defer func() {
		d.Shutdown()
		d.Join()
	}()

	d.Start(nil, nil)
	fired := make(chan time.Duration, 1)
	d.Loop().PushCallSynchronous(func() {
		d.NewDisplayTimer(150*time.Millisecond, false, func() {
			fired <- d.DisplayTime()
		})
	})

	select {
	case at := <-fired:
		if at < 150*time.Millisecond {
			t.Errorf("Expected fire at or after 150ms display time, got %v", at)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Display timer never fired")
	}
}

type countingWork struct {
	remaining atomic.Int64
	runs      atomic.Int64
}

func (w *countingWork) RunPending() bool {
	w.runs.Add(1)
	return w.remaining.Add(-1) > 0
}

func TestPendingWorkDrainedInSlices(t *testing.T) {
	ctx := newTestContext()
	d := NewDriver(ctx, nil, true)
	defer func() {
		d.Shutdown()
		d.Join()
	}()

	work := &countingWork{}
	work.remaining.Store(5)
	d.Start(work, nil)
	d.NotifyPendingWork()

	deadline := time.Now().Add(2 * time.Second)
	for work.runs.Load() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 5 work slices, got %d", work.runs.Load())
		}
		time.Sleep(time.Millisecond)
	}

	// Once drained the timer suspends; no further slices run.
	settled := work.runs.Load()
	time.Sleep(20 * time.Millisecond)
	if got := work.runs.Load(); got != settled {
		t.Errorf("Expected work timer suspended after drain, %d then %d", settled, got)
	}
}

func TestShutdownRunsCallbacksInOrder(t *testing.T) {
	ctx := newTestContext()
	d := NewDriver(ctx, nil, true)

	var mu sync.Mutex
	var order []string
	d.Start(nil, func() {
		mu.Lock()
		order = append(order, "notify")
		mu.Unlock()
	})
	d.Loop().PushCallSynchronous(func() {
		d.AddShutdownCallback(func() {
			mu.Lock()
			order = append(order, "cleanup")
			mu.Unlock()
		})
	})

	d.Shutdown()
	d.Shutdown() // idempotent
	d.Join()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "cleanup" || order[1] != "notify" {
		t.Errorf("Expected [cleanup notify], got %v", order)
	}
}

func TestDriverStartTwiceIsFatal(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)
	d := NewDriver(ctx, nil, true)
	defer func() {
		d.Shutdown()
		d.Join()
	}()

	d.Start(nil, nil)
	d.Start(nil, nil)
	d.Loop().PushCallSynchronous(func() {})

	if rec.count() != 1 {
		t.Errorf("Expected fatal on double start, got %d", rec.count())
	}
}
