package event

import (
	"testing"
	"time"
)

func TestTimerFiringOrder(t *testing.T) {
	tl := NewTimerList()

	var fired []int
	tl.NewTimer(0, 30*time.Millisecond, false, func() { fired = append(fired, 3) })
	tl.NewTimer(0, 10*time.Millisecond, false, func() { fired = append(fired, 1) })
	tl.NewTimer(0, 20*time.Millisecond, false, func() { fired = append(fired, 2) })

	tl.Run(100 * time.Millisecond)

	if len(fired) != 3 {
		t.Fatalf("Expected 3 firings, got %d", len(fired))
	}
	for i, v := range fired {
		if v != i+1 {
			t.Errorf("Expected firing %d at position %d, got %d", i+1, i, v)
		}
	}

	// Non-repeating timers die after firing
	tl.Run(200 * time.Millisecond)
	if len(fired) != 3 {
		t.Errorf("Expected no refiring, got %d total", len(fired))
	}
	if tl.ActiveCount() != 0 {
		t.Errorf("Expected 0 active timers, got %d", tl.ActiveCount())
	}
}

func TestTimerFiresExactlyOncePerRun(t *testing.T) {
	tl := NewTimerList()
	count := 0
	tl.NewTimer(0, 5*time.Millisecond, false, func() { count++ })

	tl.Run(3 * time.Millisecond)
	if count != 0 {
		t.Errorf("Expected no firing before expiry, got %d", count)
	}
	tl.Run(5 * time.Millisecond)
	if count != 1 {
		t.Errorf("Expected 1 firing at expiry, got %d", count)
	}
}

func TestRepeatingTimerRearmsWithoutDrift(t *testing.T) {
	tl := NewTimerList()
	count := 0
	tm := tl.NewTimer(0, 10*time.Millisecond, true, func() { count++ })

	// Running slightly late must not push subsequent expiries later.
	tl.Run(11 * time.Millisecond)
	tl.Run(20 * time.Millisecond)
	if count != 2 {
		t.Errorf("Expected 2 firings with drift-free rearm, got %d", count)
	}

	if tm.ID() == 0 {
		t.Error("Expected non-zero timer id")
	}
}

func TestRepeatingTimerCollapsesMissedFires(t *testing.T) {
	tl := NewTimerList()
	count := 0
	tl.NewTimer(0, 10*time.Millisecond, true, func() { count++ })

	// 100ms late: one fire, next lands a full period out.
	tl.Run(100 * time.Millisecond)
	if count != 1 {
		t.Errorf("Expected collapsed fire count 1, got %d", count)
	}
	tl.Run(109 * time.Millisecond)
	if count != 1 {
		t.Errorf("Expected no fire before new period, got %d", count)
	}
	tl.Run(110 * time.Millisecond)
	if count != 2 {
		t.Errorf("Expected fire at new period, got %d", count)
	}
}

func TestTimerSuspend(t *testing.T) {
	tl := NewTimerList()
	count := 0
	tm := tl.NewTimer(0, 10*time.Millisecond, true, func() { count++ })

	tm.SetLength(-1)
	if tl.ActiveCount() != 0 {
		t.Errorf("Expected 0 active after suspend, got %d", tl.ActiveCount())
	}
	tl.Run(time.Second)
	if count != 0 {
		t.Errorf("Expected suspended timer not to fire, got %d", count)
	}

	// Rearm schedules relative to the list's current time.
	tm.SetLength(10 * time.Millisecond)
	if tl.ActiveCount() != 1 {
		t.Errorf("Expected 1 active after rearm, got %d", tl.ActiveCount())
	}
	tl.Run(time.Second + 10*time.Millisecond)
	if count != 1 {
		t.Errorf("Expected 1 firing after rearm, got %d", count)
	}
}

func TestTimerDeleteFromAnotherCallback(t *testing.T) {
	tl := NewTimerList()
	var fired []string
	var victim *Timer
	tl.NewTimer(0, 10*time.Millisecond, false, func() {
		fired = append(fired, "killer")
		tl.Delete(victim.ID())
	})
	victim = tl.NewTimer(0, 20*time.Millisecond, false, func() {
		fired = append(fired, "victim")
	})

	tl.Run(100 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "killer" {
		t.Errorf("Expected only killer to fire, got %v", fired)
	}
	if tl.Get(victim.ID()) != nil {
		t.Error("Expected deleted timer to be gone")
	}
}

func TestTimerSelfDeleteFromOwnCallback(t *testing.T) {
	tl := NewTimerList()
	count := 0
	var self *Timer
	self = tl.NewTimer(0, 10*time.Millisecond, true, func() {
		count++
		tl.Delete(self.ID())
	})

	tl.Run(10 * time.Millisecond)
	tl.Run(20 * time.Millisecond)
	if count != 1 {
		t.Errorf("Expected self-deleting repeating timer to fire once, got %d", count)
	}
}

func TestTimerRescheduleInsideOwnCallbackSkipsRearm(t *testing.T) {
	tl := NewTimerList()
	count := 0
	var tm *Timer
	tm = tl.NewTimer(0, 10*time.Millisecond, true, func() {
		count++
		tm.SetLength(50 * time.Millisecond)
	})

	tl.Run(10 * time.Millisecond)
	// The callback's reschedule wins over the automatic rearm.
	tl.Run(20 * time.Millisecond)
	if count != 1 {
		t.Errorf("Expected no fire at the old period, got %d", count)
	}
	tl.Run(60 * time.Millisecond)
	if count != 2 {
		t.Errorf("Expected fire at the rescheduled time, got %d", count)
	}
}

func TestTimerRescheduleRebasesOnInstalledClock(t *testing.T) {
	tl := NewTimerList()
	count := 0
	tm := tl.NewTimer(0, -1, false, func() { count++ })

	// The list last saw t=0, but the clock has moved on to t=50ms;
	// a rearm must schedule relative to the clock.
	tl.SetClock(func() time.Duration { return 50 * time.Millisecond })
	tm.SetLength(100 * time.Millisecond)

	tl.Run(120 * time.Millisecond)
	if count != 0 {
		t.Errorf("Expected no fire before the rebased expiry at 150ms, got %d", count)
	}
	tl.Run(150 * time.Millisecond)
	if count != 1 {
		t.Errorf("Expected 1 firing at the rebased expiry, got %d", count)
	}
}

func TestTimeToNext(t *testing.T) {
	tl := NewTimerList()
	tl.NewTimer(0, 30*time.Millisecond, false, func() {})
	tl.NewTimer(0, 10*time.Millisecond, false, func() {})

	if got := tl.TimeToNext(0); got != 10*time.Millisecond {
		t.Errorf("Expected 10ms to next, got %v", got)
	}
	if got := tl.TimeToNext(25 * time.Millisecond); got != 0 {
		t.Errorf("Expected 0 floor for overdue timer, got %v", got)
	}
}

func TestTimerIDsNeverReused(t *testing.T) {
	tl := NewTimerList()
	a := tl.NewTimer(0, time.Millisecond, false, func() {})
	tl.Delete(a.ID())
	b := tl.NewTimer(0, time.Millisecond, false, func() {})
	if a.ID() == b.ID() {
		t.Errorf("Expected distinct ids, both got %d", a.ID())
	}
}
