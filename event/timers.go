package event

import (
	"sort"
	"time"
)

// Timer is a single scheduled callback owned by a TimerList. All timer
// methods must run on the owning loop's goroutine.
type Timer struct {
	id        int
	list      *TimerList
	expiry    time.Duration // app time
	length    time.Duration
	repeating bool
	suspended bool
	dead      bool
	rearmSkip bool // set when SetLength ran inside this timer's own callback
	fn        func()
}

func (t *Timer) ID() int { return t.id }

func (t *Timer) Repeating() bool { return t.repeating }

// SetLength reschedules the timer to fire length from now: the list's
// clock when one is installed, else its last stamped time. A negative
// length suspends it: the timer stays
// registered but never fires and does not bound the loop's wait.
func (t *Timer) SetLength(length time.Duration) {
	if t.dead {
		return
	}
	t.list.reschedule(t, length)
}

// TimerList keeps a loop's timers and fires the due ones in expiry
// order. Delete marks entries dead rather than removing them, so
// callbacks may delete any timer, their own included, mid-run.
type TimerList struct {
	timers []*Timer // live entries, scheduled and suspended
	byID   map[int]*Timer
	due    []*Timer // scratch, reused between runs
	firing *Timer
	nextID int
	active int // scheduled (non-suspended) entries
	now    time.Duration
	clock  func() time.Duration
}

func NewTimerList() *TimerList {
	return &TimerList{byID: make(map[int]*Timer), nextID: 1}
}

// NewTimer schedules fn at now+length, repeating if asked. A negative
// length creates the timer suspended.
func (tl *TimerList) NewTimer(now, length time.Duration, repeating bool, fn func()) *Timer {
	tl.now = now
	t := &Timer{
		id:        tl.nextID,
		list:      tl,
		length:    length,
		repeating: repeating,
		fn:        fn,
	}
	tl.nextID++
	tl.byID[t.id] = t
	tl.timers = append(tl.timers, t)
	if length < 0 {
		t.suspended = true
	} else {
		t.expiry = now + length
		tl.active++
	}
	return t
}

// SetClock installs a time source consulted when a timer is
// rescheduled outside Run. Without one, reschedules rebase on the last
// stamped time, which lags the real clock inside a long runnable.
func (tl *TimerList) SetClock(fn func() time.Duration) {
	tl.clock = fn
}

// Get returns the live timer with the given id, or nil.
func (tl *TimerList) Get(id int) *Timer {
	return tl.byID[id]
}

// Delete marks the timer dead. Its callback will not run again; the
// entry is swept out on the next Run.
func (tl *TimerList) Delete(id int) {
	t := tl.byID[id]
	if t == nil {
		return
	}
	t.dead = true
	delete(tl.byID, id)
	if !t.suspended {
		tl.active--
	}
}

// ActiveCount returns the number of scheduled (non-suspended) timers.
func (tl *TimerList) ActiveCount() int {
	return tl.active
}

// TimeToNext returns the duration until the earliest scheduled expiry,
// floored at zero. Callers must check ActiveCount first; with no
// scheduled timers the result is meaningless.
func (tl *TimerList) TimeToNext(now time.Duration) time.Duration {
	var best time.Duration
	found := false
	for _, t := range tl.timers {
		if t.dead || t.suspended {
			continue
		}
		if !found || t.expiry < best {
			best = t.expiry
			found = true
		}
	}
	if !found || best <= now {
		return 0
	}
	return best - now
}

// Run fires every scheduled timer with expiry <= now, in expiry order,
// at most once each. Repeating timers rearm at expiry+length; when the
// list is late by more than a period the missed fires collapse and the
// next one lands a full period out.
func (tl *TimerList) Run(now time.Duration) {
	tl.now = now

	// Sweep dead entries and collect the due set up front, so timers
	// created or rearmed by callbacks cannot fire until the next Run.
	live := tl.timers[:0]
	tl.due = tl.due[:0]
	for _, t := range tl.timers {
		if t.dead {
			continue
		}
		live = append(live, t)
		if !t.suspended && t.expiry <= now {
			tl.due = append(tl.due, t)
		}
	}
	tl.timers = live

	sort.Slice(tl.due, func(i, j int) bool {
		if tl.due[i].expiry != tl.due[j].expiry {
			return tl.due[i].expiry < tl.due[j].expiry
		}
		return tl.due[i].id < tl.due[j].id
	})

	for _, t := range tl.due {
		// An earlier callback this pass may have deleted, suspended,
		// or pushed this timer into the future.
		if t.dead || t.suspended || t.expiry > now {
			continue
		}
		tl.firing = t
		t.fn()
		tl.firing = nil

		if t.dead || t.suspended {
			continue
		}
		if t.rearmSkip {
			t.rearmSkip = false
			continue
		}
		if t.repeating {
			t.expiry += t.length
			if t.expiry <= now {
				t.expiry = now + t.length
			}
		} else {
			t.dead = true
			delete(tl.byID, t.id)
			tl.active--
		}
	}
}

func (tl *TimerList) reschedule(t *Timer, length time.Duration) {
	wasScheduled := !t.suspended
	t.length = length
	if length < 0 {
		t.suspended = true
		if wasScheduled {
			tl.active--
		}
		return
	}
	t.suspended = false
	if tl.clock != nil {
		if c := tl.clock(); c > tl.now {
			tl.now = c
		}
	}
	t.expiry = tl.now + length
	if !wasScheduled {
		tl.active++
	}
	if tl.firing == t {
		t.rearmSkip = true
	}
}
