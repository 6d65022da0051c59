package input

import (
	"time"
)

// A temporary lock held this long means an unbalanced lock/unlock pair;
// force-release so the app never goes permanently deaf to input.
const tempLockTimeout = 10 * time.Second

const recentLockHistory = 10

// lockState gates whether hardware input reaches gameplay and UI.
// Permanent locks are for modal states that own their release
// (cutscenes); temporary locks are for transitions and self-heal on
// expiry. Logic goroutine only.
type lockState struct {
	permanent int
	temporary int
	tempSince time.Duration

	// Ring of recent lock/unlock labels, attached to imbalance logs so
	// the offender can actually be found.
	recent     [recentLockHistory]string
	recentNext int
}

func (ls *lockState) note(action, label string) {
	ls.recent[ls.recentNext] = action + ":" + label
	ls.recentNext = (ls.recentNext + 1) % recentLockHistory
}

func (ls *lockState) recentActions() []string {
	out := make([]string, 0, recentLockHistory)
	for i := 0; i < recentLockHistory; i++ {
		s := ls.recent[(ls.recentNext+i)%recentLockHistory]
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LockInput takes a permanent input lock. Logic goroutine only.
func (r *Registry) LockInput(label string) {
	r.checkThread("LockInput")
	r.locks.permanent++
	r.locks.note("lock", label)
}

// UnlockInput releases a permanent input lock. Releasing below zero is
// logged and clamped; it is a bug, but a survivable one.
func (r *Registry) UnlockInput(label string) {
	r.checkThread("UnlockInput")
	r.locks.note("unlock", label)
	r.locks.permanent--
	if r.locks.permanent < 0 {
		r.log.Error().Str("label", label).Strs("recent", r.locks.recentActions()).
			Msg("input unlock below zero; clamping")
		r.locks.permanent = 0
	}
}

// LockInputTemporarily takes a self-expiring input lock. Logic
// goroutine only.
func (r *Registry) LockInputTemporarily(label string) {
	r.checkThread("LockInputTemporarily")
	if r.locks.temporary == 0 {
		r.locks.tempSince = r.ctx.Clock.Now()
	}
	r.locks.temporary++
	r.locks.note("lock-temp", label)
}

// UnlockInputTemporarily releases a temporary input lock.
func (r *Registry) UnlockInputTemporarily(label string) {
	r.checkThread("UnlockInputTemporarily")
	r.locks.note("unlock-temp", label)
	r.locks.temporary--
	if r.locks.temporary < 0 {
		r.log.Error().Str("label", label).Strs("recent", r.locks.recentActions()).
			Msg("temporary input unlock below zero; clamping")
		r.locks.temporary = 0
	}
}

// IsInputLocked reports whether input should be withheld from gameplay
// and UI. Logic goroutine only.
func (r *Registry) IsInputLocked() bool {
	return r.locks.permanent > 0 || r.locks.temporary > 0
}

// expireTemporaryLocks force-releases temporary locks held past the
// timeout. Called from the counts-refresh timer.
func (r *Registry) expireTemporaryLocks(now time.Duration) {
	if r.locks.temporary > 0 && now-r.locks.tempSince > tempLockTimeout {
		r.log.Error().Int("held", r.locks.temporary).
			Strs("recent", r.locks.recentActions()).
			Msg("temporary input locks expired; force-releasing")
		r.locks.temporary = 0
	}
}
