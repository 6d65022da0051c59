package event

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
)

const (
	pauseAckDeadline = 2 * time.Second
	pauseAckPoll     = time.Millisecond
)

// Group tracks the pause-eligible loops of an app and broadcasts
// pause/resume to all of them. Audio keeps playing through a pause in
// most apps, so loops opt in at registration rather than implicitly.
type Group struct {
	ctx *core.Context
	log zerolog.Logger

	mu     sync.Mutex
	loops  []*Loop
	paused bool
}

func NewGroup(ctx *core.Context) *Group {
	return &Group{
		ctx: ctx,
		log: ctx.Log.With().Str("sys", "loopgroup").Logger(),
	}
}

// Add registers a loop for pause broadcasts. Loops are never removed;
// a loop group lives exactly as long as its app.
func (g *Group) Add(l *Loop) {
	g.mu.Lock()
	paused := g.paused
	g.loops = append(g.loops, l)
	g.mu.Unlock()
	if paused {
		l.PushSetPaused(true)
	}
}

// Paused reports the last broadcast state, not per-loop acks.
func (g *Group) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// SetPaused broadcasts pause or resume to every registered loop and
// flips the app clock so app-time timers hold still across the pause.
// Redundant calls are ignored.
func (g *Group) SetPaused(paused bool) {
	g.mu.Lock()
	if g.paused == paused {
		g.mu.Unlock()
		return
	}
	g.paused = paused
	loops := append([]*Loop(nil), g.loops...)
	g.mu.Unlock()

	// Clock first on pause so no loop observes time advancing after it
	// acked; reversed on resume.
	if paused {
		g.ctx.Clock.Pause()
	} else {
		g.ctx.Clock.Resume()
	}
	for _, l := range loops {
		l.PushSetPaused(paused)
	}
	g.log.Debug().Bool("paused", paused).Int("loops", len(loops)).Msg("pause broadcast")
}

// StillPausing lists loops that have not yet acknowledged the last
// broadcast state.
func (g *Group) StillPausing() []string {
	g.mu.Lock()
	want := g.paused
	loops := append([]*Loop(nil), g.loops...)
	g.mu.Unlock()

	var names []string
	for _, l := range loops {
		if l.Paused() != want {
			names = append(names, l.Name())
		}
	}
	return names
}

// WaitPaused polls until every loop has acknowledged the last broadcast
// or the deadline passes. A missed deadline is logged once and reported
// as false; it indicates a wedged loop, and killing the app over it
// would be worse than limping on.
func (g *Group) WaitPaused(deadline time.Duration) bool {
	if deadline <= 0 {
		deadline = pauseAckDeadline
	}
	limit := time.Now().Add(deadline)
	for {
		stuck := g.StillPausing()
		if len(stuck) == 0 {
			return true
		}
		if time.Now().After(limit) {
			g.ctx.Status.PauseWatchdog.Inc()
			g.log.Error().Strs("loops", stuck).Dur("deadline", deadline).
				Msg("loops did not acknowledge pause broadcast in time")
			return false
		}
		time.Sleep(pauseAckPoll)
	}
}
