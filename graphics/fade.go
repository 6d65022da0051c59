package graphics

import (
	"time"

	"github.com/lixenwraith/keel/vmath"
)

// A fade stuck this long past its expected end means whoever was meant
// to complete the transition never did; force it through rather than
// leave the screen black forever.
const fadeStuckTimeout = 15 * time.Second

// fadeState is the full-screen fade machine: idle or fading, toward or
// away from black, with at most one pending completion callback.
type fadeState struct {
	fading   bool
	toBlack  bool
	holding  bool // finished to-black fade keeps the screen covered
	start    time.Duration
	duration time.Duration
	callback func()
}

// FadeScreen starts a fade to or from black over the given duration.
// A callback from a still-pending earlier fade runs immediately; firing
// early beats never firing, and callers chain scene changes off these.
// Logic goroutine only.
func (b *Builder) FadeScreen(toBlack bool, duration time.Duration, callback func()) {
	if cb := b.fade.callback; cb != nil {
		b.fade.callback = nil
		b.log.Debug().Msg("fade superseded; running prior completion callback early")
		cb()
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	b.fade = fadeState{
		fading:   true,
		toBlack:  toBlack,
		start:    b.displayTime,
		duration: duration,
		callback: callback,
	}
	b.fadeStartApp = b.ctx.Clock.Now()
}

// FadePending reports whether a fade is in flight (callback not yet
// resolved).
func (b *Builder) FadePending() bool {
	return b.fade.fading
}

// updateAndDrawFade advances the fade machine one tick and appends the
// cover quad when any opacity remains.
func (b *Builder) updateAndDrawFade(def *FrameDef) {
	f := &b.fade
	if !f.fading && !f.holding {
		return
	}

	var alpha float32
	if f.fading {
		elapsed := b.displayTime - f.start
		t := vmath.Clamp(float32(elapsed)/float32(f.duration), 0, 1)
		if f.toBlack {
			alpha = t
		} else {
			alpha = 1 - t
		}

		done := elapsed >= f.duration
		// Watchdog: display time can stall (pause, debugger) without
		// stalling app time; judge stuckness on the app clock.
		if !done && b.ctx.Clock.Now()-b.fadeStartApp > f.duration+b.fadeTimeout {
			b.ctx.Status.FadeWatchdog.Inc()
			b.log.Error().Dur("duration", f.duration).Bool("to_black", f.toBlack).
				Msg("fade stuck; force-completing")
			done = true
		}
		if done {
			f.fading = false
			f.holding = f.toBlack
			if cb := f.callback; cb != nil {
				f.callback = nil
				cb()
			}
			if f.toBlack {
				alpha = 1
			} else {
				alpha = 0
			}
		}
	} else {
		alpha = 1 // holding black between a to-black and the next from-black
	}

	if alpha <= 0 {
		return
	}
	def.Add(PassOverlayFront, Cmd{
		Kind:  CmdQuad,
		Pos:   vmath.Vec2{},
		Size:  vmath.Vec2{X: b.width, Y: b.height},
		Color: vmath.Vec3{},
		Alpha: alpha,
	})
}
