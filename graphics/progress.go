package graphics

import (
	"time"

	"github.com/lixenwraith/keel/vmath"
)

const (
	// Displayed progress chases the true fraction at this rate per
	// millisecond; stalls clamp to one catch-up window so a hitch does
	// not compound into an instant jump.
	progressApproachRate = 0.02
	progressCatchUpClamp = 400 * time.Millisecond

	progressBarFadeIn = 500 * time.Millisecond

	loadDotPeriod = 600 * time.Millisecond
)

// progressState tracks the blocking-load progress bar between ticks.
type progressState struct {
	active         bool
	initialPending int
	displayed      float32
	shownFor       time.Duration
}

// SetLoading flips the blocking-load state. Entering records the
// initial backlog as the denominator for the displayed fraction.
// Logic goroutine only.
func (b *Builder) SetLoading(active bool) {
	if active == b.progress.active {
		return
	}
	b.progress = progressState{active: active}
	if active && b.loads != nil {
		b.progress.initialPending = b.loads.PendingLoadCount() + b.loads.PendingGraphicsLoadCount()
	}
}

// Loading reports whether a blocking load is active.
func (b *Builder) Loading() bool { return b.progress.active }

// updateProgress advances the smoothed fraction and reports whether the
// blocking-load path should draw this tick.
func (b *Builder) updateProgress(elapsed time.Duration) bool {
	p := &b.progress
	if !p.active {
		return false
	}

	target := float32(1)
	if b.loads != nil && p.initialPending > 0 {
		pending := b.loads.PendingLoadCount() + b.loads.PendingGraphicsLoadCount()
		if pending > p.initialPending {
			p.initialPending = pending
		}
		target = 1 - float32(pending)/float32(p.initialPending)
	}

	if elapsed > progressCatchUpClamp {
		elapsed = progressCatchUpClamp
	}
	for ms := elapsed.Milliseconds(); ms > 0; ms-- {
		p.displayed += (target - p.displayed) * progressApproachRate
	}
	p.displayed = vmath.Clamp(p.displayed, 0, 1)
	p.shownFor += elapsed

	if target >= 1 && p.displayed > 0.995 {
		p.active = false
		return false
	}
	return true
}

// drawProgress draws the bar frame and smoothed fill, fading the whole
// thing in over the first half second so a fast load never flashes it.
func (b *Builder) drawProgress(def *FrameDef) {
	p := &b.progress
	alpha := vmath.Clamp(float32(p.shownFor)/float32(progressBarFadeIn), 0, 1)
	if alpha <= 0 {
		return
	}

	w := b.width * 0.5
	h := float32(8)
	x := (b.width - w) / 2
	y := b.height * 0.8

	def.Add(PassOverlay, Cmd{
		Kind:  CmdQuad,
		Pos:   vmath.Vec2{X: x - 2, Y: y - 2},
		Size:  vmath.Vec2{X: w + 4, Y: h + 4},
		Color: vmath.Vec3{X: 0.2, Y: 0.2, Z: 0.2},
		Alpha: alpha,
	})
	def.Add(PassOverlay, Cmd{
		Kind:  CmdQuad,
		Pos:   vmath.Vec2{X: x, Y: y},
		Size:  vmath.Vec2{X: w * p.displayed, Y: h},
		Color: vmath.Vec3{X: 0.4, Y: 0.7, Z: 1},
		Alpha: alpha,
	})
}

// drawLoadDot marks the corner whenever background loads are pending,
// pulsing on the display clock so a frozen pipeline is visible too.
func (b *Builder) drawLoadDot(def *FrameDef) {
	if b.loads == nil || !b.showLoadDot {
		return
	}
	if b.loads.PendingLoadCount()+b.loads.PendingGraphicsLoadCount() == 0 {
		return
	}
	phase := float32(b.displayTime%loadDotPeriod) / float32(loadDotPeriod)
	pulse := 0.4 + 0.6*(1-abs32(phase*2-1))
	def.Add(PassOverlayFront, Cmd{
		Kind:  CmdQuad,
		Pos:   vmath.Vec2{X: b.width - 14, Y: b.height - 14},
		Size:  vmath.Vec2{X: 8, Y: 8},
		Color: vmath.Vec3{X: 1, Y: 1, Z: 1},
		Alpha: pulse,
	})
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
