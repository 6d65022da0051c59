package graphics

import (
	"time"

	"github.com/lixenwraith/keel/vmath"
)

const (
	// Smoothing inputs are normalized to a 60Hz reference step so shake
	// feels identical at any display rate.
	gyroReferenceStep = 16667 * time.Microsecond

	// One sensor step longer than this is a stall, not motion.
	gyroMaxStep = 100 * time.Millisecond

	gyroMagnitudeCap = float32(10) // rad/s, beyond plausible hand motion

	// Implausible samples raise this accumulator; past the cap the
	// sensor is written off for the session.
	gyroWonkinessCap   = float32(100)
	gyroWonkinessDecay = float32(0.99)
)

// gyroState smooths device-rotation input into a camera-shake vector.
type gyroState struct {
	enabled    bool
	disabled   bool // tripped by wonkiness, permanent for the session
	raw        vmath.Vec3
	shake      vmath.Vec3
	wonkiness  float32
	warnedBad  bool
	lastSample vmath.Vec3
}

// SetGyroEnabled flips gyro processing; a session-disabled sensor stays
// off. Logic goroutine only.
func (b *Builder) SetGyroEnabled(enabled bool) {
	b.gyro.enabled = enabled
}

// SetGyroSample feeds one raw rotation-rate sample. Logic goroutine
// only; the platform pushes samples through the logic loop.
func (b *Builder) SetGyroSample(v vmath.Vec3) {
	b.gyro.raw = v
}

// updateGyro recomputes the shake vector from the latest sample,
// sanitizing garbage input instead of propagating it into the camera.
func (b *Builder) updateGyro(elapsed time.Duration) {
	g := &b.gyro
	if !g.enabled || g.disabled {
		g.shake = vmath.Vec3{}
		return
	}
	if elapsed > gyroMaxStep {
		elapsed = gyroMaxStep
	}

	sample := g.raw
	if !vmath.V3IsFinite(sample) {
		if !g.warnedBad {
			g.warnedBad = true
			b.log.Warn().Msg("non-finite gyro sample; zeroing")
		}
		sample = vmath.Vec3{}
	}
	if mag := vmath.V3Mag(sample); mag > gyroMagnitudeCap {
		sample = vmath.V3Scale(sample, gyroMagnitudeCap/mag)
	}

	// A sane sensor cannot jump rate this hard between ticks; treat
	// spikes as wonkiness evidence rather than motion.
	delta := vmath.V3Mag(vmath.V3Sub(sample, g.lastSample))
	if delta > gyroMagnitudeCap {
		g.wonkiness += delta
	}
	g.wonkiness *= gyroWonkinessDecay
	g.lastSample = sample

	if g.wonkiness > gyroWonkinessCap {
		g.disabled = true
		g.shake = vmath.Vec3{}
		b.log.Error().Msg("gyro input implausible; disabling for this session")
		b.PostScreenMessage("Motion input disabled (sensor misbehaving)", vmath.Vec3{X: 1, Y: 0.5, Z: 0.2})
		return
	}

	step := float32(elapsed) / float32(gyroReferenceStep)
	g.shake = vmath.V3Add(g.shake, vmath.V3Scale(vmath.V3Sub(sample, g.shake), vmath.Clamp(0.25*step, 0, 1)))
}
