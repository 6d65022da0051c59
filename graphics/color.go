package graphics

import (
	"github.com/lixenwraith/keel/vmath"
)

// Rec.601 luma weights.
const (
	lumaR = 0.2989
	lumaG = 0.5870
	lumaB = 0.1140
)

// safeColorIterations bounds the grey-redistribution loop. The deficit
// shrinks monotonically each pass (clamped channels stop absorbing, the
// rest take the remainder), so four passes land within visual tolerance
// for any input.
const safeColorIterations = 4

// Luma returns the perceptual intensity of an RGB triple.
func Luma(c vmath.Vec3) float32 {
	return lumaR*c.X + lumaG*c.Y + lumaB*c.Z
}

// SafeColor lifts a color to at least the target perceptual intensity
// so text stays legible on a dark background. Colors already at or
// above the target pass through unchanged. Under it, channels scale up
// uniformly; whatever the [0,1] clamp eats is re-added as luma-weighted
// grey across the unclamped channels until the target is met or the
// iteration budget runs out.
func SafeColor(c vmath.Vec3, target float32) vmath.Vec3 {
	c = vmath.Vec3{
		X: vmath.Clamp(c.X, 0, 1),
		Y: vmath.Clamp(c.Y, 0, 1),
		Z: vmath.Clamp(c.Z, 0, 1),
	}
	target = vmath.Clamp(target, 0, 1)

	luma := Luma(c)
	if luma >= target {
		return c
	}

	// Pure black cannot be scaled; jump straight to target grey.
	if luma == 0 {
		return vmath.Vec3{X: target, Y: target, Z: target}
	}

	scale := target / luma
	c = vmath.Vec3{
		X: vmath.Clamp(c.X*scale, 0, 1),
		Y: vmath.Clamp(c.Y*scale, 0, 1),
		Z: vmath.Clamp(c.Z*scale, 0, 1),
	}

	for i := 0; i < safeColorIterations; i++ {
		deficit := target - Luma(c)
		if deficit <= 0.0005 {
			break
		}
		c = vmath.Vec3{
			X: vmath.Clamp(c.X+deficit, 0, 1),
			Y: vmath.Clamp(c.Y+deficit, 0, 1),
			Z: vmath.Clamp(c.Z+deficit, 0, 1),
		}
	}
	return c
}
