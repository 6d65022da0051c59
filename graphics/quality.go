package graphics

// RenderQuality is the target fidelity stamped on each frame def.
// Renderers trade effects for speed at the lower levels; Auto leaves
// the choice to the render side based on measured frame times.
type RenderQuality uint8

const (
	QualityAuto RenderQuality = iota
	QualityLow
	QualityMedium
	QualityHigh
)

func (q RenderQuality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return "auto"
	}
}

// ParseRenderQuality maps a config string to a quality level. Unknown
// values report false and return the Auto fallback; callers log the
// bad value and carry on rather than failing.
func ParseRenderQuality(s string) (RenderQuality, bool) {
	switch s {
	case "", "auto":
		return QualityAuto, true
	case "low":
		return QualityLow, true
	case "medium":
		return QualityMedium, true
	case "high":
		return QualityHigh, true
	default:
		return QualityAuto, false
	}
}
