package logic

import (
	"time"
)

const (
	smoothWindow = 15

	// A window whose spread rivals its average means the frame cadence
	// is genuinely unstable; smoothing it would add latency without
	// adding steadiness, so the raw increment wins.
	smoothChaosThreshold = 0.5

	// The published increment only moves when the chosen value strays
	// past this fraction of the average, so sub-noise wobble does not
	// leak into animation speeds.
	smoothDeadBand = 0.03
)

// incrementSmoother turns jittery frame-to-frame app-time deltas into a
// steady display-time increment: average the recent window with its
// single best and worst sample dropped, fall back to raw when the
// window is chaotic, and move the published value only outside a small
// dead band.
type incrementSmoother struct {
	samples [smoothWindow]time.Duration
	count   int
	next    int
}

func (s *incrementSmoother) step(raw, current time.Duration) time.Duration {
	s.samples[s.next] = raw
	s.next = (s.next + 1) % smoothWindow
	if s.count < smoothWindow {
		s.count++
	}
	if s.count == 1 {
		return raw
	}

	min, max := s.samples[0], s.samples[0]
	var sum time.Duration
	for i := 0; i < s.count; i++ {
		v := s.samples[i]
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	avg := sum / time.Duration(s.count)
	if s.count > 2 {
		avg = (sum - min - max) / time.Duration(s.count-2)
	}
	if avg <= 0 {
		return raw
	}

	chosen := avg
	if float64(max-min)/float64(avg) >= smoothChaosThreshold {
		chosen = raw
	}

	diff := chosen - current
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) <= float64(avg)*smoothDeadBand {
		return current
	}
	return chosen
}
