package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

// cueSpec describes one synthesized tone. A non-zero freq2 sweeps the
// pitch linearly from freq to freq2 across the cue.
type cueSpec struct {
	freq     float64
	freq2    float64
	duration time.Duration
	gain     float64
}

// cueStreamer renders a sine with an exponential decay envelope; it
// drains to silence and reports done, so the mixer drops it on its own.
type cueStreamer struct {
	spec  cueSpec
	total int
	pos   int
	phase float64
}

func synthesize(c cueSpec) beep.Streamer {
	return &cueStreamer{spec: c, total: sampleRate.N(c.duration)}
}

func (s *cueStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= s.total {
		return 0, false
	}
	for i := range samples {
		if s.pos >= s.total {
			return i, true
		}
		t := float64(s.pos) / float64(s.total)

		freq := s.spec.freq
		if s.spec.freq2 != 0 {
			freq += (s.spec.freq2 - s.spec.freq) * t
		}
		s.phase += freq / float64(sampleRate)
		if s.phase >= 1 {
			s.phase -= 1
		}

		env := math.Exp(-5 * t)
		v := math.Sin(2*math.Pi*s.phase) * env * s.spec.gain
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
	}
	return len(samples), true
}

func (s *cueStreamer) Err() error { return nil }
