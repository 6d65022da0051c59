package input

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/lixenwraith/keel/event"
)

const stressTickPeriod = 50 * time.Millisecond

// Stress is a synthetic event source for soaking the registry and the
// loop's backpressure paths: it connects, disconnects, and twitches
// fake controllers from a logic timer at a configured intensity.
type Stress struct {
	reg     *Registry
	level   int
	rng     *rand.Rand
	handles []Handle
	timer   *event.Timer
	nextPad int
}

// StartStress begins generating synthetic device churn at the given
// level (rough events per tick). Logic goroutine only; zero level is a
// no-op nil.
func (r *Registry) StartStress(level int) *Stress {
	r.checkThread("StartStress")
	if level <= 0 {
		return nil
	}
	s := &Stress{
		reg:   r,
		level: level,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.timer = r.loop.NewTimer(stressTickPeriod, true, s.tick)
	r.log.Info().Int("level", level).Msg("input stress generator running")
	return s
}

// Stop halts the generator and removes its fake devices.
func (s *Stress) Stop() {
	s.reg.checkThread("Stress.Stop")
	s.reg.loop.DeleteTimer(s.timer.ID())
	for _, h := range s.handles {
		if s.reg.slot(h) != nil {
			s.reg.RemoveDevice(h)
		}
	}
	s.handles = nil
}

func (s *Stress) tick() {
	for i := 0; i < s.level; i++ {
		switch op := s.rng.Intn(10); {
		case op < 2 && len(s.handles) < 16:
			s.nextPad++
			dev := DeviceInfo{
				Type:       "test-gamepad",
				Identifier: "stress-" + strconv.Itoa(s.nextPad),
				Controller: true,
			}
			s.handles = append(s.handles, s.reg.AddDevice(dev))
		case op < 3 && len(s.handles) > 0:
			idx := s.rng.Intn(len(s.handles))
			h := s.handles[idx]
			s.handles = append(s.handles[:idx], s.handles[idx+1:]...)
			if s.reg.slot(h) != nil {
				s.reg.RemoveDevice(h)
			}
		case len(s.handles) > 0:
			s.reg.MarkActivity(s.handles[s.rng.Intn(len(s.handles))])
		}
	}
}
