package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/event"
)

const sampleRate = beep.SampleRate(48000)

// Engine plays short UI cues on its own event loop. The speaker owns a
// mixer; cue synthesis and mixing mutate it only from the audio
// goroutine, so the engine needs no locks of its own.
type Engine struct {
	ctx  *core.Context
	log  zerolog.Logger
	loop *event.Loop

	mixer  *beep.Mixer
	muted  bool
	silent bool // speaker init failed; cues no-op
}

// New spawns the audio loop and initializes the speaker. A missing or
// broken audio device degrades to silent operation, not an error: a
// game without chimes beats no game.
func New(ctx *core.Context, muted bool) *Engine {
	e := &Engine{
		ctx:   ctx,
		log:   ctx.Log.With().Str("sys", "audio").Logger(),
		loop:  event.New(ctx, "audio"),
		mixer: &beep.Mixer{},
		muted: muted,
	}
	e.loop.PushCall(func() {
		if err := e.initSpeaker(); err != nil {
			e.silent = true
			e.log.Warn().Err(err).Msg("speaker unavailable; running silent")
		}
	})
	return e
}

func (e *Engine) initSpeaker() error {
	if err := speaker.Init(sampleRate, sampleRate.N(50*time.Millisecond)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	speaker.Play(e.mixer)
	return nil
}

// Loop exposes the audio EventLoop for pause-group registration.
func (e *Engine) Loop() *event.Loop { return e.loop }

// SetMuted flips cue playback. Safe from any goroutine.
func (e *Engine) SetMuted(muted bool) {
	e.loop.PushCall(func() { e.muted = muted })
}

// Shutdown stops the audio loop and releases the speaker.
func (e *Engine) Shutdown() {
	e.loop.PushCall(func() {
		if !e.silent {
			speaker.Close()
			e.silent = true
		}
	})
	e.loop.PushShutdown()
	e.loop.Join()
}

func (e *Engine) play(c cueSpec) {
	e.loop.PushCall(func() {
		if e.muted || e.silent {
			return
		}
		speaker.Lock()
		e.mixer.Add(synthesize(c))
		speaker.Unlock()
		e.ctx.Status.CuesPlayed.Inc()
	})
}

// Blip is a short neutral tick (message posts, key echoes).
func (e *Engine) Blip() {
	e.play(cueSpec{freq: 880, duration: 60 * time.Millisecond, gain: 0.3})
}

// ChimeUp signals arrival (device connected).
func (e *Engine) ChimeUp() {
	e.play(cueSpec{freq: 523.25, freq2: 783.99, duration: 180 * time.Millisecond, gain: 0.4})
}

// ChimeDown signals departure (device disconnected).
func (e *Engine) ChimeDown() {
	e.play(cueSpec{freq: 783.99, freq2: 523.25, duration: 180 * time.Millisecond, gain: 0.4})
}
