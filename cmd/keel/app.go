package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lixenwraith/keel/audio"
	"github.com/lixenwraith/keel/config"
	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/event"
	"github.com/lixenwraith/keel/graphics"
	"github.com/lixenwraith/keel/input"
	"github.com/lixenwraith/keel/logic"
	"github.com/lixenwraith/keel/network"
	"github.com/lixenwraith/keel/status"
)

// app wires the runtime's loops together for the demo binary: wrapped
// main goroutine as the render-side consumer, spawned logic, audio and
// network loops, and the terminal adapter feeding raw input to logic.
type app struct {
	ctx *core.Context
	cfg config.Config

	group    *event.Group
	mainLoop *event.Loop

	builder  *graphics.Builder
	driver   *logic.Driver
	registry *input.Registry
	sound    *audio.Engine
	netw     *network.Writer

	loader *demoLoader
	term   *terminalUI

	// Snapshot values for /statusz, written by the consumers that own
	// them.
	lastFrame   atomic.Int64
	frameMissed atomic.Int64
}

func runApp(cfg config.Config, headless bool) error {
	logOut, closeLog := logWriter(headless)
	defer closeLog()
	pretty := headless && isatty.IsTerminal(os.Stderr.Fd())
	logger := core.NewLogger(logOut, cfg.LogLevel, pretty)

	promReg := prometheus.NewRegistry()
	ctx := core.NewContext(logger, status.New(promReg), core.BuildInfo{
		Version: version,
		Debug:   version == "dev",
	})

	a := &app{ctx: ctx, cfg: cfg}
	a.group = event.NewGroup(ctx)
	a.mainLoop = event.WrapCurrent(ctx, "main")

	a.sound = audio.New(ctx, cfg.Mute)
	a.netw = network.NewWriter(ctx)
	a.loader = newDemoLoader()

	if !headless {
		quality, ok := graphics.ParseRenderQuality(cfg.RenderQuality)
		if !ok {
			logger.Error().Str("render_quality", cfg.RenderQuality).
				Str("using", quality.String()).Msg("unknown render quality")
		}
		a.builder = graphics.NewBuilder(ctx, graphics.Options{
			Loads:       a.loader,
			ShowLoadDot: cfg.ShowLoadDot,
		})
		a.builder.SetGyroEnabled(cfg.GyroEnabled)
		a.builder.SetRenderQuality(quality)
		a.builder.SetBenchmark(cfg.Benchmark)
	}
	a.driver = logic.NewDriver(ctx, a.builder, headless)
	a.loader.driver = a.driver

	var announcer input.Announcer
	if a.builder != nil {
		announcer = a.builder
	}
	a.registry = input.NewRegistry(ctx, a.driver.Loop(), announcer, a.sound)

	a.group.Add(a.driver.Loop())
	a.group.Add(a.sound.Loop())
	a.group.Add(a.netw.Loop())

	if !headless {
		term, err := newTerminalUI(a)
		if err != nil {
			return err
		}
		a.term = term
		ctx.AddCleanup(term.emergencyRestore)
	}

	if cfg.DebugAddr != "" {
		startDebugServer(a, promReg)
	}

	a.driver.Loop().PushCall(func() {
		a.registry.Start()
		if cfg.StressLevel > 0 {
			a.registry.StartStress(cfg.StressLevel)
		}
		if cfg.TelemetryTo != "" {
			a.driver.Loop().NewTimer(time.Second, true, a.sendTelemetry)
		}
		if a.term != nil {
			a.driver.AddStepCallback(a.term.drainInput)
		}
	})

	a.driver.Start(a.loader, func() {
		// Logic is done; wind the outer loops down from the main side.
		a.mainLoop.PushShutdown()
	})

	a.watchSignals()

	if headless {
		a.ctx.Log.Info().Str("version", version).Msg("running headless; Ctrl-C to exit")
		a.mainLoop.Run()
	} else {
		a.term.run()
	}

	a.shutdownLoops()
	return nil
}

// logWriter picks the log destination: stderr when it will not fight a
// terminal UI for the screen, a file next to the binary otherwise.
func logWriter(headless bool) (io.Writer, func()) {
	if headless {
		return os.Stderr, func() {}
	}
	f, err := os.OpenFile("keel.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.Discard, func() {}
	}
	return f, func() { f.Close() }
}

func (a *app) watchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	a.ctx.Go("signal watcher", func() {
		<-ch
		signal.Stop(ch)
		a.requestQuit()
	})
}

// requestQuit winds the runtime down from the main side. A paused
// group resumes first: the logic loop holds runnables while paused, so
// a shutdown marshaled straight onto it would never run.
func (a *app) requestQuit() {
	a.mainLoop.PushCall(func() {
		if a.group.Paused() {
			a.group.SetPaused(false)
		}
		a.driver.Shutdown()
	})
}

// togglePauseAll flips the global pause from the main loop (the only
// legal initiator) and watches for stuck loops off to the side.
func (a *app) togglePauseAll() {
	a.mainLoop.PushCall(func() {
		a.group.SetPaused(!a.group.Paused())
		a.ctx.Go("pause watchdog", func() {
			a.group.WaitPaused(0)
		})
	})
}

func (a *app) sendTelemetry() {
	if !a.netw.CheckPushSafety() {
		// Telemetry is the definition of droppable traffic.
		return
	}
	payload, err := json.Marshal(map[string]any{
		"frame":   a.lastFrame.Load(),
		"missed":  a.frameMissed.Load(),
		"app_ms":  a.ctx.Clock.Now().Milliseconds(),
		"paused":  a.group.Paused(),
		"version": version,
	})
	if err != nil {
		return
	}
	a.netw.PushSend(payload, a.cfg.TelemetryTo)
}

func (a *app) shutdownLoops() {
	a.driver.Join()
	a.sound.Shutdown()
	a.netw.Shutdown()
	if a.term != nil {
		a.term.fini()
	}
}

// demoLoader stands in for the asset loader: a counter of fake pending
// loads drained through the logic loop's pending-work timer, driving
// the progress bar and load dot.
type demoLoader struct {
	pending atomic.Int32
	gfx     atomic.Int32
	driver  *logic.Driver
}

func newDemoLoader() *demoLoader { return &demoLoader{} }

func (l *demoLoader) PendingLoadCount() int         { return int(l.pending.Load()) }
func (l *demoLoader) PendingGraphicsLoadCount() int { return int(l.gfx.Load()) }

// StartFakeLoad queues n fake loads and arms the pending-work timer.
func (l *demoLoader) StartFakeLoad(n int) {
	l.pending.Store(int32(n))
	l.driver.NotifyPendingWork()
}

// RunPending drains one load unit per call; the driver calls this from
// its pending-work timer until it reports empty.
func (l *demoLoader) RunPending() bool {
	if l.pending.Load() <= 0 {
		return false
	}
	return l.pending.Add(-1) > 0
}
