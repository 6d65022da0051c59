package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/keel/event"
	"github.com/lixenwraith/keel/graphics"
	"github.com/lixenwraith/keel/input"
	"github.com/lixenwraith/keel/vmath"
)

// Virtual pixels per terminal cell; the builder lays out in pixels and
// the dashboard quantizes back to cells.
const (
	cellW = 9
	cellH = 18
)

const inputRingSize = 1024

type rawKind uint8

const (
	rawKey rawKind = iota
	rawMouse
	rawResize
)

// rawEvent is one platform input event as it crosses from the tcell
// poll goroutine to the logic loop.
type rawEvent struct {
	kind rawKind
	r    rune
	key  tcell.Key
	mods tcell.ModMask
	x, y int
	w, h int
}

// terminalUI is the platform adapter: a tcell screen standing in for
// the window system. Its poll goroutine feeds the raw ring; the logic
// loop drains it; the wrapped main loop consumes frame defs and draws
// them as a dashboard.
type terminalUI struct {
	app    *app
	screen tcell.Screen
	ring   *event.Ring[rawEvent]

	// Logic-goroutine state.
	keyboard input.Handle
	pointer  input.Handle
	pads     []input.Handle
	padSeq   int

	consumeMisses int
	finished      atomic.Bool
}

func newTerminalUI(a *app) (*terminalUI, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("terminal init: %w", err)
	}
	screen.EnableMouse()
	return &terminalUI{
		app:    a,
		screen: screen,
		ring:   event.NewRing[rawEvent](inputRingSize, a.ctx.Status.RingOverwrites),
	}, nil
}

// run finishes wiring on the logic side, starts the poll pump, and
// drives the wrapped main loop until shutdown.
func (t *terminalUI) run() {
	a := t.app

	w, h := t.screen.Size()
	a.driver.Loop().PushCall(func() {
		a.builder.SetScreenSize(float32(w*cellW), float32(h*cellH))
		a.builder.AddDrawCallback(t.drawStatus)
		a.builder.SetCursorVisible(true)
		t.keyboard = a.registry.AddDevice(input.DeviceInfo{Type: "keyboard", Keyboard: true})
		t.pointer = a.registry.AddDevice(input.DeviceInfo{Type: "pointer", Touch: true, UIOnly: true})
		a.driver.AddStepCallback(func() {
			a.builder.AddDebugGraphValue("frame_ms",
				float32(a.driver.DisplayTimeIncrement())/float32(time.Millisecond))
		})
	})

	a.ctx.Go("input pump", t.pump)

	period := time.Second / time.Duration(a.cfg.FrameRate)
	a.mainLoop.NewTimer(period, true, t.consumeFrame)
	a.mainLoop.Run()
}

// pump runs on its own goroutine: block on tcell, normalize, hand off.
// Input is droppable by contract, so a backlogged logic loop sheds here
// instead of queueing without bound.
func (t *terminalUI) pump() {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return // screen finalized
		}
		var raw rawEvent
		switch e := ev.(type) {
		case *tcell.EventKey:
			// Quit and pause route around the logic loop: a paused
			// loop holds its runnables, so keys sent through it could
			// never resume or shut down. They also bypass the input
			// lock; a modal state must never trap the user.
			if e.Key() == tcell.KeyCtrlC || e.Key() == tcell.KeyEscape || e.Rune() == 'q' {
				t.app.requestQuit()
				continue
			}
			if e.Rune() == 'p' {
				t.app.togglePauseAll()
				continue
			}
			raw = rawEvent{kind: rawKey, r: e.Rune(), key: e.Key(), mods: e.Modifiers()}
		case *tcell.EventMouse:
			x, y := e.Position()
			raw = rawEvent{kind: rawMouse, x: x, y: y}
		case *tcell.EventResize:
			w, h := e.Size()
			raw = rawEvent{kind: rawResize, w: w, h: h}
		default:
			continue
		}
		if !t.app.driver.Loop().CheckPushSafety() {
			t.app.ctx.Status.InputDrops.Inc()
			continue
		}
		t.ring.Push(raw)
	}
}

// drainInput runs on the logic loop once per display step.
func (t *terminalUI) drainInput() {
	a := t.app
	for _, raw := range t.ring.Consume() {
		switch raw.kind {
		case rawResize:
			a.builder.SetScreenSize(float32(raw.w*cellW), float32(raw.h*cellH))
		case rawMouse:
			a.registry.MarkActivity(t.pointer)
			a.builder.SetCursorPosition(vmath.Vec2{
				X: float32(raw.x*cellW) + cellW/2,
				Y: float32(raw.y*cellH) + cellH/2,
			})
		case rawKey:
			a.registry.MarkActivity(t.keyboard)
			t.handleKey(raw)
		}
	}
}

func (t *terminalUI) handleKey(raw rawEvent) {
	a := t.app
	if a.registry.IsInputLocked() {
		return
	}

	switch raw.r {
	case 'm':
		a.builder.PostScreenMessage("Hello from the logic thread", vmath.Vec3{X: 0.4, Y: 0.8, Z: 1})
		a.sound.Blip()
	case 't':
		a.builder.PostScreenMessageTop("Achievement unlocked: pressed t", vmath.Vec3{X: 1, Y: 0.9, Z: 0.3}, "*")
		a.sound.Blip()
	case 'f':
		a.builder.FadeScreen(true, time.Second, func() {
			a.builder.FadeScreen(false, time.Second, nil)
		})
	case 'l':
		a.loader.StartFakeLoad(120)
		a.builder.SetLoading(true)
	case 'd':
		t.padSeq++
		h := a.registry.AddDevice(input.DeviceInfo{
			Type:       "gamepad",
			Identifier: fmt.Sprintf("fake-%d", t.padSeq),
			Controller: true,
		})
		t.pads = append(t.pads, h)
	case 'r':
		if n := len(t.pads); n > 0 {
			a.registry.PushRemoveDevice(t.pads[n-1])
			t.pads = t.pads[:n-1]
		}
	case 'k':
		a.registry.LockInputTemporarily("demo key")
	}
}

// drawStatus appends the dashboard's device and loop tables to each
// frame. Runs inside the frame build on the logic goroutine.
func (t *terminalUI) drawStatus(def *graphics.FrameDef) {
	a := t.app

	white := vmath.Vec3{X: 0.9, Y: 0.9, Z: 0.9}
	dim := vmath.Vec3{X: 0.5, Y: 0.6, Z: 0.5}

	y := float32(2 * cellH)
	line := func(s string, c vmath.Vec3) {
		def.Add(graphics.PassOverlay3D, graphics.Cmd{
			Kind: graphics.CmdText, Pos: vmath.Vec2{X: 2 * cellW, Y: y},
			Color: c, Alpha: 1, Scale: 1, Text: s,
		})
		y += cellH
	}

	bench := ""
	if def.Benchmark {
		bench = "  bench"
	}
	line(fmt.Sprintf("keel %s  frame %d  display %.1fs  quality %s%s", version,
		def.Number, def.DisplayTime.Seconds(), def.Quality, bench), white)
	line(fmt.Sprintf("input locked: %v  idle: %.0fs", a.registry.IsInputLocked(),
		a.registry.IdleTime().Seconds()), dim)
	line("", dim)
	line("devices:", white)
	a.registry.Each(func(h input.Handle, dev input.Device) {
		line(fmt.Sprintf("  %-16s slot %d", a.registry.Label(h), h.Index), dim)
	})
	line("", dim)
	line("[m]essage [t]op-msg [f]ade [l]oad [d]pad+ [r]pad- [k]lock [p]ause [q]uit", dim)
}

// consumeFrame runs on the main loop at the configured frame rate:
// take the deposited frame def, draw it, recycle it, request the next.
func (t *terminalUI) consumeFrame() {
	def := t.app.builder.Mailbox().TryTake()
	if def == nil {
		t.consumeMisses++
		// A second's worth of empty polls means the logic side stalled.
		if t.consumeMisses == t.app.cfg.FrameRate {
			t.app.ctx.Log.Debug().Msg("no frame def for a second; logic stalled or paused")
			t.app.frameMissed.Add(1)
			t.consumeMisses = 0
		}
		return
	}
	t.consumeMisses = 0
	t.app.lastFrame.Store(def.Number)

	t.render(def)
	t.app.builder.ReturnCompletedFrameDef(def)
	t.app.driver.PushDraw()
}

// render rasterizes one frame def onto the terminal.
func (t *terminalUI) render(def *graphics.FrameDef) {
	t.screen.Fill(' ', tcell.StyleDefault.Background(tcell.ColorBlack))
	for p := graphics.PassID(0); p < 4; p++ {
		for _, cmd := range def.Pass(p) {
			switch cmd.Kind {
			case graphics.CmdQuad:
				t.renderQuad(cmd)
			case graphics.CmdText:
				t.renderText(cmd)
			case graphics.CmdGraph:
				t.renderGraph(cmd)
			}
		}
	}
	t.screen.Show()
}

func (t *terminalUI) renderQuad(cmd graphics.Cmd) {
	style := tcell.StyleDefault.Background(cellColor(cmd.Color, cmd.Alpha))
	x0, y0 := int(cmd.Pos.X)/cellW, int(cmd.Pos.Y)/cellH
	x1 := int(cmd.Pos.X+cmd.Size.X+cellW-1) / cellW
	y1 := int(cmd.Pos.Y+cmd.Size.Y+cellH-1) / cellH
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			t.screen.SetContent(x, y, ' ', nil, style)
		}
	}
}

func (t *terminalUI) renderText(cmd graphics.Cmd) {
	style := tcell.StyleDefault.Foreground(cellColor(cmd.Color, cmd.Alpha))
	col := int(cmd.Pos.X) / cellW
	if cmd.Scale != 1 || cmd.Pos.X > float32(cellW*4) {
		// Centered text: Pos.X is the midpoint for overlay messages.
		col -= len(cmd.Text) / 2
	}
	row := int(cmd.Pos.Y) / cellH
	for i, r := range cmd.Text {
		t.screen.SetContent(col+i, row, r, nil, style)
	}
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func (t *terminalUI) renderGraph(cmd graphics.Cmd) {
	if len(cmd.Values) == 0 {
		return
	}
	style := tcell.StyleDefault.Foreground(cellColor(cmd.Color, cmd.Alpha))
	col := int(cmd.Pos.X) / cellW
	row := int(cmd.Pos.Y+cmd.Size.Y) / cellH
	width := int(cmd.Size.X) / cellW

	var max float32 = 1
	for _, v := range cmd.Values {
		if v > max {
			max = v
		}
	}
	start := 0
	if len(cmd.Values) > width {
		start = len(cmd.Values) - width
	}
	for i, v := range cmd.Values[start:] {
		idx := int(v / max * float32(len(sparkRunes)-1))
		if idx < 0 {
			idx = 0
		}
		t.screen.SetContent(col+i, row, sparkRunes[idx], nil, style)
	}
	for i, r := range cmd.Text {
		t.screen.SetContent(col+i, row-1, r, nil, style)
	}
}

func cellColor(c vmath.Vec3, alpha float32) tcell.Color {
	c = vmath.V3Scale(c, vmath.Clamp(alpha, 0, 1))
	return tcell.NewRGBColor(int32(c.X*255), int32(c.Y*255), int32(c.Z*255))
}

// fini restores the terminal exactly once, whether through clean
// shutdown or the crash cleanup path.
func (t *terminalUI) fini() {
	if t.finished.CompareAndSwap(false, true) {
		t.screen.Fini()
	}
}

func (t *terminalUI) emergencyRestore() { t.fini() }
