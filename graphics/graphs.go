package graphics

import (
	"sort"
	"time"

	"github.com/lixenwraith/keel/vmath"
)

const (
	graphIdleEviction = time.Second
	graphSampleCount  = 90
	graphHeight       = float32(40)
	graphWidth        = float32(180)
)

// debugGraph is a named scrolling value strip for on-screen diagnostics
// (frame times, queue depths). Created on first touch, evicted one
// second after the last.
type debugGraph struct {
	name      string
	values    []float32
	lastTouch time.Duration
}

// AddDebugGraphValue appends a sample to the named graph, creating it
// on demand. Logic goroutine only.
func (b *Builder) AddDebugGraphValue(name string, value float32) {
	g := b.debugGraphs[name]
	if g == nil {
		g = &debugGraph{name: name, values: make([]float32, 0, graphSampleCount)}
		b.debugGraphs[name] = g
	}
	if len(g.values) >= graphSampleCount {
		copy(g.values, g.values[1:])
		g.values = g.values[:graphSampleCount-1]
	}
	g.values = append(g.values, value)
	g.lastTouch = b.displayTime
}

// drawDebugGraphs prunes idle graphs and draws the live ones stacked in
// the top-right corner, sorted by name for stable placement.
func (b *Builder) drawDebugGraphs(def *FrameDef) {
	names := make([]string, 0, len(b.debugGraphs))
	for name, g := range b.debugGraphs {
		if b.displayTime-g.lastTouch > graphIdleEviction {
			delete(b.debugGraphs, name)
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)

	y := float32(10)
	for _, name := range names {
		g := b.debugGraphs[name]
		def.Add(PassOverlay, Cmd{
			Kind:  CmdQuad,
			Pos:   vmath.Vec2{X: b.width - graphWidth - 10, Y: y},
			Size:  vmath.Vec2{X: graphWidth, Y: graphHeight},
			Alpha: 0.3,
		})
		def.Add(PassOverlay, Cmd{
			Kind:   CmdGraph,
			Pos:    vmath.Vec2{X: b.width - graphWidth - 10, Y: y},
			Size:   vmath.Vec2{X: graphWidth, Y: graphHeight},
			Color:  vmath.Vec3{X: 0.2, Y: 1, Z: 0.2},
			Alpha:  1,
			Text:   name,
			Values: append([]float32(nil), g.values...),
		})
		y += graphHeight + 6
	}
}
