package graphics

import (
	"sync"
	"time"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/vmath"
)

// PassID orders the render passes within a frame. The renderer walks
// them in declaration order; commands within a pass keep append order.
type PassID uint8

const (
	PassBeauty       PassID = iota // world content
	PassOverlay3D                  // in-world overlays (device markers)
	PassOverlay                    // 2D UI, messages, graphs
	PassOverlayFront               // fades, cursor; nothing draws above
	numPasses
)

// CmdKind tags a draw command.
type CmdKind uint8

const (
	CmdQuad  CmdKind = iota // filled rectangle
	CmdText                 // glyph run
	CmdGraph                // scrolling value strip
)

// Cmd is one draw command. Position and size are screen-space for the
// overlay passes, world-space for beauty. The renderer interprets; the
// frame def only carries.
type Cmd struct {
	Kind   CmdKind
	Pos    vmath.Vec2
	Size   vmath.Vec2
	Color  vmath.Vec3
	Alpha  float32
	Scale  float32
	Text   string
	Values []float32 // CmdGraph only
}

// CameraSnapshot freezes the camera for one frame.
type CameraSnapshot struct {
	Position vmath.Vec3
	Target   vmath.Vec3
	Up       vmath.Vec3
	FOVDeg   float32
	Shake    vmath.Vec3
}

// MeshBuffer is a GPU-bound vertex payload. Ownership transfers with
// the frame def: once handed off, only the render side may touch Data.
type MeshBuffer struct {
	ID   uint64
	Data []byte
}

// FrameDef is one display tick's complete description of what to draw.
// Exactly one producer (the logic goroutine) mutates it; Finalize seals
// it, and any mutation after that is a caller bug, not a runtime
// condition.
type FrameDef struct {
	ctx *core.Context

	Number               int64
	AppTime              time.Duration
	DisplayTime          time.Duration
	DisplayTimeIncrement time.Duration
	Camera               CameraSnapshot
	Quality              RenderQuality
	Benchmark            bool

	MeshCreates  []MeshBuffer
	MeshDestroys []uint64

	passes    [numPasses][]Cmd
	finalized bool
}

// Add appends a draw command to the given pass.
func (d *FrameDef) Add(p PassID, c Cmd) {
	if d.finalized {
		d.ctx.FatalError("draw command added to finalized frame def %d", d.Number)
		return
	}
	d.passes[p] = append(d.passes[p], c)
}

// Pass returns the command list for one pass. Render side only, after
// finalize.
func (d *FrameDef) Pass(p PassID) []Cmd {
	return d.passes[p]
}

// CmdCount returns the total command count across passes.
func (d *FrameDef) CmdCount() int {
	n := 0
	for i := range d.passes {
		n += len(d.passes[i])
	}
	return n
}

// Finalize seals the def for handoff. Sealing twice is a caller bug.
func (d *FrameDef) Finalize() {
	if d.finalized {
		d.ctx.FatalError("frame def %d finalized twice", d.Number)
		return
	}
	d.finalized = true
}

// Finalized reports whether the def has been sealed.
func (d *FrameDef) Finalized() bool { return d.finalized }

// setMeshes moves ownership of the pending mesh lists into the def.
func (d *FrameDef) setMeshes(creates []MeshBuffer, destroys []uint64) {
	if d.finalized {
		d.ctx.FatalError("mesh lists set on finalized frame def %d", d.Number)
		return
	}
	d.MeshCreates = creates
	d.MeshDestroys = destroys
}

// reset prepares a recycled def for a new frame, keeping pass slice
// capacity from the previous use.
func (d *FrameDef) reset(number int64, appTime, displayTime, increment time.Duration) {
	d.Number = number
	d.AppTime = appTime
	d.DisplayTime = displayTime
	d.DisplayTimeIncrement = increment
	d.Camera = CameraSnapshot{}
	d.Quality = QualityAuto
	d.Benchmark = false
	d.MeshCreates = nil
	d.MeshDestroys = nil
	for i := range d.passes {
		d.passes[i] = d.passes[i][:0]
	}
	d.finalized = false
}

// framePoolCap bounds the recycle pool; a busy pipeline keeps at most
// one frame in flight plus a couple cooling down, so anything past this
// is a leak being papered over.
const framePoolCap = 5

// Pool recycles frame defs between the logic producer and the render
// consumer. Checkout/return only; the backing storage never leaks out.
type Pool struct {
	ctx  *core.Context
	mu   sync.Mutex
	free []*FrameDef
}

func NewPool(ctx *core.Context) *Pool {
	return &Pool{ctx: ctx}
}

// Acquire returns a recycled def if one is available, else allocates.
// The def comes back unsealed and stale; callers must reset it.
func (p *Pool) Acquire() *FrameDef {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		d := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return d
	}
	p.mu.Unlock()
	p.ctx.Status.FramePoolMisses.Inc()
	return &FrameDef{ctx: p.ctx}
}

// Release returns a consumed def. Over-capacity defs are dropped for
// the GC rather than grown into an unbounded cache. Safe from any
// goroutine; the lock spans only the slice append.
func (p *Pool) Release(d *FrameDef) {
	p.mu.Lock()
	if len(p.free) < framePoolCap {
		p.free = append(p.free, d)
		p.mu.Unlock()
		p.ctx.Status.FramesRecycled.Inc()
		return
	}
	p.mu.Unlock()
}

// Size reports the current pooled count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Mailbox is the single-slot handoff between the logic producer and
// the render consumer. The producer may never be more than one frame
// ahead; a Set onto an occupied slot means the draw-request pacing
// broke and is fatal.
type Mailbox struct {
	ctx *core.Context
	mu  sync.Mutex
	def *FrameDef
}

func NewMailbox(ctx *core.Context) *Mailbox {
	return &Mailbox{ctx: ctx}
}

// Set deposits a finalized def for the render side.
func (m *Mailbox) Set(d *FrameDef) {
	if !d.Finalized() {
		m.ctx.FatalError("unfinalized frame def %d pushed to mailbox", d.Number)
		return
	}
	m.mu.Lock()
	occupied := m.def != nil
	if !occupied {
		m.def = d
	}
	m.mu.Unlock()
	if occupied {
		m.ctx.FatalError("frame def mailbox overwrite: def %d still unconsumed", d.Number)
	}
}

// TryTake removes and returns the deposited def, or nil.
func (m *Mailbox) TryTake() *FrameDef {
	m.mu.Lock()
	d := m.def
	m.def = nil
	m.mu.Unlock()
	return d
}
