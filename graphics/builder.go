package graphics

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/vmath"
)

// LoadTracker exposes the asset loader's pending-work counters, polled
// once per tick to drive the progress bar and loading dot.
type LoadTracker interface {
	PendingLoadCount() int
	PendingGraphicsLoadCount() int
}

// Builder assembles one FrameDef per display tick from the logic
// thread's view of the world. All state here is logic-goroutine-affine
// except the pending mesh lists, which other subsystems feed under a
// dedicated lock.
type Builder struct {
	ctx *core.Context
	log zerolog.Logger

	pool    *Pool
	mailbox *Mailbox

	translator  Translator
	loads       LoadTracker
	showLoadDot bool

	width, height float32

	frameNumber int64
	displayTime time.Duration
	lastAppTime time.Duration
	building    bool

	drawCallbacks []func(*FrameDef)

	camera    CameraSnapshot
	quality   RenderQuality
	benchmark bool

	bottomMessages []*ScreenMessage
	topMessages    []*ScreenMessage
	debugGraphs    map[string]*debugGraph

	fade         fadeState
	fadeStartApp time.Duration
	fadeTimeout  time.Duration

	progress progressState
	gyro     gyroState
	cursor   cursorState
	meshes   meshQueues
}

// Options carries the builder's external collaborators; any field may
// be nil for a degraded but functional builder (tests, headless).
type Options struct {
	Translator  Translator
	Loads       LoadTracker
	ShowLoadDot bool
}

func NewBuilder(ctx *core.Context, opt Options) *Builder {
	return &Builder{
		ctx:         ctx,
		log:         ctx.Log.With().Str("sys", "graphics").Logger(),
		pool:        NewPool(ctx),
		mailbox:     NewMailbox(ctx),
		translator:  opt.Translator,
		loads:       opt.Loads,
		showLoadDot: opt.ShowLoadDot,
		width:       1280,
		height:      720,
		fadeTimeout: fadeStuckTimeout,
		debugGraphs: make(map[string]*debugGraph),
	}
}

// Mailbox returns the handoff slot the render side consumes from.
func (b *Builder) Mailbox() *Mailbox { return b.mailbox }

// SetScreenSize updates the layout extents. Logic goroutine only.
func (b *Builder) SetScreenSize(w, h float32) {
	if w > 0 {
		b.width = w
	}
	if h > 0 {
		b.height = h
	}
}

// AddDrawCallback registers a world/UI draw source, called in
// registration order each non-loading tick. Logic goroutine only.
func (b *Builder) AddDrawCallback(fn func(*FrameDef)) {
	b.drawCallbacks = append(b.drawCallbacks, fn)
}

// SetCamera replaces the camera snapshot used for subsequent frames.
func (b *Builder) SetCamera(c CameraSnapshot) {
	b.camera = c
}

// SetRenderQuality sets the target quality stamped on subsequent
// frames. Logic goroutine only; reapplied whenever config changes.
func (b *Builder) SetRenderQuality(q RenderQuality) {
	b.quality = q
}

// SetBenchmark marks subsequent frames as benchmark captures so the
// render side can record timings against them.
func (b *Builder) SetBenchmark(on bool) {
	b.benchmark = on
}

// FrameNumber returns the number of the most recently built frame.
func (b *Builder) FrameNumber() int64 { return b.frameNumber }

// BuildAndPushFrameDef assembles this tick's frame and hands it to the
// render side. Exactly one build may be open at a time; overlapping
// builds mean re-entrant drawing and are a caller bug.
func (b *Builder) BuildAndPushFrameDef(appTime, displayTime, increment time.Duration) {
	if b.building {
		b.ctx.FatalError("frame def build started while previous build still open")
		return
	}
	b.building = true
	defer func() { b.building = false }()

	elapsed := appTime - b.lastAppTime
	b.lastAppTime = appTime
	b.displayTime = displayTime

	b.updateGyro(elapsed)

	b.frameNumber++
	def := b.pool.Acquire()
	def.reset(b.frameNumber, appTime, displayTime, increment)
	def.Camera = b.camera
	def.Camera.Shake = b.gyro.shake
	def.Quality = b.quality
	def.Benchmark = b.benchmark

	if b.updateProgress(elapsed) {
		// Blocking load: progress UI only, world and overlays skipped.
		b.drawProgress(def)
		b.drawLoadDot(def)
	} else {
		for _, fn := range b.drawCallbacks {
			fn(def)
		}
		b.drawMessages(def)
		b.drawDebugGraphs(def)
		b.drawLoadDot(def)
		b.updateAndDrawFade(def)
		b.updateAndDrawCursor(def)
	}

	creates, destroys := b.meshes.take()
	def.setMeshes(creates, destroys)

	def.Finalize()
	b.mailbox.Set(def)
	b.ctx.Status.FramesBuilt.Inc()

	// Per-frame scratch resets whether or not anything consumed it.
	b.gyro.raw = vmath.Vec3{}
}

// ReturnCompletedFrameDef reclaims a consumed def. Render side, any
// goroutine.
func (b *Builder) ReturnCompletedFrameDef(def *FrameDef) {
	b.pool.Release(def)
}
