package graphics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/status"
	"github.com/lixenwraith/keel/vmath"
)

func newTestContext() *core.Context {
	return core.NewContext(zerolog.Nop(), status.New(prometheus.NewRegistry()),
		core.BuildInfo{Version: "test", Debug: true})
}

type fatalRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fatalRecorder) install(ctx *core.Context) {
	ctx.SetFatalHandler(func(msg string) {
		f.mu.Lock()
		f.msgs = append(f.msgs, msg)
		f.mu.Unlock()
	})
}

func (f *fatalRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fatalRecorder) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1]
}

func TestFrameDefFinalizeTwiceIsFatal(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)

	d := NewPool(ctx).Acquire()
	d.reset(1, 0, 0, 0)
	d.Finalize()
	d.Finalize()

	if rec.count() != 1 {
		t.Fatalf("Expected 1 fatal, got %d", rec.count())
	}
	if !strings.Contains(rec.last(), "finalized twice") {
		t.Errorf("Expected finalize message, got %q", rec.last())
	}
}

func TestFrameDefMutateAfterFinalizeIsFatal(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)

	d := NewPool(ctx).Acquire()
	d.reset(1, 0, 0, 0)
	d.Add(PassOverlay, Cmd{Kind: CmdQuad})
	d.Finalize()
	d.Add(PassOverlay, Cmd{Kind: CmdQuad})

	if rec.count() != 1 {
		t.Fatalf("Expected 1 fatal on post-finalize mutation, got %d", rec.count())
	}
	if got := len(d.Pass(PassOverlay)); got != 1 {
		t.Errorf("Expected rejected command not to land, got %d commands", got)
	}
}

func TestFrameDefResetClearsForReuse(t *testing.T) {
	ctx := newTestContext()
	d := NewPool(ctx).Acquire()
	d.reset(1, 0, 0, 0)
	d.Add(PassBeauty, Cmd{Kind: CmdQuad})
	d.Camera = CameraSnapshot{FOVDeg: 90}
	d.Quality = QualityHigh
	d.Benchmark = true
	d.Finalize()

	d.reset(2, time.Second, time.Second, 16*time.Millisecond)
	if d.Finalized() {
		t.Error("Expected reset to unseal")
	}
	if d.Number != 2 {
		t.Errorf("Expected frame number 2, got %d", d.Number)
	}
	if d.CmdCount() != 0 {
		t.Errorf("Expected empty passes after reset, got %d commands", d.CmdCount())
	}
	if d.Camera.FOVDeg != 0 {
		t.Error("Expected camera cleared on reset")
	}
	if d.Quality != QualityAuto || d.Benchmark {
		t.Error("Expected quality and benchmark flag cleared on reset")
	}
}

func TestPoolRecyclesUpToCap(t *testing.T) {
	ctx := newTestContext()
	p := NewPool(ctx)

	var defs []*FrameDef
	for i := 0; i < 6; i++ {
		defs = append(defs, p.Acquire())
	}
	misses := testutil.ToFloat64(ctx.Status.FramePoolMisses)
	if misses != 6 {
		t.Fatalf("Expected 6 pool misses on cold acquires, got %v", misses)
	}

	for _, d := range defs {
		p.Release(d)
	}
	if p.Size() != framePoolCap {
		t.Errorf("Expected pool capped at %d, got %d", framePoolCap, p.Size())
	}

	// Re-acquiring drains the pool with zero fresh allocations.
	for i := 0; i < framePoolCap; i++ {
		p.Acquire()
	}
	if got := testutil.ToFloat64(ctx.Status.FramePoolMisses); got != misses {
		t.Errorf("Expected no new misses on warm acquires, got %v", got-misses)
	}
	p.Acquire()
	if got := testutil.ToFloat64(ctx.Status.FramePoolMisses); got != misses+1 {
		t.Errorf("Expected exactly one miss past the pool, got %v", got-misses)
	}
}

func TestMailboxSingleSlot(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)
	m := NewMailbox(ctx)
	p := NewPool(ctx)

	a := p.Acquire()
	a.reset(1, 0, 0, 0)
	a.Finalize()
	m.Set(a)

	if got := m.TryTake(); got != a {
		t.Fatal("Expected deposited def back")
	}
	if m.TryTake() != nil {
		t.Error("Expected empty mailbox after take")
	}

	b := p.Acquire()
	b.reset(2, 0, 0, 0)
	b.Finalize()
	m.Set(b)

	c := p.Acquire()
	c.reset(3, 0, 0, 0)
	c.Finalize()
	m.Set(c)
	if rec.count() != 1 {
		t.Errorf("Expected fatal on mailbox overwrite, got %d", rec.count())
	}
}

func TestMailboxRejectsUnfinalized(t *testing.T) {
	ctx := newTestContext()
	rec := &fatalRecorder{}
	rec.install(ctx)
	m := NewMailbox(ctx)

	d := NewPool(ctx).Acquire()
	d.reset(1, 0, 0, 0)
	m.Set(d)

	if rec.count() != 1 {
		t.Errorf("Expected fatal on unfinalized push, got %d", rec.count())
	}
}

func TestMeshOwnershipTransfersWithFrame(t *testing.T) {
	ctx := newTestContext()
	b := NewBuilder(ctx, Options{})

	b.EnqueueMeshCreate(MeshBuffer{ID: 7, Data: []byte{1, 2, 3}})
	b.EnqueueMeshDestroy(9)

	b.BuildAndPushFrameDef(time.Millisecond, time.Millisecond, time.Millisecond)
	def := b.Mailbox().TryTake()
	if def == nil {
		t.Fatal("Expected frame def in mailbox")
	}
	if len(def.MeshCreates) != 1 || def.MeshCreates[0].ID != 7 {
		t.Errorf("Expected mesh create 7, got %v", def.MeshCreates)
	}
	if len(def.MeshDestroys) != 1 || def.MeshDestroys[0] != 9 {
		t.Errorf("Expected mesh destroy 9, got %v", def.MeshDestroys)
	}

	// Next frame starts with drained queues.
	b.ReturnCompletedFrameDef(def)
	b.BuildAndPushFrameDef(2*time.Millisecond, 2*time.Millisecond, time.Millisecond)
	def = b.Mailbox().TryTake()
	if len(def.MeshCreates) != 0 || len(def.MeshDestroys) != 0 {
		t.Error("Expected mesh queues drained by previous frame")
	}
}

func TestCameraSnapshotFrozenPerFrame(t *testing.T) {
	ctx := newTestContext()
	b := NewBuilder(ctx, Options{})

	b.SetCamera(CameraSnapshot{Position: vmath.Vec3{X: 1}, FOVDeg: 60})
	b.BuildAndPushFrameDef(time.Millisecond, time.Millisecond, time.Millisecond)
	def := b.Mailbox().TryTake()

	b.SetCamera(CameraSnapshot{Position: vmath.Vec3{X: 2}, FOVDeg: 90})
	if def.Camera.Position.X != 1 || def.Camera.FOVDeg != 60 {
		t.Errorf("Expected frozen camera snapshot, got %+v", def.Camera)
	}
}
