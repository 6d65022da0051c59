package graphics

import (
	"time"

	"github.com/lixenwraith/keel/vmath"
)

// Hardware cursor visibility is pushed on change, plus a periodic
// resync: the platform side occasionally loses the state across focus
// changes, and a 2s correction is invisible to users.
const cursorResyncInterval = 2 * time.Second

type cursorState struct {
	visible bool
	pos     vmath.Vec2

	// hwPush, when set, owns visibility; it marshals to the platform
	// thread itself. Nil means software cursor.
	hwPush     func(visible bool)
	lastPushed bool
	lastPushAt time.Duration
	everPushed bool
}

// SetCursorVisible sets the desired cursor visibility. Logic goroutine
// only.
func (b *Builder) SetCursorVisible(visible bool) {
	b.cursor.visible = visible
}

// SetCursorPosition moves the software cursor. Logic goroutine only.
func (b *Builder) SetCursorPosition(pos vmath.Vec2) {
	b.cursor.pos = pos
}

// SetHardwareCursorPush installs the platform's visibility setter,
// switching off the software cursor quad. The callback must do its own
// cross-thread marshaling.
func (b *Builder) SetHardwareCursorPush(push func(visible bool)) {
	b.cursor.hwPush = push
	b.cursor.everPushed = false
}

func (b *Builder) updateAndDrawCursor(def *FrameDef) {
	c := &b.cursor
	if c.hwPush != nil {
		changed := !c.everPushed || c.visible != c.lastPushed
		resync := b.displayTime-c.lastPushAt >= cursorResyncInterval
		if changed || resync {
			c.hwPush(c.visible)
			c.lastPushed = c.visible
			c.lastPushAt = b.displayTime
			c.everPushed = true
		}
		return
	}
	if !c.visible {
		return
	}
	def.Add(PassOverlayFront, Cmd{
		Kind:  CmdQuad,
		Pos:   c.pos,
		Size:  vmath.Vec2{X: 8, Y: 12},
		Color: vmath.Vec3{X: 1, Y: 1, Z: 1},
		Alpha: 1,
	})
}
