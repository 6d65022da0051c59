package graphics

import (
	"time"

	"github.com/lixenwraith/keel/vmath"
)

// Screen message lifetime policy. Entries ramp in fast, hold, then ramp
// out; the queues are bounded both by count and by age so a message
// storm can never wall off the screen.
const (
	msgMaxAge       = 5000 * time.Millisecond
	msgFadeInTime   = 100 * time.Millisecond
	msgFadeOutStart = 3000 * time.Millisecond
	msgFadeOutTime  = 2000 * time.Millisecond

	msgPopScale = 1.2
	msgPopTime  = 150 * time.Millisecond

	msgMaxBottom = 4
	msgMaxTop    = 6

	// Vertical positions chase their target instead of snapping, so
	// neighbors sliding in or out do not pop.
	msgVSmoothing = 0.8

	msgLineHeight    = float32(22)
	msgTopMinSpacing = float32(18)
	msgBottomMargin  = float32(30)
	msgTopMargin     = float32(40)
)

// ScreenMessage is one transient overlay notification.
type ScreenMessage struct {
	raw        string
	translated string // recomputed lazily after a language change
	color      vmath.Vec3
	icon       string // optional glyph, top queue only
	created    time.Duration
	vPos       float32
	vSet       bool
}

// Translator resolves overlay text to the active language. A language
// change invalidates all cached translations wholesale.
type Translator interface {
	Translate(s string) string
}

func (m *ScreenMessage) text(tr Translator) string {
	if m.translated == "" {
		if tr != nil {
			m.translated = tr.Translate(m.raw)
		} else {
			m.translated = m.raw
		}
	}
	return m.translated
}

// opacity returns the age-based alpha: ramp in over the first 100ms,
// hold, ramp out between 3s and 5s.
func (m *ScreenMessage) opacity(now time.Duration) float32 {
	age := now - m.created
	if age < 0 {
		return 0
	}
	if age < msgFadeInTime {
		return float32(age) / float32(msgFadeInTime)
	}
	if age < msgFadeOutStart {
		return 1
	}
	out := 1 - float32(age-msgFadeOutStart)/float32(msgFadeOutTime)
	return vmath.Clamp(out, 0, 1)
}

// popScale returns the spawn overshoot: 1.2x decaying to 1.0 over the
// first 150ms.
func (m *ScreenMessage) popScale(now time.Duration) float32 {
	age := now - m.created
	if age < 0 || age >= msgPopTime {
		return 1
	}
	t := float32(age) / float32(msgPopTime)
	return msgPopScale - (msgPopScale-1)*t
}

// smoothTo moves the smoothed vertical position toward target. The
// first placement snaps; a message has no prior position to slide from.
func (m *ScreenMessage) smoothTo(target float32) {
	if !m.vSet {
		m.vPos = target
		m.vSet = true
		return
	}
	m.vPos += (target - m.vPos) * msgVSmoothing
}

// PostScreenMessage queues a bottom-anchored message. Logic goroutine
// only.
func (b *Builder) PostScreenMessage(text string, color vmath.Vec3) {
	b.bottomMessages = append(b.bottomMessages, &ScreenMessage{
		raw:     text,
		color:   color,
		created: b.displayTime,
	})
	b.trimMessages()
}

// PostScreenMessageTop queues a top-anchored message with an optional
// icon glyph.
func (b *Builder) PostScreenMessageTop(text string, color vmath.Vec3, icon string) {
	b.topMessages = append(b.topMessages, &ScreenMessage{
		raw:     text,
		color:   color,
		icon:    icon,
		created: b.displayTime,
	})
	b.trimMessages()
}

// ClearScreenMessages drops both queues immediately.
func (b *Builder) ClearScreenMessages() {
	b.bottomMessages = b.bottomMessages[:0]
	b.topMessages = b.topMessages[:0]
}

// OnLanguageChange invalidates cached translations; text recomputes
// lazily on the next draw.
func (b *Builder) OnLanguageChange() {
	for _, m := range b.bottomMessages {
		m.translated = ""
	}
	for _, m := range b.topMessages {
		m.translated = ""
	}
}

// trimMessages enforces both caps and the age cutoff, oldest first.
// Queues are append-ordered, so trimming from the front is trimming the
// oldest.
func (b *Builder) trimMessages() {
	b.bottomMessages = b.trimList(b.bottomMessages, msgMaxBottom)
	b.topMessages = b.trimList(b.topMessages, msgMaxTop)
}

func (b *Builder) trimList(list []*ScreenMessage, limit int) []*ScreenMessage {
	cut := 0
	for cut < len(list) && len(list)-cut > limit {
		cut++
	}
	for cut < len(list) && b.displayTime-list[cut].created >= msgMaxAge {
		cut++
	}
	if cut == 0 {
		return list
	}
	b.ctx.Status.ScreenMsgEvicts.Add(float64(cut))
	list = append(list[:0], list[cut:]...)
	return list
}

// drawMessages lays out and draws both queues. Each queue renders in
// two sub-passes (all backgrounds, then all glyphs) so an overlapping
// pair never interleaves shadow over text.
func (b *Builder) drawMessages(def *FrameDef) {
	b.trimMessages()

	// Bottom queue stacks upward from the bottom margin, newest lowest.
	y := b.height - msgBottomMargin
	for i := len(b.bottomMessages) - 1; i >= 0; i-- {
		b.bottomMessages[i].smoothTo(y)
		y -= msgLineHeight
	}

	// Top queue stacks downward, oldest highest, nudged apart to a
	// minimum spacing when smoothing bunches them up.
	y = msgTopMargin
	for _, m := range b.topMessages {
		m.smoothTo(y)
		y += msgLineHeight
	}
	for i := 1; i < len(b.topMessages); i++ {
		prev, cur := b.topMessages[i-1], b.topMessages[i]
		if cur.vPos-prev.vPos < msgTopMinSpacing {
			cur.vPos = prev.vPos + msgTopMinSpacing
		}
	}

	b.drawMessageList(def, b.bottomMessages)
	b.drawMessageList(def, b.topMessages)
}

func (b *Builder) drawMessageList(def *FrameDef, list []*ScreenMessage) {
	now := b.displayTime
	for _, m := range list {
		o := m.opacity(now)
		if o <= 0 {
			continue
		}
		scale := m.popScale(now)
		w := float32(len(m.text(b.translator)))*9*scale + 12
		def.Add(PassOverlay, Cmd{
			Kind:  CmdQuad,
			Pos:   vmath.Vec2{X: (b.width - w) / 2, Y: m.vPos - msgLineHeight*0.75},
			Size:  vmath.Vec2{X: w, Y: msgLineHeight * scale},
			Color: vmath.Vec3{},
			Alpha: o * 0.5,
			Scale: scale,
		})
	}
	for _, m := range list {
		o := m.opacity(now)
		if o <= 0 {
			continue
		}
		scale := m.popScale(now)
		text := m.text(b.translator)
		if m.icon != "" {
			text = m.icon + " " + text
		}
		def.Add(PassOverlay, Cmd{
			Kind:  CmdText,
			Pos:   vmath.Vec2{X: b.width / 2, Y: m.vPos},
			Color: SafeColor(m.color, 0.5),
			Alpha: o,
			Scale: scale,
			Text:  text,
		})
	}
}
