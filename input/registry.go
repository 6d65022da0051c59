package input

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lixenwraith/keel/core"
	"github.com/lixenwraith/keel/event"
	"github.com/lixenwraith/keel/vmath"
)

const (
	// Active-device accounting window and refresh cadence. 249 rather
	// than 250 keeps the refresh from beating against other quarter
	// second timers.
	deviceActiveWindow   = 60 * time.Second
	countsRefreshPeriod  = 249 * time.Millisecond
	announceBatchWindow  = 250 * time.Millisecond
	announceStartupGrace = 5 * time.Second
)

// Announcer posts user-facing connect/disconnect notices; the graphics
// builder satisfies it.
type Announcer interface {
	PostScreenMessage(text string, color vmath.Vec3)
}

// Cuer plays short attention sounds; the audio engine satisfies it.
type Cuer interface {
	Blip()
	ChimeUp()
	ChimeDown()
}

// Registry tracks connected input devices and their stable identities.
// All mutation happens on the logic loop's goroutine: platform threads
// use the Push* methods, which marshal through the loop rather than
// taking locks here.
type Registry struct {
	ctx  *core.Context
	log  zerolog.Logger
	loop *event.Loop

	announcer Announcer
	cuer      Cuer

	slots        []*entry // sparse; nil slots are reusable
	reservations map[string]map[string]int

	locks lockState

	pendingConnects    int
	pendingDisconnects int
	announceTimer      *event.Timer
	refreshTimer       *event.Timer
	suppressAnnounce   bool

	lastActivity time.Duration
}

func NewRegistry(ctx *core.Context, loop *event.Loop, announcer Announcer, cuer Cuer) *Registry {
	return &Registry{
		ctx:          ctx,
		log:          ctx.Log.With().Str("sys", "input").Logger(),
		loop:         loop,
		announcer:    announcer,
		cuer:         cuer,
		reservations: make(map[string]map[string]int),
	}
}

// Start registers the registry's housekeeping timers. Logic goroutine
// only, once.
func (r *Registry) Start() {
	if r.refreshTimer != nil {
		r.ctx.FatalError("input registry started twice")
		return
	}
	r.refreshTimer = r.loop.NewTimer(countsRefreshPeriod, true, r.refreshCounts)
	r.announceTimer = r.loop.NewTimer(-1, true, r.flushAnnouncements)
}

// PushAddDevice marshals a device add onto the logic loop. Safe from
// any goroutine; onAdded (optional) runs on the logic goroutine with
// the new handle.
func (r *Registry) PushAddDevice(dev Device, onAdded func(Handle)) {
	r.loop.PushCall(func() {
		h := r.AddDevice(dev)
		if onAdded != nil {
			onAdded(h)
		}
	})
}

// PushRemoveDevice marshals a device removal onto the logic loop.
func (r *Registry) PushRemoveDevice(h Handle) {
	r.loop.PushCall(func() { r.RemoveDevice(h) })
}

// AddDevice registers a device, assigning the first free slot and a
// stable number. Logic goroutine only.
func (r *Registry) AddDevice(dev Device) Handle {
	r.checkThread("AddDevice")

	e := &entry{
		dev:      dev,
		number:   r.assignNumber(dev.RawType(), dev.PersistentIdentifier()),
		instance: uuid.New(),
		added:    r.ctx.Clock.Now(),
	}
	e.lastInput = e.added

	e.index = -1
	for i, s := range r.slots {
		if s == nil {
			e.index = i
			r.slots[i] = e
			break
		}
	}
	if e.index < 0 {
		e.index = len(r.slots)
		r.slots = append(r.slots, e)
	}

	r.ctx.Status.DevicesConnected.Set(float64(r.connectedCount()))
	r.log.Info().Str("type", dev.RawType()).Int("number", e.number).
		Int("slot", e.index).Str("instance", e.instance.String()).Msg("device added")

	if dev.IsController() {
		r.pendingConnects++
		r.armAnnounce()
	}
	return Handle{Index: e.index, Number: e.number, Instance: e.instance}
}

// RemoveDevice unregisters a device. Removing a handle that is not
// registered is a caller bug. Logic goroutine only.
func (r *Registry) RemoveDevice(h Handle) {
	r.checkThread("RemoveDevice")

	e := r.slot(h)
	if e == nil {
		r.ctx.FatalError("remove of unregistered input device (slot %d)", h.Index)
		return
	}
	r.slots[h.Index] = nil

	r.ctx.Status.DevicesConnected.Set(float64(r.connectedCount()))
	r.log.Info().Str("type", e.dev.RawType()).Int("number", e.number).Msg("device removed")

	if e.dev.IsController() {
		r.pendingDisconnects++
		r.armAnnounce()
	}
}

// MarkActivity stamps a device's last-input time and marks the app
// non-idle. Logic goroutine only.
func (r *Registry) MarkActivity(h Handle) {
	r.checkThread("MarkActivity")
	if e := r.slot(h); e != nil {
		e.lastInput = r.ctx.Clock.Now()
	}
	r.lastActivity = r.ctx.Clock.Now()
}

// IdleTime returns the app time since the last input activity.
func (r *Registry) IdleTime() time.Duration {
	return r.ctx.Clock.Now() - r.lastActivity
}

// Device returns the registered device for a handle, or nil when the
// handle is stale. Logic goroutine only.
func (r *Registry) Device(h Handle) Device {
	if e := r.slot(h); e != nil {
		return e.dev
	}
	return nil
}

// Each calls fn for every registered device in slot order. Logic
// goroutine only.
func (r *Registry) Each(fn func(Handle, Device)) {
	for _, e := range r.slots {
		if e != nil {
			fn(Handle{Index: e.index, Number: e.number, Instance: e.instance}, e.dev)
		}
	}
}

// slot resolves a handle, rejecting stale reuses of a freed index by
// instance comparison.
func (r *Registry) slot(h Handle) *entry {
	if h.Index < 0 || h.Index >= len(r.slots) {
		return nil
	}
	e := r.slots[h.Index]
	if e == nil || e.instance != h.Instance {
		return nil
	}
	return e
}

func (r *Registry) connectedCount() int {
	n := 0
	for _, e := range r.slots {
		if e != nil {
			n++
		}
	}
	return n
}

func (r *Registry) countRawType(rawType string) int {
	n := 0
	for _, e := range r.slots {
		if e != nil && e.dev.RawType() == rawType {
			n++
		}
	}
	return n
}

// assignNumber picks the device's human-facing number. A previously
// reserved (type, identifier) pair reclaims its number when free, so a
// reconnected pad keeps its player slot; otherwise the lowest positive
// integer neither used by an active same-type device nor reserved by a
// different identifier wins.
func (r *Registry) assignNumber(rawType, identifier string) int {
	reserved := r.reservations[rawType]

	if identifier != "" {
		if n, ok := reserved[identifier]; ok && !r.numberInUse(rawType, n) {
			return n
		}
	}

	for n := 1; ; n++ {
		if r.numberInUse(rawType, n) {
			continue
		}
		if holder, ok := r.numberReservedBy(rawType, n); ok && holder != identifier {
			continue
		}
		if identifier != "" {
			if reserved == nil {
				reserved = make(map[string]int)
				r.reservations[rawType] = reserved
			}
			reserved[identifier] = n
		}
		return n
	}
}

func (r *Registry) numberInUse(rawType string, n int) bool {
	for _, e := range r.slots {
		if e != nil && e.number == n && e.dev.RawType() == rawType {
			return true
		}
	}
	return false
}

func (r *Registry) numberReservedBy(rawType string, n int) (string, bool) {
	for id, rn := range r.reservations[rawType] {
		if rn == n {
			return id, true
		}
	}
	return "", false
}

// refreshCounts runs every quarter second on the logic loop: updates
// the active-device gauge and expires overheld temporary input locks.
func (r *Registry) refreshCounts() {
	now := r.ctx.Clock.Now()
	active := 0
	for _, e := range r.slots {
		if e != nil && now-e.lastInput <= deviceActiveWindow {
			active++
		}
	}
	r.ctx.Status.DevicesActive.Set(float64(active))

	r.expireTemporaryLocks(now)
}

// SetAnnouncementsSuppressed mutes connect/disconnect notices (device
// resets churn the registry and should not spam the player).
func (r *Registry) SetAnnouncementsSuppressed(suppressed bool) {
	r.suppressAnnounce = suppressed
}

func (r *Registry) armAnnounce() {
	if r.announceTimer != nil {
		r.announceTimer.SetLength(announceBatchWindow)
	}
}

// flushAnnouncements posts one batched notice per 250ms window, so a
// hub reset announces "4 controllers connected" instead of four lines.
func (r *Registry) flushAnnouncements() {
	connects, disconnects := r.pendingConnects, r.pendingDisconnects
	r.pendingConnects, r.pendingDisconnects = 0, 0
	r.announceTimer.SetLength(-1)

	if r.suppressAnnounce || r.ctx.Clock.Now() < announceStartupGrace {
		return
	}
	if connects > 0 && r.announcer != nil {
		text := "Controller connected"
		if connects > 1 {
			text = strconv.Itoa(connects) + " controllers connected"
		}
		r.announcer.PostScreenMessage(text, vmath.Vec3{X: 0.4, Y: 1, Z: 0.4})
		if r.cuer != nil {
			r.cuer.ChimeUp()
		}
	}
	if disconnects > 0 && r.announcer != nil {
		text := "Controller disconnected"
		if disconnects > 1 {
			text = strconv.Itoa(disconnects) + " controllers disconnected"
		}
		r.announcer.PostScreenMessage(text, vmath.Vec3{X: 1, Y: 0.6, Z: 0.3})
		if r.cuer != nil {
			r.cuer.ChimeDown()
		}
	}
}

func (r *Registry) checkThread(op string) {
	if !r.loop.ThreadIsCurrent() {
		r.ctx.FatalError("input registry %s called off the logic goroutine", op)
	}
}
