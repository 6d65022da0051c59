package input

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Device is the capability surface of a connected input device.
// Capability checks go through these methods, never through type
// assertions on concrete device types.
type Device interface {
	// RawType is the human-facing device family name ("keyboard",
	// "gamepad"); numbering disambiguates within one raw type.
	RawType() string
	// PersistentIdentifier distinguishes physical units of the same
	// raw type across reconnects (serial, HID path). Empty means the
	// device cannot be told apart from its siblings.
	PersistentIdentifier() string

	IsController() bool
	IsKeyboard() bool
	IsTouch() bool
	IsLocal() bool
	IsUIOnly() bool
}

// DeviceInfo is a ready-made Device implementation for platforms that
// describe their devices as plain data.
type DeviceInfo struct {
	Type       string
	Identifier string
	Controller bool
	Keyboard   bool
	Touch      bool
	Remote     bool
	UIOnly     bool
}

func (d DeviceInfo) RawType() string              { return d.Type }
func (d DeviceInfo) PersistentIdentifier() string { return d.Identifier }
func (d DeviceInfo) IsController() bool           { return d.Controller }
func (d DeviceInfo) IsKeyboard() bool             { return d.Keyboard }
func (d DeviceInfo) IsTouch() bool                { return d.Touch }
func (d DeviceInfo) IsLocal() bool                { return !d.Remote }
func (d DeviceInfo) IsUIOnly() bool               { return d.UIOnly }

// entry is one occupied registry slot.
type entry struct {
	dev       Device
	index     int // slot, reused after removal
	number    int // stable human-facing disambiguator per raw type
	instance  uuid.UUID
	lastInput time.Duration // app time of most recent event
	added     time.Duration
}

// Handle identifies a registered device to callers outside the
// registry.
type Handle struct {
	Index    int
	Number   int
	Instance uuid.UUID
}

// Label renders the human-facing name: the bare raw type while the
// device is the only one of its kind and numbered from the start
// otherwise.
func (r *Registry) Label(h Handle) string {
	e := r.slot(h)
	if e == nil {
		return ""
	}
	if e.number == 1 && r.countRawType(e.dev.RawType()) == 1 {
		return e.dev.RawType()
	}
	return e.dev.RawType() + " #" + strconv.Itoa(e.number)
}
