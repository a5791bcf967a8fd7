// Package status holds the small set of flags shared between the compositor,
// the panel driver and the HTTP API. Every field is a single atomic value; readers
// may observe a slightly stale value, never a torn one.
package status

import (
	"sync/atomic"

	"github.com/koios/matrx-display/internal/netstate"
)

// Status is passed by pointer to every component that reads or writes a flag.
// The sole writer of each field is noted on its accessor.
type Status struct {
	panelOn     atomic.Bool
	brightness  atomic.Uint32
	refreshRate atomic.Uint32
	systemUp    atomic.Bool
	network     atomic.Int32
}

// New returns a Status with the panel on at the given brightness
func New(brightness uint8) *Status {
	s := &Status{}
	s.panelOn.Store(true)
	s.brightness.Store(uint32(brightness))
	return s
}

// PanelOn reports whether the panel should be lit
func (s *Status) PanelOn() bool { return s.panelOn.Load() }

// SetPanelOn is written by the HTTP API only
func (s *Status) SetPanelOn(on bool) { s.panelOn.Store(on) }

// Brightness is the target panel brightness 0..255
func (s *Status) Brightness() uint8 { return uint8(s.brightness.Load()) }

// SetBrightness is written by the HTTP API only
func (s *Status) SetBrightness(b uint8) { s.brightness.Store(uint32(b)) }

// RefreshRate is the measured paints per second
func (s *Status) RefreshRate() uint32 { return s.refreshRate.Load() }

// SetRefreshRate is written by the panel driver only
func (s *Status) SetRefreshRate(fps uint32) { s.refreshRate.Store(fps) }

// SystemUp reports whether connectivity reached a ready state
func (s *Status) SystemUp() bool { return s.systemUp.Load() }

// SetSystemUp is written by the compositor only
func (s *Status) SetSystemUp(up bool) { s.systemUp.Store(up) }

// Connectivity is the state the compositor last acted on
func (s *Status) Connectivity() netstate.State { return netstate.State(s.network.Load()) }

// SetConnectivity is written by the compositor only
func (s *Status) SetConnectivity(st netstate.State) { s.network.Store(int32(st)) }

// Snapshot is a point-in-time copy for reporting
type Snapshot struct {
	PanelOn      bool           `json:"panel_on"`
	Brightness   uint8          `json:"brightness"`
	RefreshRate  uint32         `json:"refresh_rate"`
	SystemUp     bool           `json:"system_up"`
	Connectivity netstate.State `json:"connectivity"`
}

// Snapshot reads every flag once
func (s *Status) Snapshot() Snapshot {
	return Snapshot{
		PanelOn:      s.PanelOn(),
		Brightness:   s.Brightness(),
		RefreshRate:  s.RefreshRate(),
		SystemUp:     s.SystemUp(),
		Connectivity: s.Connectivity(),
	}
}
