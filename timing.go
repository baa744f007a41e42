package qnetsim

import "github.com/theapemachine/errnie"

// TimingMode selects the discipline governing when the link layer may
// attempt EPR generation and when the forwarder may swap (spec.md §4.4).
type TimingMode int

const (
	Async TimingMode = iota
	LSync
	Sync
)

func (m TimingMode) String() string {
	switch m {
	case Async:
		return "ASYNC"
	case LSync:
		return "LSYNC"
	case Sync:
		return "SYNC"
	default:
		return "UNKNOWN"
	}
}

// SignalType enumerates the phase signals a TimingDriver broadcasts.
type SignalType int

const (
	SignalExternalStart SignalType = iota
	SignalExternal
	SignalInternal
)

func (s SignalType) String() string {
	switch s {
	case SignalExternalStart:
		return "EXTERNAL_START"
	case SignalExternal:
		return "EXTERNAL"
	case SignalInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// TimingDriver periodically broadcasts phase signals to every attached
// node's link layer and forwarder, implementing the LSYNC and SYNC timing
// disciplines of spec.md §4.4. ASYNC nodes need no driver.
type TimingDriver struct {
	mode       TimingMode
	tSlot      float64
	tExt, tInt float64
	nodes      []*Node
}

// NewLSyncDriver builds a driver that fires EXTERNAL_START every tSlot
// seconds.
func NewLSyncDriver(tSlot float64) *TimingDriver {
	return &TimingDriver{mode: LSync, tSlot: tSlot}
}

// NewSyncDriver builds a driver alternating EXTERNAL (tExt seconds) and
// INTERNAL (tInt seconds) phases.
func NewSyncDriver(tExt, tInt float64) *TimingDriver {
	return &TimingDriver{mode: Sync, tExt: tExt, tInt: tInt}
}

// Attach registers nodes to receive this driver's phase signals.
func (d *TimingDriver) Attach(nodes ...*Node) {
	d.nodes = append(d.nodes, nodes...)
}

// Start schedules the driver's first phase transition.
func (d *TimingDriver) Start(sim *Simulator) {
	switch d.mode {
	case LSync:
		d.scheduleLSyncTick(sim)
	case Sync:
		d.scheduleSyncExternal(sim)
	}
}

func (d *TimingDriver) scheduleLSyncTick(sim *Simulator) {
	sim.ScheduleAfter(d.tSlot, "lsync_tick", func(sim *Simulator) {
		d.broadcast(sim, SignalExternalStart)
		d.scheduleLSyncTick(sim)
	})
}

func (d *TimingDriver) scheduleSyncExternal(sim *Simulator) {
	d.broadcast(sim, SignalExternal)
	sim.ScheduleAfter(d.tExt, "sync_to_internal", func(sim *Simulator) {
		d.broadcast(sim, SignalInternal)
		sim.ScheduleAfter(d.tInt, "sync_to_external", func(sim *Simulator) {
			d.scheduleSyncExternal(sim)
		})
	})
}

func (d *TimingDriver) broadcast(sim *Simulator, signal SignalType) {
	for _, n := range d.nodes {
		errnie.Debug("timing driver: broadcasting %v to %s", signal, n.Name)
		if n.LinkLayer != nil {
			n.LinkLayer.onSyncSignal(sim, signal)
		}
		if n.Forwarder != nil {
			n.Forwarder.onSyncSignal(sim, signal)
		}
	}
}
