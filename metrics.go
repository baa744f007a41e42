package qnetsim

// Observer receives the monitored events the forwarding core emits
// (spec.md §6 "Monitored events"), for statistics collection external to
// the core itself.
type Observer interface {
	OnQubitEntangled(sim *Simulator, ev QubitEntangledEvent)
	OnQubitReleased(sim *Simulator, ev QubitReleasedEvent)
	OnQubitDecohered(sim *Simulator, ev QubitDecoheredEvent)
	OnEndToEndEntanglement(sim *Simulator, ev EndToEndEntanglementEvent)
	OnLinkActivation(sim *Simulator, node, neighbor string, typ TypeEnum)
}

// NopObserver implements Observer with no-ops. Embed it in a custom
// collector to override only the events it cares about.
type NopObserver struct{}

func (NopObserver) OnQubitEntangled(*Simulator, QubitEntangledEvent)             {}
func (NopObserver) OnQubitReleased(*Simulator, QubitReleasedEvent)               {}
func (NopObserver) OnQubitDecohered(*Simulator, QubitDecoheredEvent)             {}
func (NopObserver) OnEndToEndEntanglement(*Simulator, EndToEndEntanglementEvent) {}
func (NopObserver) OnLinkActivation(*Simulator, string, string, TypeEnum)        {}

// Metrics is a counting Observer tracking the operational quantities
// spec.md §1 calls out: E2E count, decoherence count, release count, and
// entanglement count, all per node. Leaves out percentile/t-digest
// machinery for latency distributions, which this module has no equivalent
// of reporting.
type Metrics struct {
	NopObserver

	EntangledCount map[string]int
	ReleasedCount  map[string]int
	DecoheredCount map[string]int
	E2ECount       map[string]int
}

// NewMetrics builds an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{
		EntangledCount: make(map[string]int),
		ReleasedCount:  make(map[string]int),
		DecoheredCount: make(map[string]int),
		E2ECount:       make(map[string]int),
	}
}

func (m *Metrics) OnQubitEntangled(_ *Simulator, ev QubitEntangledEvent) { m.EntangledCount[ev.Node]++ }
func (m *Metrics) OnQubitReleased(_ *Simulator, ev QubitReleasedEvent)   { m.ReleasedCount[ev.Node]++ }
func (m *Metrics) OnQubitDecohered(_ *Simulator, ev QubitDecoheredEvent) { m.DecoheredCount[ev.Node]++ }
func (m *Metrics) OnEndToEndEntanglement(_ *Simulator, ev EndToEndEntanglementEvent) {
	m.E2ECount[ev.Node]++
}

// Occupancy reports a node's memories' used/capacity snapshot at call time,
// for sampling memory occupancy during a run.
func Occupancy(n *Node) map[string][2]int {
	out := make(map[string][2]int, len(n.Memories))
	for name, mem := range n.Memories {
		out[name] = [2]int{mem.Capacity - mem.Free(), mem.Capacity}
	}
	return out
}
