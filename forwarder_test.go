package qnetsim

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// threeNodeChain wires A-R-B with one memory per qchannel on each side and
// classic channels for heralding/swap-update, but does not install any FIB
// entries or start entanglement generation — callers do that themselves.
func threeNodeChain(sim *Simulator) (net *Network, a, r, b *Node) {
	net = NewNetwork()
	a = NewNode("A", Async)
	r = NewNode("R", Async)
	b = NewNode("B", Async)
	a.LinkLayer, a.Forwarder = NewLinkLayer(1, 1), NewProactiveForwarder(1)
	r.LinkLayer, r.Forwarder = NewLinkLayer(1, 1), NewProactiveForwarder(1)
	b.LinkLayer, b.Forwarder = NewLinkLayer(1, 1), NewProactiveForwarder(1)
	net.AddNode(a)
	net.AddNode(r)
	net.AddNode(b)

	chAR := &QuantumChannel{Name: "q_a_r", NodeA: "A", NodeB: "R", Capacity: 1}
	chRB := &QuantumChannel{Name: "q_r_b", NodeA: "R", NodeB: "B", Capacity: 1}
	a.AddQChannel(chAR, NewQuantumMemory("q_a_r", 1, 0))
	r.AddQChannel(chAR, NewQuantumMemory("q_a_r", 1, 0))
	r.AddQChannel(chRB, NewQuantumMemory("q_r_b", 1, 0))
	b.AddQChannel(chRB, NewQuantumMemory("q_r_b", 1, 0))

	cchAR := &ClassicChannel{Name: "c_a_r", NodeA: "A", NodeB: "R", PropagationDelay: 0.01}
	cchRB := &ClassicChannel{Name: "c_r_b", NodeA: "R", NodeB: "B", PropagationDelay: 0.01}
	a.AddCChannel(cchAR)
	r.AddCChannel(cchAR)
	r.AddCChannel(cchRB)
	b.AddCChannel(cchRB)

	if err := net.Install(sim); err != nil {
		panic(err)
	}
	return net, a, r, b
}

func installChainFIB(net *Network, pathID int, swap []int) {
	route := []string{"A", "R", "B"}
	for _, name := range route {
		net.GetNode(name).Forwarder.FIB().InsertOrReplace(FIBEntry{
			PathID: pathID, RequestID: 1, PathVector: route, SwapSequence: swap,
		})
	}
}

func TestProactiveForwarderHandleControl(t *testing.T) {
	Convey("Given a forwarder installing a path it is not part of", t, func() {
		sim := NewSimulator(1, 1)
		net, _, r, _ := threeNodeChain(sim)
		_ = net

		Convey("HandleControl refuses with a configuration error", func() {
			err := r.Forwarder.HandleControl(sim, 1, 1, []string{"X", "Y"}, []int{0, 0}, nil, "B", nil)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a forwarder installing a valid path through itself", t, func() {
		sim := NewSimulator(1, 1)
		net, _, r, _ := threeNodeChain(sim)
		route := []string{"A", "R", "B"}
		swap := ChainSwapSequence(3)

		Convey("HandleControl records the FIB entry and activates the next hop", func() {
			err := r.Forwarder.HandleControl(sim, 5, 1, route, swap, nil, "B", nil)
			So(err, ShouldBeNil)

			entry, ok := r.Forwarder.FIB().Get(5)
			So(ok, ShouldBeTrue)
			So(entry.PathVector, ShouldResemble, route)

			sim.Run()
			mem := net.GetNode("R").MemoryFor("q_r_b")
			So(mem.Free(), ShouldEqual, 0) // buffer-space mux claimed the free slot toward B
		})
	})
}

func TestProactiveForwarderSwapChain(t *testing.T) {
	Convey("Given a 3-node chain with endpoints ranked above the repeater", t, func() {
		sim := NewSimulator(10, 1)
		net, a, r, b := threeNodeChain(sim)
		pathID := 1
		installChainFIB(net, pathID, ChainSwapSequence(3))
		// A path_id write lands only in a slot reserved for that path.
		a.MemoryFor("q_a_r").Allocate(pathID)
		r.MemoryFor("q_a_r").Allocate(pathID)
		r.MemoryFor("q_r_b").Allocate(pathID)
		b.MemoryFor("q_r_b").Allocate(pathID)

		eprAR := NewEPR("A", "R", 1.0, sim.Now())
		eprRB := NewEPR("R", "B", 1.0, sim.Now())
		slotA := a.MemoryFor("q_a_r").Write(eprAR, WriteOptions{PathID: &pathID})
		slotRA := r.MemoryFor("q_a_r").Write(eprAR, WriteOptions{PathID: &pathID})
		slotRB := r.MemoryFor("q_r_b").Write(eprRB, WriteOptions{PathID: &pathID})
		slotB := b.MemoryFor("q_r_b").Write(eprRB, WriteOptions{PathID: &pathID})
		So(slotA, ShouldNotBeNil)
		So(slotB, ShouldNotBeNil)

		r.Forwarder.processEntangledQubit(sim, QubitEntangledEvent{Node: "R", Neighbor: "A", Channel: "q_a_r", Addr: slotRA.Addr, PathID: &pathID})
		r.Forwarder.processEntangledQubit(sim, QubitEntangledEvent{Node: "R", Neighbor: "B", Channel: "q_r_b", Addr: slotRB.Addr, PathID: &pathID})
		sim.Run()

		Convey("The repeater swaps its two segments and never counts e2e itself", func() {
			So(r.Forwarder.E2ECount(), ShouldEqual, 0)
		})

		Convey("Both endpoints consume exactly one end-to-end pair", func() {
			So(a.Forwarder.E2ECount(), ShouldEqual, 1)
			So(b.Forwarder.E2ECount(), ShouldEqual, 1)
		})

		Convey("The endpoints' memories end up empty again", func() {
			So(a.MemoryFor("q_a_r").Free(), ShouldEqual, 1)
			So(b.MemoryFor("q_r_b").Free(), ShouldEqual, 1)
		})
	})
}

func TestProactiveForwarderSwapDisabled(t *testing.T) {
	Convey("Given a 3-node chain with swapping disabled", t, func() {
		sim := NewSimulator(10, 1)
		net, a, r, _ := threeNodeChain(sim)
		pathID := 1
		installChainFIB(net, pathID, DisabledSwapSequence(3))
		a.MemoryFor("q_a_r").Allocate(pathID)
		r.MemoryFor("q_a_r").Allocate(pathID)

		eprAR := NewEPR("A", "R", 1.0, sim.Now())
		slotA := a.MemoryFor("q_a_r").Write(eprAR, WriteOptions{PathID: &pathID})
		slotRA := r.MemoryFor("q_a_r").Write(eprAR, WriteOptions{PathID: &pathID})
		So(slotA, ShouldNotBeNil)

		r.Forwarder.processEntangledQubit(sim, QubitEntangledEvent{Node: "R", Neighbor: "A", Channel: "q_a_r", Addr: slotRA.Addr, PathID: &pathID})
		sim.Run()

		Convey("The repeater consumes its own segment directly instead of waiting to swap", func() {
			So(r.Forwarder.E2ECount(), ShouldEqual, 1)
			So(r.MemoryFor("q_a_r").Free(), ShouldEqual, 1)
		})

		Convey("No SWAP_UPDATE is ever sent", func() {
			So(sim.Pending(), ShouldEqual, 0)
		})
	})

	Convey("Given a swap-disabled path where both endpoints also reach eligible()", t, func() {
		sim := NewSimulator(10, 1)
		net, a, r, b := threeNodeChain(sim)
		pathID := 1
		installChainFIB(net, pathID, DisabledSwapSequence(3))
		a.MemoryFor("q_a_r").Allocate(pathID)
		r.MemoryFor("q_a_r").Allocate(pathID)
		r.MemoryFor("q_r_b").Allocate(pathID)
		b.MemoryFor("q_r_b").Allocate(pathID)

		eprAR := NewEPR("A", "R", 1.0, sim.Now())
		slotA := a.MemoryFor("q_a_r").Write(eprAR, WriteOptions{PathID: &pathID})
		slotRA := r.MemoryFor("q_a_r").Write(eprAR, WriteOptions{PathID: &pathID})
		eprRB := NewEPR("R", "B", 1.0, sim.Now())
		slotRB := r.MemoryFor("q_r_b").Write(eprRB, WriteOptions{PathID: &pathID})
		slotB := b.MemoryFor("q_r_b").Write(eprRB, WriteOptions{PathID: &pathID})
		So(slotA, ShouldNotBeNil)
		So(slotRB, ShouldNotBeNil)

		a.Forwarder.processEntangledQubit(sim, QubitEntangledEvent{Node: "A", Neighbor: "R", Channel: "q_a_r", Addr: slotA.Addr, PathID: &pathID})
		r.Forwarder.processEntangledQubit(sim, QubitEntangledEvent{Node: "R", Neighbor: "A", Channel: "q_a_r", Addr: slotRA.Addr, PathID: &pathID})
		r.Forwarder.processEntangledQubit(sim, QubitEntangledEvent{Node: "R", Neighbor: "B", Channel: "q_r_b", Addr: slotRB.Addr, PathID: &pathID})
		b.Forwarder.processEntangledQubit(sim, QubitEntangledEvent{Node: "B", Neighbor: "R", Channel: "q_r_b", Addr: slotB.Addr, PathID: &pathID})
		sim.Run()

		Convey("Only the interior node's releases count toward e2e_count", func() {
			So(r.Forwarder.E2ECount(), ShouldEqual, 2)
			So(a.Forwarder.E2ECount(), ShouldEqual, 0)
			So(b.Forwarder.E2ECount(), ShouldEqual, 0)
		})
	})
}
