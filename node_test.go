package qnetsim

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNodeChannelLookup(t *testing.T) {
	Convey("Given a node with a qchannel and a cchannel to a neighbor", t, func() {
		n := NewNode("alice", Async)
		qch := &QuantumChannel{Name: "q_alice_bob", NodeA: "alice", NodeB: "bob", Capacity: 1}
		cch := &ClassicChannel{Name: "c_alice_bob", NodeA: "alice", NodeB: "bob"}
		mem := NewQuantumMemory("q_alice_bob", 1, 0)
		n.AddQChannel(qch, mem)
		n.AddCChannel(cch)

		Convey("QChannelTo and CChannelTo resolve by neighbor name", func() {
			So(n.QChannelTo("bob"), ShouldEqual, qch)
			So(n.CChannelTo("bob"), ShouldEqual, cch)
			So(n.QChannelTo("carol"), ShouldBeNil)
		})

		Convey("MemoryFor resolves the memory bound to the qchannel", func() {
			So(n.MemoryFor("q_alice_bob"), ShouldEqual, mem)
		})
	})
}

func TestNodeInstallRequiresBothApps(t *testing.T) {
	Convey("Given a node with only a link layer installed", t, func() {
		n := NewNode("alice", Async)
		n.LinkLayer = NewLinkLayer(1, 1)
		sim := NewSimulator(1, 1)

		Convey("Install fails because the forwarder dependency is missing", func() {
			err := n.Install(sim)
			So(err, ShouldNotBeNil)
			_, ok := err.(*ConfigError)
			So(ok, ShouldBeTrue)
		})
	})

	Convey("Given a node with only a forwarder installed", t, func() {
		n := NewNode("alice", Async)
		n.Forwarder = NewProactiveForwarder(1)
		sim := NewSimulator(1, 1)

		Convey("Install fails because the link layer dependency is missing", func() {
			err := n.Install(sim)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a node with both apps installed", t, func() {
		n := NewNode("alice", Async)
		n.LinkLayer = NewLinkLayer(1, 1)
		n.Forwarder = NewProactiveForwarder(1)
		sim := NewSimulator(1, 1)

		Convey("Install succeeds", func() {
			So(n.Install(sim), ShouldBeNil)
		})
	})
}

func TestNetworkInstall(t *testing.T) {
	Convey("Given a network of two fully-configured nodes", t, func() {
		net := NewNetwork()
		for _, name := range []string{"alice", "bob"} {
			n := NewNode(name, Async)
			n.LinkLayer = NewLinkLayer(1, 1)
			n.Forwarder = NewProactiveForwarder(1)
			net.AddNode(n)
		}
		sim := NewSimulator(1, 1)

		Convey("Install succeeds for every node and GetNode resolves them", func() {
			So(net.Install(sim), ShouldBeNil)
			So(net.GetNode("alice"), ShouldNotBeNil)
			So(net.GetNode("carol"), ShouldBeNil)
		})
	})

	Convey("Given a network with one misconfigured node", t, func() {
		net := NewNetwork()
		ok := NewNode("alice", Async)
		ok.LinkLayer = NewLinkLayer(1, 1)
		ok.Forwarder = NewProactiveForwarder(1)
		net.AddNode(ok)

		broken := NewNode("bob", Async)
		broken.LinkLayer = NewLinkLayer(1, 1)
		net.AddNode(broken)

		sim := NewSimulator(1, 1)

		Convey("Install surfaces the first configuration error", func() {
			err := net.Install(sim)
			So(err, ShouldNotBeNil)
		})
	})
}
