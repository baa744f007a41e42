package qnetsim

// Node is one repeater of the network: a named bundle of quantum and
// classical channels, one memory per qchannel, and the LL/PF apps
// installed on it (spec.md §3 "Node").
type Node struct {
	Name       string
	TimingMode TimingMode

	Memories  map[string]*QuantumMemory // keyed by qchannel name
	QChannels map[string]*QuantumChannel
	CChannels map[string]*ClassicChannel

	LinkLayer *LinkLayer
	Forwarder *ProactiveForwarder

	Observer Observer
	Network  *Network
}

// NewNode builds a bare node with no channels or apps attached.
func NewNode(name string, mode TimingMode) *Node {
	return &Node{
		Name:       name,
		TimingMode: mode,
		Memories:   make(map[string]*QuantumMemory),
		QChannels:  make(map[string]*QuantumChannel),
		CChannels:  make(map[string]*ClassicChannel),
		Observer:   NopObserver{},
	}
}

// AddQChannel registers a quantum channel and its paired memory, keyed by
// the channel's name per the one-memory-per-qchannel convention.
func (n *Node) AddQChannel(ch *QuantumChannel, mem *QuantumMemory) {
	n.QChannels[ch.Name] = ch
	n.Memories[ch.Name] = mem
}

// AddCChannel registers a classical channel.
func (n *Node) AddCChannel(ch *ClassicChannel) {
	n.CChannels[ch.Name] = ch
}

// QChannelTo finds the quantum channel connecting this node to neighbor.
func (n *Node) QChannelTo(neighbor string) *QuantumChannel {
	for _, ch := range n.QChannels {
		if ch.NodeA == neighbor || ch.NodeB == neighbor {
			return ch
		}
	}
	return nil
}

// CChannelTo finds the classical channel connecting this node to neighbor.
func (n *Node) CChannelTo(neighbor string) *ClassicChannel {
	for _, ch := range n.CChannels {
		if ch.NodeA == neighbor || ch.NodeB == neighbor {
			return ch
		}
	}
	return nil
}

// MemoryFor returns the memory bound to the named qchannel.
func (n *Node) MemoryFor(channelName string) *QuantumMemory {
	return n.Memories[channelName]
}

// Install wires every memory's decoherence callback and installs this
// node's apps. It returns a *ConfigError if an app's dependency (LL needs
// PF and vice versa) is missing, matching spec.md §7's fatal
// configuration-error class.
func (n *Node) Install(sim *Simulator) error {
	for _, mem := range n.Memories {
		mem.Install(sim)
		mem.OnDecohered = n.handleDecohered
	}
	if n.Forwarder != nil {
		if err := n.Forwarder.install(n, sim); err != nil {
			return err
		}
	}
	if n.LinkLayer != nil {
		if err := n.LinkLayer.install(n, sim); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) handleDecohered(sim *Simulator, mem *QuantumMemory, slot *Slot) {
	n.Observer.OnQubitDecohered(sim, QubitDecoheredEvent{Node: n.Name, Channel: mem.Name, Addr: slot.Addr})
	if n.LinkLayer != nil {
		n.LinkLayer.onQubitDecohered(sim, mem, slot)
	}
}

// Network is the set of nodes reachable by name, used for next-hop and
// peer lookups by the link layer and forwarder.
type Network struct {
	Nodes map[string]*Node
}

// NewNetwork builds an empty network.
func NewNetwork() *Network {
	return &Network{Nodes: make(map[string]*Node)}
}

// AddNode registers n and binds its back-reference to this network.
func (net *Network) AddNode(n *Node) {
	n.Network = net
	net.Nodes[n.Name] = n
}

// GetNode looks up a node by name.
func (net *Network) GetNode(name string) *Node {
	return net.Nodes[name]
}

// Install installs every node's apps. It returns the first *ConfigError
// encountered; per spec.md §7 the simulator must not start when one
// occurs.
func (net *Network) Install(sim *Simulator) error {
	for _, n := range net.Nodes {
		if err := n.Install(sim); err != nil {
			return err
		}
	}
	return nil
}
