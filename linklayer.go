package qnetsim

import "github.com/theapemachine/errnie"

// LinkLayer runs the per-link EPR generation loop of spec.md §4.1: geometric
// attempt waves, the two-way heralding handshake, and the timing-mode gate
// that decides when attempts may run.
type LinkLayer struct {
	AttemptRate  float64 // attempts per second, per memory slot
	InitFidelity float64

	node      *Node
	sim       *Simulator
	forwarder *ProactiveForwarder

	activeChannels map[string]string // qchannel name -> neighbor name
	syncPhase      SignalType
}

// NewLinkLayer builds a link layer attempting generation at attemptRate
// with newly-created pairs at initFidelity.
func NewLinkLayer(attemptRate, initFidelity float64) *LinkLayer {
	return &LinkLayer{
		AttemptRate:    attemptRate,
		InitFidelity:   initFidelity,
		activeChannels: make(map[string]string),
		syncPhase:      SignalExternal,
	}
}

func (ll *LinkLayer) install(n *Node, sim *Simulator) error {
	ll.node = n
	ll.sim = sim
	if n.Forwarder == nil {
		return NewConfigError(n.Name, "no proactive forwarder app installed")
	}
	ll.forwarder = n.Forwarder
	return nil
}

// ActivateLink adds or removes neighbor's qchannel from the set the link
// layer is actively generating entanglement over (spec.md §4.1
// "activate_link"). The change is scheduled rather than applied inline, so
// it is ordered with respect to other events at the current instant.
func (ll *LinkLayer) ActivateLink(sim *Simulator, neighbor string, typ TypeEnum) {
	sim.ScheduleAt(sim.Now(), "ll_manage_active:"+neighbor, func(sim *Simulator) {
		ll.handleManageActiveChannels(sim, neighbor, typ)
	})
}

func (ll *LinkLayer) handleManageActiveChannels(sim *Simulator, neighbor string, typ TypeEnum) {
	ch := ll.node.QChannelTo(neighbor)
	if ch == nil {
		errnie.Error("%s: no qchannel to %s", ll.node.Name, neighbor)
		return
	}
	ll.node.Observer.OnLinkActivation(sim, ll.node.Name, neighbor, typ)

	if typ == ChannelRemove {
		delete(ll.activeChannels, ch.Name)
		return
	}

	if _, ok := ll.activeChannels[ch.Name]; ok {
		errnie.Debug("%s: qchannel %s already active", ll.node.Name, ch.Name)
		return
	}
	ll.activeChannels[ch.Name] = neighbor
	if ll.node.TimingMode == Async || (ll.node.TimingMode == Sync && ll.syncPhase == SignalExternal) {
		ll.startAttemptWave(sim, ch, neighbor)
	}
	// LSYNC only starts generation at the next EXTERNAL_START signal; SYNC
	// starts at once inside an EXTERNAL phase and otherwise waits for the
	// next EXTERNAL signal (see onSyncSignal).
}

// startAttemptWave schedules one generation attempt per slot address, not
// one untargeted attempt per capacity unit: a buffer-space mux may have
// already reserved every slot for this path before generation starts
// (HandleControl → mux.Allocate runs before ActivateLink), and Write only
// accepts a RESERVED slot through its explicit-address branch. Addressing
// each attempt at its own slot keeps pre-reserved and plain FREE memories
// working the same way, and matches the explicit-address retries already
// used after a decoherence, a failed herald, or a released slot.
func (ll *LinkLayer) startAttemptWave(sim *Simulator, ch *QuantumChannel, neighbor string) {
	mem := ll.node.MemoryFor(ch.Name)
	if mem == nil {
		errnie.Error("%s: no memory for qchannel %s", ll.node.Name, ch.Name)
		return
	}
	for i := 0; i < mem.Capacity; i++ {
		delay := float64(i) / ll.AttemptRate
		addr := i
		sim.ScheduleAfter(delay, "attempt:"+ch.Name, func(sim *Simulator) {
			ll.generateEntanglement(sim, ch, neighbor, mem, &addr)
		})
	}
}

// generateEntanglement attempts one EPR generation over ch. address pins
// the attempt to a specific slot; every caller in this package passes one
// (each slot of the initial wave, and retries after a decoherence, a failed
// herald or a release). A nil address writes to any FREE slot.
func (ll *LinkLayer) generateEntanglement(sim *Simulator, ch *QuantumChannel, neighbor string, mem *QuantumMemory, address *int) {
	if ll.node.TimingMode == Sync && ll.syncPhase != SignalExternal {
		errnie.Debug("%s: EXT phase is over -> stop attempts", ll.node.Name)
		return
	}
	if _, ok := ll.activeChannels[ch.Name]; !ok {
		errnie.Debug("%s: qchannel not active", ll.node.Name)
		return
	}

	epr := ll.generateEPR(neighbor)
	opts := WriteOptions{}
	if address != nil {
		opts.Address = address
	}
	slot := mem.Write(epr, opts)
	if slot == nil {
		errnie.Debug("%s: (sender) attempt dropped, memory full", ll.node.Name)
		return
	}
	epr.PathID = slot.PathID

	neighborNode := ll.node.Network.GetNode(neighbor)
	ch.Send(sim, epr, func(sim *Simulator, epr *EPR, lost bool) {
		neighborNode.LinkLayer.onRecvQubit(sim, ch, ll.node.Name, epr, lost)
	})
}

func (ll *LinkLayer) generateEPR(dst string) *EPR {
	return NewEPR(ll.node.Name, dst, ll.InitFidelity, ll.sim.Now())
}

// onRecvQubit is the herald receive side (spec.md §4.1 "on_recv_qubit"): it
// accepts or refuses an incoming half-EPR and replies over the classical
// channel.
func (ll *LinkLayer) onRecvQubit(sim *Simulator, ch *QuantumChannel, fromNode string, epr *EPR, lost bool) {
	if ll.node.TimingMode == Sync && ll.syncPhase != SignalExternal {
		errnie.Debug("%s: EXT phase is over -> stop attempts", ll.node.Name)
		return
	}

	cch := ll.node.CChannelTo(fromNode)
	if cch == nil {
		errnie.Error("%s: no classic channel to %s", ll.node.Name, fromNode)
		return
	}

	if lost {
		ll.sendHerald(sim, cch, fromNode, "epr_failed", epr.PathID, epr.ID)
		return
	}

	mem := ll.node.MemoryFor(ch.Name)
	slot := mem.Write(epr, WriteOptions{PathID: epr.PathID})
	if slot == nil {
		ll.sendHerald(sim, cch, fromNode, "epr_failed", epr.PathID, epr.ID)
		return
	}

	ll.sendHerald(sim, cch, fromNode, "epr_succeeded", epr.PathID, epr.ID)
	ll.notifyEntangledQubit(sim, fromNode, mem, slot, cch.Delay())
}

func (ll *LinkLayer) sendHerald(sim *Simulator, cch *ClassicChannel, peer, cmd string, pathID *int, eprID string) {
	pkt := ClassicPacket{Src: ll.node.Name, Dst: peer, Herald: &HeraldMsg{Cmd: cmd, PathID: pathID, EPRID: eprID}}
	cch.Send(sim, pkt, func(sim *Simulator, pkt ClassicPacket) {
		peerNode := ll.node.Network.GetNode(peer)
		peerNode.LinkLayer.onRecvClassic(sim, cch, pkt)
	})
}

func (ll *LinkLayer) notifyEntangledQubit(sim *Simulator, neighbor string, mem *QuantumMemory, slot *Slot, delaySec float64) {
	slot.Transition(SlotEntangled)
	addr := slot.Addr
	pathID := slot.PathID
	sim.ScheduleAfter(delaySec, "qubit_entangled:"+mem.Name, func(sim *Simulator) {
		ev := QubitEntangledEvent{Node: ll.node.Name, Neighbor: neighbor, Channel: mem.Name, Addr: addr, PathID: pathID}
		ll.node.Observer.OnQubitEntangled(sim, ev)
		if ll.forwarder != nil {
			ll.forwarder.handleEntangledQubit(sim, ev)
		}
	})
}

// onRecvClassic is the initiator side of the herald (spec.md §4.1
// "on_recv_classic"): it reacts to the neighbor's epr_succeeded/epr_failed
// reply.
func (ll *LinkLayer) onRecvClassic(sim *Simulator, cch *ClassicChannel, pkt ClassicPacket) {
	if pkt.Herald == nil {
		return
	}
	if ll.node.TimingMode == Sync && ll.syncPhase != SignalExternal {
		errnie.Debug("%s: EXT phase is over -> stop attempts", ll.node.Name)
		return
	}

	fromNode := cch.OtherEnd(ll.node.Name)
	ch := ll.node.QChannelTo(fromNode)
	if ch == nil {
		errnie.Error("%s: no qchannel to %s", ll.node.Name, fromNode)
		return
	}
	mem := ll.node.MemoryFor(ch.Name)

	if _, active := ll.activeChannels[ch.Name]; !active {
		errnie.Debug("%s: qchannel not active", ll.node.Name)
		mem.Read(pkt.Herald.EPRID, nil)
		return
	}

	switch pkt.Herald.Cmd {
	case "epr_succeeded":
		slot, _ := mem.Get(pkt.Herald.EPRID, nil)
		if slot != nil {
			errnie.Debug("%s: epr_succeeded %s stored at %d", ll.node.Name, pkt.Herald.EPRID, slot.Addr)
			ll.notifyEntangledQubit(sim, fromNode, mem, slot, 0)
		}
	case "epr_failed":
		slot, _ := mem.Read(pkt.Herald.EPRID, nil)
		if slot != nil {
			addr := slot.Addr
			ll.generateEntanglement(sim, ch, fromNode, mem, &addr)
		}
	}
}

// onQubitDecohered retries generation on the same address when this node is
// the initiator of the link the decohered slot belongs to (spec.md §4.1
// "on_qubit_decohered").
func (ll *LinkLayer) onQubitDecohered(sim *Simulator, mem *QuantumMemory, slot *Slot) {
	neighbor, ok := ll.activeChannels[mem.Name]
	if !ok {
		return
	}
	if ll.node.TimingMode == LSync {
		errnie.Debug("%s: UNEXPECTED -> t_slot too short", ll.node.Name)
	}
	if ll.node.TimingMode == Sync {
		errnie.Debug("%s: UNEXPECTED -> (t_ext + t_int) too short", ll.node.Name)
	}
	ch := ll.node.QChannelTo(neighbor)
	addr := slot.Addr
	ll.generateEntanglement(sim, ch, neighbor, mem, &addr)
}

// onQubitReleased retries generation immediately in ASYNC mode when this
// node initiates the link the released slot belongs to (spec.md §4.1
// "on_qubit_released"). LSYNC and SYNC restart every active channel's
// attempt wave wholesale at the next phase signal instead.
func (ll *LinkLayer) onQubitReleased(sim *Simulator, mem *QuantumMemory, addr int) {
	if ll.node.TimingMode != Async {
		return
	}
	neighbor, ok := ll.activeChannels[mem.Name]
	if !ok {
		return
	}
	ch := ll.node.QChannelTo(neighbor)
	a := addr
	ll.generateEntanglement(sim, ch, neighbor, mem, &a)
}

// onSyncSignal reacts to a TimingDriver phase signal (spec.md §4.4): LSYNC
// clears memories and restarts every active channel's attempt wave at each
// EXTERNAL_START; SYNC does the same at the start of every EXTERNAL phase
// and falls silent during INTERNAL.
func (ll *LinkLayer) onSyncSignal(sim *Simulator, signal SignalType) {
	errnie.Debug("%s:[%v] TIMING SIGNAL <%v>", ll.node.Name, ll.node.TimingMode, signal)
	switch {
	case ll.node.TimingMode == LSync && signal == SignalExternalStart:
		ll.clearAndRestart(sim)
	case ll.node.TimingMode == Sync:
		ll.syncPhase = signal
		if signal == SignalExternal {
			ll.clearAndRestart(sim)
		}
	}
}

func (ll *LinkLayer) clearAndRestart(sim *Simulator) {
	for _, mem := range ll.node.Memories {
		mem.Clear()
	}
	for chName, neighbor := range ll.activeChannels {
		ll.startAttemptWave(sim, ll.node.QChannels[chName], neighbor)
	}
}
