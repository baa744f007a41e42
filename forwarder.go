package qnetsim

import "github.com/theapemachine/errnie"

// parallelSwapRecord reconciles a racing swap performed independently by an
// equal-rank neighbor (spec.md §4.2 "parallel-swap bookkeeping"). shared is
// the EPR this node shared with that neighbor before swapping; other is
// this node's other segment; myNew is the pair this node produced by
// swapping them.
type parallelSwapRecord struct {
	shared *EPR
	other  *EPR
	myNew  *EPR
}

// ProactiveForwarder drives path-level entanglement swapping (spec.md
// §4.2): once the link layer reports an ENTANGLED slot, it decides whether
// to swap with another eligible qubit of the same path, in rank order, and
// reconciles same-rank neighbors racing to swap simultaneously.
type ProactiveForwarder struct {
	Ps float64 // swap success probability

	node      *Node
	sim       *Simulator
	linkLayer *LinkLayer

	fib               *ForwardingInformationBase
	parallelSwappings map[string]parallelSwapRecord

	waitingQubits []QubitEntangledEvent // SYNC mode: queued until INTERNAL
	syncPhase     SignalType

	e2eCount int
}

// NewProactiveForwarder builds a forwarder with an empty FIB, swapping
// with probability ps.
func NewProactiveForwarder(ps float64) *ProactiveForwarder {
	return &ProactiveForwarder{
		Ps:                ps,
		fib:               NewForwardingInformationBase(),
		parallelSwappings: make(map[string]parallelSwapRecord),
		syncPhase:         SignalInternal,
	}
}

func (pf *ProactiveForwarder) install(n *Node, sim *Simulator) error {
	pf.node = n
	pf.sim = sim
	if n.LinkLayer == nil {
		return NewConfigError(n.Name, "no link layer app installed")
	}
	pf.linkLayer = n.LinkLayer
	return nil
}

// E2ECount returns the number of end-to-end pairs this node has consumed.
func (pf *ProactiveForwarder) E2ECount() int { return pf.e2eCount }

// FIB exposes the forwarder's forwarding table for inspection.
func (pf *ProactiveForwarder) FIB() *ForwardingInformationBase { return pf.fib }

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// HandleControl installs a controller-assigned path: it resolves this
// node's prev/next neighbors on route, allocates buffer-space qubits per
// mv when mux is buffer-space ("B"), installs the FIB entry, and kicks off
// the link layer toward the next hop (spec.md §4.2 "handle_control",
// §6 "Controller → node message").
func (pf *ProactiveForwarder) HandleControl(sim *Simulator, pathID, requestID int, route []string, swap []int, purif map[string]int, mux string, mv []int) error {
	idx := indexOf(route, pf.node.Name)
	if idx < 0 {
		return NewConfigError(pf.node.Name, "node not found in route vector")
	}

	var prevNeighbor, nextNeighbor string
	if idx > 0 {
		prevNeighbor = route[idx-1]
	}
	if idx < len(route)-1 {
		nextNeighbor = route[idx+1]
	}

	var prevMem, nextMem *QuantumMemory
	if prevNeighbor != "" {
		ch := pf.node.QChannelTo(prevNeighbor)
		if ch == nil {
			return NewConfigError(pf.node.Name, "no qchannel to prev neighbor "+prevNeighbor)
		}
		prevMem = pf.node.MemoryFor(ch.Name)
	}
	if nextNeighbor != "" {
		ch := pf.node.QChannelTo(nextNeighbor)
		if ch == nil {
			return NewConfigError(pf.node.Name, "no qchannel to next neighbor "+nextNeighbor)
		}
		nextMem = pf.node.MemoryFor(ch.Name)
	}

	scheme, err := MuxSchemeFor(pf.node.Name, mux)
	if err != nil {
		return err
	}
	if err := scheme.Allocate(pf.node.Name, idx, mv, pathID, prevMem, nextMem); err != nil {
		return err
	}

	pf.fib.InsertOrReplace(FIBEntry{
		PathID:             pathID,
		RequestID:          requestID,
		PathVector:         route,
		SwapSequence:       swap,
		PurificationScheme: purif,
	})

	if nextNeighbor != "" {
		pf.linkLayer.ActivateLink(sim, nextNeighbor, ChannelAdd)
	}
	return nil
}

// handleEntangledQubit is the forwarder's reaction to a QubitEntangledEvent
// from the link layer. Under SYNC it is queued while an EXTERNAL phase runs
// (for processing at the next INTERNAL signal) and dropped when it arrives
// in any other phase; otherwise it is processed immediately.
func (pf *ProactiveForwarder) handleEntangledQubit(sim *Simulator, ev QubitEntangledEvent) {
	if pf.node.TimingMode == Sync {
		if pf.syncPhase == SignalExternal {
			pf.waitingQubits = append(pf.waitingQubits, ev)
		}
		return
	}
	pf.processEntangledQubit(sim, ev)
}

func (pf *ProactiveForwarder) processEntangledQubit(sim *Simulator, ev QubitEntangledEvent) {
	if ev.PathID == nil {
		errnie.Debug("%s: qubit not allocated to any path, statistical mux not supported yet", pf.node.Name)
		return
	}
	entry, ok := pf.fib.Get(*ev.PathID)
	if !ok {
		errnie.Error("%s: no FIB entry for path %d", pf.node.Name, *ev.PathID)
		return
	}
	if !pf.evalSwappingConditions(entry, ev.Neighbor) {
		return
	}
	mem := pf.node.MemoryFor(ev.Channel)
	if mem == nil {
		errnie.Error("%s: no memory for qchannel %s", pf.node.Name, ev.Channel)
		return
	}
	slot := mem.SlotAt(ev.Addr)
	if slot == nil || slot.EPR == nil {
		return
	}
	slot.Transition(SlotPurif)
	pf.purify(sim, mem, slot, entry, ev.Neighbor)
}

// eval_swapping_conditions: a qubit becomes eligible to purify/swap once
// its partner's rank is at least this node's rank.
func (pf *ProactiveForwarder) evalSwappingConditions(entry FIBEntry, partner string) bool {
	_, ownRank, _ := FindIndexAndSwappingRank(entry, pf.node.Name)
	_, partnerRank, ok := FindIndexAndSwappingRank(entry, partner)
	if !ok {
		return false
	}
	return partnerRank >= ownRank
}

// purify is a scaffold: purification rounds are not implemented (spec.md
// §1 Non-goal iii), so every qubit passes straight through to ELIGIBLE.
func (pf *ProactiveForwarder) purify(sim *Simulator, mem *QuantumMemory, slot *Slot, entry FIBEntry, partner string) {
	slot.Transition(SlotEligible)
	pf.eligible(sim, mem, slot, entry)
}

// eligible is the core swap algorithm (spec.md §4.2, steps 1-5): at an
// intermediate node it looks for a second eligible qubit on the path and
// swaps. At an end node it consumes the qubit as the completed end-to-end
// pair. On a swap-disabled path (fib.go's IsSwapDisabled) no swapping ever
// happens, so every node releases its own segment directly instead, but only
// an interior node's release counts as the end-to-end pair (spec.md §8
// scenario 5): the endpoints are just giving up an elementary link, not
// receiving the path's entanglement, so they stay out of e2e_count.
func (pf *ProactiveForwarder) eligible(sim *Simulator, mem *QuantumMemory, slot *Slot, entry FIBEntry) {
	if pf.node.TimingMode == Sync && pf.syncPhase != SignalInternal {
		errnie.Debug("%s: INT phase is over -> stop swaps", pf.node.Name)
		return
	}

	route := entry.PathVector
	ownIdx := indexOf(route, pf.node.Name)
	isEndpoint := ownIdx == 0 || ownIdx == len(route)-1
	disabled := IsSwapDisabled(entry)

	if !isEndpoint && !disabled {
		pf.swapIntermediate(sim, mem, slot, entry, ownIdx)
		return
	}

	addr := slot.Addr
	slot.Transition(SlotReleased)
	_, epr := mem.Read("", &addr)

	countsE2E := !isEndpoint || !disabled
	if countsE2E {
		errnie.Debug("%s: consume e2e entanglement: %s - %s", pf.node.Name, epr.Src, epr.Dst)
		pf.e2eCount++
	} else {
		errnie.Debug("%s: release segment (swap disabled, endpoint): %s - %s", pf.node.Name, epr.Src, epr.Dst)
	}

	isSource := pf.node.Name == route[0]
	pf.node.Observer.OnQubitReleased(sim, QubitReleasedEvent{Node: pf.node.Name, Channel: mem.Name, Addr: addr, E2E: isSource && countsE2E})
	if countsE2E {
		pf.node.Observer.OnEndToEndEntanglement(sim, EndToEndEntanglementEvent{Node: pf.node.Name, EPRID: epr.ID})
	}
	pf.linkLayer.onQubitReleased(sim, mem, addr)
}

func swapResultLabel(e *EPR) string {
	if e != nil {
		return "SUCC"
	}
	return "FAILED"
}

// swapIntermediate performs the swap between slot (on mem) and a second
// eligible qubit found on another memory of the same path, notifying both
// outer partners via SWAP_UPDATE (spec.md §4.2 steps 2-5).
func (pf *ProactiveForwarder) swapIntermediate(sim *Simulator, mem *QuantumMemory, slot *Slot, entry FIBEntry, ownIdx int) {
	route := entry.PathVector
	swapSeq := entry.SwapSequence

	otherMem, otherSlots := pf.checkEligibleQubit(mem, entry.PathID)
	if otherMem == nil {
		return
	}
	otherSlot := otherSlots[0]

	thisEPR := slot.EPR
	otherEPR := otherSlot.EPR

	var prevPartner, nextPartner string
	var prevEPR, nextEPR *EPR
	var prevMem, nextMem *QuantumMemory
	var prevSlot, nextSlot *Slot

	switch {
	case thisEPR.Dst == pf.node.Name:
		prevPartner, prevEPR, prevMem, prevSlot = thisEPR.Src, thisEPR, mem, slot
		nextPartner, nextEPR, nextMem, nextSlot = otherEPR.Dst, otherEPR, otherMem, otherSlot
	case thisEPR.Src == pf.node.Name:
		prevPartner, prevEPR, prevMem, prevSlot = otherEPR.Src, otherEPR, otherMem, otherSlot
		nextPartner, nextEPR, nextMem, nextSlot = thisEPR.Dst, thisEPR, mem, slot
	default:
		errnie.Error("%s: unexpected swapping EPRs %s x %s", pf.node.Name, thisEPR.ID, otherEPR.ID)
		return
	}

	if prevEPR.IsElementary() {
		idx := ownIdx - 1
		prevEPR.ChIndex = &idx
	}
	if nextEPR.IsElementary() {
		idx := ownIdx
		nextEPR.ChIndex = &idx
	}

	newEPR := thisEPR.Swapping(otherEPR, pf.Ps, sim.RNG())
	errnie.Debug("%s: swap %s | %s.%d x %s.%d", pf.node.Name, swapResultLabel(newEPR), mem.Name, slot.Addr, otherMem.Name, otherSlot.Addr)

	if newEPR != nil {
		newEPR.Src = prevPartner
		newEPR.Dst = nextPartner

		ownRank := swapSeq[ownIdx]
		if _, rank, ok := FindIndexAndSwappingRank(entry, prevPartner); ok && rank == ownRank {
			pf.parallelSwappings[prevEPR.ID] = parallelSwapRecord{shared: prevEPR, other: nextEPR, myNew: newEPR}
		}
		if _, rank, ok := FindIndexAndSwappingRank(entry, nextPartner); ok && rank == ownRank {
			pf.parallelSwappings[nextEPR.ID] = parallelSwapRecord{shared: nextEPR, other: prevEPR, myNew: newEPR}
		}
	}

	pf.sendSwapUpdate(sim, prevPartner, SwapUpdateMsg{
		PathID: entry.PathID, SwappingNode: pf.node.Name, Partner: nextPartner,
		EPR: prevEPR.ID, NewEPR: newEPR, Destination: prevPartner, Fwd: false,
	}, route, false)
	pf.sendSwapUpdate(sim, nextPartner, SwapUpdateMsg{
		PathID: entry.PathID, SwappingNode: pf.node.Name, Partner: prevPartner,
		EPR: nextEPR.ID, NewEPR: newEPR, Destination: nextPartner, Fwd: false,
	}, route, false)

	addr1 := slot.Addr
	slot.Transition(SlotReleased)
	mem.Read("", &addr1)
	addr2 := otherSlot.Addr
	otherSlot.Transition(SlotReleased)
	otherMem.Read("", &addr2)

	pf.node.Observer.OnQubitReleased(sim, QubitReleasedEvent{Node: pf.node.Name, Channel: prevMem.Name, Addr: prevSlot.Addr})
	pf.linkLayer.onQubitReleased(sim, prevMem, prevSlot.Addr)

	nextAddr := nextSlot.Addr
	sim.ScheduleAfter(1e-6, "release_next_slot", func(sim *Simulator) {
		pf.node.Observer.OnQubitReleased(sim, QubitReleasedEvent{Node: pf.node.Name, Channel: nextMem.Name, Addr: nextAddr})
		pf.linkLayer.onQubitReleased(sim, nextMem, nextAddr)
	})
}

// checkEligibleQubit looks across this node's other memories for an
// ELIGIBLE slot of the same path.
func (pf *ProactiveForwarder) checkEligibleQubit(mem *QuantumMemory, pathID int) (*QuantumMemory, []*Slot) {
	for _, m := range pf.node.Memories {
		if m.Name == mem.Name {
			continue
		}
		if slots := m.SearchEligibleQubits(pathID); len(slots) > 0 {
			return m, slots
		}
	}
	return nil, nil
}

func (pf *ProactiveForwarder) findSlotByEPR(eprID string) (*QuantumMemory, *Slot) {
	for _, mem := range pf.node.Memories {
		if slot, _ := mem.Get(eprID, nil); slot != nil {
			return mem, slot
		}
	}
	return nil, nil
}

func (pf *ProactiveForwarder) releaseSlot(sim *Simulator, mem *QuantumMemory, slot *Slot) {
	addr := slot.Addr
	slot.Transition(SlotReleased)
	mem.Read("", &addr)
	pf.node.Observer.OnQubitReleased(sim, QubitReleasedEvent{Node: pf.node.Name, Channel: mem.Name, Addr: addr})
	pf.linkLayer.onQubitReleased(sim, mem, addr)
}

// onRecvSwapUpdate handles an incoming SWAP_UPDATE message (spec.md §4.2
// "on receiving SWAP_UPDATE"): forward it if this node isn't the
// destination, otherwise apply it to the local slot, reconciling a
// parallel swap when the sender shares this node's rank.
func (pf *ProactiveForwarder) onRecvSwapUpdate(sim *Simulator, msg SwapUpdateMsg) {
	if pf.node.TimingMode == Sync && pf.syncPhase != SignalInternal {
		errnie.Debug("%s: INT phase is over -> stop swaps", pf.node.Name)
		return
	}

	entry, ok := pf.fib.Get(msg.PathID)
	if !ok {
		errnie.Error("%s: FIB entry not found for path %d", pf.node.Name, msg.PathID)
		return
	}

	_, senderRank, ok := FindIndexAndSwappingRank(entry, msg.SwappingNode)
	if !ok {
		errnie.Error("%s: swapping node %s not on path", pf.node.Name, msg.SwappingNode)
		return
	}
	_, ownRank, _ := FindIndexAndSwappingRank(entry, pf.node.Name)

	if msg.Destination != pf.node.Name {
		if ownRank <= senderRank {
			fwd := msg
			fwd.Fwd = true
			pf.sendSwapUpdate(sim, msg.Destination, fwd, entry.PathVector, false)
		} else {
			errnie.Error("%s: VERIFY -> not the swapping dest and did not swap", pf.node.Name)
		}
		return
	}

	switch {
	case ownRank > senderRank:
		pf.handleSwapUpdateUnswappedDest(sim, entry, msg)
	case ownRank == senderRank:
		pf.handleSwapUpdateParallelDest(sim, entry, msg)
	default:
		errnie.Error("%s: VERIFY -> rcvd SU from higher-rank node", pf.node.Name)
	}
}

func (pf *ProactiveForwarder) handleSwapUpdateUnswappedDest(sim *Simulator, entry FIBEntry, msg SwapUpdateMsg) {
	mem, slot := pf.findSlotByEPR(msg.EPR)
	if mem == nil {
		errnie.Debug("%s: EPR %s decohered during SU transmission", pf.node.Name, msg.EPR)
		return
	}
	if msg.NewEPR == nil || !(msg.NewEPR.DecoherenceTime.IsZero() || msg.NewEPR.DecoherenceTime.After(sim.Now())) {
		pf.releaseSlot(sim, mem, slot)
		return
	}
	if !mem.Update(msg.EPR, msg.NewEPR) {
		errnie.Debug("%s: VERIFY -> EPR update failed", pf.node.Name)
		return
	}
	if pf.evalSwappingConditions(entry, msg.Partner) {
		slot.Transition(SlotPurif)
		pf.purify(sim, mem, slot, entry, msg.Partner)
	}
}

func (pf *ProactiveForwarder) handleSwapUpdateParallelDest(sim *Simulator, entry FIBEntry, msg SwapUpdateMsg) {
	mem, slot := pf.findSlotByEPR(msg.EPR)
	if mem != nil {
		// No parallel swap raced us; behave like the unswapped-dest case
		// minus the continued-swapping attempt.
		delete(pf.parallelSwappings, msg.EPR)
		if msg.NewEPR == nil || !(msg.NewEPR.DecoherenceTime.IsZero() || msg.NewEPR.DecoherenceTime.After(sim.Now())) {
			pf.releaseSlot(sim, mem, slot)
			return
		}
		if !mem.Update(msg.EPR, msg.NewEPR) {
			errnie.Debug("%s: VERIFY -> EPR update failed", pf.node.Name)
		}
		return
	}

	rec, ok := pf.parallelSwappings[msg.EPR]
	if !ok {
		errnie.Debug("%s: EPR %s decohered after swapping [parallel]", pf.node.Name, msg.EPR)
		return
	}

	route := entry.PathVector

	if msg.NewEPR == nil || !(msg.NewEPR.DecoherenceTime.IsZero() || msg.NewEPR.DecoherenceTime.After(sim.Now())) {
		var destination, partner string
		if rec.other.Dst == pf.node.Name {
			destination, partner = rec.other.Src, rec.shared.Dst
		} else {
			destination, partner = rec.other.Dst, rec.shared.Src
		}
		fwd := SwapUpdateMsg{
			PathID: msg.PathID, SwappingNode: msg.SwappingNode, Partner: partner,
			EPR: rec.myNew.ID, NewEPR: nil, Destination: destination, Fwd: true,
		}
		pf.sendSwapUpdate(sim, destination, fwd, route, true)
		delete(pf.parallelSwappings, msg.EPR)
		return
	}

	newEPR := msg.NewEPR
	merged := newEPR.MergeSwap(rec.other)

	var destination, partner string
	if rec.other.Dst == pf.node.Name {
		if merged != nil {
			merged.Src, merged.Dst = rec.other.Src, newEPR.Dst
		}
		partner, destination = newEPR.Dst, rec.other.Src
	} else {
		if merged != nil {
			merged.Src, merged.Dst = newEPR.Src, rec.other.Dst
		}
		partner, destination = newEPR.Src, rec.other.Dst
	}

	fwd := SwapUpdateMsg{
		PathID: msg.PathID, SwappingNode: msg.SwappingNode, Partner: partner,
		EPR: rec.myNew.ID, NewEPR: merged, Destination: destination, Fwd: true,
	}
	pf.sendSwapUpdate(sim, destination, fwd, route, true)
	delete(pf.parallelSwappings, msg.EPR)

	_, ownRank, _ := FindIndexAndSwappingRank(entry, pf.node.Name)
	if _, pRank, ok := FindIndexAndSwappingRank(entry, partner); ok && ownRank == pRank && merged != nil {
		pf.parallelSwappings[newEPR.ID] = parallelSwapRecord{shared: newEPR, other: rec.other, myNew: merged}
	}
}

// sendSwapUpdate routes msg toward dest one hop at a time along route,
// optionally delayed by the classical channel's propagation time again
// (used for the parallel-merge continuation message, spec.md §4.2).
func (pf *ProactiveForwarder) sendSwapUpdate(sim *Simulator, dest string, msg SwapUpdateMsg, route []string, delay bool) {
	ownIdx := indexOf(route, pf.node.Name)
	destIdx := indexOf(route, dest)

	var nextHop string
	if destIdx > ownIdx {
		nextHop = route[ownIdx+1]
	} else {
		nextHop = route[ownIdx-1]
	}

	cch := pf.node.CChannelTo(nextHop)
	if cch == nil {
		errnie.Error("%s: no classic channel to %s", pf.node.Name, nextHop)
		return
	}

	pkt := ClassicPacket{Src: pf.node.Name, Dst: dest, Swap: &msg}
	deliver := func(sim *Simulator, pkt ClassicPacket) {
		hop := pf.node.Network.GetNode(nextHop)
		hop.Forwarder.onRecvSwapUpdate(sim, *pkt.Swap)
	}
	if delay {
		cch.SendDelayed(sim, pkt, cch.Delay(), deliver)
	} else {
		cch.Send(sim, pkt, deliver)
	}
}

// onSyncSignal reacts to a TimingDriver phase signal: at INTERNAL, every
// qubit queued during the preceding EXTERNAL phase is processed.
func (pf *ProactiveForwarder) onSyncSignal(sim *Simulator, signal SignalType) {
	errnie.Debug("%s:[%v] TIMING SIGNAL <%v>", pf.node.Name, pf.node.TimingMode, signal)
	if pf.node.TimingMode != Sync {
		return
	}
	pf.syncPhase = signal
	if signal == SignalInternal {
		pending := pf.waitingQubits
		pf.waitingQubits = nil
		errnie.Debug("%s: processing %d queued entangled qubits", pf.node.Name, len(pending))
		for _, ev := range pending {
			pf.processEntangledQubit(sim, ev)
		}
	}
}
