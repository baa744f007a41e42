package qnetsim

// QuantumChannel is a point-to-point fiber link carrying half-EPR photons
// between two named nodes (spec.md §3 "Channel"). Capacity bounds the number
// of concurrent in-flight attempts, one per paired memory slot.
//
// Loss can be given two ways: a flat DropRate, or a physical model (Arch plus
// Alpha/EtaS/EtaD) that derives the per-attempt drop probability from fiber
// length and architecture (spec.md §3 "link architecture"). Arch nil falls
// back to DropRate.
type QuantumChannel struct {
	Name             string
	NodeA, NodeB     string
	LengthKm         float64
	PropagationDelay float64 // seconds
	DropRate         float64
	Capacity         int

	Arch           LinkArch
	Alpha          float64 // fiber attenuation, dB/km
	EtaS, EtaD     float64 // source/detector efficiency
}

// OtherEnd returns the peer of node on this channel.
func (c *QuantumChannel) OtherEnd(node string) string {
	if node == c.NodeA {
		return c.NodeB
	}
	return c.NodeA
}

// effectiveDropRate returns 1-SuccessProb() when Arch is set, else DropRate.
func (c *QuantumChannel) effectiveDropRate() float64 {
	if c.Arch != nil {
		return 1 - c.Arch.SuccessProb(c.LengthKm, c.Alpha, c.EtaS, c.EtaD)
	}
	return c.DropRate
}

// Send schedules delivery of epr at the receiving end after the channel's
// propagation delay, stochastically dropping the photon per the channel's
// loss model. deliver is invoked with lost=true when the photon never
// arrived intact, which the link layer's herald turns into an epr_failed
// reply (spec.md §4.1).
func (c *QuantumChannel) Send(sim *Simulator, epr *EPR, deliver func(sim *Simulator, epr *EPR, lost bool)) {
	lost := sim.RNG().Bernoulli(c.effectiveDropRate())
	sim.ScheduleAfter(c.PropagationDelay, "recv_qubit:"+c.Name, func(sim *Simulator) {
		deliver(sim, epr, lost)
	})
}

// ClassicChannel is a reliable, delayed classical link used for heralding
// acks, SWAP_UPDATE messages, and controller installs.
type ClassicChannel struct {
	Name             string
	NodeA, NodeB     string
	LengthKm         float64
	PropagationDelay float64 // seconds
}

// OtherEnd returns the peer of node on this channel.
func (c *ClassicChannel) OtherEnd(node string) string {
	if node == c.NodeA {
		return c.NodeB
	}
	return c.NodeA
}

// Delay returns the channel's fixed propagation delay, standing in for the
// original's `cchannel.delay_model.calculate()`.
func (c *ClassicChannel) Delay() float64 { return c.PropagationDelay }

// ClassicPacket is the envelope for classical messages exchanged over a
// ClassicChannel: heralding acks and SWAP_UPDATE (spec.md §6). Controller
// path installs are delivered directly to each node's forwarder rather than
// over a channel, so exactly one of Herald/Swap is populated here.
type ClassicPacket struct {
	Src, Dst string
	Herald   *HeraldMsg
	Swap     *SwapUpdateMsg
}

// HeraldMsg is the LL's two-way handshake ack/nack (spec.md §6 "LL heralding
// messages").
type HeraldMsg struct {
	Cmd    string // "epr_succeeded" | "epr_failed"
	PathID *int
	EPRID  string
}

// SwapUpdateMsg carries a swap notification or forwarded continuation
// (spec.md §6 "SWAP_UPDATE message").
type SwapUpdateMsg struct {
	PathID       int
	SwappingNode string
	Partner      string
	EPR          string
	NewEPR       *EPR // nil means swapping failed or decohered
	Destination  string
	Fwd          bool
}

// Send delivers pkt after the channel's propagation delay.
func (c *ClassicChannel) Send(sim *Simulator, pkt ClassicPacket, deliver func(sim *Simulator, pkt ClassicPacket)) {
	sim.ScheduleAfter(c.PropagationDelay, "recv_classic:"+c.Name, func(sim *Simulator) {
		deliver(sim, pkt)
	})
}

// SendDelayed delivers pkt after the channel's propagation delay plus an
// additional extraDelaySec, used for the parallel-swap merge's forwarded
// continuation message (spec.md §4.2, `delay=True` case).
func (c *ClassicChannel) SendDelayed(sim *Simulator, pkt ClassicPacket, extraDelaySec float64, deliver func(sim *Simulator, pkt ClassicPacket)) {
	sim.ScheduleAfter(c.PropagationDelay+extraDelaySec, "recv_classic:"+c.Name, func(sim *Simulator) {
		deliver(sim, pkt)
	})
}
