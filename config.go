package qnetsim

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// TopologyConfig is the YAML-decoded shape of a full simulation setup
// (spec.md §6): the node roster, quantum and classical channels connecting
// them, an optional shared timing driver, and the controller-installed
// paths to run.
type TopologyConfig struct {
	Nodes     []NodeConfig     `yaml:"qnodes"`
	QChannels []QChannelConfig `yaml:"qchannels"`
	CChannels []CChannelConfig `yaml:"cchannels"`
	Timing    *TimingConfig    `yaml:"timing"`
	Paths     []PathConfig     `yaml:"paths"`
}

// NodeConfig describes one repeater: its timing discipline and the
// parameters of the LL/PF apps installed on it.
type NodeConfig struct {
	Name         string  `yaml:"name"`
	TimingMode   string  `yaml:"timing_mode"` // "ASYNC" (default) | "LSYNC" | "SYNC"
	AttemptRate  float64 `yaml:"attempt_rate"`
	InitFidelity float64 `yaml:"init_fidelity"`
	Ps           *float64 `yaml:"ps"` // swap success probability; 1 when omitted
}

// QChannelConfig describes a fiber link and the memory paired with it at
// each end. Arch selects a physical loss model (spec.md §3 "link
// architecture"); leaving it blank falls back to a flat DropRate.
type QChannelConfig struct {
	Name             string  `yaml:"name"`
	NodeA            string  `yaml:"node_a"`
	NodeB            string  `yaml:"node_b"`
	LengthKm         float64 `yaml:"length"`
	PropagationDelay float64 `yaml:"propagation_delay"`
	DropRate         float64 `yaml:"drop_rate"`
	Capacity         int     `yaml:"capacity"`
	DecoherenceRate  float64 `yaml:"decoherence_rate"`
	Arch             string  `yaml:"arch"` // "SR" | "SIM" | "DIM-BK" | "DIM-BK-SEQ"
	Alpha            float64 `yaml:"alpha"`
	EtaS             float64 `yaml:"eta_s"`
	EtaD             float64 `yaml:"eta_d"`
}

// CChannelConfig describes the classical link paired with a qchannel,
// carrying heralds, SWAP_UPDATE, and forwarded continuations.
type CChannelConfig struct {
	Name             string  `yaml:"name"`
	NodeA            string  `yaml:"node_a"`
	NodeB            string  `yaml:"node_b"`
	PropagationDelay float64 `yaml:"propagation_delay"`
}

// TimingConfig configures a shared TimingDriver attached to every node.
// Leave nil for ASYNC-only topologies, which need no driver.
type TimingConfig struct {
	Mode  string  `yaml:"mode"` // "LSYNC" | "SYNC"
	TSlot float64 `yaml:"t_slot"`
	TExt  float64 `yaml:"t_ext"`
	TInt  float64 `yaml:"t_int"`
}

// PathConfig is one controller → node install (spec.md §6 "Controller →
// node message"). MV is the per-hop qubit allocation vector for the
// buffer-space mux; leave it empty to claim every free slot of each
// adjoining memory, or when using the statistical mux.
type PathConfig struct {
	RequestID int            `yaml:"request_id"`
	Route     []string       `yaml:"route"`
	Swap      []int          `yaml:"swap_sequence"`
	Purif     map[string]int `yaml:"purification_scheme"`
	Mux       string         `yaml:"mux"`
	MV        []int          `yaml:"m_v"`
}

// LoadTopology decodes a topology document from r. Unknown keys are
// rejected so a typo in a hand-edited YAML file fails loudly at load time
// rather than silently doing nothing.
func LoadTopology(r io.Reader) (*TopologyConfig, error) {
	var cfg TopologyConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("qnetsim: decode topology: %w", err)
	}
	return &cfg, nil
}

func parseTimingMode(s string) (TimingMode, error) {
	switch s {
	case "", "ASYNC":
		return Async, nil
	case "LSYNC":
		return LSync, nil
	case "SYNC":
		return Sync, nil
	default:
		return 0, fmt.Errorf("qnetsim: unknown timing mode %q", s)
	}
}

func parseLinkArch(s string) (LinkArch, error) {
	switch s {
	case "":
		return nil, nil
	case "SR":
		return LinkArchSR{}, nil
	case "SIM":
		return LinkArchSIM{}, nil
	case "DIM-BK":
		return LinkArchDimBK{}, nil
	case "DIM-BK-SEQ":
		return LinkArchDimBKSeq{}, nil
	default:
		return nil, fmt.Errorf("qnetsim: unknown link architecture %q", s)
	}
}

// Build materializes a Network and, if configured, a TimingDriver attached
// to every node, from cfg. Callers still call Network.Install(sim) and run
// cfg.InstallPaths before sim.Run().
func (cfg *TopologyConfig) Build(sim *Simulator) (*Network, *TimingDriver, error) {
	net := NewNetwork()

	for _, nc := range cfg.Nodes {
		mode, err := parseTimingMode(nc.TimingMode)
		if err != nil {
			return nil, nil, err
		}
		n := NewNode(nc.Name, mode)
		n.LinkLayer = NewLinkLayer(nc.AttemptRate, nc.InitFidelity)
		ps := 1.0
		if nc.Ps != nil {
			ps = *nc.Ps
		}
		n.Forwarder = NewProactiveForwarder(ps)
		net.AddNode(n)
	}

	for _, qc := range cfg.QChannels {
		arch, err := parseLinkArch(qc.Arch)
		if err != nil {
			return nil, nil, err
		}
		a := net.GetNode(qc.NodeA)
		if a == nil {
			return nil, nil, NewConfigError(qc.NodeA, "unknown node referenced by qchannel "+qc.Name)
		}
		b := net.GetNode(qc.NodeB)
		if b == nil {
			return nil, nil, NewConfigError(qc.NodeB, "unknown node referenced by qchannel "+qc.Name)
		}

		ch := &QuantumChannel{
			Name: qc.Name, NodeA: qc.NodeA, NodeB: qc.NodeB,
			LengthKm: qc.LengthKm, PropagationDelay: qc.PropagationDelay,
			DropRate: qc.DropRate, Capacity: qc.Capacity,
			Arch: arch, Alpha: qc.Alpha, EtaS: qc.EtaS, EtaD: qc.EtaD,
		}
		// Each end owns its own memory instance, both named after the
		// shared channel, matching the original's one-memory-per-qchannel
		// convention at every node it touches.
		a.AddQChannel(ch, NewQuantumMemory(qc.Name, qc.Capacity, qc.DecoherenceRate))
		b.AddQChannel(ch, NewQuantumMemory(qc.Name, qc.Capacity, qc.DecoherenceRate))
	}

	for _, cc := range cfg.CChannels {
		a := net.GetNode(cc.NodeA)
		if a == nil {
			return nil, nil, NewConfigError(cc.NodeA, "unknown node referenced by cchannel "+cc.Name)
		}
		b := net.GetNode(cc.NodeB)
		if b == nil {
			return nil, nil, NewConfigError(cc.NodeB, "unknown node referenced by cchannel "+cc.Name)
		}
		ch := &ClassicChannel{Name: cc.Name, NodeA: cc.NodeA, NodeB: cc.NodeB, PropagationDelay: cc.PropagationDelay}
		a.AddCChannel(ch)
		b.AddCChannel(ch)
	}

	var driver *TimingDriver
	if cfg.Timing != nil {
		switch cfg.Timing.Mode {
		case "LSYNC":
			driver = NewLSyncDriver(cfg.Timing.TSlot)
		case "SYNC":
			driver = NewSyncDriver(cfg.Timing.TExt, cfg.Timing.TInt)
		default:
			return nil, nil, fmt.Errorf("qnetsim: unknown timing driver mode %q", cfg.Timing.Mode)
		}
		for _, nc := range cfg.Nodes {
			driver.Attach(net.GetNode(nc.Name))
		}
	}

	return net, driver, nil
}

// InstallPaths runs every configured path through ctrl.InstallPath in order,
// returning the assigned path_ids. It stops at the first error (spec.md §7:
// a configuration error is fatal, not retried).
func (cfg *TopologyConfig) InstallPaths(sim *Simulator, ctrl *Controller) ([]int, error) {
	ids := make([]int, 0, len(cfg.Paths))
	for _, p := range cfg.Paths {
		id, err := ctrl.InstallPath(sim, p.RequestID, p.Route, p.Swap, p.Purif, p.Mux, p.MV)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
