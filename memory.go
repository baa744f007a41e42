package qnetsim

import "github.com/theapemachine/errnie"

// SlotState enumerates the per-slot lifecycle FSM of spec.md §3:
// FREE -> RESERVED -> OCCUPIED -> ENTANGLED -> PURIF -> ELIGIBLE ->
// (SWAPPING | CONSUMED) -> RELEASED -> FREE, with any state able to jump to
// DECOHERED -> RELEASED via the QM timer.
type SlotState int

const (
	SlotFree SlotState = iota
	SlotReserved
	SlotOccupied
	SlotEntangled
	SlotPurif
	SlotEligible
	SlotSwapping
	SlotConsumed
	SlotDecohered
	SlotReleased
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "FREE"
	case SlotReserved:
		return "RESERVED"
	case SlotOccupied:
		return "OCCUPIED"
	case SlotEntangled:
		return "ENTANGLED"
	case SlotPurif:
		return "PURIF"
	case SlotEligible:
		return "ELIGIBLE"
	case SlotSwapping:
		return "SWAPPING"
	case SlotConsumed:
		return "CONSUMED"
	case SlotDecohered:
		return "DECOHERED"
	case SlotReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// Slot is one addressable memory cell of a QuantumMemory.
type Slot struct {
	Addr    int
	State   SlotState
	PathID  *int
	Key     string
	EPR     *EPR
	Channel *QuantumChannel

	decohDeadline Time
}

// QuantumMemory is a fixed-capacity slotted qubit store belonging to one
// qchannel of one node (spec.md §3, §4.3). Name matches the owning
// qchannel's name, mirroring the original's one-memory-per-qchannel
// convention.
type QuantumMemory struct {
	Name            string
	Capacity        int
	DecoherenceRate float64

	slots []*Slot
	used  int

	sim *Simulator
	// OnDecohered is invoked (scheduler-dispatched) when a slot's
	// decoherence timer fires and the slot still holds the same EPR it was
	// armed with. It is wired by Node.Install to the owning link layer.
	OnDecohered func(sim *Simulator, mem *QuantumMemory, slot *Slot)
}

// NewQuantumMemory builds an empty memory of the given capacity.
func NewQuantumMemory(name string, capacity int, decoherenceRate float64) *QuantumMemory {
	m := &QuantumMemory{Name: name, Capacity: capacity, DecoherenceRate: decoherenceRate}
	m.slots = make([]*Slot, capacity)
	for i := range m.slots {
		m.slots[i] = &Slot{Addr: i, State: SlotFree}
	}
	return m
}

// Install attaches the owning simulator so the memory can schedule
// decoherence timers.
func (m *QuantumMemory) Install(sim *Simulator) { m.sim = sim }

// Free returns the number of FREE slots.
func (m *QuantumMemory) Free() int { return m.Capacity - m.used }

// IsFull reports whether every slot is in use.
func (m *QuantumMemory) IsFull() bool { return m.used >= m.Capacity }

func (m *QuantumMemory) firstFree() *Slot {
	for _, s := range m.slots {
		if s.State == SlotFree {
			return s
		}
	}
	return nil
}

func (m *QuantumMemory) bySameKey(pathID *int, key string) *Slot {
	for _, s := range m.slots {
		if s.State != SlotReserved {
			continue
		}
		if pathID != nil && s.PathID != nil && *s.PathID == *pathID && s.Key == key {
			return s
		}
	}
	return nil
}

// Allocate reserves a FREE slot for pathID, returning its address, or -1 if
// the memory is full.
func (m *QuantumMemory) Allocate(pathID int) int {
	s := m.firstFree()
	if s == nil {
		return -1
	}
	s.State = SlotReserved
	s.PathID = &pathID
	m.used++
	return s.Addr
}

// Deallocate frees a RESERVED slot. It is illegal (and refused) on an
// OCCUPIED slot.
func (m *QuantumMemory) Deallocate(addr int) bool {
	s := m.slotAt(addr)
	if s == nil || s.State != SlotReserved {
		return false
	}
	m.resetSlot(s)
	return true
}

// Assign binds a FREE slot to a qchannel, used for statistical-mux /
// receiver-side bookkeeping where no path_id is known yet.
func (m *QuantumMemory) Assign(ch *QuantumChannel) int {
	s := m.firstFree()
	if s == nil {
		return -1
	}
	s.State = SlotReserved
	s.Channel = ch
	m.used++
	return s.Addr
}

// WriteOptions selects which slot Write targets.
type WriteOptions struct {
	PathID  *int
	Key     string
	Address *int
}

func (m *QuantumMemory) slotAt(addr int) *Slot {
	if addr < 0 || addr >= len(m.slots) {
		return nil
	}
	return m.slots[addr]
}

// SlotAt exposes a slot by address for callers (the forwarder) that need to
// act on a specific address reported by a QubitEntangledEvent.
func (m *QuantumMemory) SlotAt(addr int) *Slot { return m.slotAt(addr) }

// Write stores epr into a slot selected per spec.md §4.3: an explicit
// address if given, else a RESERVED slot matching path_id/key, else any
// FREE slot. It returns nil if no candidate slot is available.
func (m *QuantumMemory) Write(epr *EPR, opts WriteOptions) *Slot {
	var s *Slot
	switch {
	case opts.Address != nil:
		s = m.slotAt(*opts.Address)
		if s != nil && s.State != SlotFree && s.State != SlotReserved {
			return nil
		}
	case opts.PathID != nil || opts.Key != "":
		s = m.bySameKey(opts.PathID, opts.Key)
	default:
		s = m.firstFree()
	}
	if s == nil {
		return nil
	}
	if s.EPR != nil {
		return nil
	}
	wasFree := s.State == SlotFree
	s.EPR = epr
	s.State = SlotOccupied
	if opts.PathID != nil {
		s.PathID = opts.PathID
	}
	if opts.Key != "" {
		s.Key = opts.Key
	}
	if wasFree {
		m.used++
	}
	m.armDecoherence(s, epr)
	return s
}

func (m *QuantumMemory) armDecoherence(s *Slot, epr *EPR) {
	if m.DecoherenceRate <= 0 {
		return
	}
	lifetime := 1.0 / m.DecoherenceRate
	deadline := epr.CreationTime.AddSec(lifetime)
	epr.DecoherenceTime = deadline
	s.decohDeadline = deadline

	armedEPR := epr
	if m.sim == nil {
		return
	}
	m.sim.ScheduleAfter(lifetime, "decoherence:"+m.Name, func(sim *Simulator) {
		// Self-invalidates if the slot's identity changed since arming
		// (update() rewrites EPR identity and rearms separately).
		if s.EPR != armedEPR {
			return
		}
		s.EPR = nil
		s.State = SlotReleased
		m.resetSlot(s)
		errnie.Debug("%s: qubit %s decohered in slot %d", m.Name, armedEPR.ID, s.Addr)
		if m.OnDecohered != nil {
			m.OnDecohered(sim, m, s)
		}
	})
}

func (m *QuantumMemory) resetSlot(s *Slot) {
	if s.State != SlotFree {
		m.used--
	}
	s.State = SlotFree
	s.PathID = nil
	s.Key = ""
	s.EPR = nil
	s.Channel = nil
	s.decohDeadline = Time{}
}

// Read destructively retrieves the EPR held by key (epr id) or address, and
// frees the slot.
func (m *QuantumMemory) Read(key string, address *int) (*Slot, *EPR) {
	s, epr := m.get(key, address)
	if s == nil {
		return nil, nil
	}
	out := *s
	m.resetSlot(s)
	return &out, epr
}

// Get non-destructively inspects the slot holding key (epr id) or address.
func (m *QuantumMemory) Get(key string, address *int) (*Slot, *EPR) {
	return m.get(key, address)
}

func (m *QuantumMemory) get(key string, address *int) (*Slot, *EPR) {
	if address != nil {
		s := m.slotAt(*address)
		if s == nil || s.EPR == nil {
			return nil, nil
		}
		return s, s.EPR
	}
	for _, s := range m.slots {
		if s.EPR != nil && s.EPR.ID == key {
			return s, s.EPR
		}
	}
	return nil, nil
}

// Update rewrites the EPR stored in the slot currently holding oldID with
// newEPR (identity and fidelity both replaced), preserving the slot's
// address and path_id, and reschedules decoherence from newEPR's deadline.
func (m *QuantumMemory) Update(oldID string, newEPR *EPR) bool {
	s, _ := m.get(oldID, nil)
	if s == nil {
		return false
	}
	s.EPR = newEPR
	m.armDecoherence(s, newEPR)
	return true
}

// SearchEligibleQubits lists slots in ELIGIBLE state bound to pathID.
func (m *QuantumMemory) SearchEligibleQubits(pathID int) []*Slot {
	var out []*Slot
	for _, s := range m.slots {
		if s.State == SlotEligible && s.PathID != nil && *s.PathID == pathID {
			out = append(out, s)
		}
	}
	return out
}

// Clear returns all slots to FREE, used on LSYNC/SYNC phase boundaries.
func (m *QuantumMemory) Clear() {
	for _, s := range m.slots {
		if s.State != SlotFree {
			m.resetSlot(s)
		}
	}
}

// Transition moves a slot to a new state. Callers are responsible for only
// requesting legal transitions per the FSM in spec.md §3; this module does
// not enforce the graph itself, direct field assignment through a small
// helper method is enough.
func (s *Slot) Transition(to SlotState) { s.State = to }
