package qnetsim

import "github.com/theapemachine/errnie"

// MuxScheme decides how a node reserves memory slots for a controller-
// installed path at handle_control time (spec.md §6, mux field "B"|"S").
type MuxScheme interface {
	Name() string
	Allocate(node string, idx int, mv []int, pathID int, prevMem, nextMem *QuantumMemory) error
}

// MuxSchemeFor resolves the mux code from a controller message to its
// scheme. An unrecognized code is a configuration error.
func MuxSchemeFor(node, code string) (MuxScheme, error) {
	switch code {
	case "B":
		return BufferSpaceMux{}, nil
	case "S":
		return StatisticalMux{}, nil
	default:
		return nil, NewConfigError(node, "unknown mux scheme "+code)
	}
}

// BufferSpaceMux reserves mv[idx-1]/mv[idx] qubits on the adjoining
// memories up front ("blocking" mux), or every free slot of each when mv is
// empty. An allocation exceeding a memory's free capacity is fatal
// (spec.md §9 Open Questions).
type BufferSpaceMux struct{}

func (BufferSpaceMux) Name() string { return "B" }

func (BufferSpaceMux) Allocate(node string, idx int, mv []int, pathID int, prevMem, nextMem *QuantumMemory) error {
	if len(mv) > 0 {
		numPrev, numNext := computeQubitAllocation(idx, mv)
		if numPrev > 0 && prevMem != nil {
			if numPrev > prevMem.Free() {
				return NewConfigError(node, "not enough qubits left for this allocation")
			}
			for i := 0; i < numPrev; i++ {
				prevMem.Allocate(pathID)
			}
		}
		if numNext > 0 && nextMem != nil {
			if numNext > nextMem.Free() {
				return NewConfigError(node, "not enough qubits left for this allocation")
			}
			for i := 0; i < numNext; i++ {
				nextMem.Allocate(pathID)
			}
		}
		return nil
	}

	errnie.Debug("%s: qubit allocation not provided, allocating all qubits", node)
	if prevMem != nil {
		if prevMem.Free() != prevMem.Capacity {
			return NewConfigError(node, "memory "+prevMem.Name+" already has allocated qubits, cannot use blocking mux")
		}
		for i := 0; i < prevMem.Capacity; i++ {
			prevMem.Allocate(pathID)
		}
	}
	if nextMem != nil {
		if nextMem.Free() != nextMem.Capacity {
			return NewConfigError(node, "memory "+nextMem.Name+" already has allocated qubits, cannot use blocking mux")
		}
		for i := 0; i < nextMem.Capacity; i++ {
			nextMem.Allocate(pathID)
		}
	}
	return nil
}

func computeQubitAllocation(idx int, mv []int) (prevCount, nextCount int) {
	if idx > 0 && idx-1 < len(mv) {
		prevCount = mv[idx-1]
	}
	if idx < len(mv) {
		nextCount = mv[idx]
	}
	return
}

// StatisticalMux is a stub (spec.md §9 Open Questions: "Statistical mux is
// stubbed"). It pre-allocates nothing; qubits generated without a path_id
// are logged and dropped by the forwarder rather than swapped.
type StatisticalMux struct{}

func (StatisticalMux) Name() string { return "S" }

func (StatisticalMux) Allocate(node string, _ int, _ []int, _ int, _, _ *QuantumMemory) error {
	errnie.Debug("%s: statistical mux requested, no qubits pre-allocated (not supported)", node)
	return nil
}
