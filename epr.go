package qnetsim

import "github.com/google/uuid"

// EPR is a shared entangled pair between two nodes, tracked by identity and
// fidelity only — this module never simulates the underlying quantum state
// beyond the Werner-state fidelity update rule used on swapping (spec.md §1
// Non-goals (i), §3 "EPR pair").
type EPR struct {
	ID   string
	Src  string // node name
	Dst  string // node name

	Fidelity        float64
	CreationTime    Time
	DecoherenceTime Time

	PathID  *int
	ChIndex *int

	// OrigEprs lists the elementary EPRs a swapped pair descends from; empty
	// for an elementary (never-swapped) pair.
	OrigEprs []string
}

// NewEPR creates a fresh elementary EPR pair with a random identity.
func NewEPR(src, dst string, fidelity float64, creation Time) *EPR {
	return &EPR{
		ID:           uuid.NewString(),
		Src:          src,
		Dst:          dst,
		Fidelity:     fidelity,
		CreationTime: creation,
	}
}

// IsElementary reports whether this pair has never been through a swap.
func (e *EPR) IsElementary() bool { return len(e.OrigEprs) == 0 }

// wernerParam converts a Werner-state fidelity into its Werner parameter w,
// the form in which fidelities compose multiplicatively across a swap:
// F = (3w+1)/4  <=>  w = (4F-1)/3.
func wernerParam(fidelity float64) float64 {
	return (4*fidelity - 1) / 3
}

func fidelityFromWerner(w float64) float64 {
	return (3*w + 1) / 4
}

// Swapping combines this pair with an adjacent one at their shared node,
// producing the longer pair that spans the two outer endpoints. It succeeds
// with probability ps, drawn from rng; on failure it returns nil (spec.md
// §4.2 step 3). On success, fidelity follows the Werner-parameter-product
// rule: the two segments' Werner parameters multiply, matching how fidelity
// degrades with each additional hop of entanglement swapping.
func (e *EPR) Swapping(other *EPR, ps float64, rng *RNG) *EPR {
	if !rng.Bernoulli(ps) {
		return nil
	}
	return e.combine(other)
}

// MergeSwap combines two already-physically-swapped pairs during
// parallel-swap reconciliation (spec.md §4.2). Unlike Swapping, the
// underlying swap has already occurred at both neighbors; merging their
// results is deterministic bookkeeping, not a fresh probabilistic attempt.
func (e *EPR) MergeSwap(other *EPR) *EPR {
	return e.combine(other)
}

func (e *EPR) combine(other *EPR) *EPR {
	w := wernerParam(e.Fidelity) * wernerParam(other.Fidelity)
	newFidelity := fidelityFromWerner(w)

	orig := make([]string, 0, len(e.OrigEprs)+len(other.OrigEprs)+2)
	if e.IsElementary() {
		orig = append(orig, e.ID)
	} else {
		orig = append(orig, e.OrigEprs...)
	}
	if other.IsElementary() {
		orig = append(orig, other.ID)
	} else {
		orig = append(orig, other.OrigEprs...)
	}

	decoh := e.DecoherenceTime
	if other.DecoherenceTime.Before(decoh) {
		decoh = other.DecoherenceTime
	}

	return &EPR{
		ID:              uuid.NewString(),
		Fidelity:        newFidelity,
		CreationTime:    e.CreationTime,
		DecoherenceTime: decoh,
		OrigEprs:        orig,
	}
}
