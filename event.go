package qnetsim

import "container/heap"

// Handler is invoked by the Simulator when a scheduled event fires. It runs
// to completion before any other event is dispatched — there is no
// pre-emption and no handler may block on anything but the scheduler itself.
type Handler func(sim *Simulator)

// scheduledEvent pairs a handler with its fire time and an insertion
// sequence number, which breaks ties deterministically (FIFO within a tick)
// per spec.md §5.
type scheduledEvent struct {
	t      Time
	seq    uint64
	handle Handler
	label  string
}

type eventHeap []*scheduledEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	c := h[i].t.Compare(h[j].t)
	if c != 0 {
		return c < 0
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(*scheduledEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Simulator owns the global virtual clock, the event queue, and the seeded
// PRNG handle. There is exactly one Simulator per run; the only
// package-level mutable state is the time accuracy set by
// SetDefaultAccuracy. With that setting unchanged, two Simulators with the
// same seed and the same sequence of scheduled work produce identical traces.
type Simulator struct {
	tc    Time
	tEnd  Time
	queue eventHeap
	seq   uint64
	rng   *RNG

	dispatched uint64
}

// NewSimulator creates a scheduler that will run from t=0 until tEnd
// simulated seconds, seeded with seed.
func NewSimulator(tEndSec float64, seed int64) *Simulator {
	s := &Simulator{
		tc:   ZeroTime(),
		tEnd: NewTime(tEndSec),
		rng:  NewRNG(seed),
	}
	heap.Init(&s.queue)
	return s
}

// Now returns the current virtual time.
func (s *Simulator) Now() Time { return s.tc }

// End returns the simulation's horizon.
func (s *Simulator) End() Time { return s.tEnd }

// RNG returns the simulator's seeded PRNG handle.
func (s *Simulator) RNG() *RNG { return s.rng }

// ScheduleAt schedules handler to run at absolute time t. Events emitted by a
// handler always run strictly after that handler returns, because they are
// only added to the heap, never dispatched inline.
func (s *Simulator) ScheduleAt(t Time, label string, handler Handler) {
	s.seq++
	heap.Push(&s.queue, &scheduledEvent{t: t, seq: s.seq, handle: handler, label: label})
}

// ScheduleAfter schedules handler to run delaySec simulated seconds from now.
func (s *Simulator) ScheduleAfter(delaySec float64, label string, handler Handler) {
	s.ScheduleAt(s.tc.AddSec(delaySec), label, handler)
}

// Run dispatches events in timestamp order until the queue drains or the
// simulation horizon is reached.
func (s *Simulator) Run() {
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.t.After(s.tEnd) {
			return
		}
		heap.Pop(&s.queue)
		s.tc = next.t
		s.dispatched++
		next.handle(s)
	}
}

// Dispatched returns the number of events processed so far, useful for tests
// that want to bound work without a time horizon.
func (s *Simulator) Dispatched() uint64 { return s.dispatched }

// Pending returns the number of events still queued.
func (s *Simulator) Pending() int { return s.queue.Len() }
