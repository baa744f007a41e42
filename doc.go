/*
Package qnetsim implements the entanglement-forwarding core of a discrete-event
simulator for quantum repeater networks: a virtual-time event scheduler, a
slotted quantum memory with a per-slot lifecycle FSM, a link layer that drives
heralded EPR generation over fiber links, and a proactive forwarder that swaps
adjacent EPR pairs into end-to-end entanglement along controller-installed
paths.

Topology parsing beyond the thin YAML decoder in config.go, path computation,
plotting, and physical-layer quantum-state numerics beyond Werner-state
fidelity tracking are out of scope; those are left to external callers.
*/
package qnetsim
