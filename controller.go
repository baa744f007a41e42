package qnetsim

import "github.com/theapemachine/errnie"

// Controller is the external path-installation authority (spec.md §1
// Non-goal ii: routing itself, i.e. computing route/swap vectors, is out
// of scope — Controller only distributes an already-computed path to every
// node along it). It corresponds to the topology's
// ProactiveRoutingControllerApp.
type Controller struct {
	Name string

	net        *Network
	nextPathID int
}

// NewController builds a controller bound to net.
func NewController(name string, net *Network) *Controller {
	return &Controller{Name: name, net: net}
}

// InstallPath assigns a fresh path_id and pushes the controller → node
// message (spec.md §6) to every node on route, in order. It returns the
// first *ConfigError raised by any node's forwarder (unknown neighbor,
// missing channel, over-allocation) without partially retrying; per
// spec.md §7 this is fatal and the caller should not start the affected
// path.
func (c *Controller) InstallPath(sim *Simulator, requestID int, route []string, swap []int, purif map[string]int, mux string, mv []int) (int, error) {
	if len(swap) != len(route) {
		return 0, NewConfigError(c.Name, "swap_sequence length must match path_vector length")
	}

	pathID := c.nextPathID
	c.nextPathID++

	for _, nodeName := range route {
		node := c.net.GetNode(nodeName)
		if node == nil {
			return 0, NewConfigError(c.Name, "unknown node "+nodeName)
		}
		if node.Forwarder == nil {
			return 0, NewConfigError(nodeName, "no proactive forwarder app installed")
		}
		errnie.Debug("%s: installing path %d at %s: %v", c.Name, pathID, nodeName, route)
		if err := node.Forwarder.HandleControl(sim, pathID, requestID, route, swap, purif, mux, mv); err != nil {
			return 0, err
		}
	}
	return pathID, nil
}

// ChainSwapSequence builds the rank assignment a plain repeater chain needs:
// both endpoints at rank 1, every intermediate at rank 0. Repeaters, being
// lower rank, pass eval_swapping_conditions against either neighbor
// immediately and swap as soon as both their links are entangled; the
// resulting SWAP_UPDATE then finds each endpoint at strictly higher rank
// than the swapping node, which is what routes it through
// handleSwapUpdateUnswappedDest's purify/eligible re-entry instead of the
// parallel-reconciliation path — without that gap the end-to-end pair would
// never be consumed. A layered multi-rank swap order needs a hand-built
// swap_sequence instead.
func ChainSwapSequence(n int) []int {
	seq := make([]int, n)
	for i := range seq {
		seq[i] = 1
	}
	for i := 1; i < n-1; i++ {
		seq[i] = 0
	}
	return seq
}

// DisabledSwapSequence builds the all-zero swap_sequence is_swap_disabled
// recognizes (spec.md §3 "FIB entry"): every node ends up at the same rank,
// so eligible() skips swapIntermediate entirely (see forwarder.go) and every
// node on the path releases its own segment directly once purified instead
// of swapping — but only an interior node's release counts toward
// e2e_count, since the endpoints are only giving up an elementary link, not
// completing the path.
func DisabledSwapSequence(n int) []int {
	return make([]int, n)
}
