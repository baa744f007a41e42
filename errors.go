package qnetsim

import "fmt"

// ConfigError is the fatal error class of node and path installation
// (spec.md §7): an unknown neighbor, a missing channel, a path_id referring
// to a non-existent node, or a buffer-space allocation request that exceeds
// free memory. It is surfaced at install time; the simulator does not start
// forwarding on the affected path. Topology decoding and Build report
// malformed input (bad YAML, an unknown timing mode, link architecture or
// driver mode) as plain errors instead.
type ConfigError struct {
	Node   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("qnetsim: configuration error at %s: %s", e.Node, e.Reason)
}

// NewConfigError builds a ConfigError for node with the given reason.
func NewConfigError(node, reason string) *ConfigError {
	return &ConfigError{Node: node, Reason: reason}
}
