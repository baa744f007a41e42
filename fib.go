package qnetsim

import (
	"fmt"
	"sort"
	"strings"
)

// FIBEntry is one controller-installed forwarding path (spec.md §3 "FIB
// entry"). SwapSequence holds one rank per hop of PathVector; a node with a
// smaller rank swaps before a node with a larger rank at the same time tier.
type FIBEntry struct {
	PathID             int
	RequestID          int
	PathVector         []string
	SwapSequence       []int
	PurificationScheme map[string]int
}

// FindIndexAndSwappingRank locates nodeName in the entry's path and returns
// its index and swapping rank. ok is false if nodeName is not on the path.
func FindIndexAndSwappingRank(entry FIBEntry, nodeName string) (idx, rank int, ok bool) {
	for i, n := range entry.PathVector {
		if n == nodeName {
			return i, entry.SwapSequence[i], true
		}
	}
	return -1, 0, false
}

// IsSwapDisabled reports whether entry has swapping disabled: both path
// endpoints carry rank zero. When disabled, the forwarder consumes
// entanglement on completing purification instead of attempting a swap.
func IsSwapDisabled(entry FIBEntry) bool {
	if len(entry.SwapSequence) == 0 {
		return false
	}
	return entry.SwapSequence[0] == 0 && entry.SwapSequence[len(entry.SwapSequence)-1] == 0
}

// ForwardingInformationBase maps path_id to FIBEntry, with a secondary index
// from request_id to the set of path_ids it owns (spec.md §4.4).
type ForwardingInformationBase struct {
	table      map[int]FIBEntry
	reqPathMap map[int]map[int]struct{}
}

// NewForwardingInformationBase builds an empty FIB.
func NewForwardingInformationBase() *ForwardingInformationBase {
	return &ForwardingInformationBase{
		table:      make(map[int]FIBEntry),
		reqPathMap: make(map[int]map[int]struct{}),
	}
}

// Get retrieves the entry for path_id. ok is false if no such entry exists.
func (f *ForwardingInformationBase) Get(pathID int) (FIBEntry, bool) {
	e, ok := f.table[pathID]
	return e, ok
}

// InsertOrReplace inserts entry, replacing any existing entry with the same
// path_id.
func (f *ForwardingInformationBase) InsertOrReplace(entry FIBEntry) {
	f.Erase(entry.PathID)
	f.table[entry.PathID] = entry

	paths, ok := f.reqPathMap[entry.RequestID]
	if !ok {
		paths = make(map[int]struct{})
		f.reqPathMap[entry.RequestID] = paths
	}
	paths[entry.PathID] = struct{}{}
}

// Erase removes the entry for path_id, silently ignoring a nonexistent one.
func (f *ForwardingInformationBase) Erase(pathID int) {
	entry, ok := f.table[pathID]
	if !ok {
		return
	}
	delete(f.table, pathID)

	paths := f.reqPathMap[entry.RequestID]
	delete(paths, pathID)
	if len(paths) == 0 {
		delete(f.reqPathMap, entry.RequestID)
	}
}

// ListPathIDsByRequestID returns every path_id installed under request_id.
func (f *ForwardingInformationBase) ListPathIDsByRequestID(requestID int) []int {
	paths := f.reqPathMap[requestID]
	out := make([]int, 0, len(paths))
	for id := range paths {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// String renders the table for logging and debugging.
func (f *ForwardingInformationBase) String() string {
	ids := make([]int, 0, len(f.table))
	for id := range f.table {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var b strings.Builder
	for i, id := range ids {
		e := f.table[id]
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Path ID: %d, Request ID: %d, Path: %v, Swap Sequence: %v, Purification: %v",
			e.PathID, e.RequestID, e.PathVector, e.SwapSequence, e.PurificationScheme)
	}
	return b.String()
}
