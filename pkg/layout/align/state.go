// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
)

// TensorState is the alignment state of one output port.
type TensorState struct {
	Type AlignType

	// ConflictWithOutput is set when propagation tried to change a FixedNotAligned output.
	// The pad resolver inserts a Pad node after every conflicting output.
	ConflictWithOutput bool
}

// StateTable maps output ports to their alignment state.
//
// Boundary nodes (buffers and scalars) never have entries: an input with no entry is ignored
// by the inference rules.
type StateTable struct {
	states map[kernelgraph.OutputRef]*TensorState
}

// NewStateTable returns an empty table.
func NewStateTable() *StateTable {
	return &StateTable{states: make(map[kernelgraph.OutputRef]*TensorState)}
}

// Len returns the number of entries.
func (t *StateTable) Len() int { return len(t.states) }

// Get returns a copy of the state of ref, and whether it has an entry.
func (t *StateTable) Get(ref kernelgraph.OutputRef) (TensorState, bool) {
	st, found := t.states[ref]
	if !found {
		return TensorState{}, false
	}
	return *st, true
}

// Has returns whether ref has an entry.
func (t *StateTable) Has(ref kernelgraph.OutputRef) bool {
	_, found := t.states[ref]
	return found
}

// Type returns the type of ref, or Invalid if it has no entry.
func (t *StateTable) Type(ref kernelgraph.OutputRef) AlignType {
	if st, found := t.states[ref]; found {
		return st.Type
	}
	return Invalid
}

// Set the type of ref, creating the entry if needed. The conflict flag is preserved.
func (t *StateTable) Set(ref kernelgraph.OutputRef, alignType AlignType) {
	st, found := t.states[ref]
	if !found {
		st = &TensorState{}
		t.states[ref] = st
	}
	st.Type = alignType
}

// MarkConflict flags ref as conflicting. It is a no-op if ref has no entry.
func (t *StateTable) MarkConflict(ref kernelgraph.OutputRef) {
	if st, found := t.states[ref]; found {
		st.ConflictWithOutput = true
	}
}

// ClearConflict removes the conflict flag of ref.
func (t *StateTable) ClearConflict(ref kernelgraph.OutputRef) {
	if st, found := t.states[ref]; found {
		st.ConflictWithOutput = false
	}
}

// Delete removes the entry of ref, used when its node is removed from the graph.
func (t *StateTable) Delete(ref kernelgraph.OutputRef) {
	delete(t.states, ref)
}

// Refs returns all refs with an entry, sorted by node and output index.
func (t *StateTable) Refs() []kernelgraph.OutputRef {
	refs := make([]kernelgraph.OutputRef, 0, len(t.states))
	for ref := range t.states {
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, compareRefs)
	return refs
}

// Conflicts returns a snapshot of the refs flagged as conflicting, sorted.
func (t *StateTable) Conflicts() []kernelgraph.OutputRef {
	var refs []kernelgraph.OutputRef
	for ref, st := range t.states {
		if st.ConflictWithOutput {
			refs = append(refs, ref)
		}
	}
	slices.SortFunc(refs, compareRefs)
	return refs
}

func compareRefs(a, b kernelgraph.OutputRef) int {
	if c := cmp.Compare(a.Node, b.Node); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// String lists the entries, one per line.
func (t *StateTable) String() string {
	var sb strings.Builder
	for _, ref := range t.Refs() {
		st := t.states[ref]
		fmt.Fprintf(&sb, "%s: %s", ref, st.Type)
		if st.ConflictWithOutput {
			sb.WriteString(" (conflict)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
