// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernelgraph holds the fused compute graph of one kernel: the nodes, the edges between
// their ports and the tensor layout owned by each output port.
//
// Nodes live in an arena and are referred to by NodeID; output ports by OutputRef. Handles remain
// valid while the graph is mutated (nodes inserted, rewired or removed), which is what lets the
// layout passes keep per-port state in plain maps.
//
// The graph is not safe for concurrent use.
package kernelgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// NodeID is the handle of a node in its Graph.
type NodeID int

// OutputRef identifies an output port: the Index-th output of Node.
type OutputRef struct {
	Node  NodeID
	Index int
}

// String implements fmt.Stringer.
func (r OutputRef) String() string {
	return fmt.Sprintf("#%d:%d", r.Node, r.Index)
}

// InputRef identifies an input port: the Index-th input of Node.
type InputRef struct {
	Node  NodeID
	Index int
}

// Output is an output port of a node: it owns the Tensor describing its value and the list of
// input ports consuming it.
type Output struct {
	Tensor    *Tensor
	Consumers []InputRef
}

// Attrs holds the kind-specific attributes and out-of-band markers of a node.
type Attrs struct {
	// ReduceAxes are the axes reduced by a KindReduce node.
	ReduceAxes []AxisID

	// ConcatAxis is the axis concatenated by a KindConcat node (or split by KindSplit).
	ConcatAxis AxisID

	// SmallTailConcat is set by the alignment pass on concat nodes whose tail is small enough to
	// be handled without consulting the inputs' layouts.
	SmallTailConcat bool

	// MergedFrom lists the names of the nodes folded into a KindNDDMA node.
	MergedFrom []string
}

// Node of the kernel graph.
type Node struct {
	ID      NodeID
	Name    string
	Kind    Kind
	Inputs  []OutputRef
	Outputs []*Output
	Attrs   Attrs
}

// NumInputs returns the number of input ports.
func (n *Node) NumInputs() int { return len(n.Inputs) }

// NumOutputs returns the number of output ports.
func (n *Node) NumOutputs() int { return len(n.Outputs) }

// OutputRef returns the handle to the idx-th output of the node.
func (n *Node) OutputRef(idx int) OutputRef {
	return OutputRef{Node: n.ID, Index: idx}
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("%s(#%d %q)", n.Kind, n.ID, n.Name)
}

// Graph is an arena of nodes kept in an (eventually) topological order.
type Graph struct {
	name  string
	nodes []*Node // Indexed by NodeID, nil for removed nodes.
	order []NodeID
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of live nodes.
func (g *Graph) NumNodes() int { return len(g.order) }

// Node returns the node with the given id, or nil if it doesn't exist (or was removed).
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// MustNode is like Node, but panics with an exception if the node doesn't exist.
func (g *Graph) MustNode(id NodeID) *Node {
	node := g.Node(id)
	if node == nil {
		exceptions.Panicf("graph %q has no node #%d", g.name, id)
	}
	return node
}

// Output returns the output port referred to by ref, or nil if it doesn't exist.
func (g *Graph) Output(ref OutputRef) *Output {
	node := g.Node(ref.Node)
	if node == nil || ref.Index < 0 || ref.Index >= len(node.Outputs) {
		return nil
	}
	return node.Outputs[ref.Index]
}

// Tensor returns the tensor owned by the output port ref, or nil if it doesn't exist.
func (g *Graph) Tensor(ref OutputRef) *Tensor {
	output := g.Output(ref)
	if output == nil {
		return nil
	}
	return output.Tensor
}

// Nodes returns a snapshot of the live nodes in the current order.
//
// The order is topological after construction and after TopoSort, but nodes added with
// InsertAfter are appended to the end until the next TopoSort.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// NodesOfKind returns a snapshot of the live nodes of the given kind, in the current order.
func (g *Graph) NodesOfKind(kind Kind) []*Node {
	var nodes []*Node
	for _, id := range g.order {
		if g.nodes[id].Kind == kind {
			nodes = append(nodes, g.nodes[id])
		}
	}
	return nodes
}

// AddNode creates a new node consuming the given output ports and owning one output per given
// tensor. Inputs must already exist, so graphs built only with AddNode are topologically sorted.
func (g *Graph) AddNode(name string, kind Kind, inputs []OutputRef, outputs ...*Tensor) NodeID {
	for idx, input := range inputs {
		if g.Output(input) == nil {
			exceptions.Panicf("AddNode(%q): input #%d refers to non-existing output %s", name, idx, input)
		}
	}
	node := &Node{
		ID:     NodeID(len(g.nodes)),
		Name:   name,
		Kind:   kind,
		Inputs: slices.Clone(inputs),
	}
	for _, tensor := range outputs {
		node.Outputs = append(node.Outputs, &Output{Tensor: tensor})
	}
	g.nodes = append(g.nodes, node)
	g.order = append(g.order, node.ID)
	for idx, input := range inputs {
		output := g.Output(input)
		output.Consumers = append(output.Consumers, InputRef{Node: node.ID, Index: idx})
	}
	return node.ID
}

// Producer returns the node feeding the idx-th input of node.
func (g *Graph) Producer(node *Node, idx int) *Node {
	return g.MustNode(node.Inputs[idx].Node)
}

// ProducerNodes returns the distinct nodes feeding the inputs of node, in input order.
func (g *Graph) ProducerNodes(node *Node) []*Node {
	var producers []*Node
	for _, input := range node.Inputs {
		producer := g.MustNode(input.Node)
		if !slices.Contains(producers, producer) {
			producers = append(producers, producer)
		}
	}
	return producers
}

// ConsumerNodes returns the distinct nodes consuming any output of node, in port order.
func (g *Graph) ConsumerNodes(node *Node) []*Node {
	var consumers []*Node
	for _, output := range node.Outputs {
		for _, consumer := range output.Consumers {
			consumerNode := g.MustNode(consumer.Node)
			if !slices.Contains(consumers, consumerNode) {
				consumers = append(consumers, consumerNode)
			}
		}
	}
	return consumers
}

// SetInput makes the input port `input` consume `producer` instead of its current producer.
func (g *Graph) SetInput(input InputRef, producer OutputRef) {
	node := g.MustNode(input.Node)
	newOutput := g.Output(producer)
	if newOutput == nil {
		exceptions.Panicf("SetInput(%v): producer %s doesn't exist", input, producer)
	}
	if oldOutput := g.Output(node.Inputs[input.Index]); oldOutput != nil {
		oldOutput.Consumers = slices.DeleteFunc(oldOutput.Consumers, func(ref InputRef) bool { return ref == input })
	}
	node.Inputs[input.Index] = producer
	newOutput.Consumers = append(newOutput.Consumers, input)
}

// RewireConsumers moves every consumer of `from` to consume `to` instead.
func (g *Graph) RewireConsumers(from, to OutputRef) {
	fromOutput := g.Output(from)
	if fromOutput == nil || g.Output(to) == nil {
		exceptions.Panicf("RewireConsumers(%s, %s): invalid output reference", from, to)
	}
	for _, consumer := range slices.Clone(fromOutput.Consumers) {
		g.SetInput(consumer, to)
	}
}

// InsertAfter creates a node of the given kind consuming `ref` and owning `tensor`, and moves every
// previous consumer of `ref` to the new node's output. The new node is appended to the order, so
// TopoSort must be called before relying on Nodes being sorted.
func (g *Graph) InsertAfter(ref OutputRef, name string, kind Kind, tensor *Tensor) NodeID {
	output := g.Output(ref)
	if output == nil {
		exceptions.Panicf("InsertAfter(%s): output doesn't exist", ref)
	}
	consumers := slices.Clone(output.Consumers)
	id := g.AddNode(name, kind, []OutputRef{ref}, tensor)
	newRef := OutputRef{Node: id, Index: 0}
	for _, consumer := range consumers {
		g.SetInput(consumer, newRef)
	}
	return id
}

// RemoveNode deletes a node whose outputs have no consumers left.
func (g *Graph) RemoveNode(id NodeID) error {
	node := g.Node(id)
	if node == nil {
		return errors.Errorf("RemoveNode: node #%d doesn't exist", id)
	}
	for idx, output := range node.Outputs {
		if len(output.Consumers) > 0 {
			return errors.Errorf("RemoveNode: output %d of %s still has %d consumers", idx, node, len(output.Consumers))
		}
	}
	for idx, input := range node.Inputs {
		producerOutput := g.Output(input)
		if producerOutput == nil {
			continue
		}
		self := InputRef{Node: id, Index: idx}
		producerOutput.Consumers = slices.DeleteFunc(producerOutput.Consumers, func(ref InputRef) bool { return ref == self })
	}
	g.nodes[id] = nil
	g.order = slices.DeleteFunc(g.order, func(other NodeID) bool { return other == id })
	return nil
}

// TopoSort re-orders the nodes topologically. Among nodes that are ready at the same time, the
// current order is kept, so sorting an already sorted graph is a no-op.
func (g *Graph) TopoSort() error {
	position := make(map[NodeID]int, len(g.order))
	for pos, id := range g.order {
		position[id] = pos
	}
	pending := make(map[NodeID]int, len(g.order))
	for _, id := range g.order {
		pending[id] = len(g.nodes[id].Inputs)
	}
	var ready []NodeID
	for _, id := range g.order {
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}
	sorted := make([]NodeID, 0, len(g.order))
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b NodeID) int { return position[a] - position[b] })
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)
		for _, output := range g.nodes[id].Outputs {
			for _, consumer := range output.Consumers {
				pending[consumer.Node]--
				if pending[consumer.Node] == 0 {
					ready = append(ready, consumer.Node)
				}
			}
		}
	}
	if len(sorted) != len(g.order) {
		return errors.Errorf("graph %q has a cycle: only %d of %d nodes could be sorted", g.name, len(sorted), len(g.order))
	}
	g.order = sorted
	return nil
}

// Validate checks the structural consistency of the graph: edges point to live ports in both
// directions and every tensor is well-formed.
func (g *Graph) Validate() error {
	for _, node := range g.Nodes() {
		for idx, input := range node.Inputs {
			output := g.Output(input)
			if output == nil {
				return errors.Errorf("%s: input #%d refers to missing output %s", node, idx, input)
			}
			if !slices.Contains(output.Consumers, InputRef{Node: node.ID, Index: idx}) {
				return errors.Errorf("%s: input #%d not registered as consumer of %s", node, idx, input)
			}
		}
		for idx, output := range node.Outputs {
			if err := output.Tensor.Validate(); err != nil {
				return errors.WithMessagef(err, "%s output #%d", node, idx)
			}
			for _, consumer := range output.Consumers {
				consumerNode := g.Node(consumer.Node)
				if consumerNode == nil || consumer.Index >= len(consumerNode.Inputs) ||
					consumerNode.Inputs[consumer.Index] != node.OutputRef(idx) {
					return errors.Errorf("%s output #%d: stale consumer %v", node, idx, consumer)
				}
			}
		}
	}
	return nil
}

// String returns a multi-line listing of the graph, one node per line.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph %q:\n", g.name)
	for _, node := range g.Nodes() {
		fmt.Fprintf(&sb, "  %s <- %v\n", node, node.Inputs)
		for idx, output := range node.Outputs {
			fmt.Fprintf(&sb, "    [%d] %s\n", idx, output.Tensor)
		}
	}
	return sb.String()
}
