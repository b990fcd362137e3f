// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphfile reads kernel graphs described in YAML, used by tests and by the alignplan
// tool.
//
// Example:
//
//	name: transpose
//	bindings: {s0: 16}
//	nodes:
//	  - name: input
//	    kind: Buffer
//	    dtype: f32
//	    axes: [0, 1]
//	    repeats: [s0, 10]
//	  - name: load
//	    kind: Load
//	    inputs: [input]
//	    dtype: f32
//	    axes: [0, 1]
//	    repeats: [s0, 10]
//	  - name: transpose
//	    kind: Transpose
//	    inputs: [load]
//	    dtype: f32
//	    axes: [1, 0]
//	    repeats: [10, s0]
//
// Sizes are integers, symbol names or products of both ("2*s0"). Strides default to the
// contiguous strides of the repeats, and vectorized axes default to all axes. Nodes with several
// outputs list them under "outputs", and inputs refer to them as "name:index".
package graphfile

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/platform"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the YAML document.
type File struct {
	Name     string            `yaml:"name"`
	Bindings symbolic.Bindings `yaml:"bindings,omitempty"`
	Nodes    []NodeSpec        `yaml:"nodes"`
}

// NodeSpec describes one node. The tensor fields describe its only output, unless Outputs is given.
type NodeSpec struct {
	Name       string       `yaml:"name"`
	Kind       string       `yaml:"kind"`
	Inputs     []string     `yaml:"inputs,omitempty"`
	ReduceAxes []int64      `yaml:"reduce_axes,omitempty"`
	ConcatAxis int64        `yaml:"concat_axis,omitempty"`
	Outputs    []TensorSpec `yaml:"outputs,omitempty"`
	TensorSpec `yaml:",inline"`
}

// TensorSpec describes a tensor.
type TensorSpec struct {
	DType      string  `yaml:"dtype,omitempty"`
	Axes       []int64 `yaml:"axes,omitempty"`
	Repeats    []Size  `yaml:"repeats,omitempty"`
	Strides    []Size  `yaml:"strides,omitempty"`
	Vectorized []int64 `yaml:"vectorized,omitempty"`
}

// Size is a symbolic size written as an integer, a symbol name, or a product of them.
type Size struct {
	symbolic.Expr
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: size must be a scalar", value.Line)
	}
	expr, err := ParseSize(value.Value)
	if err != nil {
		return errors.WithMessagef(err, "line %d", value.Line)
	}
	s.Expr = expr
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	if v, ok := s.IsConst(); ok {
		return v, nil
	}
	return s.String(), nil
}

// ParseSize parses "4", "s0" or "2*s0*s1".
func ParseSize(text string) (symbolic.Expr, error) {
	var factors []symbolic.Expr
	for _, part := range strings.Split(text, "*") {
		part = strings.TrimSpace(part)
		if part == "" {
			return symbolic.Zero, errors.Errorf("invalid size %q", text)
		}
		if v, err := strconv.ParseInt(part, 10, 64); err == nil {
			factors = append(factors, symbolic.Const(v))
			continue
		}
		if !isIdentifier(part) {
			return symbolic.Zero, errors.Errorf("invalid size %q: %q is neither a number nor a symbol", text, part)
		}
		factors = append(factors, symbolic.Sym(part))
	}
	return symbolic.Mul(factors...), nil
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

// Description is a graph built from a File.
type Description struct {
	Graph    *kernelgraph.Graph
	Bindings symbolic.Bindings

	// IDs maps node names to their ids.
	IDs map[string]kernelgraph.NodeID
}

// Load reads and builds the graph in the YAML file at path.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading graph file")
	}
	desc, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "graph file %q", path)
	}
	return desc, nil
}

// Parse builds the graph described by the YAML document. Unknown fields are an error.
func Parse(data []byte) (*Description, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "decoding YAML")
	}
	return Build(&file)
}

// Build creates the graph described by file. Nodes must be listed after their inputs.
func Build(file *File) (*Description, error) {
	desc := &Description{
		Graph:    kernelgraph.New(file.Name),
		Bindings: file.Bindings,
		IDs:      make(map[string]kernelgraph.NodeID, len(file.Nodes)),
	}
	for i, spec := range file.Nodes {
		if spec.Name == "" {
			return nil, errors.Errorf("node #%d has no name", i)
		}
		if _, found := desc.IDs[spec.Name]; found {
			return nil, errors.Errorf("node %q defined twice", spec.Name)
		}
		kind, err := kernelgraph.KindString(spec.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "node %q", spec.Name)
		}
		inputs := make([]kernelgraph.OutputRef, len(spec.Inputs))
		for j, input := range spec.Inputs {
			inputs[j], err = desc.resolve(input)
			if err != nil {
				return nil, errors.WithMessagef(err, "node %q input #%d", spec.Name, j)
			}
		}
		outputSpecs := spec.Outputs
		if len(outputSpecs) == 0 {
			outputSpecs = []TensorSpec{spec.TensorSpec}
		}
		tensors := make([]*kernelgraph.Tensor, len(outputSpecs))
		for j := range outputSpecs {
			tensors[j], err = outputSpecs[j].Tensor()
			if err != nil {
				return nil, errors.WithMessagef(err, "node %q output #%d", spec.Name, j)
			}
		}
		id := desc.Graph.AddNode(spec.Name, kind, inputs, tensors...)
		node := desc.Graph.Node(id)
		for _, axis := range spec.ReduceAxes {
			node.Attrs.ReduceAxes = append(node.Attrs.ReduceAxes, kernelgraph.AxisID(axis))
		}
		node.Attrs.ConcatAxis = kernelgraph.AxisID(spec.ConcatAxis)
		desc.IDs[spec.Name] = id
	}
	if err := desc.Graph.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

// resolve parses "name" or "name:index".
func (desc *Description) resolve(input string) (kernelgraph.OutputRef, error) {
	name, indexText, hasIndex := strings.Cut(input, ":")
	id, found := desc.IDs[name]
	if !found {
		return kernelgraph.OutputRef{}, errors.Errorf("unknown node %q (nodes must be defined before use)", name)
	}
	ref := kernelgraph.OutputRef{Node: id}
	if hasIndex {
		index, err := strconv.Atoi(indexText)
		if err != nil {
			return ref, errors.Errorf("invalid output index in %q", input)
		}
		ref.Index = index
	}
	if desc.Graph.Output(ref) == nil {
		return ref, errors.Errorf("node %q has no output %d", name, ref.Index)
	}
	return ref, nil
}

// Tensor builds the tensor, filling in the defaults.
func (spec TensorSpec) Tensor() (*kernelgraph.Tensor, error) {
	dtype, err := platform.ParseDType(spec.DType)
	if err != nil {
		return nil, err
	}
	if len(spec.Repeats) != len(spec.Axes) {
		return nil, errors.Errorf("%d axes but %d repeats", len(spec.Axes), len(spec.Repeats))
	}
	axes := make([]kernelgraph.AxisID, len(spec.Axes))
	for i, axis := range spec.Axes {
		axes[i] = kernelgraph.AxisID(axis)
	}
	repeats := make([]symbolic.Expr, len(spec.Repeats))
	for i, r := range spec.Repeats {
		repeats[i] = r.Expr
	}
	t := kernelgraph.NewContiguousTensor(dtype, axes, repeats)
	if len(spec.Strides) > 0 {
		if len(spec.Strides) != len(axes) {
			return nil, errors.Errorf("%d axes but %d strides", len(axes), len(spec.Strides))
		}
		for i, s := range spec.Strides {
			t.Strides[i] = s.Expr
		}
	}
	if spec.Vectorized != nil {
		t.VectorizedAxes = make([]kernelgraph.AxisID, len(spec.Vectorized))
		for i, axis := range spec.Vectorized {
			t.VectorizedAxes[i] = kernelgraph.AxisID(axis)
		}
	}
	return t, nil
}
