// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/vecalign/internal/graphfile"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/gomlx/vecalign/pkg/layout/align"
	"github.com/pkg/errors"
)

// planRow is one output of the plan table.
type planRow struct {
	Output, Kind, Type string
	VStrides           string

	// Evaluated holds the vectorized strides evaluated with the file bindings, or "-" if some
	// symbol is unbound.
	Evaluated string

	// Tail is the size in bytes of the tail axis, if it can be evaluated.
	Tail string

	// Highlight marks pads and outputs whose conflict could not be resolved.
	Highlight highlight
}

func planRows(desc *graphfile.Description, result *align.Result) []planRow {
	var rows []planRow
	for _, node := range desc.Graph.Nodes() {
		if node.Kind.IsBoundary() {
			continue
		}
		for idx, output := range node.Outputs {
			ref := node.OutputRef(idx)
			st, _ := result.States.Get(ref)
			tensor := output.Tensor
			row := planRow{
				Output:    fmt.Sprintf("%s:%d", node.Name, idx),
				Kind:      node.Kind.String(),
				Type:      st.Type.String(),
				VStrides:  joinExprs(tensor.VectorizedStrides),
				Evaluated: evalExprs(tensor.VectorizedStrides, desc.Bindings),
				Tail:      tailBytes(tensor, desc.Bindings),
			}
			switch {
			case st.ConflictWithOutput:
				row.Type += " (conflict)"
				row.Highlight = conflictRow
			case slices.Contains(result.Pads, node.ID):
				row.Highlight = padRow
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func joinExprs(exprs []symbolic.Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func evalExprs(exprs []symbolic.Expr, bindings symbolic.Bindings) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		v, err := e.Eval(bindings)
		if err != nil {
			return "-"
		}
		parts[i] = humanize.Comma(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func tailBytes(tensor *kernelgraph.Tensor, bindings symbolic.Bindings) string {
	repeats, err := tensor.VectorizedRepeats()
	if err != nil || len(repeats) == 0 {
		return "-"
	}
	v, err := repeats[len(repeats)-1].Eval(bindings)
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(v) * uint64(tensor.ElementSize()))
}

// parseBindings parses "s0=16,s1=100".
func parseBindings(text string) (symbolic.Bindings, error) {
	bindings := make(symbolic.Bindings)
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, valueText, found := strings.Cut(part, "=")
		value, err := strconv.Atoi(strings.TrimSpace(valueText))
		if !found || err != nil || value <= 0 {
			return nil, errors.Errorf("invalid binding %q, expected <symbol>=<positive int>", part)
		}
		bindings[strings.TrimSpace(name)] = value
	}
	return bindings, nil
}

// addBindings merges the bindings in text into the graph description's.
func addBindings(desc *graphfile.Description, text string) error {
	extra, err := parseBindings(text)
	if err != nil || len(extra) == 0 {
		return err
	}
	if desc.Bindings == nil {
		desc.Bindings = make(symbolic.Bindings, len(extra))
	}
	return errors.WithMessagef(desc.Bindings.Merge(extra), "-bindings for graph %q", desc.Graph.Name())
}
