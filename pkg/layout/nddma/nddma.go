// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nddma folds data-movement chains around loads into single NDDMA nodes: loads whose
// access pattern is non-contiguous, reading the data directly in the layout its consumers expect.
//
// Canonicalize rewrites three patterns:
//
//   - Load -> (Elementwise|Cast)* -> Transpose: the transpose is pushed up to the loads, which
//     then read transposed.
//   - Load -> Broadcast: the load reads with stride 0 on the broadcast axes.
//   - Load -> Cast -> Broadcast: the broadcast is moved before the cast, so it runs on the narrower
//     type, and is then merged into the load.
//
// Chains that don't match are left alone and listed in Report.Skipped. ScoreNode estimates whether a
// merged node is efficient, and GenerateScoreFunc emits that estimate as C when sizes are symbolic.
package nddma

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/platform"
	"github.com/gomlx/vecalign/pkg/layout/align"
	"github.com/gomlx/vecalign/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// errUnsupported marks patterns that can't be merged: they are skipped, not fatal.
var errUnsupported = errors.New("unsupported pattern")

// Options of Canonicalize.
type Options struct {
	// Align options used to (re-)run the alignment pass.
	Align align.Options
}

// Report of what Canonicalize did.
type Report struct {
	// Result of the alignment pass, updated with the merges.
	Result *align.Result

	// Transposes, Broadcasts and CastSwaps count the patterns merged.
	Transposes, Broadcasts, CastSwaps int

	// Merged lists the NDDMA nodes created or extended, sorted.
	Merged []kernelgraph.NodeID

	// Scores of the merged nodes.
	Scores map[kernelgraph.NodeID]Score

	// Skipped describes the patterns left unmerged.
	Skipped []string
}

// Canonicalize merges the transpose, broadcast and cast chains around loads into NDDMA nodes, and
// runs the alignment pass over the result. The graph is modified in place.
func Canonicalize(g *kernelgraph.Graph, opts Options) (*Report, error) {
	c := &canonicalizer{
		g:      g,
		opts:   opts,
		report: &Report{Scores: make(map[kernelgraph.NodeID]Score)},
		merged: sets.Make[kernelgraph.NodeID](),
	}
	c.platform = opts.Align.Platform
	if c.platform == nil {
		c.platform = platform.Default()
	}
	err := exceptions.TryCatch[error](c.run)
	if err != nil {
		return nil, errors.WithMessagef(err, "NDDMA canonicalization of graph %q", g.Name())
	}
	return c.report, nil
}

type canonicalizer struct {
	g        *kernelgraph.Graph
	opts     Options
	platform *platform.Config
	report   *Report
	result   *align.Result
	merged   sets.Set[kernelgraph.NodeID]
}

func (c *canonicalizer) run() {
	pairs := c.foldTransposes()

	// Layout of the rewritten graph, with the transposes sitting right after the loads.
	result, err := align.Run(c.g, c.opts.Align)
	if err != nil {
		panic(err)
	}
	c.result = result
	c.report.Result = result
	c.mergePairs(pairs)
	c.mergeBroadcasts()
	if err := c.g.TopoSort(); err != nil {
		panic(errors.WithMessage(err, "sorting graph after NDDMA merges"))
	}

	c.report.Merged = sets.Sorted(c.merged)
	for _, id := range c.report.Merged {
		node := c.g.MustNode(id)
		score, err := ScoreNode(node, c.platform, result.AlignWidth)
		if err != nil {
			panic(err)
		}
		c.report.Scores[id] = score
		klog.V(1).Infof("NDDMA: %s merged from %v, score %s (large tail above %s)",
			node, node.Attrs.MergedFrom, score, humanize.IBytes(uint64(c.platform.LargeTailBytes)))
	}
	klog.V(1).Infof("NDDMA over %q: %d transposes, %d broadcasts, %d cast swaps merged, %d skipped",
		c.g.Name(), c.report.Transposes, c.report.Broadcasts, c.report.CastSwaps, len(c.report.Skipped))
}

// skip records a local failure. Other errors are structural and abort the canonicalization.
func (c *canonicalizer) skip(node *kernelgraph.Node, err error) {
	if !errors.Is(err, errUnsupported) {
		panic(err)
	}
	msg := fmt.Sprintf("%s: %v", node.Name, err)
	klog.V(1).Infof("NDDMA: skipping %s", msg)
	c.report.Skipped = append(c.report.Skipped, msg)
}

// removeNode removes a node left without consumers, and its alignment state.
func (c *canonicalizer) removeNode(node *kernelgraph.Node) {
	for idx := range node.Outputs {
		if c.result != nil {
			c.result.States.Delete(node.OutputRef(idx))
		}
	}
	if err := c.g.RemoveNode(node.ID); err != nil {
		panic(err)
	}
}
