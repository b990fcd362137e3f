// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// alignplan runs the alignment pass (and optionally the NDDMA canonicalizer) over kernel graphs
// described in YAML, and prints the resulting layout plans.
//
// Usage:
//
//	alignplan [flags] <graph.yaml> [<graph.yaml> ...]
//
// The platform is taken from $VECALIGN_PLATFORM, unless -platform is given. Graphs are planned
// concurrently, and printed in the order given.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/vecalign/internal/graphfile"
	"github.com/gomlx/vecalign/internal/workerspool"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/platform"
	"github.com/gomlx/vecalign/pkg/layout/align"
	"github.com/gomlx/vecalign/pkg/layout/nddma"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagPolicy   = flag.String("policy", "default", "Inference policy: \"default\" or \"restrictive\".")
	flagPlatform = flag.String("platform", "", fmt.Sprintf(
		"Platform options, e.g. \"align=32,compat\". If empty, $%s is used.", platform.EnvVar))
	flagStrictConcat = flag.Bool("strict_concat", false,
		"Make small-tail concats FixedNotAligned, so aligning them requires a pad.")
	flagNDDMA = flag.Bool("nddma", false,
		"Merge transposes, broadcasts and casts into NDDMA loads before printing the plan.")
	flagScorePrefix = flag.String("score_prefix", "",
		"If set (with -nddma), prints the C score functions of the merged nodes, using this prefix.")
	flagPlain       = flag.Bool("plain", false, "Print the plain text description instead of tables.")
	flagColor       = flag.String("color", "auto", "Table colors: \"auto\", \"always\" or \"never\".")
	flagBindings    = flag.String("bindings", "",
		"Extra symbol bindings used to evaluate strides, e.g. \"s0=16,s1=100\". They must agree with the graph file's.")
	flagParallelism = flag.Int("parallelism", 0, "Number of graphs planned concurrently. If 0, the number of CPUs.")
)

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		klog.Errorf("Missing graph file(s) to plan. See 'alignplan -help'.")
		os.Exit(1)
	}
	opts, err := alignOptions()
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	switch *flagColor {
	case "auto":
	case "always":
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		klog.Errorf("Invalid -color=%q. See 'alignplan -help'.", *flagColor)
		os.Exit(1)
	}

	type planned struct {
		text string
		err  error
	}
	pool := workerspool.New(*flagParallelism)
	plans := workerspool.Map(pool, len(paths), func(i int) planned {
		text, err := planFile(paths[i], opts)
		return planned{text, err}
	})
	failed := false
	for i, plan := range plans {
		if plan.err != nil {
			klog.Errorf("%s: %+v", paths[i], plan.err)
			failed = true
			continue
		}
		fmt.Print(plan.text)
	}
	if failed {
		os.Exit(1)
	}
}

func alignOptions() (opts align.Options, err error) {
	opts.Policy, err = align.PolicyByName(*flagPolicy)
	if err != nil {
		return
	}
	if *flagPlatform != "" {
		opts.Platform, err = platform.Parse(*flagPlatform)
	} else {
		opts.Platform, err = platform.FromEnv()
	}
	opts.StrictConcat = *flagStrictConcat
	return
}

// planFile loads one graph, runs the passes and renders the plan.
func planFile(path string, opts align.Options) (string, error) {
	if opts.Platform == nil {
		opts.Platform = platform.Default()
	}
	desc, err := graphfile.Load(path)
	if err != nil {
		return "", err
	}
	if err := addBindings(desc, *flagBindings); err != nil {
		return "", err
	}
	var result *align.Result
	var report *nddma.Report
	if *flagNDDMA {
		report, err = nddma.Canonicalize(desc.Graph, nddma.Options{Align: opts})
		if err == nil {
			result = report.Result
		}
	} else {
		result, err = align.Run(desc.Graph, opts)
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if *flagPlain {
		sb.WriteString(result.Describe())
	} else {
		renderPlan(&sb, desc, result)
		if report != nil {
			renderReport(&sb, report)
		}
	}
	if report != nil && *flagScorePrefix != "" {
		nodes := make([]*kernelgraph.Node, 0, len(report.Merged))
		for _, id := range report.Merged {
			nodes = append(nodes, desc.Graph.MustNode(id))
		}
		source, err := nddma.GenerateScoreFunc(*flagScorePrefix, nodes, opts.Platform, result.AlignWidth)
		if err != nil {
			return "", errors.WithMessage(err, "generating score functions")
		}
		sb.WriteString(source)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func renderPlan(sb *strings.Builder, desc *graphfile.Description, result *align.Result) {
	fmt.Fprintln(sb, titleStyle.Render(fmt.Sprintf("Plan for %q", desc.Graph.Name())))
	summary := newTable(lipgloss.Right, lipgloss.Left)
	summary.Pair("policy", result.Policy.Name())
	summary.Pair("align width", humanize.Bytes(uint64(result.AlignWidth)))
	summary.Pair("# pads", humanize.Comma(int64(len(result.Pads))))
	summary.Pair("# propagated", humanize.Comma(int64(result.Propagated)))
	if len(desc.Bindings) > 0 {
		summary.Pair("bindings", desc.Bindings.Key())
	}
	fmt.Fprintln(sb, summary.Render())

	table := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Output", "Kind", "Type", "VStrides", "Evaluated", "Tail")
	for _, row := range planRows(desc, result) {
		table.AddRow(row.Highlight, row.Output, row.Kind, row.Type, row.VStrides, row.Evaluated, row.Tail)
	}
	fmt.Fprintln(sb, table.Render())
}

func renderReport(sb *strings.Builder, report *nddma.Report) {
	fmt.Fprintln(sb, titleStyle.Render("NDDMA"))
	table := newTable(lipgloss.Right, lipgloss.Left)
	table.Pair("transposes", humanize.Comma(int64(report.Transposes)))
	table.Pair("broadcasts", humanize.Comma(int64(report.Broadcasts)))
	table.Pair("cast swaps", humanize.Comma(int64(report.CastSwaps)))
	for _, id := range report.Merged {
		table.Pair(fmt.Sprintf("score #%d", id), report.Scores[id].String())
	}
	for _, skipped := range report.Skipped {
		table.AddRow(conflictRow, "skipped", skipped)
	}
	fmt.Fprintln(sb, table.Render())
}
