// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

// highlight of a table row.
type highlight int

const (
	plainRow highlight = iota
	padRow
	conflictRow
)

var (
	headerStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	cellStyle = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)

	highlightStyles = map[highlight]lipgloss.Style{
		padRow:      cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "3", Dark: "11"}),
		conflictRow: cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).Bold(true),
	}
)

// styledTable is a lipgloss table whose rows can be highlighted, with one alignment per column
// (the last one repeats).
type styledTable struct {
	*lgtable.Table
	highlights []highlight
	alignments []lipgloss.Position
}

func newTable(alignments ...lipgloss.Position) *styledTable {
	t := &styledTable{alignments: alignments}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(t.style)
	return t
}

// AddRow appends a row with the given highlight.
func (t *styledTable) AddRow(h highlight, cells ...string) {
	t.highlights = append(t.highlights, h)
	t.Table.Row(cells...)
}

// Pair appends a plain key/value row.
func (t *styledTable) Pair(key, value string) {
	t.AddRow(plainRow, key, value)
}

func (t *styledTable) style(row, col int) lipgloss.Style {
	if row == lgtable.HeaderRow {
		return headerStyle
	}
	s := cellStyle.Faint(row%2 == 1)
	if row < len(t.highlights) {
		if hs, found := highlightStyles[t.highlights[row]]; found {
			s = hs
		}
	}
	if len(t.alignments) == 0 {
		return s
	}
	return s.Align(t.alignments[min(col, len(t.alignments)-1)])
}
