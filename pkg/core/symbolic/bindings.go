// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Bindings maps symbol names to concrete values, typically the tiling parameters chosen
// for one kernel launch.
type Bindings map[string]int

// Key returns a canonical string representation for map keying.
// Format: "name1=val1,name2=val2" with names sorted alphabetically.
func (b Bindings) Key() string {
	if len(b) == 0 {
		return ""
	}
	names := maps.Keys(b)
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, b[name])
	}
	return strings.Join(parts, ",")
}

// Merge combines bindings from other into b.
// Returns an error if there are conflicting values for the same symbol.
func (b Bindings) Merge(other Bindings) error {
	for name, val := range other {
		if existing, ok := b[name]; ok && existing != val {
			return errors.Errorf("conflicting values for symbol %q: %d vs %d", name, existing, val)
		}
		b[name] = val
	}
	return nil
}
