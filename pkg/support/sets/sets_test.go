// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[int](10)
	assert.Equal(t, 0, s.Len())

	s.Insert(3, 7)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []int{3, 7}, Sorted(s))

	s2 := MakeWith(7, -1, 5)
	assert.Equal(t, []int{-1, 5, 7}, Sorted(s2))
	assert.Empty(t, Sorted(Make[int]()))
}

func TestInsertNew(t *testing.T) {
	visited := Make[string]()
	assert.True(t, visited.InsertNew("load"))
	assert.False(t, visited.InsertNew("load"))
	assert.True(t, visited.InsertNew("store"))
	assert.Equal(t, []string{"load", "store"}, Sorted(visited))
}
