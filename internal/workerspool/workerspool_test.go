// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolLimit(t *testing.T) {
	pool := New(3)
	require.Equal(t, 3, pool.MaxParallelism())

	var running, maxRunning, count atomic.Int32
	for range 50 {
		pool.Go(func() {
			current := running.Add(1)
			for {
				seen := maxRunning.Load()
				if current <= seen || maxRunning.CompareAndSwap(seen, current) {
					break
				}
			}
			runtime.Gosched()
			count.Add(1)
			running.Add(-1)
		})
	}
	pool.Wait()
	assert.Equal(t, int32(50), count.Load())
	assert.LessOrEqual(t, maxRunning.Load(), int32(3))
}

func TestMap(t *testing.T) {
	pool := New(0)
	assert.Equal(t, runtime.NumCPU(), pool.MaxParallelism())
	squares := Map(pool, 20, func(i int) int { return i * i })
	for i, v := range squares {
		assert.Equal(t, i*i, v)
	}
}
