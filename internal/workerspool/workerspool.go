// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent tasks with a bounded number of goroutines.
//
// The layout passes are single-threaded over one graph, but independent graphs (one per kernel)
// can be planned concurrently.
package workerspool

import (
	"runtime"
	"sync"
)

type Pool struct {
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int

	wg sync.WaitGroup
}

// New returns a Pool running at most maxParallelism tasks at a time.
// If maxParallelism <= 0, runtime.NumCPU() is used.
func New(maxParallelism int) *Pool {
	if maxParallelism <= 0 {
		maxParallelism = runtime.NumCPU()
	}
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// MaxParallelism returns the maximum number of tasks running at the same time.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// Go waits until there is a worker available and runs the task in a new goroutine.
func (p *Pool) Go(task func()) {
	p.mu.Lock()
	for p.numRunning >= p.maxParallelism {
		p.cond.Wait()
	}
	p.numRunning++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.numRunning--
			p.cond.Signal()
			p.mu.Unlock()
		}()
		task()
	}()
}

// Wait blocks until all tasks started with Go have finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Map runs fn(i) for i in [0, n) in the pool and waits for all of them. The results are returned in
// order.
func Map[T any](p *Pool, n int, fn func(i int) T) []T {
	results := make([]T, n)
	for i := range n {
		p.Go(func() { results[i] = fn(i) })
	}
	p.Wait()
	return results
}
