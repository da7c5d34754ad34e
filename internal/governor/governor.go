// SPDX-License-Identifier: MIT

// Package governor implements the adaptive concurrency controller: a
// counting semaphore sized to a preset ceiling, in front of which a
// shrinkable/growable soft limit gates new acquisitions without ever
// preempting permits already held. A 5-second tick folds the error count
// accumulated since the last tick into a ring-buffer error-rate signal that
// nudges the soft limit up or down.
package governor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	windowSize      = 10
	highThreshold   = 5.0
	lowThreshold    = highThreshold / 2
	penaltyErrors   = 20
	// TickInterval is how often Tick should be called by the driving loop.
	TickInterval = 5 * time.Second
)

// Governor is the ConcurrencyGovernor: CurrentLimit <= PresetLimit <= the
// semaphore's fixed capacity; PresetLimit itself never changes after
// construction.
type Governor struct {
	sem *semaphore.Weighted

	mu           sync.Mutex
	presetLimit  int64
	currentLimit int64
	held         int64
	waitCh       chan struct{}

	window      [windowSize]int
	windowLen   int
	windowHead  int
	pending     int
	lastPenalty bool
}

// New returns a Governor whose soft limit starts at preset (the config's
// global concurrency preset).
func New(preset int) *Governor {
	if preset < 1 {
		preset = 1
	}
	return &Governor{
		sem:          semaphore.NewWeighted(int64(preset)),
		presetLimit:  int64(preset),
		currentLimit: int64(preset),
		waitCh:       make(chan struct{}),
	}
}

// Acquire blocks until a permit is available under the current soft limit
// and the preset hard cap, or ctx is done.
func (g *Governor) Acquire(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.held < g.currentLimit {
			g.held++
			g.mu.Unlock()
			if err := g.sem.Acquire(ctx, 1); err != nil {
				g.mu.Lock()
				g.held--
				g.mu.Unlock()
				return err
			}
			return nil
		}
		wait := g.waitCh
		g.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release returns a permit acquired via Acquire.
func (g *Governor) Release() {
	g.sem.Release(1)
	g.mu.Lock()
	g.held--
	g.broadcastLocked()
	g.mu.Unlock()
}

func (g *Governor) broadcastLocked() {
	close(g.waitCh)
	g.waitCh = make(chan struct{})
}

// RecordError adds one error to the pending count folded in at the next Tick.
func (g *Governor) RecordError() {
	g.mu.Lock()
	g.pending++
	g.mu.Unlock()
}

// Tick recomputes the error rate from the window, adjusts CurrentLimit, and
// folds the pending error count into the window. It is meant to be called
// every TickInterval by the supervision tree's governor service.
func (g *Governor) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()

	rate := g.errorRateLocked()
	switch {
	case rate > highThreshold:
		if g.currentLimit > 1 {
			g.currentLimit--
		}
	case rate < lowThreshold && g.currentLimit < g.presetLimit:
		g.currentLimit++
		g.broadcastLocked()
	}

	g.lastPenalty = g.pending > penaltyErrors

	g.window[g.windowHead] = g.pending
	g.windowHead = (g.windowHead + 1) % windowSize
	if g.windowLen < windowSize {
		g.windowLen++
	}
	g.pending = 0
}

func (g *Governor) errorRateLocked() float64 {
	if g.windowLen == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < g.windowLen; i++ {
		sum += g.window[i]
	}
	return float64(sum) / float64(g.windowLen)
}

// CurrentLimit returns the current soft limit.
func (g *Governor) CurrentLimit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.currentLimit)
}

// PresetLimit returns the configured hard ceiling.
func (g *Governor) PresetLimit() int {
	return int(g.presetLimit)
}

// Penalty reports whether the last tick saw more than penaltyErrors pending
// errors; RoomSupervisor adds a 60s penalty to its next sleep when true.
func (g *Governor) Penalty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPenalty
}

// Run calls Tick every TickInterval until ctx is done, satisfying the
// suture.Service shape so the governor's adjustment loop runs as a
// supervised task alongside the per-room supervisors.
func (g *Governor) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.Tick()
		}
	}
}
