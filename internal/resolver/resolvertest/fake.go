// SPDX-License-Identifier: MIT

// Package resolvertest provides a scriptable StreamResolver for
// roomsupervisor and resolver tests that need deterministic probe results
// without a network call.
package resolvertest

import (
	"context"
	"sync"

	"github.com/roomrec/roomrec/internal/resolver"
)

// Fake returns a queued sequence of results/errors, one per Resolve call; the
// last entry repeats once the queue is exhausted.
type Fake struct {
	mu      sync.Mutex
	results []resolver.Resolution
	errs    []error
	calls   int
}

// NewFake returns a Fake with no queued results; Resolve will return the
// zero Resolution until Push is called.
func NewFake() *Fake {
	return &Fake{}
}

// Push appends a scripted (Resolution, error) pair to the queue.
func (f *Fake) Push(res resolver.Resolution, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	f.errs = append(f.errs, err)
}

// Calls returns how many times Resolve has been invoked.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Resolve implements resolver.StreamResolver.
func (f *Fake) Resolve(_ context.Context, _ resolver.Room, _ string) (resolver.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++

	if idx < 0 {
		return resolver.Resolution{}, nil
	}
	return f.results[idx], f.errs[idx]
}
