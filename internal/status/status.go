// SPDX-License-Identifier: MIT

// Package status aggregates a running snapshot of every monitored room plus
// the governor's current concurrency ceiling, and prints it on a fixed
// interval. The shape — an RWMutex-guarded map keyed by an identifier, fed
// by Update/Remove calls from elsewhere and drained by a ticker loop — is
// the same one the teacher's stream.ResourceMonitor uses for per-PID
// metrics, generalized here to per-room recording state.
package status

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/roomrec/roomrec/internal/i18n"
)

// RoomState is the lifecycle phase reported per room. It mirrors the
// supervisor's own state names so operators see exactly what the system is
// doing, not a paraphrase of it.
type RoomState string

const (
	StateIdle           RoomState = "idle"
	StateProbing        RoomState = "probing"
	StateWaitingLive    RoomState = "waiting_live"
	StateRecording      RoomState = "recording"
	StatePostProcessing RoomState = "post_processing"
	StateStopping       RoomState = "stopping"
)

// RoomSnapshot is one room's reported state at a point in time.
type RoomSnapshot struct {
	Anchor           string
	URL              string
	State            RoomState
	RequestedQuality string
	RecordingSince   time.Time // zero unless State == StateRecording
	ErrorCount       int
}

// GlobalSnapshot is the governor/config-level state reported alongside
// per-room snapshots.
type GlobalSnapshot struct {
	CurrentLimit   int
	PresetLimit    int
	ProxyEnabled   bool
	SegmentEnabled bool
	Container      string
	Quality        string
	StartedAt      time.Time
}

// Reporter tracks per-room snapshots and prints a combined status line on a
// fixed interval.
type Reporter struct {
	mu     sync.RWMutex
	rooms  map[string]RoomSnapshot
	global GlobalSnapshot
	out    io.Writer
	loc    i18n.Localizer
}

// NewReporter builds a Reporter that writes lines to out.
func NewReporter(out io.Writer, global GlobalSnapshot) *Reporter {
	return &Reporter{
		rooms:  make(map[string]RoomSnapshot),
		global: global,
		out:    out,
		loc:    i18n.Identity{},
	}
}

// WithLocalizer swaps in loc for translating the reporter's fixed console
// labels, returning the Reporter for chaining.
func (r *Reporter) WithLocalizer(loc i18n.Localizer) *Reporter {
	if loc != nil {
		r.mu.Lock()
		r.loc = loc
		r.mu.Unlock()
	}
	return r
}

// Update records or replaces the snapshot for the room identified by key
// (its canonical URL).
func (r *Reporter) Update(key string, snap RoomSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[key] = snap
}

// Remove drops a room from the reported set, e.g. once its list entry is
// removed from the registry.
func (r *Reporter) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, key)
}

// SetGlobal replaces the governor/config-level fields reported alongside
// per-room lines.
func (r *Reporter) SetGlobal(global GlobalSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = global
}

// Snapshot returns a stable-ordered copy of the current per-room state,
// sorted by anchor name so repeated calls print in the same order.
func (r *Reporter) Snapshot() []RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomSnapshot, 0, len(r.rooms))
	for _, s := range r.rooms {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Anchor < out[j].Anchor })
	return out
}

// Run prints one status snapshot every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.print()
		}
	}
}

func (r *Reporter) print() {
	r.mu.RLock()
	global := r.global
	loc := r.loc
	rooms := make([]RoomSnapshot, 0, len(r.rooms))
	for _, s := range r.rooms {
		rooms = append(rooms, s)
	}
	r.mu.RUnlock()
	if loc == nil {
		loc = i18n.Identity{}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Anchor < rooms[j].Anchor })

	recording := 0
	errs := 0
	for _, s := range rooms {
		if s.State == StateRecording {
			recording++
		}
		errs += s.ErrorCount
	}

	proxyState := "off"
	if global.ProxyEnabled {
		proxyState = "on"
	}
	segState := "off"
	if global.SegmentEnabled {
		segState = "on"
	}

	fmt.Fprintln(r.out, loc.T("[status] rooms=%d recording=%d limit=%d/%d proxy=%s segment=%s quality=%s container=%s errors=%d uptime=%s",
		len(rooms), recording, global.CurrentLimit, global.PresetLimit,
		proxyState, segState, global.Quality, global.Container, errs,
		time.Since(global.StartedAt).Round(time.Second)))

	if len(rooms) == 0 {
		fmt.Fprintln(r.out, "  "+loc.T("(no active streams)"))
		return
	}

	for _, s := range rooms {
		elapsed := ""
		if s.State == StateRecording && !s.RecordingSince.IsZero() {
			elapsed = time.Since(s.RecordingSince).Round(time.Second).String()
		}
		fmt.Fprintln(r.out, loc.T("  - %s [%s] quality=%s elapsed=%s", s.Anchor, s.State, s.RequestedQuality, elapsed))
	}
}
