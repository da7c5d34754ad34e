// SPDX-License-Identifier: MIT

// Package urlregistry parses the room URL list, canonicalizes each entry,
// and emits add/update/remove events as the file changes on disk. It
// follows a read-parse-diff-write-once discipline per tick rather than
// mutating the file while iterating it.
package urlregistry

import (
	"github.com/roomrec/roomrec/internal/resolver"
)

// Room is the monitored unit: a canonical URL plus the metadata a
// supervisor needs to probe and record it.
type Room struct {
	URL              string
	RequestedQuality resolver.Quality
	DisplayName      string
	Anchor           string
	Commented        bool
	Platform         string
}

// EventKind classifies a RoomEvent.
type EventKind int

const (
	EventAdded EventKind = iota
	EventUpdated
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// RoomEvent is published to the registry's single subscriber, the
// supervisor pool, whenever a scan detects a room's state changed.
type RoomEvent struct {
	Kind EventKind
	Room Room
}
