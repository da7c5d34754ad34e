// SPDX-License-Identifier: MIT

package health

import (
	"github.com/roomrec/roomrec/internal/governor"
	"github.com/roomrec/roomrec/internal/status"
)

// StatusAdapter wraps status.Reporter to satisfy RoomProvider.
type StatusAdapter struct {
	Reporter *status.Reporter
}

// Rooms implements RoomProvider.
func (a StatusAdapter) Rooms() []RoomInfo {
	snaps := a.Reporter.Snapshot()
	out := make([]RoomInfo, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, RoomInfo{
			Anchor:     s.Anchor,
			URL:        s.URL,
			State:      string(s.State),
			Recording:  s.State == status.StateRecording,
			ErrorCount: s.ErrorCount,
		})
	}
	return out
}

// GovernorAdapter wraps governor.Governor to satisfy GovernorProvider.
type GovernorAdapter struct {
	Governor *governor.Governor
}

// GovernorStatus implements GovernorProvider.
func (a GovernorAdapter) GovernorStatus() GovernorInfo {
	return GovernorInfo{
		CurrentLimit: a.Governor.CurrentLimit(),
		PresetLimit:  a.Governor.PresetLimit(),
		Penalty:      a.Governor.Penalty(),
	}
}

// DiskAdapter reports the free/total bytes that StatFunc returns, warning
// once free space drops below FloorBytes (the config's configured
// disk-space floor).
type DiskAdapter struct {
	StatFunc   func() (free, total uint64, err error)
	FloorBytes uint64
}

// SystemInfo implements SystemInfoProvider.
func (a DiskAdapter) SystemInfo() SystemInfo {
	if a.StatFunc == nil {
		return SystemInfo{}
	}
	free, total, err := a.StatFunc()
	if err != nil {
		return SystemInfo{}
	}
	return SystemInfo{
		DiskFreeBytes:  free,
		DiskTotalBytes: total,
		DiskLowWarning: a.FloorBytes > 0 && free < a.FloorBytes,
	}
}
