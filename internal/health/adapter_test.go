// SPDX-License-Identifier: MIT

package health

import (
	"testing"

	"github.com/roomrec/roomrec/internal/governor"
	"github.com/roomrec/roomrec/internal/status"
)

func TestStatusAdapterMapsRecordingState(t *testing.T) {
	reporter := status.NewReporter(nil, status.GlobalSnapshot{})
	reporter.Update("https://example/a", status.RoomSnapshot{
		Anchor: "alice",
		URL:    "https://example/a",
		State:  status.StateRecording,
	})

	rooms := StatusAdapter{Reporter: reporter}.Rooms()
	if len(rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(rooms))
	}
	if !rooms[0].Recording {
		t.Error("expected Recording true for a room in StateRecording")
	}
	if rooms[0].State != "recording" {
		t.Errorf("State = %q, want recording", rooms[0].State)
	}
}

func TestGovernorAdapterReflectsCurrentState(t *testing.T) {
	g := governor.New(5)
	info := GovernorAdapter{Governor: g}.GovernorStatus()
	if info.CurrentLimit != 5 || info.PresetLimit != 5 {
		t.Errorf("info = %+v, want limits at 5", info)
	}
}

func TestDiskAdapterWarnsBelowFloor(t *testing.T) {
	a := DiskAdapter{
		StatFunc:   func() (uint64, uint64, error) { return 100, 1000, nil },
		FloorBytes: 200,
	}
	si := a.SystemInfo()
	if !si.DiskLowWarning {
		t.Error("expected DiskLowWarning when free is below floor")
	}
}
